// Package keys manages per-user vault keys: a random data-encryption key that
// is only ever stored wrapped under a key derived from the user's password
// (or, independently, from a one-time recovery secret).
package keys

import (
	"fmt"

	"github.com/dmitrijs2005/vaultkeeper/internal/common"
	"github.com/dmitrijs2005/vaultkeeper/internal/cryptox"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
)

// UserKeys is the result of CreateUserKeys. VaultKey is returned to the caller
// for immediate use and must not be persisted; the embedded envelope is what
// gets stored.
type UserKeys struct {
	models.Envelope
	VaultKey []byte
}

// Manager wraps, unwraps and rotates vault keys.
type Manager struct {
	hasher *cryptox.Hasher
	cipher *cryptox.Cipher
}

// NewManager builds a Manager from the process-wide hasher and cipher.
func NewManager(hasher *cryptox.Hasher, cipher *cryptox.Cipher) *Manager {
	return &Manager{hasher: hasher, cipher: cipher}
}

// CreateUserKeys generates a fresh vault key and wraps it under a key derived
// from password and a fresh salt. The envelope is bound to userID.
func (m *Manager) CreateUserKeys(userID string, password []byte) (*UserKeys, error) {
	vaultKey := common.GenerateRandByteArray(common.VaultKeySize)

	env, err := m.Wrap(userID, password, vaultKey)
	if err != nil {
		common.WipeByteArray(vaultKey)
		return nil, err
	}
	return &UserKeys{Envelope: env, VaultKey: vaultKey}, nil
}

// Wrap seals vaultKey under a key derived from password with a fresh salt and
// the preferred KDF.
func (m *Manager) Wrap(userID string, password, vaultKey []byte) (models.Envelope, error) {
	salt := m.hasher.NewSalt()
	kdf := m.hasher.Preferred()

	wrapping, err := kdf.Derive(password, salt)
	if err != nil {
		return models.Envelope{}, err
	}
	defer common.WipeByteArray(wrapping)

	sealed, err := m.cipher.Encrypt(vaultKey, wrapping, []byte(userID))
	if err != nil {
		return models.Envelope{}, err
	}
	return models.Envelope{Salt: salt, WrappedKey: sealed.Bytes(), KDF: kdf.String()}, nil
}

// GetVaultKey re-derives the wrapping key and opens the envelope. Every
// failure, a wrong password included, matches common.ErrKeyRecovery; the
// underlying cause is kept in the chain for logging.
func (m *Manager) GetVaultKey(userID string, password []byte, env models.Envelope) ([]byte, error) {
	key, err := m.unwrap(userID, password, env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrKeyRecovery, err)
	}
	return key, nil
}

func (m *Manager) unwrap(userID string, secret []byte, env models.Envelope) ([]byte, error) {
	kdf, err := cryptox.ParseKDF(env.KDF)
	if err != nil {
		return nil, err
	}

	wrapping, err := kdf.Derive(secret, env.Salt)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(wrapping)

	sealed, err := m.cipher.ParseEnvelope(env.WrappedKey)
	if err != nil {
		return nil, err
	}
	return m.cipher.Decrypt(sealed, wrapping, []byte(userID))
}

// RotateKeys recovers the vault key with oldPassword and re-wraps the same
// bytes under newPassword with a fresh salt. The protected data is untouched.
func (m *Manager) RotateKeys(userID string, oldPassword, newPassword []byte, env models.Envelope) (models.Envelope, error) {
	vaultKey, err := m.GetVaultKey(userID, oldPassword, env)
	if err != nil {
		return models.Envelope{}, err
	}
	defer common.WipeByteArray(vaultKey)

	return m.Wrap(userID, newPassword, vaultKey)
}
