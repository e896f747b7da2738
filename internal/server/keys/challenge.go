package keys

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/dmitrijs2005/vaultkeeper/internal/common"
	"golang.org/x/crypto/hkdf"
)

const challengeInfo = "vault-key-challenge"

// ChallengeSecretSize is the length of the per-challenge secret handed to the
// client inside the challenge token.
const ChallengeSecretSize = 32

func challengeKey(secret []byte) ([]byte, error) {
	key := make([]byte, common.VaultKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(challengeInfo)), key); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	return key, nil
}

// SealForChallenge parks vaultKey between the password and second-factor
// steps of a login. The result can only be opened with secret, which the
// server does not keep, and is bound to challengeID.
func (m *Manager) SealForChallenge(vaultKey, secret []byte, challengeID string) ([]byte, error) {
	key, err := challengeKey(secret)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	sealed, err := m.cipher.Encrypt(vaultKey, key, []byte(challengeID))
	if err != nil {
		return nil, err
	}
	return sealed.Bytes(), nil
}

// OpenChallenge reverses SealForChallenge.
func (m *Manager) OpenChallenge(sealed, secret []byte, challengeID string) ([]byte, error) {
	key, err := challengeKey(secret)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	env, err := m.cipher.ParseEnvelope(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrKeyRecovery, err)
	}
	plain, err := m.cipher.Decrypt(env, key, []byte(challengeID))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrKeyRecovery, err)
	}
	return plain, nil
}
