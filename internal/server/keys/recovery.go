package keys

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/vaultkeeper/internal/common"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
)

// recoverySecretBytes gives a 32 hex character recovery secret.
const recoverySecretBytes = 16

// GenerateRecovery creates a new recovery secret and an envelope of vaultKey
// keyed by it. The secret is returned exactly once and never stored; only
// its hash and the envelope are.
func (m *Manager) GenerateRecovery(userID string, vaultKey []byte) (string, *models.RecoveryEnvelope, error) {
	secret, err := common.MakeRandHexString(recoverySecretBytes)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}

	env, err := m.Wrap(userID, []byte(secret), vaultKey)
	if err != nil {
		return "", nil, err
	}

	hash, hashSalt, err := m.hasher.HashPassword([]byte(secret))
	if err != nil {
		return "", nil, err
	}

	return secret, &models.RecoveryEnvelope{Envelope: env, Hash: hash, HashSalt: hashSalt}, nil
}

// VerifyRecoveryKey checks secret against the stored hash.
func (m *Manager) VerifyRecoveryKey(secret string, rec *models.RecoveryEnvelope) bool {
	if rec == nil || rec.Hash == "" {
		return false
	}
	ok, err := m.hasher.VerifyPassword([]byte(NormalizeRecoveryKey(secret)), rec.Hash, rec.HashSalt)
	return err == nil && ok
}

// RecoverVaultKey opens the recovery envelope. Failures match
// common.ErrKeyRecovery, like GetVaultKey.
func (m *Manager) RecoverVaultKey(userID, secret string, rec *models.RecoveryEnvelope) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: no recovery envelope", common.ErrKeyRecovery)
	}
	return m.GetVaultKey(userID, []byte(NormalizeRecoveryKey(secret)), rec.Envelope)
}

// NormalizeRecoveryKey accepts the secret as printed to the user, grouped
// with dashes or spaces and in either case.
func NormalizeRecoveryKey(secret string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(secret) {
		if r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatRecoveryKey groups a secret in blocks of four for display.
func FormatRecoveryKey(secret string) string {
	var parts []string
	for len(secret) > 4 {
		parts = append(parts, secret[:4])
		secret = secret[4:]
	}
	parts = append(parts, secret)
	return strings.ToUpper(strings.Join(parts, "-"))
}
