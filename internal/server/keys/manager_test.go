package keys

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dmitrijs2005/vaultkeeper/internal/common"
	"github.com/dmitrijs2005/vaultkeeper/internal/cryptox"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, alg cryptox.Algorithm) *Manager {
	t.Helper()
	h, err := cryptox.NewHasher(cryptox.Params{
		Algorithm:   alg,
		Time:        1,
		MemoryKiB:   1024,
		Parallelism: 1,
		KeyLen:      32,
		Iterations:  1000,
		SaltLen:     16,
	})
	require.NoError(t, err)
	return NewManager(h, cryptox.DefaultCipher())
}

func TestCreateUserKeys_RoundTrip(t *testing.T) {
	for _, alg := range []cryptox.Algorithm{cryptox.Argon2id, cryptox.PBKDF2SHA256} {
		t.Run(string(alg), func(t *testing.T) {
			m := newTestManager(t, alg)
			pw := []byte("correct horse battery staple")

			uk, err := m.CreateUserKeys("u1", pw)
			require.NoError(t, err)
			require.Len(t, uk.VaultKey, common.VaultKeySize)
			require.Len(t, uk.Salt, 16)
			require.Contains(t, uk.KDF, string(alg))
			require.False(t, bytes.Contains(uk.WrappedKey, uk.VaultKey))

			got, err := m.GetVaultKey("u1", pw, uk.Envelope)
			require.NoError(t, err)
			assert.Equal(t, uk.VaultKey, got)
		})
	}
}

func TestCreateUserKeys_FreshKeyEachTime(t *testing.T) {
	m := newTestManager(t, cryptox.Argon2id)
	a, err := m.CreateUserKeys("u1", []byte("password-password"))
	require.NoError(t, err)
	b, err := m.CreateUserKeys("u1", []byte("password-password"))
	require.NoError(t, err)

	assert.NotEqual(t, a.VaultKey, b.VaultKey)
	assert.NotEqual(t, a.Salt, b.Salt)
}

func TestGetVaultKey_Failures(t *testing.T) {
	m := newTestManager(t, cryptox.Argon2id)
	pw := []byte("password-password")
	uk, err := m.CreateUserKeys("u1", pw)
	require.NoError(t, err)

	tampered := uk.Envelope
	tampered.WrappedKey = append([]byte(nil), uk.WrappedKey...)
	tampered.WrappedKey[len(tampered.WrappedKey)-1] ^= 0x01

	otherSalt := uk.Envelope
	otherSalt.Salt = bytes.Repeat([]byte{7}, 16)

	badKDF := uk.Envelope
	badKDF.KDF = "scrypt$n=1"

	short := uk.Envelope
	short.WrappedKey = uk.WrappedKey[:5]

	cases := []struct {
		name   string
		userID string
		pw     []byte
		env    models.Envelope
	}{
		{"wrong password", "u1", []byte("not-the-password"), uk.Envelope},
		{"other user", "u2", pw, uk.Envelope},
		{"tampered", "u1", pw, tampered},
		{"other salt", "u1", pw, otherSalt},
		{"unknown kdf", "u1", pw, badKDF},
		{"truncated", "u1", pw, short},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.GetVaultKey(tc.userID, tc.pw, tc.env)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrKeyRecovery)
		})
	}
}

func TestGetVaultKey_WrongPasswordIsTagFailure(t *testing.T) {
	m := newTestManager(t, cryptox.Argon2id)
	uk, err := m.CreateUserKeys("u1", []byte("password-password"))
	require.NoError(t, err)

	_, err = m.GetVaultKey("u1", []byte("other-password!!"), uk.Envelope)
	assert.ErrorIs(t, err, common.ErrAuthenticationTag)
}

func TestRotateKeys_PreservesVaultKey(t *testing.T) {
	m := newTestManager(t, cryptox.Argon2id)
	oldPw, newPw := []byte("old-password-0001"), []byte("new-password-0002")

	uk, err := m.CreateUserKeys("u1", oldPw)
	require.NoError(t, err)
	before, err := m.GetVaultKey("u1", oldPw, uk.Envelope)
	require.NoError(t, err)

	rotated, err := m.RotateKeys("u1", oldPw, newPw, uk.Envelope)
	require.NoError(t, err)
	assert.NotEqual(t, uk.Salt, rotated.Salt)
	assert.NotEqual(t, uk.WrappedKey, rotated.WrappedKey)

	after, err := m.GetVaultKey("u1", newPw, rotated)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = m.GetVaultKey("u1", oldPw, rotated)
	assert.ErrorIs(t, err, common.ErrKeyRecovery)
}

func TestRotateKeys_WrongOldPassword(t *testing.T) {
	m := newTestManager(t, cryptox.Argon2id)
	uk, err := m.CreateUserKeys("u1", []byte("old-password-0001"))
	require.NoError(t, err)

	_, err = m.RotateKeys("u1", []byte("guess-password-01"), []byte("new-password-0002"), uk.Envelope)
	assert.True(t, errors.Is(err, common.ErrKeyRecovery))
}

func TestGetVaultKey_AcrossAlgorithms(t *testing.T) {
	legacy := newTestManager(t, cryptox.PBKDF2SHA256)
	current := newTestManager(t, cryptox.Argon2id)
	pw := []byte("password-password")

	uk, err := legacy.CreateUserKeys("u1", pw)
	require.NoError(t, err)

	got, err := current.GetVaultKey("u1", pw, uk.Envelope)
	require.NoError(t, err)
	assert.Equal(t, uk.VaultKey, got)
}
