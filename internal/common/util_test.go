package common

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeRandHexString(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"session id", 32},
		{"odd size", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := MakeRandHexString(tt.size)
			require.NoError(t, err)
			assert.Len(t, s, tt.size*2)

			raw, err := hex.DecodeString(s)
			require.NoError(t, err)
			assert.Len(t, raw, tt.size)
		})
	}
}

func TestMakeRandHexString_Distinct(t *testing.T) {
	seen := make(map[string]struct{})
	for range 256 {
		s, err := MakeRandHexString(16)
		require.NoError(t, err)
		_, dup := seen[s]
		require.False(t, dup, "repeated value %s", s)
		seen[s] = struct{}{}
	}
}

func TestGenerateRandByteArray(t *testing.T) {
	for _, n := range []int{0, 1, 12, VaultKeySize, 64} {
		buf := GenerateRandByteArray(n)
		require.NotNil(t, buf, "size %d", n)
		assert.Len(t, buf, n)
	}
}

func TestGenerateRandByteArray_Distinct(t *testing.T) {
	a := GenerateRandByteArray(VaultKeySize)
	b := GenerateRandByteArray(VaultKeySize)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, make([]byte, VaultKeySize), a, "all-zero key")
}

func TestWipeByteArray(t *testing.T) {
	key := GenerateRandByteArray(VaultKeySize)
	view := key[:8]

	WipeByteArray(key)

	assert.Equal(t, make([]byte, VaultKeySize), key)
	assert.Equal(t, make([]byte, 8), view, "wipe works in place")
	assert.NotPanics(t, func() { WipeByteArray(nil) })
}
