package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/vaultkeeper/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// Algorithm identifies a key-derivation family. The tag is stored next to
// every hash and envelope so verification dispatches on what produced it.
type Algorithm string

const (
	Argon2id     Algorithm = "argon2id"
	PBKDF2SHA256 Algorithm = "pbkdf2-sha256"
)

// KDF is a fully parameterized key-derivation function.
type KDF struct {
	Algorithm   Algorithm
	Time        uint32 // argon2id passes
	MemoryKiB   uint32 // argon2id memory
	Parallelism uint8  // argon2id lanes
	Iterations  int    // pbkdf2 rounds
	KeyLen      uint32
}

// Usable reports whether the parameters can actually be run.
func (k KDF) Usable() bool {
	switch k.Algorithm {
	case Argon2id:
		return k.Time > 0 && k.Parallelism > 0 && k.MemoryKiB >= 8*uint32(k.Parallelism) && k.KeyLen > 0
	case PBKDF2SHA256:
		return k.Iterations > 0 && k.KeyLen > 0
	}
	return false
}

// Derive runs the KDF. Same password and salt always give the same key.
func (k KDF) Derive(password, salt []byte) ([]byte, error) {
	if !k.Usable() {
		return nil, fmt.Errorf("%w: unusable kdf %q", common.ErrCrypto, k.String())
	}
	switch k.Algorithm {
	case Argon2id:
		return argon2.IDKey(password, salt, k.Time, k.MemoryKiB, k.Parallelism, k.KeyLen), nil
	default:
		return pbkdf2.Key(password, salt, k.Iterations, int(k.KeyLen), sha256.New), nil
	}
}

// String encodes the KDF, e.g. "argon2id$v=19$m=65536,t=3,p=4,l=32" or
// "pbkdf2-sha256$i=600000,l=32".
func (k KDF) String() string {
	switch k.Algorithm {
	case Argon2id:
		return fmt.Sprintf("%s$v=%d$m=%d,t=%d,p=%d,l=%d", Argon2id, argon2.Version, k.MemoryKiB, k.Time, k.Parallelism, k.KeyLen)
	case PBKDF2SHA256:
		return fmt.Sprintf("%s$i=%d,l=%d", PBKDF2SHA256, k.Iterations, k.KeyLen)
	}
	return string(k.Algorithm)
}

// ParseKDF decodes a string produced by KDF.String.
func ParseKDF(s string) (KDF, error) {
	parts := strings.Split(s, "$")
	bad := fmt.Errorf("%w: malformed kdf %q", common.ErrCrypto, s)

	var (
		k      KDF
		params string
	)
	switch Algorithm(parts[0]) {
	case Argon2id:
		if len(parts) != 3 || parts[1] != fmt.Sprintf("v=%d", argon2.Version) {
			return KDF{}, bad
		}
		k.Algorithm, params = Argon2id, parts[2]
	case PBKDF2SHA256:
		if len(parts) != 2 {
			return KDF{}, bad
		}
		k.Algorithm, params = PBKDF2SHA256, parts[1]
	default:
		return KDF{}, fmt.Errorf("%w: unknown kdf algorithm %q", common.ErrCrypto, parts[0])
	}

	for _, kv := range strings.Split(params, ",") {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return KDF{}, bad
		}
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return KDF{}, bad
		}
		switch name {
		case "m":
			k.MemoryKiB = uint32(v)
		case "t":
			k.Time = uint32(v)
		case "p":
			if v > 255 {
				return KDF{}, bad
			}
			k.Parallelism = uint8(v)
		case "i":
			k.Iterations = int(v)
		case "l":
			k.KeyLen = uint32(v)
		default:
			return KDF{}, bad
		}
	}

	if !k.Usable() {
		return KDF{}, bad
	}
	return k, nil
}

// Params configures a Hasher.
type Params struct {
	Algorithm   Algorithm
	Time        uint32
	MemoryKiB   uint32
	Parallelism uint8
	KeyLen      uint32
	Iterations  int
	SaltLen     int
}

// Hasher hashes/verifies passwords and derives wrapping keys. New records
// always use the preferred KDF; verification uses whatever the stored tag
// says.
type Hasher struct {
	preferred KDF
	saltLen   int
	fellBack  bool
}

// NewHasher builds a Hasher. When the preferred algorithm is argon2id but its
// parameters cannot run, the PBKDF2-SHA256 variant is used instead and
// FellBack reports true.
func NewHasher(p Params) (*Hasher, error) {
	if p.SaltLen < 16 {
		return nil, fmt.Errorf("%w: salt length %d is too short", common.ErrCrypto, p.SaltLen)
	}

	pbkdf := KDF{Algorithm: PBKDF2SHA256, Iterations: p.Iterations, KeyLen: p.KeyLen}
	h := &Hasher{saltLen: p.SaltLen}

	switch p.Algorithm {
	case Argon2id, "":
		k := KDF{Algorithm: Argon2id, Time: p.Time, MemoryKiB: p.MemoryKiB, Parallelism: p.Parallelism, KeyLen: p.KeyLen}
		if k.Usable() {
			h.preferred = k
			return h, nil
		}
		h.fellBack = true
		h.preferred = pbkdf
	case PBKDF2SHA256:
		h.preferred = pbkdf
	default:
		return nil, fmt.Errorf("%w: unknown kdf algorithm %q", common.ErrCrypto, p.Algorithm)
	}

	if !h.preferred.Usable() {
		return nil, fmt.Errorf("%w: no usable kdf configured", common.ErrCrypto)
	}
	return h, nil
}

// Preferred returns the KDF used for new hashes and envelopes.
func (h *Hasher) Preferred() KDF { return h.preferred }

// FellBack reports whether argon2id was requested but PBKDF2 is in use.
func (h *Hasher) FellBack() bool { return h.fellBack }

// NewSalt returns a fresh random salt of the configured length.
func (h *Hasher) NewSalt() []byte { return common.GenerateRandByteArray(h.saltLen) }

// DeriveKey derives a key from password and salt with the preferred KDF.
func (h *Hasher) DeriveKey(password, salt []byte) ([]byte, error) {
	return h.preferred.Derive(password, salt)
}

// HashPassword returns an encoded, algorithm-tagged hash together with the
// fresh salt it was computed with.
func (h *Hasher) HashPassword(password []byte) (string, []byte, error) {
	salt := h.NewSalt()
	hash, err := h.HashWithSalt(password, salt)
	if err != nil {
		return "", nil, err
	}
	return hash, salt, nil
}

// HashWithSalt hashes with the preferred KDF and an explicit salt.
func (h *Hasher) HashWithSalt(password, salt []byte) (string, error) {
	sum, err := h.preferred.Derive(password, salt)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(sum)
	return h.preferred.String() + "$" + base64.RawStdEncoding.EncodeToString(sum), nil
}

// VerifyPassword recomputes the hash with the parameters recorded in the
// encoded hash and compares in constant time. A malformed hash is an error,
// a mismatch is (false, nil).
func (h *Hasher) VerifyPassword(password []byte, encoded string, salt []byte) (bool, error) {
	idx := strings.LastIndex(encoded, "$")
	if idx <= 0 {
		return false, fmt.Errorf("%w: malformed password hash", common.ErrCrypto)
	}

	k, err := ParseKDF(encoded[:idx])
	if err != nil {
		return false, err
	}
	want, err := base64.RawStdEncoding.DecodeString(encoded[idx+1:])
	if err != nil {
		return false, fmt.Errorf("%w: malformed password hash", common.ErrCrypto)
	}

	got, err := k.Derive(password, salt)
	if err != nil {
		return false, err
	}
	defer common.WipeByteArray(got)

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
