// Package cryptox holds the low-level primitives of the vault: AES-GCM
// authenticated encryption and the password hashing / key derivation
// functions (Argon2id with a PBKDF2-SHA256 fallback).
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/dmitrijs2005/vaultkeeper/internal/common"
)

// Default AEAD sizes.
const (
	DefaultNonceSize = 12
	DefaultTagSize   = 16
)

// Envelope is the output of Encrypt: a fresh random nonce and the
// authenticated ciphertext (tag appended).
type Envelope struct {
	Nonce      []byte
	Ciphertext []byte
}

// Bytes serializes the envelope as nonce || ciphertext.
func (e Envelope) Bytes() []byte {
	out := make([]byte, 0, len(e.Nonce)+len(e.Ciphertext))
	out = append(out, e.Nonce...)
	return append(out, e.Ciphertext...)
}

// Cipher performs AES-GCM encryption with a fixed nonce and tag size.
type Cipher struct {
	nonceSize int
	tagSize   int
}

// NewCipher validates the nonce/tag sizes. GCM can vary one of them away
// from the standard 12/16 but not both at once.
func NewCipher(nonceSize, tagSize int) (*Cipher, error) {
	if nonceSize <= 0 || tagSize <= 0 {
		return nil, fmt.Errorf("%w: nonce and tag sizes must be positive", common.ErrCrypto)
	}
	if nonceSize != DefaultNonceSize && tagSize != DefaultTagSize {
		return nil, fmt.Errorf("%w: unsupported nonce/tag combination %d/%d", common.ErrCrypto, nonceSize, tagSize)
	}
	if tagSize < 12 || tagSize > 16 {
		return nil, fmt.Errorf("%w: tag size %d out of range", common.ErrCrypto, tagSize)
	}
	return &Cipher{nonceSize: nonceSize, tagSize: tagSize}, nil
}

// DefaultCipher returns a Cipher with 12-byte nonces and 16-byte tags.
func DefaultCipher() *Cipher {
	return &Cipher{nonceSize: DefaultNonceSize, tagSize: DefaultTagSize}
}

// NonceSize returns the nonce length used by this cipher.
func (c *Cipher) NonceSize() int { return c.nonceSize }

func (c *Cipher) aead(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}

	var gcm cipher.AEAD
	switch {
	case c.nonceSize == DefaultNonceSize && c.tagSize == DefaultTagSize:
		gcm, err = cipher.NewGCM(block)
	case c.tagSize != DefaultTagSize:
		gcm, err = cipher.NewGCMWithTagSize(block, c.tagSize)
	default:
		gcm, err = cipher.NewGCMWithNonceSize(block, c.nonceSize)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	return gcm, nil
}

// Encrypt seals plaintext under key with a fresh random nonce. The optional
// additional data is authenticated but not encrypted; the same value must be
// passed to Decrypt.
//
// The key must be a valid AES key length (16, 24, or 32 bytes).
func (c *Cipher) Encrypt(plaintext, key, additionalData []byte) (Envelope, error) {
	gcm, err := c.aead(key)
	if err != nil {
		return Envelope{}, err
	}

	nonce := make([]byte, c.nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}

	return Envelope{Nonce: nonce, Ciphertext: gcm.Seal(nil, nonce, plaintext, additionalData)}, nil
}

// Decrypt opens an envelope produced by Encrypt. A tampered nonce or
// ciphertext, a wrong key or mismatching additional data all yield an error
// matching common.ErrAuthenticationTag.
func (c *Cipher) Decrypt(env Envelope, key, additionalData []byte) ([]byte, error) {
	gcm, err := c.aead(key)
	if err != nil {
		return nil, err
	}
	if len(env.Nonce) != c.nonceSize {
		return nil, fmt.Errorf("%w: nonce length %d", common.ErrAuthenticationTag, len(env.Nonce))
	}

	plaintext, err := gcm.Open(nil, env.Nonce, env.Ciphertext, additionalData)
	if err != nil {
		return nil, common.ErrAuthenticationTag
	}
	return plaintext, nil
}

// ParseEnvelope splits nonce || ciphertext as written by Envelope.Bytes.
func (c *Cipher) ParseEnvelope(b []byte) (Envelope, error) {
	if len(b) < c.nonceSize+c.tagSize {
		return Envelope{}, fmt.Errorf("%w: envelope too short", common.ErrAuthenticationTag)
	}
	nonce := make([]byte, c.nonceSize)
	copy(nonce, b[:c.nonceSize])
	ct := make([]byte, len(b)-c.nonceSize)
	copy(ct, b[c.nonceSize:])
	return Envelope{Nonce: nonce, Ciphertext: ct}, nil
}
