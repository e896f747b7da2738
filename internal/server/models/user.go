// Package models holds the persistent records of the credential subsystem.
package models

import "time"

// User is the credential record of an account.
//
// PasswordHash and PasswordSalt are always written together. FailedAttempts
// returns to zero whenever LockedUntil is cleared or a login succeeds.
type User struct {
	ID       string
	UserName string

	PasswordHash string
	PasswordSalt []byte

	FailedAttempts int
	LockedUntil    *time.Time
	LastFailedAt   *time.Time
	LastLoginAt    *time.Time

	MFAEnabled   bool
	MFASecret    *string
	TOTPLastStep int64

	// Envelope: the wrapped vault key and what is needed to re-derive its
	// wrapping key. The vault key itself is never stored.
	KeySalt      []byte
	WrappedKey   []byte
	KeyAlgorithm string

	Recovery *RecoveryEnvelope

	CreatedAt         time.Time
	UpdatedAt         time.Time
	PasswordChangedAt time.Time
}

// IsLocked reports whether the lockout is still in force at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// Envelope is the at-rest form of a wrapped vault key.
type Envelope struct {
	Salt       []byte
	WrappedKey []byte
	// KDF is the encoded key-derivation descriptor used to derive the
	// wrapping key from the password and Salt.
	KDF string
}

// RecoveryEnvelope is an independent envelope keyed by a recovery secret.
// Hash and HashSalt verify the secret; the secret itself is never stored.
type RecoveryEnvelope struct {
	Envelope
	Hash     string
	HashSalt []byte
}

// CredentialUpdate is what a password change writes in one statement.
// Writing it also clears the failure counter and any lockout.
type CredentialUpdate struct {
	UserID       string
	PasswordHash string
	PasswordSalt []byte
	Envelope     Envelope
	ChangedAt    time.Time
}

// LockoutState is the result of recording a failed login.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}
