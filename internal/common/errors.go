// Package common defines shared constants, sentinel errors and small helpers
// used across vaultkeeper components. Callers should use errors.Is to match
// the sentinel values.
package common

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Caller supplied malformed or insufficient input.
	ErrValidation = errors.New("validation error")

	// Wrong credentials. Never says which field was wrong.
	ErrAuthentication = errors.New("invalid username or password")

	// Account temporarily suspended after repeated failures.
	ErrLocked = errors.New("account is locked")

	// Missing or expired session.
	ErrSession = errors.New("invalid session")

	// Cryptographic failures.
	ErrCrypto            = errors.New("crypto error")
	ErrAuthenticationTag = errors.New("authentication tag mismatch")
	ErrKeyRecovery       = errors.New("failed to recover vault key")

	// Second-factor errors.
	ErrNotEnabled    = errors.New("second factor is not enabled")
	ErrInvalidCode   = errors.New("invalid verification code")
	ErrNoBackupCodes = errors.New("no backup codes available")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// LockedError reports a locked account together with the time left until the
// lockout elapses. It matches ErrLocked via errors.Is.
type LockedError struct {
	Until     time.Time
	Remaining time.Duration
}

// NewLockedError builds a LockedError relative to now.
func NewLockedError(until, now time.Time) *LockedError {
	return &LockedError{Until: until, Remaining: until.Sub(now)}
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account is locked, try again in %d minutes", e.RemainingMinutes())
}

// RemainingMinutes rounds the remaining lockout time up to whole minutes.
func (e *LockedError) RemainingMinutes() int {
	if e.Remaining <= 0 {
		return 0
	}
	m := int(e.Remaining / time.Minute)
	if e.Remaining%time.Minute > 0 {
		m++
	}
	return m
}

func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}

// Validationf wraps ErrValidation with a caller-facing message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
