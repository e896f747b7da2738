// Package users declares the repository contract for credential records.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
)

// Repository persists credential records.
type Repository interface {
	// Create inserts a new user. The caller assigns user.ID. A taken
	// username yields common.ErrAlreadyExists.
	Create(ctx context.Context, user *models.User) error

	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)

	// LockByID reads the user and holds a row lock until the surrounding
	// transaction ends.
	LockByID(ctx context.Context, id string) (*models.User, error)

	// RecordFailure atomically counts a failed login. When the count reaches
	// maxAttempts the account is locked until lockedUntil and the counter is
	// reset. Accounts that are locked at now are left untouched and yield
	// common.ErrorNotFound.
	RecordFailure(ctx context.Context, id string, maxAttempts int, now, lockedUntil time.Time) (*models.LockoutState, error)

	// RecordLogin clears the failure counter and stamps the login. Accounts
	// that are locked at now are left untouched and yield
	// common.ErrorNotFound, so a lockout set by a concurrent attempt holds.
	RecordLogin(ctx context.Context, id string, now time.Time) error

	// UpdateCredentials replaces password hash, salt and envelope together.
	UpdateCredentials(ctx context.Context, upd models.CredentialUpdate) error

	SetRecovery(ctx context.Context, id string, rec *models.RecoveryEnvelope, now time.Time) error

	// EnableSecondFactor stores secret and turns the second factor on. An
	// account that already has one enabled yields common.ErrorNotFound and
	// keeps its secret.
	EnableSecondFactor(ctx context.Context, id, secret string, step int64, now time.Time) error
	DisableSecondFactor(ctx context.Context, id string, now time.Time) error

	// AdvanceTOTPStep records step as the last accepted time step if it is
	// newer than the stored one and reports whether it was.
	AdvanceTOTPStep(ctx context.Context, id string, step int64) (bool, error)

	Delete(ctx context.Context, id string) error
}
