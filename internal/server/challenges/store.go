// Package challenges keeps pending second-factor logins between the password
// step and the code step. Entries expire on their own; a missing entry and an
// expired one look the same to callers.
package challenges

import (
	"context"

	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
)

// Store holds pending challenges.
type Store interface {
	// Put stores c until c.ExpiresAt.
	Put(ctx context.Context, c *models.Challenge) error
	// Get returns the challenge or common.ErrorNotFound.
	Get(ctx context.Context, id string) (*models.Challenge, error)
	// IncrementAttempts atomically counts one verification attempt and
	// returns the new total, or common.ErrorNotFound.
	IncrementAttempts(ctx context.Context, id string) (int, error)
	// Delete removes the challenge; deleting a missing one is not an error.
	Delete(ctx context.Context, id string) error
}
