// Package sessions declares the server-side repository contract for login
// sessions.
package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
)

// Repository defines operations for issuing, looking up, extending and
// revoking sessions.
type Repository interface {
	// Create stores a new session.
	Create(ctx context.Context, s *models.Session) error

	// Find returns the session with the given id, expired or not.
	// Implementations return common.ErrorNotFound when it is absent.
	Find(ctx context.Context, id string) (*models.Session, error)

	// Extend moves the expiry of a session to expiresAt. The expiry only ever
	// moves forward; an earlier value is ignored.
	Extend(ctx context.Context, id string, expiresAt time.Time) error

	// Delete removes a session. Deleting a non-existent session is not an
	// error.
	Delete(ctx context.Context, id string) error

	// ListByUser returns the sessions of userID still valid at now, newest
	// first.
	ListByUser(ctx context.Context, userID string, now time.Time) ([]models.Session, error)

	// DeleteByUser removes every session of userID and returns how many there
	// were.
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
