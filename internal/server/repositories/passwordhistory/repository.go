// Package passwordhistory stores previous password hashes so a password
// change can refuse recently used passwords.
package passwordhistory

import (
	"context"

	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
)

type Repository interface {
	Add(ctx context.Context, e *models.PasswordHistoryEntry) error
	// Recent returns up to limit entries of userID, newest first.
	Recent(ctx context.Context, userID string, limit int) ([]models.PasswordHistoryEntry, error)
	// Prune keeps the newest keep entries of userID and deletes the rest.
	Prune(ctx context.Context, userID string, keep int) (int64, error)
}
