// Package auditlog persists the security audit trail.
package auditlog

import (
	"context"

	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
)

type Repository interface {
	Append(ctx context.Context, e *models.AuditEntry) error
	// ListByUser returns up to limit entries of userID, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]models.AuditEntry, error)
}
