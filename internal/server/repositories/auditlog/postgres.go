package auditlog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/vaultkeeper/internal/dbx"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append writes one entry. An empty UserID is stored as NULL so events about
// unknown accounts can be recorded too.
func (r *PostgresRepository) Append(ctx context.Context, e *models.AuditEntry) error {
	query := `
		INSERT INTO audit_log (id, user_id, action, details, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	userID := sql.NullString{String: e.UserID, Valid: e.UserID != ""}
	if _, err := r.db.ExecContext(ctx, query, e.ID, userID, e.Action, e.Details, e.IPAddress, e.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.AuditEntry, error) {
	query := `
		SELECT id, user_id, action, details, ip_address, created_at
		FROM audit_log
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.AuditEntry
	for rows.Next() {
		var (
			e   models.AuditEntry
			uid sql.NullString
		)
		if err := rows.Scan(&e.ID, &uid, &e.Action, &e.Details, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		e.UserID = uid.String
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
