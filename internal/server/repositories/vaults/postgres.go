// Package vaults provides a PostgreSQL-backed repository for vaults.
package vaults

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/vaultkeeper/internal/dbx"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
)

// PostgresRepository implements vault storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a vault owned by v.UserID.
func (r *PostgresRepository) Create(ctx context.Context, v *models.Vault) error {
	query := `
		INSERT INTO vaults (user_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id
	`
	if err := r.db.QueryRowContext(ctx, query, v.UserID, v.Name, v.Description, v.CreatedAt).Scan(&v.ID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListByUser returns all vaults of userID, oldest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]models.Vault, error) {
	query := `
		SELECT id, user_id, name, description, created_at FROM vaults
		WHERE user_id = $1
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select vaults: %w", err)
	}
	defer rows.Close()

	var result []models.Vault
	for rows.Next() {
		var v models.Vault
		if err := rows.Scan(&v.ID, &v.UserID, &v.Name, &v.Description, &v.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
