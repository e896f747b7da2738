package backupcodes

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultkeeper/internal/dbx"
)

// PostgresRepository implements Repository over a dbx.DBTX. Replace should run
// inside a transaction so a failure cannot leave a partial code set.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Replace(ctx context.Context, userID string, hashes []string, now time.Time) error {
	if err := r.DeleteAll(ctx, userID); err != nil {
		return err
	}

	query := `
		INSERT INTO backup_codes (user_id, code_hash, created_at)
		VALUES ($1, $2, $3)
	`
	for _, h := range hashes {
		if _, err := r.db.ExecContext(ctx, query, userID, h, now); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) Consume(ctx context.Context, userID, hash string) (bool, error) {
	query := `
		DELETE FROM backup_codes
		WHERE user_id = $1 AND code_hash = $2
	`
	res, err := r.db.ExecContext(ctx, query, userID, hash)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Count(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM backup_codes WHERE user_id = $1`

	var n int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) DeleteAll(ctx context.Context, userID string) error {
	query := `DELETE FROM backup_codes WHERE user_id = $1`

	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
