package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultkeeper/internal/common"
	"github.com/dmitrijs2005/vaultkeeper/internal/dbx"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const selectColumns = `id, username, password_hash, password_salt, failed_attempts, locked_until,
		 last_failed_at, last_login_at, mfa_enabled, mfa_secret, totp_last_step,
		 key_salt, wrapped_key, key_algorithm,
		 recovery_salt, recovery_wrapped_key, recovery_kdf, recovery_hash, recovery_hash_salt,
		 created_at, updated_at, password_changed_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) error {

	query :=
		`INSERT INTO users (id, username, password_hash, password_salt, key_salt, wrapped_key, key_algorithm,
		 created_at, updated_at, password_changed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $8)
		 `

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.UserName, user.PasswordHash, user.PasswordSalt,
		user.KeySalt, user.WrappedKey, user.KeyAlgorithm, user.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + selectColumns + `
		 FROM users WHERE username = $1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, username))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + selectColumns + `
		 FROM users WHERE id = $1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) LockByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + selectColumns + `
		 FROM users WHERE id = $1 FOR UPDATE`

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.User, error) {
	var (
		u                                  models.User
		lockedUntil, lastFailed, lastLogin sql.NullTime
		secret, recKDF, recHash            sql.NullString
		recSalt, recWrapped, recHashSalt   []byte
	)

	err := row.Scan(&u.ID, &u.UserName, &u.PasswordHash, &u.PasswordSalt, &u.FailedAttempts, &lockedUntil,
		&lastFailed, &lastLogin, &u.MFAEnabled, &secret, &u.TOTPLastStep,
		&u.KeySalt, &u.WrappedKey, &u.KeyAlgorithm,
		&recSalt, &recWrapped, &recKDF, &recHash, &recHashSalt,
		&u.CreatedAt, &u.UpdatedAt, &u.PasswordChangedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	u.LockedUntil = nullTime(lockedUntil)
	u.LastFailedAt = nullTime(lastFailed)
	u.LastLoginAt = nullTime(lastLogin)
	if secret.Valid {
		u.MFASecret = &secret.String
	}
	if recHash.Valid && len(recWrapped) > 0 {
		u.Recovery = &models.RecoveryEnvelope{
			Envelope: models.Envelope{Salt: recSalt, WrappedKey: recWrapped, KDF: recKDF.String},
			Hash:     recHash.String,
			HashSalt: recHashSalt,
		}
	}

	return &u, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (r *PostgresRepository) RecordFailure(ctx context.Context, id string, maxAttempts int, now, lockedUntil time.Time) (*models.LockoutState, error) {
	query :=
		`UPDATE users SET
		   failed_attempts = CASE WHEN failed_attempts + 1 >= $2 THEN 0 ELSE failed_attempts + 1 END,
		   locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3::timestamptz ELSE NULL END,
		   last_failed_at = $4,
		   updated_at = $4
		 WHERE id = $1 AND (locked_until IS NULL OR locked_until <= $4)
		 RETURNING failed_attempts, locked_until
		 `

	var (
		st    models.LockoutState
		until sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id, maxAttempts, lockedUntil, now).Scan(&st.FailedAttempts, &until)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	st.LockedUntil = nullTime(until)
	return &st, nil
}

func (r *PostgresRepository) RecordLogin(ctx context.Context, id string, now time.Time) error {
	query :=
		`UPDATE users SET failed_attempts = 0, locked_until = NULL, last_login_at = $2, updated_at = $2
		 WHERE id = $1 AND (locked_until IS NULL OR locked_until <= $2)
		 `

	return r.execOne(ctx, query, id, now)
}

func (r *PostgresRepository) UpdateCredentials(ctx context.Context, upd models.CredentialUpdate) error {
	query :=
		`UPDATE users SET
		   password_hash = $2, password_salt = $3,
		   key_salt = $4, wrapped_key = $5, key_algorithm = $6,
		   failed_attempts = 0, locked_until = NULL,
		   password_changed_at = $7, updated_at = $7
		 WHERE id = $1
		 `

	return r.execOne(ctx, query, upd.UserID, upd.PasswordHash, upd.PasswordSalt,
		upd.Envelope.Salt, upd.Envelope.WrappedKey, upd.Envelope.KDF, upd.ChangedAt)
}

func (r *PostgresRepository) SetRecovery(ctx context.Context, id string, rec *models.RecoveryEnvelope, now time.Time) error {
	query :=
		`UPDATE users SET
		   recovery_salt = $2, recovery_wrapped_key = $3, recovery_kdf = $4,
		   recovery_hash = $5, recovery_hash_salt = $6, updated_at = $7
		 WHERE id = $1
		 `

	return r.execOne(ctx, query, id, rec.Salt, rec.WrappedKey, rec.KDF, rec.Hash, rec.HashSalt, now)
}

func (r *PostgresRepository) EnableSecondFactor(ctx context.Context, id, secret string, step int64, now time.Time) error {
	query :=
		`UPDATE users SET mfa_enabled = TRUE, mfa_secret = $2, totp_last_step = $3, updated_at = $4
		 WHERE id = $1 AND NOT mfa_enabled
		 `

	return r.execOne(ctx, query, id, secret, step, now)
}

func (r *PostgresRepository) DisableSecondFactor(ctx context.Context, id string, now time.Time) error {
	query :=
		`UPDATE users SET mfa_enabled = FALSE, mfa_secret = NULL, totp_last_step = 0, updated_at = $2
		 WHERE id = $1
		 `

	return r.execOne(ctx, query, id, now)
}

func (r *PostgresRepository) AdvanceTOTPStep(ctx context.Context, id string, step int64) (bool, error) {
	query :=
		`UPDATE users SET totp_last_step = $2
		 WHERE id = $1 AND totp_last_step < $2
		 `

	res, err := r.db.ExecContext(ctx, query, id, step)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM users WHERE id = $1`

	return r.execOne(ctx, query, id)
}

// execOne runs a single-row statement; no affected row means the user is gone.
func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
