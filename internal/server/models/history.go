package models

import "time"

// PasswordHistoryEntry keeps a previous password hash for reuse checks.
type PasswordHistoryEntry struct {
	ID           int64
	UserID       string
	PasswordHash string
	PasswordSalt []byte
	ChangedAt    time.Time
}
