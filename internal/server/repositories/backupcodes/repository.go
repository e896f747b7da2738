// Package backupcodes persists hashed single-use second-factor backup codes.
package backupcodes

import (
	"context"
	"time"
)

type Repository interface {
	// Replace drops every code of userID and stores hashes instead.
	Replace(ctx context.Context, userID string, hashes []string, now time.Time) error
	// Consume deletes the code with the given hash and reports whether one
	// existed. Two concurrent calls for the same code cannot both succeed.
	Consume(ctx context.Context, userID, hash string) (bool, error)
	Count(ctx context.Context, userID string) (int, error)
	DeleteAll(ctx context.Context, userID string) error
}
