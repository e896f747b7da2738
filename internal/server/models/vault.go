package models

import "time"

// Vault is the container entries are grouped into. Only the default vault
// created at registration is managed here.
type Vault struct {
	ID          int64
	UserID      string
	Name        string
	Description string
	CreatedAt   time.Time
}
