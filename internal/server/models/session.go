package models

import "time"

// Session is a server-side login session identified by an unguessable id.
type Session struct {
	ID          string
	UserID      string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	IPAddress   string
	ClientLabel string
}

// ClientInfo is optional caller metadata recorded on sessions and audit rows.
type ClientInfo struct {
	Address string
	Label   string
}
