package models

import "time"

// Challenge is the pending state between a password login and its second
// factor. WrappedKey is the vault key sealed under a key only the holder of
// the challenge token can derive. PasswordChangedAt pins the credentials the
// challenge was started with.
type Challenge struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	WrappedKey        []byte    `json:"wrapped_key"`
	PasswordChangedAt time.Time `json:"password_changed_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	Attempts          int       `json:"attempts"`
	IPAddress         string    `json:"ip_address,omitempty"`
}
