package client

import (
	"context"
	"time"
)

type RegisterResult struct {
	UserID   string
	VaultKey []byte
	// RecoveryKey is shown to the user once and never sent again.
	RecoveryKey string
}

// LoginResult carries either an open session or, when SecondFactorRequired
// is set, a challenge token for CompleteSecondFactor.
type LoginResult struct {
	UserID               string
	SessionID            string
	ExpiresAt            time.Time
	VaultKey             []byte
	SecondFactorRequired bool
	ChallengeToken       string
}

type SessionInfo struct {
	CreatedAt   time.Time
	ExpiresAt   time.Time
	IPAddress   string
	ClientLabel string
	Current     bool
}

type SecondFactorSetup struct {
	Secret string
	URI    string
}

type Client interface {
	Close() error
	Ping(ctx context.Context) error

	Register(ctx context.Context, username string, password []byte) (*RegisterResult, error)
	Login(ctx context.Context, username string, password []byte) (*LoginResult, error)
	CompleteSecondFactor(ctx context.Context, token, code string) (*LoginResult, error)
	Recover(ctx context.Context, username, recoveryKey string, newPassword []byte) (string, error)

	Logout(ctx context.Context) error
	LogoutAll(ctx context.Context) (int64, error)
	ListSessions(ctx context.Context) ([]SessionInfo, error)
	ChangePassword(ctx context.Context, current, next []byte) error
	RegenerateRecoveryKey(ctx context.Context, password []byte) (string, error)
	DeleteAccount(ctx context.Context, password []byte) error

	SetupSecondFactor(ctx context.Context) (*SecondFactorSetup, error)
	EnableSecondFactor(ctx context.Context, secret, code string) ([]string, error)
	DisableSecondFactor(ctx context.Context, code string) error
	RegenerateBackupCodes(ctx context.Context, code string) ([]string, error)
	BackupCodeStatus(ctx context.Context) (int, error)
}
