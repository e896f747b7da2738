package grpc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/vaultkeeper/internal/logging"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/services"
)

// ---- fakes ----

type fakeCreds struct {
	lastUser     string
	lastPassword string
	lastUserID   string
	lastCode     string
	lastClient   models.ClientInfo

	registerResp *services.RegisterResult
	loginResp    *services.LoginResult
	recoveryKey  string
	backupCodes  []string
	err          error
}

func (f *fakeCreds) Register(ctx context.Context, username string, password []byte, client models.ClientInfo) (*services.RegisterResult, error) {
	f.lastUser, f.lastPassword, f.lastClient = username, string(password), client
	return f.registerResp, f.err
}

func (f *fakeCreds) Login(ctx context.Context, username string, password []byte, client models.ClientInfo) (*services.LoginResult, error) {
	f.lastUser, f.lastPassword, f.lastClient = username, string(password), client
	return f.loginResp, f.err
}

func (f *fakeCreds) CompleteSecondFactor(ctx context.Context, token, code string, client models.ClientInfo) (*services.LoginResult, error) {
	f.lastCode, f.lastClient = code, client
	return f.loginResp, f.err
}

func (f *fakeCreds) ChangePassword(ctx context.Context, userID string, current, next []byte) error {
	f.lastUserID, f.lastPassword = userID, string(next)
	return f.err
}

func (f *fakeCreds) RecoverWithKey(ctx context.Context, username, recoveryKey string, next []byte, client models.ClientInfo) (string, error) {
	f.lastUser, f.lastPassword = username, string(next)
	return f.recoveryKey, f.err
}

func (f *fakeCreds) RegenerateRecoveryKey(ctx context.Context, userID string, password []byte) (string, error) {
	f.lastUserID = userID
	return f.recoveryKey, f.err
}

func (f *fakeCreds) DeleteAccount(ctx context.Context, userID string, password []byte) error {
	f.lastUserID = userID
	return f.err
}

func (f *fakeCreds) EnableSecondFactor(ctx context.Context, userID, secret, code string) ([]string, error) {
	f.lastUserID, f.lastCode = userID, code
	return f.backupCodes, f.err
}

func (f *fakeCreds) DisableSecondFactor(ctx context.Context, userID, code string) error {
	f.lastUserID, f.lastCode = userID, code
	return f.err
}

func (f *fakeCreds) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	f.lastUserID, f.lastCode = userID, code
	return f.backupCodes, f.err
}

type fakeSessions struct {
	valid    map[string]string // session id -> user id
	list     []models.Session
	ended    []string
	endedAll string
	err      error
}

func (f *fakeSessions) VerifySession(ctx context.Context, sessionID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.valid[sessionID], nil
}

func (f *fakeSessions) EndSession(ctx context.Context, sessionID string) error {
	f.ended = append(f.ended, sessionID)
	return nil
}

func (f *fakeSessions) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	return f.list, nil
}

func (f *fakeSessions) EndAllSessions(ctx context.Context, userID string) (int64, error) {
	f.endedAll = userID
	return int64(len(f.list)), nil
}

type fakeMFA struct {
	setup     *services.TOTPSetup
	remaining int
	err       error
}

func (f *fakeMFA) Setup(ctx context.Context, userID string) (*services.TOTPSetup, error) {
	return f.setup, f.err
}

func (f *fakeMFA) RemainingBackupCodes(ctx context.Context, userID string) (int, error) {
	return f.remaining, f.err
}

type testServer struct {
	*GRPCServer
	creds    *fakeCreds
	sessions *fakeSessions
	mfa      *fakeMFA
}

func newTestServer() *testServer {
	c := &fakeCreds{}
	s := &fakeSessions{valid: map[string]string{"sess-1": "user-1"}}
	m := &fakeMFA{}
	return &testServer{
		GRPCServer: NewGRPCServer("127.0.0.1:0", logging.Nop{}, c, s, m),
		creds:      c,
		sessions:   s,
		mfa:        m,
	}
}

func authed(ctx context.Context, userID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

var testExpiry = time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)
