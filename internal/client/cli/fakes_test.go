package cli

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/vaultkeeper/internal/client/client"
	"github.com/dmitrijs2005/vaultkeeper/internal/client/config"
)

// fakeClient records calls; the embedded interface is nil, so methods not
// overridden here panic.
type fakeClient struct {
	client.Client

	calls []string

	loginResp    *client.LoginResult
	completeResp *client.LoginResult
	loginErr     error
	registerResp *client.RegisterResult

	lastUser     string
	lastPassword string
	lastCurrent  string
	lastCode     string
	lastToken    string
	lastKey      string

	sessions    []client.SessionInfo
	backupCodes []string
	err         error
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) Ping(context.Context) error { return f.err }

func (f *fakeClient) Register(_ context.Context, user string, pw []byte) (*client.RegisterResult, error) {
	f.calls = append(f.calls, "register")
	f.lastUser, f.lastPassword = user, string(pw)
	return f.registerResp, f.err
}

func (f *fakeClient) Login(_ context.Context, user string, pw []byte) (*client.LoginResult, error) {
	f.calls = append(f.calls, "login")
	f.lastUser, f.lastPassword = user, string(pw)
	return f.loginResp, f.loginErr
}

func (f *fakeClient) CompleteSecondFactor(_ context.Context, token, code string) (*client.LoginResult, error) {
	f.calls = append(f.calls, "complete")
	f.lastToken, f.lastCode = token, code
	return f.completeResp, f.err
}

func (f *fakeClient) Recover(_ context.Context, user, key string, pw []byte) (string, error) {
	f.calls = append(f.calls, "recover")
	f.lastUser, f.lastKey, f.lastPassword = user, key, string(pw)
	return "NEWK-EY00", f.err
}

func (f *fakeClient) Logout(context.Context) error {
	f.calls = append(f.calls, "logout")
	return f.err
}

func (f *fakeClient) LogoutAll(context.Context) (int64, error) {
	f.calls = append(f.calls, "logoutall")
	return 3, f.err
}

func (f *fakeClient) ListSessions(context.Context) ([]client.SessionInfo, error) {
	f.calls = append(f.calls, "sessions")
	return f.sessions, f.err
}

func (f *fakeClient) ChangePassword(_ context.Context, current, next []byte) error {
	f.calls = append(f.calls, "passwd")
	f.lastCurrent, f.lastPassword = string(current), string(next)
	return f.err
}

func (f *fakeClient) RegenerateRecoveryKey(_ context.Context, pw []byte) (string, error) {
	f.calls = append(f.calls, "recoverykey")
	f.lastPassword = string(pw)
	return "ABCD-EFGH", f.err
}

func (f *fakeClient) DeleteAccount(_ context.Context, pw []byte) error {
	f.calls = append(f.calls, "delete")
	f.lastPassword = string(pw)
	return f.err
}

func (f *fakeClient) SetupSecondFactor(context.Context) (*client.SecondFactorSetup, error) {
	f.calls = append(f.calls, "setup")
	return &client.SecondFactorSetup{Secret: "JBSWY3DPEHPK3PXP", URI: "otpauth://totp/vaultkeeper:alice"}, f.err
}

func (f *fakeClient) EnableSecondFactor(_ context.Context, secret, code string) ([]string, error) {
	f.calls = append(f.calls, "enable")
	f.lastKey, f.lastCode = secret, code
	return f.backupCodes, f.err
}

func (f *fakeClient) DisableSecondFactor(_ context.Context, code string) error {
	f.calls = append(f.calls, "disable")
	f.lastCode = code
	return f.err
}

func (f *fakeClient) RegenerateBackupCodes(_ context.Context, code string) ([]string, error) {
	f.calls = append(f.calls, "regen")
	f.lastCode = code
	return f.backupCodes, f.err
}

func (f *fakeClient) BackupCodeStatus(context.Context) (int, error) {
	f.calls = append(f.calls, "codes")
	return len(f.backupCodes), f.err
}

// newTestApp returns an App whose prompts read from input.
func newTestApp(f *fakeClient, input string) (*App, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &App{
		config: &config.Config{CallTimeout: time.Second},
		client: f,
		reader: bufio.NewReader(strings.NewReader(input)),
		out:    out,
	}, out
}

func loggedIn(a *App, user string) *App {
	a.vaultKey = []byte{1, 2, 3}
	a.userName = user
	return a
}

// stubPasswords makes password prompts return entries in order.
func stubPasswords(t *testing.T, entries ...string) {
	t.Helper()
	orig := getPassword
	i := 0
	getPassword = func(string, io.Writer) ([]byte, error) {
		if i >= len(entries) {
			t.Fatalf("unexpected password prompt #%d", i+1)
		}
		pw := []byte(entries[i])
		i++
		return pw, nil
	}
	t.Cleanup(func() { getPassword = orig })
}
