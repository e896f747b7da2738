package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/vaultkeeper/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type GRPCClient struct {
	conn   grpc.ClientConnInterface
	closer func() error
	label  string

	mu        sync.Mutex
	sessionID string
}

// NewGRPCClient connects to endpointURL without TLS.
func NewGRPCClient(endpointURL, label string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(endpointURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	c := NewWithConn(conn, label)
	c.closer = conn.Close
	return c, nil
}

// NewWithConn uses an existing connection, which the caller keeps owning.
func NewWithConn(conn grpc.ClientConnInterface, label string) *GRPCClient {
	return &GRPCClient{conn: conn, label: label, closer: func() error { return nil }}
}

func (s *GRPCClient) Close() error {
	return s.closer()
}

func (s *GRPCClient) session() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *GRPCClient) setSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = id
}

func (s *GRPCClient) withMetadata(ctx context.Context) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	if id := s.session(); id != "" {
		md.Set(common.SessionHeaderName, id)
	}
	if s.label != "" {
		md.Set(common.ClientLabelHeaderName, s.label)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) call(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := s.conn.Invoke(s.withMetadata(ctx), "/"+common.ServiceName+"/"+method, in, out); err != nil {
		return nil, s.mapError(err)
	}
	return out, nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.call(ctx, "Ping", nil)
	if err != nil {
		return err
	}
	if got := str(resp, "status"); got != "OK" {
		return fmt.Errorf("unexpected ping status %q", got)
	}
	return nil
}

func (s *GRPCClient) Register(ctx context.Context, username string, password []byte) (*RegisterResult, error) {
	resp, err := s.call(ctx, "Register", map[string]any{"username": username, "password": string(password)})
	if err != nil {
		return nil, err
	}
	key, err := bytesField(resp, "vault_key")
	if err != nil {
		return nil, err
	}
	return &RegisterResult{UserID: str(resp, "user_id"), VaultKey: key, RecoveryKey: str(resp, "recovery_key")}, nil
}

func (s *GRPCClient) Login(ctx context.Context, username string, password []byte) (*LoginResult, error) {
	resp, err := s.call(ctx, "Login", map[string]any{"username": username, "password": string(password)})
	if err != nil {
		return nil, err
	}
	return s.loginResult(resp)
}

func (s *GRPCClient) CompleteSecondFactor(ctx context.Context, token, code string) (*LoginResult, error) {
	resp, err := s.call(ctx, "CompleteSecondFactor", map[string]any{"challenge_token": token, "code": code})
	if err != nil {
		return nil, err
	}
	return s.loginResult(resp)
}

func (s *GRPCClient) loginResult(resp *structpb.Struct) (*LoginResult, error) {
	r := &LoginResult{
		UserID:               str(resp, "user_id"),
		SecondFactorRequired: resp.GetFields()["second_factor_required"].GetBoolValue(),
		ChallengeToken:       str(resp, "challenge_token"),
	}
	if r.SecondFactorRequired {
		return r, nil
	}

	key, err := bytesField(resp, "vault_key")
	if err != nil {
		return nil, err
	}
	r.VaultKey = key
	r.SessionID = str(resp, "session_id")
	r.ExpiresAt = unix(resp, "expires_at")
	s.setSession(r.SessionID)
	return r, nil
}

func (s *GRPCClient) Recover(ctx context.Context, username, recoveryKey string, newPassword []byte) (string, error) {
	resp, err := s.call(ctx, "Recover", map[string]any{
		"username":     username,
		"recovery_key": recoveryKey,
		"new_password": string(newPassword),
	})
	if err != nil {
		return "", err
	}
	return str(resp, "recovery_key"), nil
}

// Logout ends the current session and forgets it locally, even when the
// server call fails.
func (s *GRPCClient) Logout(ctx context.Context) error {
	if s.session() == "" {
		return ErrNotLoggedIn
	}
	_, err := s.call(ctx, "Logout", nil)
	s.setSession("")
	return err
}

func (s *GRPCClient) LogoutAll(ctx context.Context) (int64, error) {
	resp, err := s.call(ctx, "LogoutAll", nil)
	if err != nil {
		return 0, err
	}
	s.setSession("")
	return int64(resp.GetFields()["ended"].GetNumberValue()), nil
}

func (s *GRPCClient) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	resp, err := s.call(ctx, "ListSessions", nil)
	if err != nil {
		return nil, err
	}
	var out []SessionInfo
	for _, v := range resp.GetFields()["sessions"].GetListValue().GetValues() {
		item := v.GetStructValue()
		out = append(out, SessionInfo{
			CreatedAt:   unix(item, "created_at"),
			ExpiresAt:   unix(item, "expires_at"),
			IPAddress:   str(item, "ip_address"),
			ClientLabel: str(item, "client_label"),
			Current:     item.GetFields()["current"].GetBoolValue(),
		})
	}
	return out, nil
}

// ChangePassword ends every session on the server, the current one
// included.
func (s *GRPCClient) ChangePassword(ctx context.Context, current, next []byte) error {
	_, err := s.call(ctx, "ChangePassword", map[string]any{
		"current_password": string(current),
		"new_password":     string(next),
	})
	if err != nil {
		return err
	}
	s.setSession("")
	return nil
}

func (s *GRPCClient) RegenerateRecoveryKey(ctx context.Context, password []byte) (string, error) {
	resp, err := s.call(ctx, "RegenerateRecoveryKey", map[string]any{"password": string(password)})
	if err != nil {
		return "", err
	}
	return str(resp, "recovery_key"), nil
}

func (s *GRPCClient) DeleteAccount(ctx context.Context, password []byte) error {
	if _, err := s.call(ctx, "DeleteAccount", map[string]any{"password": string(password)}); err != nil {
		return err
	}
	s.setSession("")
	return nil
}

func (s *GRPCClient) SetupSecondFactor(ctx context.Context) (*SecondFactorSetup, error) {
	resp, err := s.call(ctx, "SetupSecondFactor", nil)
	if err != nil {
		return nil, err
	}
	return &SecondFactorSetup{Secret: str(resp, "secret"), URI: str(resp, "uri")}, nil
}

func (s *GRPCClient) EnableSecondFactor(ctx context.Context, secret, code string) ([]string, error) {
	resp, err := s.call(ctx, "EnableSecondFactor", map[string]any{"secret": secret, "code": code})
	if err != nil {
		return nil, err
	}
	return stringList(resp, "backup_codes"), nil
}

func (s *GRPCClient) DisableSecondFactor(ctx context.Context, code string) error {
	_, err := s.call(ctx, "DisableSecondFactor", map[string]any{"code": code})
	return err
}

func (s *GRPCClient) RegenerateBackupCodes(ctx context.Context, code string) ([]string, error) {
	resp, err := s.call(ctx, "RegenerateBackupCodes", map[string]any{"code": code})
	if err != nil {
		return nil, err
	}
	return stringList(resp, "backup_codes"), nil
}

func (s *GRPCClient) BackupCodeStatus(ctx context.Context) (int, error) {
	resp, err := s.call(ctx, "BackupCodeStatus", nil)
	if err != nil {
		return 0, err
	}
	return int(resp.GetFields()["remaining"].GetNumberValue()), nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrLocked, st.Message())
	case codes.InvalidArgument, codes.AlreadyExists, codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", ErrRejected, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}

func str(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func unix(s *structpb.Struct, name string) time.Time {
	return time.Unix(int64(s.GetFields()[name].GetNumberValue()), 0)
}

// bytesField decodes a byte slice, which structpb carries as base64.
func bytesField(s *structpb.Struct, name string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(str(s, name))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return b, nil
}

func stringList(s *structpb.Struct, name string) []string {
	var out []string
	for _, v := range s.GetFields()[name].GetListValue().GetValues() {
		out = append(out, v.GetStringValue())
	}
	return out
}
