package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/vaultkeeper/internal/common"
	servergrpc "github.com/dmitrijs2005/vaultkeeper/internal/server/grpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

// fakeServer answers the handful of methods exercised here; the embedded
// interface is nil, so any other call panics.
type fakeServer struct {
	servergrpc.VaultKeeperServer

	mu       sync.Mutex
	sessions []string // session_id metadata seen per call
	labels   []string
	lastReq  *structpb.Struct

	secondFactor bool
	err          error
}

func (f *fakeServer) record(ctx context.Context, req *structpb.Struct) {
	f.mu.Lock()
	defer f.mu.Unlock()
	md, _ := metadata.FromIncomingContext(ctx)
	f.sessions = append(f.sessions, first(md.Get(common.SessionHeaderName)))
	f.labels = append(f.labels, first(md.Get(common.ClientLabelHeaderName)))
	f.lastReq = req
}

func first(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

func (f *fakeServer) Ping(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f.record(ctx, req)
	return structpb.NewStruct(map[string]any{"status": "OK"})
}

func (f *fakeServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f.record(ctx, req)
	if f.err != nil {
		return nil, f.err
	}
	return structpb.NewStruct(map[string]any{
		"user_id":      "user-1",
		"vault_key":    []byte{0xde, 0xad},
		"recovery_key": "ABCD-EFGH",
	})
}

func (f *fakeServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f.record(ctx, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.secondFactor {
		return structpb.NewStruct(map[string]any{
			"user_id":                "user-1",
			"second_factor_required": true,
			"challenge_token":        "challenge",
		})
	}
	return f.session("sess-1")
}

func (f *fakeServer) CompleteSecondFactor(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f.record(ctx, req)
	return f.session("sess-2")
}

func (f *fakeServer) session(id string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"user_id":                "user-1",
		"second_factor_required": false,
		"session_id":             id,
		"expires_at":             int64(1740830400),
		"vault_key":              []byte{1, 2, 3},
	})
}

func (f *fakeServer) Logout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f.record(ctx, req)
	return &structpb.Struct{}, f.err
}

func (f *fakeServer) ListSessions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f.record(ctx, req)
	return structpb.NewStruct(map[string]any{"sessions": []any{
		map[string]any{"created_at": 100, "expires_at": 200, "ip_address": "10.0.0.1", "client_label": "cli", "current": true},
	}})
}

func (f *fakeServer) ChangePassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f.record(ctx, req)
	return &structpb.Struct{}, nil
}

func (f *fakeServer) EnableSecondFactor(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f.record(ctx, req)
	return structpb.NewStruct(map[string]any{"backup_codes": []any{"aaaa-bbbb", "cccc-dddd"}})
}

func (f *fakeServer) BackupCodeStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f.record(ctx, req)
	return structpb.NewStruct(map[string]any{"remaining": 9})
}

func newBufClient(t *testing.T, fake *fakeServer) *GRPCClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	servergrpc.Register(srv, fake)
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
	})
	return NewWithConn(conn, "test-cli")
}

func TestPing(t *testing.T) {
	c := newBufClient(t, &fakeServer{})
	require.NoError(t, c.Ping(context.Background()))
}

func TestRegister_DecodesResult(t *testing.T) {
	fake := &fakeServer{}
	c := newBufClient(t, fake)

	res, err := c.Register(context.Background(), "alice", []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, &RegisterResult{UserID: "user-1", VaultKey: []byte{0xde, 0xad}, RecoveryKey: "ABCD-EFGH"}, res)
	assert.Equal(t, "alice", fake.lastReq.GetFields()["username"].GetStringValue())
	assert.Equal(t, "pw", fake.lastReq.GetFields()["password"].GetStringValue())
}

func TestLogin_StoresSessionForLaterCalls(t *testing.T) {
	fake := &fakeServer{}
	c := newBufClient(t, fake)
	ctx := context.Background()

	res, err := c.Login(ctx, "alice", []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, "sess-1", res.SessionID)
	assert.Equal(t, []byte{1, 2, 3}, res.VaultKey)
	assert.Equal(t, time.Unix(1740830400, 0), res.ExpiresAt)

	n, err := c.BackupCodeStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	assert.Equal(t, []string{"", "sess-1"}, fake.sessions)
	assert.Equal(t, []string{"test-cli", "test-cli"}, fake.labels)
}

func TestLogin_SecondFactor(t *testing.T) {
	fake := &fakeServer{secondFactor: true}
	c := newBufClient(t, fake)
	ctx := context.Background()

	res, err := c.Login(ctx, "alice", []byte("pw"))
	require.NoError(t, err)
	assert.True(t, res.SecondFactorRequired)
	assert.Equal(t, "challenge", res.ChallengeToken)
	assert.Empty(t, res.VaultKey)
	assert.Empty(t, c.session())

	res, err = c.CompleteSecondFactor(ctx, "challenge", "123456")
	require.NoError(t, err)
	assert.Equal(t, "sess-2", res.SessionID)
	assert.Equal(t, "sess-2", c.session())
	assert.Equal(t, "123456", fake.lastReq.GetFields()["code"].GetStringValue())
}

func TestLogout(t *testing.T) {
	fake := &fakeServer{}
	c := newBufClient(t, fake)
	ctx := context.Background()

	assert.ErrorIs(t, c.Logout(ctx), ErrNotLoggedIn)

	_, err := c.Login(ctx, "alice", []byte("pw"))
	require.NoError(t, err)

	fake.err = status.Error(codes.Unavailable, "down")
	assert.ErrorIs(t, c.Logout(ctx), ErrUnavailable)
	assert.Empty(t, c.session())
}

func TestChangePassword_ForgetsSession(t *testing.T) {
	fake := &fakeServer{}
	c := newBufClient(t, fake)
	ctx := context.Background()

	_, err := c.Login(ctx, "alice", []byte("pw"))
	require.NoError(t, err)
	require.NoError(t, c.ChangePassword(ctx, []byte("pw"), []byte("new")))

	assert.Equal(t, "new", fake.lastReq.GetFields()["new_password"].GetStringValue())
	assert.Empty(t, c.session())
}

func TestListSessions(t *testing.T) {
	c := newBufClient(t, &fakeServer{})

	list, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []SessionInfo{{
		CreatedAt:   time.Unix(100, 0),
		ExpiresAt:   time.Unix(200, 0),
		IPAddress:   "10.0.0.1",
		ClientLabel: "cli",
		Current:     true,
	}}, list)
}

func TestEnableSecondFactor(t *testing.T) {
	c := newBufClient(t, &fakeServer{})

	list, err := c.EnableSecondFactor(context.Background(), "SECRET", "123456")
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaa-bbbb", "cccc-dddd"}, list)
}

func TestServerErrorsAreMapped(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unauthenticated", status.Error(codes.Unauthenticated, "invalid username or password"), ErrUnauthorized},
		{"locked", status.Error(codes.PermissionDenied, "account is locked, try again in 20 minutes"), ErrLocked},
		{"invalid", status.Error(codes.InvalidArgument, "password too short"), ErrRejected},
		{"taken", status.Error(codes.AlreadyExists, "username is taken"), ErrRejected},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newBufClient(t, &fakeServer{err: tt.err})
			_, err := c.Login(context.Background(), "alice", []byte("pw"))
			assert.ErrorIs(t, err, tt.want)
			if !errors.Is(tt.want, ErrUnavailable) {
				assert.Contains(t, err.Error(), status.Convert(tt.err).Message())
			}
		})
	}
}

func TestMapError(t *testing.T) {
	c := NewWithConn(nil, "")

	assert.NoError(t, c.mapError(nil))

	err := c.mapError(status.Error(codes.Internal, "internal error"))
	assert.ErrorContains(t, err, "rpc error")
	assert.NotErrorIs(t, err, ErrUnauthorized)
}
