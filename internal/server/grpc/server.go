// Package grpc exposes the credential subsystem over gRPC. Messages are
// google.protobuf.Struct values; the service descriptor is declared by hand.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/vaultkeeper/internal/logging"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Credentials is the part of services.CredentialService used by handlers.
type Credentials interface {
	Register(ctx context.Context, username string, password []byte, client models.ClientInfo) (*services.RegisterResult, error)
	Login(ctx context.Context, username string, password []byte, client models.ClientInfo) (*services.LoginResult, error)
	CompleteSecondFactor(ctx context.Context, token, code string, client models.ClientInfo) (*services.LoginResult, error)
	ChangePassword(ctx context.Context, userID string, current, next []byte) error
	RecoverWithKey(ctx context.Context, username, recoveryKey string, next []byte, client models.ClientInfo) (string, error)
	RegenerateRecoveryKey(ctx context.Context, userID string, password []byte) (string, error)
	DeleteAccount(ctx context.Context, userID string, password []byte) error
	EnableSecondFactor(ctx context.Context, userID, secret, code string) ([]string, error)
	DisableSecondFactor(ctx context.Context, userID, code string) error
	RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error)
}

// Sessions is the part of services.SessionService used by handlers and the
// session interceptor.
type Sessions interface {
	VerifySession(ctx context.Context, sessionID string) (string, error)
	EndSession(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context, userID string) ([]models.Session, error)
	EndAllSessions(ctx context.Context, userID string) (int64, error)
}

// SecondFactor is the part of services.SecondFactorService used by handlers.
type SecondFactor interface {
	Setup(ctx context.Context, userID string) (*services.TOTPSetup, error)
	RemainingBackupCodes(ctx context.Context, userID string) (int, error)
}

type GRPCServer struct {
	address  string
	creds    Credentials
	sessions Sessions
	mfa      SecondFactor
	logger   logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, c Credentials, s Sessions, m SecondFactor) *GRPCServer {
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		creds:    c,
		sessions: s,
		mfa:      m,
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.sessionInterceptor))

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	Register(srv, s)
	return srv
}
