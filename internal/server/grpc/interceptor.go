package grpc

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/dmitrijs2005/vaultkeeper/internal/common"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type ctxKey string

const (
	userIDKey    ctxKey = "userID"
	sessionIDKey ctxKey = "sessionID"
)

// sessionInterceptor resolves the session_id metadata of non-public methods
// of ServiceName to a user id. Other services, such as health, pass through.
func (s *GRPCServer) sessionInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	name, ok := strings.CutPrefix(info.FullMethod, "/"+ServiceName+"/")
	if !ok || publicMethods[name] {
		return handler(ctx, req)
	}

	sessionID := metadataValue(ctx, common.SessionHeaderName)
	if sessionID == "" {
		return nil, status.Error(codes.Unauthenticated, "missing session")
	}

	userID, err := s.sessions.VerifySession(ctx, sessionID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)

	return handler(ctx, req)
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Info(ctx, "rpc finished",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	)
	return resp, err
}

func userIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

func sessionIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey).(string)
	return v
}

// clientInfo describes the caller for sessions and the audit log.
func clientInfo(ctx context.Context) models.ClientInfo {
	var c models.ClientInfo
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		c.Address = p.Addr.String()
		if host, _, err := net.SplitHostPort(c.Address); err == nil {
			c.Address = host
		}
	}
	c.Label = metadataValue(ctx, common.ClientLabelHeaderName)
	return c
}

func metadataValue(ctx context.Context, key string) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(key); len(values) > 0 {
			return values[0]
		}
	}
	return ""
}
