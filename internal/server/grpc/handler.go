package grpc

import (
	"context"

	"github.com/dmitrijs2005/vaultkeeper/internal/server/keys"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) Ping(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return reply(map[string]any{"status": "OK"})
}

func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	result, err := s.creds.Register(ctx, field(req, "username"), []byte(field(req, "password")), clientInfo(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Registered", "user_id", result.UserID)
	return reply(map[string]any{
		"user_id":      result.UserID,
		"vault_key":    result.VaultKey,
		"recovery_key": keys.FormatRecoveryKey(result.RecoveryKey),
	})
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	result, err := s.creds.Login(ctx, field(req, "username"), []byte(field(req, "password")), clientInfo(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return loginReply(result)
}

func (s *GRPCServer) CompleteSecondFactor(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	result, err := s.creds.CompleteSecondFactor(ctx, field(req, "challenge_token"), field(req, "code"), clientInfo(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return loginReply(result)
}

func (s *GRPCServer) Logout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.sessions.EndSession(ctx, sessionIDFromContext(ctx)); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return reply(nil)
}

func (s *GRPCServer) LogoutAll(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	n, err := s.sessions.EndAllSessions(ctx, userIDFromContext(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return reply(map[string]any{"ended": n})
}

func (s *GRPCServer) ListSessions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	list, err := s.sessions.ListSessions(ctx, userIDFromContext(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	current := sessionIDFromContext(ctx)
	out := make([]any, 0, len(list))
	for _, sess := range list {
		out = append(out, map[string]any{
			"created_at":   sess.CreatedAt.Unix(),
			"expires_at":   sess.ExpiresAt.Unix(),
			"ip_address":   sess.IPAddress,
			"client_label": sess.ClientLabel,
			"current":      sess.ID == current,
		})
	}
	return reply(map[string]any{"sessions": out})
}

func (s *GRPCServer) ChangePassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	err := s.creds.ChangePassword(ctx, userIDFromContext(ctx),
		[]byte(field(req, "current_password")), []byte(field(req, "new_password")))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return reply(nil)
}

func (s *GRPCServer) Recover(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	key, err := s.creds.RecoverWithKey(ctx, field(req, "username"), field(req, "recovery_key"),
		[]byte(field(req, "new_password")), clientInfo(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return reply(map[string]any{"recovery_key": keys.FormatRecoveryKey(key)})
}

func (s *GRPCServer) RegenerateRecoveryKey(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	key, err := s.creds.RegenerateRecoveryKey(ctx, userIDFromContext(ctx), []byte(field(req, "password")))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return reply(map[string]any{"recovery_key": keys.FormatRecoveryKey(key)})
}

func (s *GRPCServer) DeleteAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.creds.DeleteAccount(ctx, userIDFromContext(ctx), []byte(field(req, "password"))); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return reply(nil)
}

func (s *GRPCServer) SetupSecondFactor(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	setup, err := s.mfa.Setup(ctx, userIDFromContext(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return reply(map[string]any{"secret": setup.Secret, "uri": setup.URI})
}

func (s *GRPCServer) EnableSecondFactor(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	list, err := s.creds.EnableSecondFactor(ctx, userIDFromContext(ctx), field(req, "secret"), field(req, "code"))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return reply(map[string]any{"backup_codes": anySlice(list)})
}

func (s *GRPCServer) DisableSecondFactor(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.creds.DisableSecondFactor(ctx, userIDFromContext(ctx), field(req, "code")); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return reply(nil)
}

func (s *GRPCServer) RegenerateBackupCodes(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	list, err := s.creds.RegenerateBackupCodes(ctx, userIDFromContext(ctx), field(req, "code"))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return reply(map[string]any{"backup_codes": anySlice(list)})
}

func (s *GRPCServer) BackupCodeStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	n, err := s.mfa.RemainingBackupCodes(ctx, userIDFromContext(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return reply(map[string]any{"remaining": n})
}

func loginReply(r *services.LoginResult) (*structpb.Struct, error) {
	if r.SecondFactorRequired {
		return reply(map[string]any{
			"user_id":                r.UserID,
			"second_factor_required": true,
			"challenge_token":        r.ChallengeToken,
		})
	}
	return reply(map[string]any{
		"user_id":                r.UserID,
		"second_factor_required": false,
		"session_id":             r.Session.ID,
		"expires_at":             r.Session.ExpiresAt.Unix(),
		"vault_key":              r.VaultKey,
	})
}

// field returns the string value of name, or "" when absent or not a string.
func field(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

func reply(m map[string]any) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func anySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
