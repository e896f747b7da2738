package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/vaultkeeper/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps service errors to gRPC statuses. Anything unrecognized
// becomes a bare Internal status.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	var locked *common.LockedError

	switch {
	case errors.As(err, &locked):
		return status.Error(codes.PermissionDenied, locked.Error())
	case errors.Is(err, common.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, "username is taken")
	case errors.Is(err, common.ErrAuthentication):
		return status.Error(codes.Unauthenticated, common.ErrAuthentication.Error())
	case errors.Is(err, common.ErrSession):
		return status.Error(codes.Unauthenticated, common.ErrSession.Error())
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, common.ErrInvalidCode):
		return status.Error(codes.Unauthenticated, common.ErrInvalidCode.Error())
	case errors.Is(err, common.ErrNotEnabled), errors.Is(err, common.ErrNoBackupCodes):
		return status.Error(codes.FailedPrecondition, err.Error())
	}

	if !errors.Is(err, common.ErrorInternal) {
		s.logger.Error(ctx, "unmapped service error", "error", err)
	}
	return status.Error(codes.Internal, "internal error")
}
