package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/vaultkeeper/internal/common"
	"github.com/dmitrijs2005/vaultkeeper/internal/logging"
)

// publicErrors are the failures callers are expected to handle. Anything else
// is an internal fault.
var publicErrors = []error{
	common.ErrValidation,
	common.ErrAuthentication,
	common.ErrLocked,
	common.ErrSession,
	common.ErrNotEnabled,
	common.ErrInvalidCode,
	common.ErrNoBackupCodes,
	common.ErrInvalidToken,
	common.ErrTokenExpired,
	common.ErrAlreadyExists,
}

var errAlreadyEnabled = common.Validationf("second factor is already enabled")

func isPublic(err error) bool {
	for _, target := range publicErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// boundary passes expected failures through and turns everything else into
// common.ErrorInternal after logging it with the given context.
func boundary(ctx context.Context, log logging.Logger, op string, err error, args ...any) error {
	if err == nil {
		return nil
	}
	if isPublic(err) {
		return err
	}
	log.Error(ctx, op+" failed", append(args, "error", err)...)
	return common.ErrorInternal
}
