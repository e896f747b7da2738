package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/vaultkeeper/internal/common"
	"github.com/dmitrijs2005/vaultkeeper/internal/dbx"
	"github.com/dmitrijs2005/vaultkeeper/internal/logging"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/config"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/repositories/repomanager"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod = 30
	// totpSkew is the number of steps accepted on either side of the current
	// one to absorb clock drift.
	totpSkew = 1

	backupCodeLength = 10
	// backupCodeAlphabet has 32 symbols without 0/O and 1/I.
	backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

var totpOpts = totp.ValidateOpts{
	Period:    totpPeriod,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TOTPSetup is a freshly generated, not yet active, second-factor secret.
type TOTPSetup struct {
	Secret string
	// URI is the otpauth:// provisioning URI for authenticator apps.
	URI string
}

// SecondFactorService issues and checks time-based one-time codes and
// single-use backup codes. It does not decide when a code is required;
// CredentialService does.
type SecondFactorService struct {
	db          dbx.Transactor
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	issuer      string
	now         func() time.Time
}

func NewSecondFactorService(db dbx.Transactor, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) *SecondFactorService {
	return &SecondFactorService{
		db:          db,
		repomanager: m,
		log:         log.With("module", "secondfactor"),
		issuer:      cfg.TOTPIssuer,
		now:         time.Now,
	}
}

// Setup generates a new shared secret for userID. Nothing is stored until
// Enable confirms it.
func (s *SecondFactorService) Setup(ctx context.Context, userID string) (*TOTPSetup, error) {
	user, err := s.repomanager.Users(s.db.Conn()).GetByID(ctx, userID)
	if err != nil {
		return nil, boundary(ctx, s.log, "second factor setup", err, "user_id", userID)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: user.UserName,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, boundary(ctx, s.log, "second factor setup", err, "user_id", userID)
	}

	return &TOTPSetup{Secret: key.Secret(), URI: key.URL()}, nil
}

// Enable activates secret for userID once code proves the caller's
// authenticator has it. An active second factor is never replaced; it has
// to be disabled first.
func (s *SecondFactorService) Enable(ctx context.Context, userID, secret, code string) error {
	if !validSecret(secret) {
		return common.Validationf("malformed second factor secret")
	}

	repo := s.repomanager.Users(s.db.Conn())
	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		return boundary(ctx, s.log, "second factor enable", err, "user_id", userID)
	}
	if user.MFAEnabled {
		return errAlreadyEnabled
	}

	step, ok := s.match(secret, code)
	if !ok {
		return common.ErrInvalidCode
	}

	err = repo.EnableSecondFactor(ctx, userID, secret, step, s.now().UTC())
	if errors.Is(err, common.ErrorNotFound) {
		// enabled concurrently, or the account is gone
		return errAlreadyEnabled
	}
	return boundary(ctx, s.log, "second factor enable", err, "user_id", userID)
}

// Verify checks code against the active secret of userID. A code is accepted
// at most once: its time step must be newer than the last accepted one.
func (s *SecondFactorService) Verify(ctx context.Context, userID, code string) (bool, error) {
	repo := s.repomanager.Users(s.db.Conn())

	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		return false, boundary(ctx, s.log, "second factor verify", err, "user_id", userID)
	}
	if !user.MFAEnabled || user.MFASecret == nil {
		return false, common.ErrNotEnabled
	}

	step, ok := s.match(*user.MFASecret, code)
	if !ok {
		return false, nil
	}

	fresh, err := repo.AdvanceTOTPStep(ctx, userID, step)
	if err != nil {
		return false, boundary(ctx, s.log, "second factor verify", err, "user_id", userID)
	}
	if !fresh {
		s.log.Warn(ctx, "replayed second factor code rejected", "user_id", userID)
	}
	return fresh, nil
}

// Disable clears the secret and all backup codes of userID. Callers must
// have checked a current code first.
func (s *SecondFactorService) Disable(ctx context.Context, userID string) error {
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).DisableSecondFactor(ctx, userID, s.now().UTC()); err != nil {
			return err
		}
		return s.repomanager.BackupCodes(tx).DeleteAll(ctx, userID)
	})
	return boundary(ctx, s.log, "second factor disable", err, "user_id", userID)
}

// GenerateBackupCodes replaces the backup codes of userID with count new
// ones. The plaintext codes are returned once; only hashes are stored.
func (s *SecondFactorService) GenerateBackupCodes(ctx context.Context, userID string, count int) ([]string, error) {
	if count < 1 {
		return nil, common.Validationf("backup code count must be positive")
	}

	codes := make([]string, count)
	hashes := make([]string, count)
	for i := range codes {
		c, err := newBackupCode()
		if err != nil {
			return nil, boundary(ctx, s.log, "generate backup codes", err, "user_id", userID)
		}
		codes[i] = formatBackupCode(c)
		hashes[i] = hashBackupCode(c)
	}

	err := s.db.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.BackupCodes(tx).Replace(ctx, userID, hashes, s.now().UTC())
	})
	if err != nil {
		return nil, boundary(ctx, s.log, "generate backup codes", err, "user_id", userID)
	}
	return codes, nil
}

// VerifyAndConsumeBackupCode accepts each backup code exactly once. It fails
// with common.ErrNoBackupCodes when userID has none left.
func (s *SecondFactorService) VerifyAndConsumeBackupCode(ctx context.Context, userID, code string) (bool, error) {
	repo := s.repomanager.BackupCodes(s.db.Conn())

	n, err := repo.Count(ctx, userID)
	if err != nil {
		return false, boundary(ctx, s.log, "consume backup code", err, "user_id", userID)
	}
	if n == 0 {
		return false, common.ErrNoBackupCodes
	}

	normalized := normalizeBackupCode(code)
	if !isBackupCode(normalized) {
		return false, nil
	}

	ok, err := repo.Consume(ctx, userID, hashBackupCode(normalized))
	if err != nil {
		return false, boundary(ctx, s.log, "consume backup code", err, "user_id", userID)
	}
	return ok, nil
}

// RemainingBackupCodes reports how many unused backup codes userID has.
func (s *SecondFactorService) RemainingBackupCodes(ctx context.Context, userID string) (int, error) {
	n, err := s.repomanager.BackupCodes(s.db.Conn()).Count(ctx, userID)
	if err != nil {
		return 0, boundary(ctx, s.log, "count backup codes", err, "user_id", userID)
	}
	return n, nil
}

// match finds the time step within the tolerance window whose code equals
// code.
func (s *SecondFactorService) match(secret, code string) (int64, bool) {
	code = strings.TrimSpace(code)
	if len(code) != otp.DigitsSix.Length() {
		return 0, false
	}

	now := s.now()
	current := now.Unix() / totpPeriod
	for offset := -totpSkew; offset <= totpSkew; offset++ {
		step := current + int64(offset)
		want, err := totp.GenerateCodeCustom(secret, time.Unix(step*totpPeriod, 0), totpOpts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return step, true
		}
	}
	return 0, false
}

func validSecret(secret string) bool {
	if secret == "" {
		return false
	}
	_, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(strings.TrimRight(secret, "=")))
	return err == nil
}

func newBackupCode() (string, error) {
	b := make([]byte, backupCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i := range b {
		b[i] = backupCodeAlphabet[int(b[i])%len(backupCodeAlphabet)]
	}
	return string(b), nil
}

// formatBackupCode renders ABCDE-FGHJK.
func formatBackupCode(c string) string {
	return c[:backupCodeLength/2] + "-" + c[backupCodeLength/2:]
}

func normalizeBackupCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		if r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isBackupCode(normalized string) bool {
	if len(normalized) != backupCodeLength {
		return false
	}
	for _, r := range normalized {
		if !strings.ContainsRune(backupCodeAlphabet, r) {
			return false
		}
	}
	return true
}

// looksLikeBackupCode tells a backup code apart from a six-digit TOTP code.
func looksLikeBackupCode(code string) bool {
	return isBackupCode(normalizeBackupCode(code))
}

func hashBackupCode(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
