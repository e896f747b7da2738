// Package services contains server-side business logic. This file implements
// CredentialService: registration, password login with lockout, the
// second-factor step of login, password change with key rotation, recovery
// and account deletion.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/vaultkeeper/internal/common"
	"github.com/dmitrijs2005/vaultkeeper/internal/cryptox"
	"github.com/dmitrijs2005/vaultkeeper/internal/dbx"
	"github.com/dmitrijs2005/vaultkeeper/internal/logging"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/auth"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/challenges"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/config"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/keys"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/repositories/vaults"
	"github.com/google/uuid"
)

const maxUsernameLength = 64

// RegisterResult is returned once at registration. VaultKey belongs to the
// caller and is never stored; RecoveryKey is shown to the user exactly once.
type RegisterResult struct {
	UserID      string
	VaultKey    []byte
	RecoveryKey string
}

// LoginResult is the outcome of a login step. When SecondFactorRequired is
// set, Session and VaultKey are empty and ChallengeToken must be passed to
// CompleteSecondFactor together with a code.
type LoginResult struct {
	UserID               string
	Session              *models.Session
	VaultKey             []byte
	SecondFactorRequired bool
	ChallengeToken       string
}

// CredentialDeps are the collaborators of CredentialService.
type CredentialDeps struct {
	DB           dbx.Transactor
	Repos        repomanager.RepositoryManager
	Hasher       *cryptox.Hasher
	Keys         *keys.Manager
	Sessions     *SessionService
	SecondFactor *SecondFactorService
	Challenges   challenges.Store
	Audit        *Auditor
	Log          logging.Logger
}

type credentialPolicy struct {
	minPasswordLength    int
	maxFailedAttempts    int
	lockout              time.Duration
	historyDepth         int
	challengeLifetime    time.Duration
	challengeMaxAttempts int
	backupCodeCount      int
	challengeSecret      []byte
}

// CredentialService turns a password into an identity, a session and an
// unlocked vault key.
type CredentialService struct {
	db          dbx.Transactor
	repomanager repomanager.RepositoryManager
	hasher      *cryptox.Hasher
	keys        *keys.Manager
	sessions    *SessionService
	mfa         *SecondFactorService
	challenges  challenges.Store
	audit       *Auditor
	log         logging.Logger
	policy      credentialPolicy
	now         func() time.Time

	// dummyHash/dummySalt are verified against for unknown usernames so the
	// response takes as long as for a wrong password.
	dummyHash string
	dummySalt []byte
}

func NewCredentialService(d CredentialDeps, cfg *config.Config) (*CredentialService, error) {
	dummyPassword := common.GenerateRandByteArray(32)
	defer common.WipeByteArray(dummyPassword)

	dummyHash, dummySalt, err := d.Hasher.HashPassword(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &CredentialService{
		db:          d.DB,
		repomanager: d.Repos,
		hasher:      d.Hasher,
		keys:        d.Keys,
		sessions:    d.Sessions,
		mfa:         d.SecondFactor,
		challenges:  d.Challenges,
		audit:       d.Audit,
		log:         d.Log.With("module", "credentials"),
		policy: credentialPolicy{
			minPasswordLength:    cfg.MinPasswordLength,
			maxFailedAttempts:    cfg.MaxFailedAttempts,
			lockout:              cfg.LockoutDuration,
			historyDepth:         cfg.PasswordHistoryDepth,
			challengeLifetime:    cfg.ChallengeLifetime,
			challengeMaxAttempts: cfg.ChallengeMaxAttempts,
			backupCodeCount:      cfg.BackupCodeCount,
			challengeSecret:      []byte(cfg.ChallengeSecret),
		},
		now:       time.Now,
		dummyHash: dummyHash,
		dummySalt: dummySalt,
	}, nil
}

// Register creates an account with a fresh vault key, a default vault and a
// recovery envelope.
func (s *CredentialService) Register(ctx context.Context, username string, password []byte, client models.ClientInfo) (*RegisterResult, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := s.validatePassword(password); err != nil {
		return nil, err
	}

	userID := uuid.NewString()

	hash, salt, err := s.hasher.HashPassword(password)
	if err != nil {
		return nil, boundary(ctx, s.log, "register", err)
	}
	uk, err := s.keys.CreateUserKeys(userID, password)
	if err != nil {
		return nil, boundary(ctx, s.log, "register", err)
	}
	recoveryKey, rec, err := s.keys.GenerateRecovery(userID, uk.VaultKey)
	if err != nil {
		common.WipeByteArray(uk.VaultKey)
		return nil, boundary(ctx, s.log, "register", err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           userID,
		UserName:     username,
		PasswordHash: hash,
		PasswordSalt: salt,
		KeySalt:      uk.Salt,
		WrappedKey:   uk.WrappedKey,
		KeyAlgorithm: uk.KDF,
		CreatedAt:    now,
	}

	err = s.db.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).Create(ctx, user); err != nil {
			return err
		}
		if err := s.repomanager.Users(tx).SetRecovery(ctx, userID, rec, now); err != nil {
			return err
		}
		return s.repomanager.Vaults(tx).Create(ctx, &models.Vault{UserID: userID, Name: vaults.DefaultName, CreatedAt: now})
	})
	if err != nil {
		common.WipeByteArray(uk.VaultKey)
		return nil, boundary(ctx, s.log, "register", err)
	}

	s.log.Info(ctx, "user registered", "user_id", userID)
	s.audit.Record(ctx, userID, models.ActionRegister, "account created", client)

	return &RegisterResult{UserID: userID, VaultKey: uk.VaultKey, RecoveryKey: recoveryKey}, nil
}

// Login checks username and password. On success it either opens a session
// and returns the vault key, or, with a second factor enabled, parks the
// vault key and returns a challenge token.
//
// Unknown usernames and wrong passwords fail alike with
// common.ErrAuthentication. A locked account fails with *common.LockedError
// whatever the password.
func (s *CredentialService) Login(ctx context.Context, username string, password []byte, client models.ClientInfo) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(password) == 0 {
		return nil, common.Validationf("username and password are required")
	}

	user, err := s.repomanager.Users(s.db.Conn()).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_, _ = s.hasher.VerifyPassword(password, s.dummyHash, s.dummySalt)
			s.audit.Record(ctx, "", models.ActionLoginFailure, "unknown username", client)
			return nil, common.ErrAuthentication
		}
		return nil, boundary(ctx, s.log, "login", err)
	}

	ok, err := s.verifyPassword(user, password)
	if err != nil {
		return nil, boundary(ctx, s.log, "login", err, "user_id", user.ID)
	}

	now := s.now().UTC()
	if user.IsLocked(now) {
		return nil, common.NewLockedError(*user.LockedUntil, now)
	}

	if !ok {
		return nil, s.recordFailure(ctx, user.ID, now, client)
	}

	vaultKey, err := s.keys.GetVaultKey(user.ID, password, envelopeOf(user))
	if err != nil {
		s.log.Error(ctx, "vault key unwrap failed after password verified", "user_id", user.ID, "error", err)
		return nil, common.ErrAuthentication
	}

	if err := s.repomanager.Users(s.db.Conn()).RecordLogin(ctx, user.ID, now); err != nil {
		common.WipeByteArray(vaultKey)
		if errors.Is(err, common.ErrorNotFound) {
			// locked by a concurrent attempt after the read above, or deleted
			return nil, s.lockedOrFailed(ctx, user.ID, now)
		}
		return nil, boundary(ctx, s.log, "login", err, "user_id", user.ID)
	}

	if user.MFAEnabled {
		defer common.WipeByteArray(vaultKey)
		res, err := s.beginSecondFactor(ctx, user, vaultKey, client)
		if err != nil {
			return nil, boundary(ctx, s.log, "login", err, "user_id", user.ID)
		}
		s.audit.Record(ctx, user.ID, models.ActionLogin, "password verified, second factor pending", client)
		return res, nil
	}

	sess, err := s.sessions.create(ctx, s.db.Conn(), user.ID, client)
	if err != nil {
		common.WipeByteArray(vaultKey)
		return nil, boundary(ctx, s.log, "login", err, "user_id", user.ID)
	}

	s.audit.Record(ctx, user.ID, models.ActionLogin, "login succeeded", client)
	return &LoginResult{UserID: user.ID, Session: sess, VaultKey: vaultKey}, nil
}

// recordFailure counts a wrong password and reports the resulting error.
func (s *CredentialService) recordFailure(ctx context.Context, userID string, now time.Time, client models.ClientInfo) error {
	st, err := s.repomanager.Users(s.db.Conn()).RecordFailure(ctx, userID, s.policy.maxFailedAttempts, now, now.Add(s.policy.lockout))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// locked by a concurrent attempt, or deleted
			return s.lockedOrFailed(ctx, userID, now)
		}
		return boundary(ctx, s.log, "login", err, "user_id", userID)
	}

	if st.LockedUntil != nil {
		s.log.Warn(ctx, "account locked", "user_id", userID, "until", *st.LockedUntil)
		s.audit.Record(ctx, userID, models.ActionAccountLocked,
			fmt.Sprintf("locked after %d failed attempts", s.policy.maxFailedAttempts), client)
		return common.NewLockedError(*st.LockedUntil, now)
	}

	s.audit.Record(ctx, userID, models.ActionLoginFailure,
		fmt.Sprintf("wrong password, attempt %d of %d", st.FailedAttempts, s.policy.maxFailedAttempts), client)
	return common.ErrAuthentication
}

// lockedOrFailed re-reads the account after a conditional update matched no
// row and reports the lockout if there is one.
func (s *CredentialService) lockedOrFailed(ctx context.Context, userID string, now time.Time) error {
	if u, err := s.repomanager.Users(s.db.Conn()).GetByID(ctx, userID); err == nil && u.IsLocked(now) {
		return common.NewLockedError(*u.LockedUntil, now)
	}
	return common.ErrAuthentication
}

// beginSecondFactor parks vaultKey, sealed under a one-off secret, in the
// challenge store and returns a token carrying that secret. The store alone
// cannot open the key.
func (s *CredentialService) beginSecondFactor(ctx context.Context, user *models.User, vaultKey []byte, client models.ClientInfo) (*LoginResult, error) {
	userID := user.ID

	secret := common.GenerateRandByteArray(keys.ChallengeSecretSize)
	defer common.WipeByteArray(secret)

	id := uuid.NewString()
	sealed, err := s.keys.SealForChallenge(vaultKey, secret, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	err = s.challenges.Put(ctx, &models.Challenge{
		ID:                id,
		UserID:            userID,
		WrappedKey:        sealed,
		PasswordChangedAt: user.PasswordChangedAt,
		ExpiresAt:         now.Add(s.policy.challengeLifetime),
		IPAddress:         client.Address,
	})
	if err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}

	token, err := auth.GenerateChallengeToken(auth.Challenge{ID: id, UserID: userID, Secret: secret},
		s.policy.challengeSecret, now, s.policy.challengeLifetime)
	if err != nil {
		_ = s.challenges.Delete(ctx, id)
		return nil, err
	}

	return &LoginResult{UserID: userID, SecondFactorRequired: true, ChallengeToken: token}, nil
}

// CompleteSecondFactor finishes a login started by Login. code is either a
// current one-time code or an unused backup code. A challenge accepts a
// limited number of wrong codes and is single-use.
func (s *CredentialService) CompleteSecondFactor(ctx context.Context, token, code string, client models.ClientInfo) (*LoginResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, common.Validationf("verification code is required")
	}

	claims, err := auth.ParseChallengeToken(token, s.policy.challengeSecret, s.now().UTC())
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(claims.Secret)

	ch, err := s.challenges.Get(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, boundary(ctx, s.log, "complete second factor", err)
	}
	if ch.UserID != claims.UserID {
		return nil, common.ErrInvalidToken
	}
	if err := s.challengeStillValid(ctx, ch); err != nil {
		return nil, err
	}

	attempts, err := s.challenges.IncrementAttempts(ctx, ch.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, boundary(ctx, s.log, "complete second factor", err)
	}
	if attempts > s.policy.challengeMaxAttempts {
		s.dropChallenge(ctx, ch.ID)
		return nil, common.ErrInvalidToken
	}

	if err := s.checkCode(ctx, ch.UserID, code, client); err != nil {
		if errors.Is(err, common.ErrInvalidCode) && attempts >= s.policy.challengeMaxAttempts {
			s.dropChallenge(ctx, ch.ID)
		}
		return nil, err
	}

	vaultKey, err := s.keys.OpenChallenge(ch.WrappedKey, claims.Secret, ch.ID)
	s.dropChallenge(ctx, ch.ID)
	if err != nil {
		s.log.Error(ctx, "challenge key could not be opened", "user_id", ch.UserID, "error", err)
		return nil, common.ErrAuthentication
	}

	sess, err := s.sessions.create(ctx, s.db.Conn(), ch.UserID, client)
	if err != nil {
		common.WipeByteArray(vaultKey)
		return nil, boundary(ctx, s.log, "complete second factor", err, "user_id", ch.UserID)
	}

	s.audit.Record(ctx, ch.UserID, models.ActionLogin, "login succeeded with second factor", client)
	return &LoginResult{UserID: ch.UserID, Session: sess, VaultKey: vaultKey}, nil
}

// challengeStillValid rejects, and drops, a challenge whose account was
// deleted, locked or given new credentials after the challenge was started.
func (s *CredentialService) challengeStillValid(ctx context.Context, ch *models.Challenge) error {
	user, err := s.repomanager.Users(s.db.Conn()).GetByID(ctx, ch.UserID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return boundary(ctx, s.log, "complete second factor", err, "user_id", ch.UserID)
	}

	now := s.now().UTC()
	switch {
	case err != nil:
	case !user.PasswordChangedAt.Equal(ch.PasswordChangedAt):
	case user.IsLocked(now):
		s.dropChallenge(ctx, ch.ID)
		return common.NewLockedError(*user.LockedUntil, now)
	default:
		return nil
	}

	s.dropChallenge(ctx, ch.ID)
	return common.ErrInvalidToken
}

func (s *CredentialService) dropChallenge(ctx context.Context, id string) {
	if err := s.challenges.Delete(ctx, id); err != nil {
		s.log.Warn(ctx, "failed to delete challenge", "challenge_id", id, "error", err)
	}
}

// ChangePassword verifies current, rotates the envelope to next, records the
// old hash in the history and ends every session of the account, all in one
// transaction.
func (s *CredentialService) ChangePassword(ctx context.Context, userID string, current, next []byte) error {
	if err := s.validatePassword(next); err != nil {
		return err
	}

	err := s.db.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		user, err := s.repomanager.Users(tx).LockByID(ctx, userID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrAuthentication
			}
			return err
		}

		ok, err := s.verifyPassword(user, current)
		if err != nil {
			return err
		}
		if !ok {
			return common.ErrAuthentication
		}

		env, err := s.keys.RotateKeys(user.ID, current, next, envelopeOf(user))
		if err != nil {
			if errors.Is(err, common.ErrKeyRecovery) {
				s.log.Error(ctx, "vault key unwrap failed after password verified", "user_id", user.ID, "error", err)
				return common.ErrAuthentication
			}
			return fmt.Errorf("rotate keys: %w", err)
		}
		return s.replaceCredentials(ctx, tx, user, next, env)
	})
	if err != nil {
		return boundary(ctx, s.log, "change password", err, "user_id", userID)
	}

	s.log.Info(ctx, "password changed", "user_id", userID)
	s.audit.Record(ctx, userID, models.ActionPasswordChange, "password changed, sessions ended", models.ClientInfo{})
	return nil
}

// replaceCredentials is the shared tail of password change and recovery: it
// rejects reused passwords, stores the new hash with env, moves the old hash
// into the bounded history and ends all sessions.
func (s *CredentialService) replaceCredentials(ctx context.Context, tx dbx.DBTX, user *models.User, next []byte, env models.Envelope) error {
	if err := s.checkHistory(ctx, tx, user, next); err != nil {
		return err
	}

	hash, salt, err := s.hasher.HashPassword(next)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	err = s.repomanager.Users(tx).UpdateCredentials(ctx, models.CredentialUpdate{
		UserID:       user.ID,
		PasswordHash: hash,
		PasswordSalt: salt,
		Envelope:     env,
		ChangedAt:    now,
	})
	if err != nil {
		return err
	}

	history := s.repomanager.PasswordHistory(tx)
	if s.policy.historyDepth > 0 {
		err := history.Add(ctx, &models.PasswordHistoryEntry{
			UserID:       user.ID,
			PasswordHash: user.PasswordHash,
			PasswordSalt: user.PasswordSalt,
			ChangedAt:    now,
		})
		if err != nil {
			return err
		}
	}
	if _, err := history.Prune(ctx, user.ID, s.policy.historyDepth); err != nil {
		return err
	}

	_, err = s.repomanager.Sessions(tx).DeleteByUser(ctx, user.ID)
	return err
}

// checkHistory rejects next when it equals the current password or one of
// the retained previous ones.
func (s *CredentialService) checkHistory(ctx context.Context, tx dbx.DBTX, user *models.User, next []byte) error {
	same, err := s.verifyPassword(user, next)
	if err != nil {
		return err
	}
	if same {
		return common.Validationf("new password must differ from the current one")
	}
	if s.policy.historyDepth == 0 {
		return nil
	}

	entries, err := s.repomanager.PasswordHistory(tx).Recent(ctx, user.ID, s.policy.historyDepth)
	if err != nil {
		return err
	}
	for _, e := range entries {
		used, err := s.hasher.VerifyPassword(next, e.PasswordHash, e.PasswordSalt)
		if err != nil {
			return err
		}
		if used {
			return common.Validationf("password was used recently, choose another one")
		}
	}
	return nil
}

// RecoverWithKey resets the password of username using its recovery key.
// The vault key is preserved, every session is ended and a new recovery key
// replaces the used one; it is returned and must be shown to the user.
func (s *CredentialService) RecoverWithKey(ctx context.Context, username, recoveryKey string, next []byte, client models.ClientInfo) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || recoveryKey == "" {
		return "", common.Validationf("username and recovery key are required")
	}
	if err := s.validatePassword(next); err != nil {
		return "", err
	}

	user, err := s.repomanager.Users(s.db.Conn()).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_, _ = s.hasher.VerifyPassword([]byte(recoveryKey), s.dummyHash, s.dummySalt)
			return "", common.ErrAuthentication
		}
		return "", boundary(ctx, s.log, "recover", err)
	}

	var newRecoveryKey string
	err = s.db.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		user, err := s.repomanager.Users(tx).LockByID(ctx, user.ID)
		if err != nil {
			return err
		}
		if !s.keys.VerifyRecoveryKey(recoveryKey, user.Recovery) {
			return common.ErrAuthentication
		}

		vaultKey, err := s.keys.RecoverVaultKey(user.ID, recoveryKey, user.Recovery)
		if err != nil {
			return fmt.Errorf("open recovery envelope: %w", err)
		}
		defer common.WipeByteArray(vaultKey)

		env, err := s.keys.Wrap(user.ID, next, vaultKey)
		if err != nil {
			return err
		}
		if err := s.replaceCredentials(ctx, tx, user, next, env); err != nil {
			return err
		}

		secret, rec, err := s.keys.GenerateRecovery(user.ID, vaultKey)
		if err != nil {
			return err
		}
		if err := s.repomanager.Users(tx).SetRecovery(ctx, user.ID, rec, s.now().UTC()); err != nil {
			return err
		}
		newRecoveryKey = secret
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrAuthentication) {
			s.audit.Record(ctx, user.ID, models.ActionLoginFailure, "invalid recovery key", client)
		}
		return "", boundary(ctx, s.log, "recover", err, "user_id", user.ID)
	}

	s.log.Info(ctx, "vault recovered", "user_id", user.ID)
	s.audit.Record(ctx, user.ID, models.ActionVaultRecovered, "password reset with recovery key", client)
	return newRecoveryKey, nil
}

// RegenerateRecoveryKey replaces the recovery envelope of userID. The old
// recovery key stops working.
func (s *CredentialService) RegenerateRecoveryKey(ctx context.Context, userID string, password []byte) (string, error) {
	var secret string
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		user, err := s.authorize(ctx, tx, userID, password)
		if err != nil {
			return err
		}

		vaultKey, err := s.keys.GetVaultKey(user.ID, password, envelopeOf(user))
		if err != nil {
			return fmt.Errorf("open envelope: %w", err)
		}
		defer common.WipeByteArray(vaultKey)

		key, rec, err := s.keys.GenerateRecovery(user.ID, vaultKey)
		if err != nil {
			return err
		}
		if err := s.repomanager.Users(tx).SetRecovery(ctx, user.ID, rec, s.now().UTC()); err != nil {
			return err
		}
		secret = key
		return nil
	})
	if err != nil {
		return "", boundary(ctx, s.log, "regenerate recovery key", err, "user_id", userID)
	}

	s.audit.Record(ctx, userID, models.ActionRecoveryGenerated, "recovery key regenerated", models.ClientInfo{})
	return secret, nil
}

// DeleteAccount removes userID after re-checking the password. Sessions,
// history, backup codes and vaults go with it.
func (s *CredentialService) DeleteAccount(ctx context.Context, userID string, password []byte) error {
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.authorize(ctx, tx, userID, password); err != nil {
			return err
		}
		return s.repomanager.Users(tx).Delete(ctx, userID)
	})
	if err != nil {
		return boundary(ctx, s.log, "delete account", err, "user_id", userID)
	}

	s.log.Info(ctx, "account deleted", "user_id", userID)
	s.audit.Record(ctx, userID, models.ActionAccountDeleted, "account deleted", models.ClientInfo{})
	return nil
}

// EnableSecondFactor activates secret (from SecondFactorService.Setup) once
// code matches it, and returns a fresh set of backup codes.
func (s *CredentialService) EnableSecondFactor(ctx context.Context, userID, secret, code string) ([]string, error) {
	if err := s.mfa.Enable(ctx, userID, secret, code); err != nil {
		return nil, err
	}
	codes, err := s.mfa.GenerateBackupCodes(ctx, userID, s.policy.backupCodeCount)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, userID, models.ActionMFAEnabled, "second factor enabled", models.ClientInfo{})
	s.audit.Record(ctx, userID, models.ActionBackupCodesGenerated, fmt.Sprintf("%d backup codes issued", len(codes)), models.ClientInfo{})
	return codes, nil
}

// DisableSecondFactor turns the second factor off after checking a current
// code or a backup code.
func (s *CredentialService) DisableSecondFactor(ctx context.Context, userID, code string) error {
	if err := s.checkCode(ctx, userID, code, models.ClientInfo{}); err != nil {
		return err
	}
	if err := s.mfa.Disable(ctx, userID); err != nil {
		return err
	}

	s.audit.Record(ctx, userID, models.ActionMFADisabled, "second factor disabled", models.ClientInfo{})
	return nil
}

// RegenerateBackupCodes replaces all backup codes after checking a current
// one-time code.
func (s *CredentialService) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	ok, err := s.mfa.Verify(ctx, userID, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrInvalidCode
	}

	codes, err := s.mfa.GenerateBackupCodes(ctx, userID, s.policy.backupCodeCount)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, userID, models.ActionBackupCodesGenerated, fmt.Sprintf("%d backup codes issued", len(codes)), models.ClientInfo{})
	return codes, nil
}

// checkCode accepts either a one-time code or a backup code for userID.
func (s *CredentialService) checkCode(ctx context.Context, userID, code string, client models.ClientInfo) error {
	var (
		ok  bool
		err error
	)
	backup := looksLikeBackupCode(code)
	if backup {
		ok, err = s.mfa.VerifyAndConsumeBackupCode(ctx, userID, code)
	} else {
		ok, err = s.mfa.Verify(ctx, userID, code)
	}
	if err != nil {
		return err
	}
	if !ok {
		s.audit.Record(ctx, userID, models.ActionLoginFailure, "invalid second factor code", client)
		return common.ErrInvalidCode
	}
	if backup {
		s.audit.Record(ctx, userID, models.ActionBackupCodeUsed, "backup code consumed", client)
	}
	return nil
}

// authorize loads and row-locks userID inside tx and checks password.
func (s *CredentialService) authorize(ctx context.Context, tx dbx.DBTX, userID string, password []byte) (*models.User, error) {
	user, err := s.repomanager.Users(tx).LockByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrAuthentication
		}
		return nil, err
	}
	ok, err := s.verifyPassword(user, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrAuthentication
	}
	return user, nil
}

func (s *CredentialService) verifyPassword(user *models.User, password []byte) (bool, error) {
	return s.hasher.VerifyPassword(password, user.PasswordHash, user.PasswordSalt)
}

func (s *CredentialService) validatePassword(password []byte) error {
	if n := utf8.RuneCount(password); n < s.policy.minPasswordLength {
		return common.Validationf("password must be at least %d characters", s.policy.minPasswordLength)
	}
	return nil
}

func validateUsername(username string) error {
	switch {
	case username == "":
		return common.Validationf("username is required")
	case utf8.RuneCountInString(username) > maxUsernameLength:
		return common.Validationf("username must be at most %d characters", maxUsernameLength)
	case strings.ContainsAny(username, " \t\r\n"):
		return common.Validationf("username must not contain whitespace")
	}
	return nil
}

func envelopeOf(u *models.User) models.Envelope {
	return models.Envelope{Salt: u.KeySalt, WrappedKey: u.WrappedKey, KDF: u.KeyAlgorithm}
}
