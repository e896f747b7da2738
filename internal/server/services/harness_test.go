package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/vaultkeeper/internal/cryptox"
	"github.com/dmitrijs2005/vaultkeeper/internal/logging"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/challenges"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/config"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/keys"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

type harness struct {
	db         *memDB
	clock      *clock
	cfg        *config.Config
	keys       *keys.Manager
	audit      *Auditor
	sessions   *SessionService
	mfa        *SecondFactorService
	challenges *challenges.MemoryStore
	creds      *CredentialService
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.KDFTime = 1
	cfg.KDFMemoryKiB = 1024
	cfg.KDFParallelism = 1
	cfg.PBKDF2Iterations = 1000
	cfg.SaltLength = 16
	cfg.PasswordHistoryDepth = 3
	return cfg
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithConfig(t, testConfig())
}

func newHarnessWithConfig(t *testing.T, cfg *config.Config) *harness {
	t.Helper()

	hasher, err := cryptox.NewHasher(cfg.HasherParams())
	require.NoError(t, err)

	h := &harness{db: newMemDB(), clock: newClock(), cfg: cfg}
	log := logging.Nop{}

	h.keys = keys.NewManager(hasher, cryptox.DefaultCipher())
	h.audit = NewAuditor(h.db, h.db, log)
	h.audit.now = h.clock.Now
	h.sessions = NewSessionService(h.db, h.db, h.audit, cfg, log)
	h.sessions.now = h.clock.Now
	h.mfa = NewSecondFactorService(h.db, h.db, cfg, log)
	h.mfa.now = h.clock.Now
	h.challenges = challenges.NewMemoryStore(h.clock.Now)

	h.creds, err = NewCredentialService(CredentialDeps{
		DB:           h.db,
		Repos:        h.db,
		Hasher:       hasher,
		Keys:         h.keys,
		Sessions:     h.sessions,
		SecondFactor: h.mfa,
		Challenges:   h.challenges,
		Audit:        h.audit,
		Log:          log,
	}, cfg)
	require.NoError(t, err)
	h.creds.now = h.clock.Now

	return h
}

func (h *harness) register(t *testing.T, username, password string) *RegisterResult {
	t.Helper()
	res, err := h.creds.Register(context.Background(), username, []byte(password), models.ClientInfo{Address: "10.0.0.1"})
	require.NoError(t, err)
	return res
}

// code returns the one-time code for secret at the current fake time.
func (h *harness) code(t *testing.T, secret string) string {
	t.Helper()
	c, err := totp.GenerateCodeCustom(secret, h.clock.Now(), totpOpts)
	require.NoError(t, err)
	return c
}

// enableSecondFactor turns on the second factor for userID, moves the clock
// past the step used for enabling and returns the secret and backup codes.
func (h *harness) enableSecondFactor(t *testing.T, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	setup, err := h.mfa.Setup(ctx, userID)
	require.NoError(t, err)

	codes, err := h.creds.EnableSecondFactor(ctx, userID, setup.Secret, h.code(t, setup.Secret))
	require.NoError(t, err)

	h.clock.Advance(totpPeriod * time.Second)
	return setup.Secret, codes
}
