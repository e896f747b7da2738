package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultkeeper/internal/common"
	"github.com/dmitrijs2005/vaultkeeper/internal/dbx"
	"github.com/dmitrijs2005/vaultkeeper/internal/logging"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/config"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/repositories/repomanager"
)

// sessionIDBytes gives 256-bit session identifiers.
const sessionIDBytes = 32

// SessionService issues, validates and revokes server-side sessions.
//
// Sessions slide: a successful VerifySession moves the expiry to
// now+lifetime, but only once less than half the lifetime remains, which
// bounds writes to one per half-lifetime per session.
type SessionService struct {
	db          dbx.Transactor
	repomanager repomanager.RepositoryManager
	audit       *Auditor
	log         logging.Logger
	lifetime    time.Duration
	now         func() time.Time
}

func NewSessionService(db dbx.Transactor, m repomanager.RepositoryManager, audit *Auditor, cfg *config.Config, log logging.Logger) *SessionService {
	return &SessionService{
		db:          db,
		repomanager: m,
		audit:       audit,
		log:         log.With("module", "sessions"),
		lifetime:    cfg.SessionLifetime,
		now:         time.Now,
	}
}

// CreateSession starts a session for userID expiring after one lifetime.
func (s *SessionService) CreateSession(ctx context.Context, userID string, client models.ClientInfo) (*models.Session, error) {
	sess, err := s.create(ctx, s.db.Conn(), userID, client)
	return sess, boundary(ctx, s.log, "create session", err, "user_id", userID)
}

func (s *SessionService) create(ctx context.Context, db dbx.DBTX, userID string, client models.ClientInfo) (*models.Session, error) {
	id, err := common.MakeRandHexString(sessionIDBytes)
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	now := s.now().UTC()
	sess := &models.Session{
		ID:          id,
		UserID:      userID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.lifetime),
		IPAddress:   client.Address,
		ClientLabel: client.Label,
	}
	if err := s.repomanager.Sessions(db).Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// VerifySession resolves a session id to its user. Unknown and expired
// sessions fail with common.ErrSession; expired ones are deleted here.
func (s *SessionService) VerifySession(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", common.ErrSession
	}

	repo := s.repomanager.Sessions(s.db.Conn())
	sess, err := repo.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrSession
		}
		return "", boundary(ctx, s.log, "verify session", err)
	}

	now := s.now().UTC()
	if !now.Before(sess.ExpiresAt) {
		if err := repo.Delete(ctx, sessionID); err != nil {
			s.log.Warn(ctx, "failed to purge expired session", "user_id", sess.UserID, "error", err)
		}
		return "", common.ErrSession
	}

	if sess.ExpiresAt.Sub(now) < s.lifetime/2 {
		if err := repo.Extend(ctx, sessionID, now.Add(s.lifetime)); err != nil {
			s.log.Warn(ctx, "failed to extend session", "user_id", sess.UserID, "error", err)
		}
	}

	return sess.UserID, nil
}

// EndSession removes a session. Ending an unknown session succeeds.
func (s *SessionService) EndSession(ctx context.Context, sessionID string) error {
	repo := s.repomanager.Sessions(s.db.Conn())

	var userID string
	if sess, err := repo.Find(ctx, sessionID); err == nil {
		userID = sess.UserID
	}
	if err := repo.Delete(ctx, sessionID); err != nil {
		return boundary(ctx, s.log, "end session", err)
	}
	if userID != "" {
		s.audit.Record(ctx, userID, models.ActionLogout, "session ended", models.ClientInfo{})
	}
	return nil
}

// ListSessions returns the live sessions of userID, newest first.
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	list, err := s.repomanager.Sessions(s.db.Conn()).ListByUser(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, boundary(ctx, s.log, "list sessions", err, "user_id", userID)
	}
	return list, nil
}

// EndAllSessions logs userID out everywhere and reports how many sessions
// were ended.
func (s *SessionService) EndAllSessions(ctx context.Context, userID string) (int64, error) {
	n, err := s.repomanager.Sessions(s.db.Conn()).DeleteByUser(ctx, userID)
	if err != nil {
		return 0, boundary(ctx, s.log, "end all sessions", err, "user_id", userID)
	}
	s.audit.Record(ctx, userID, models.ActionLogout, fmt.Sprintf("ended %d sessions", n), models.ClientInfo{})
	return n, nil
}
