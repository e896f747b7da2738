package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/vaultkeeper/internal/dbx"
	"github.com/dmitrijs2005/vaultkeeper/internal/logging"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// Auditor appends to the audit log. Writes are best-effort: a failure is
// logged and otherwise ignored.
//
// Entries are written on the plain connection after the operation they
// describe, never inside its transaction, so a failed insert cannot abort it.
type Auditor struct {
	db          dbx.Transactor
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	now         func() time.Time
}

func NewAuditor(db dbx.Transactor, m repomanager.RepositoryManager, log logging.Logger) *Auditor {
	return &Auditor{db: db, repomanager: m, log: log.With("module", "audit"), now: time.Now}
}

// Record appends an entry. userID may be empty for events about unknown
// accounts.
func (a *Auditor) Record(ctx context.Context, userID, action, details string, client models.ClientInfo) {
	e := &models.AuditEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Action:    action,
		Details:   details,
		IPAddress: client.Address,
		CreatedAt: a.now().UTC(),
	}
	if err := a.repomanager.AuditLog(a.db.Conn()).Append(ctx, e); err != nil {
		a.log.Warn(ctx, "audit write failed", "action", action, "user_id", userID, "error", err)
	}
}
