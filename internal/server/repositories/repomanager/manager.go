// Package repomanager vends repositories bound to a connection or a
// transaction, so services can run the same code inside and outside a
// transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/vaultkeeper/internal/dbx"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/repositories/auditlog"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/repositories/backupcodes"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/repositories/passwordhistory"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/repositories/vaults"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	PasswordHistory(db dbx.DBTX) passwordhistory.Repository
	BackupCodes(db dbx.DBTX) backupcodes.Repository
	Vaults(db dbx.DBTX) vaults.Repository
	AuditLog(db dbx.DBTX) auditlog.Repository
}
