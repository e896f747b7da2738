package models

import "time"

// Audit actions.
const (
	ActionRegister             = "register"
	ActionLogin                = "login"
	ActionLoginFailure         = "login_failure"
	ActionAccountLocked        = "account_locked"
	ActionLogout               = "logout"
	ActionPasswordChange       = "password_change"
	ActionMFAEnabled           = "mfa_enabled"
	ActionMFADisabled          = "mfa_disabled"
	ActionBackupCodesGenerated = "backup_codes_generated"
	ActionBackupCodeUsed       = "backup_code_used"
	ActionRecoveryGenerated    = "recovery_generated"
	ActionVaultRecovered       = "vault_recovered"
	ActionAccountDeleted       = "account_deleted"
)

// AuditEntry is one row of the audit log.
type AuditEntry struct {
	ID        string
	UserID    string
	Action    string
	Details   string
	IPAddress string
	CreatedAt time.Time
}
