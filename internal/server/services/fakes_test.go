package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/vaultkeeper/internal/common"
	"github.com/dmitrijs2005/vaultkeeper/internal/dbx"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/repositories/auditlog"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/repositories/backupcodes"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/repositories/passwordhistory"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/repositories/vaults"
)

// memState is the whole fake database. Repositories share one instance.
type memState struct {
	users    map[string]models.User
	sessions map[string]models.Session
	history  []models.PasswordHistoryEntry
	backup   map[string]map[string]bool
	vaults   []models.Vault
	audit    []models.AuditEntry
	nextID   int64
}

func (s memState) clone() memState {
	c := memState{
		users:    make(map[string]models.User, len(s.users)),
		sessions: make(map[string]models.Session, len(s.sessions)),
		history:  append([]models.PasswordHistoryEntry(nil), s.history...),
		backup:   make(map[string]map[string]bool, len(s.backup)),
		vaults:   append([]models.Vault(nil), s.vaults...),
		audit:    append([]models.AuditEntry(nil), s.audit...),
		nextID:   s.nextID,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for k, v := range s.backup {
		m := make(map[string]bool, len(v))
		for h := range v {
			m[h] = true
		}
		c.backup[k] = m
	}
	return c
}

// memDB is a fake Transactor and RepositoryManager in one. WithinTx
// serializes transactions and restores the state when fn fails. failOn
// injects an error into the named repository method. afterUserRead, when
// set, runs after GetByUsername has taken its snapshot, standing in for
// requests that land between the read and the following write.
type memDB struct {
	mu            sync.Mutex
	txMu          sync.Mutex
	st            memState
	failOn        map[string]error
	afterUserRead func(u models.User)
}

func newMemDB() *memDB {
	return &memDB{
		st: memState{
			users:    map[string]models.User{},
			sessions: map[string]models.Session{},
			backup:   map[string]map[string]bool{},
		},
		failOn: map[string]error{},
	}
}

func (m *memDB) Conn() dbx.DBTX { return nil }

func (m *memDB) WithinTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.st.clone()
	m.mu.Unlock()

	if err := fn(ctx, nil); err != nil {
		m.mu.Lock()
		m.st = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memDB) fail(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failOn[op]
}

func (m *memDB) setFail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[op] = err
}

func (m *memDB) user(id string) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.users[id]
}

func (m *memDB) auditActions(userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.st.audit {
		if e.UserID == userID {
			out = append(out, e.Action)
		}
	}
	return out
}

func (m *memDB) sessionCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.st.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

func (m *memDB) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *memDB) Users(dbx.DBTX) users.Repository                     { return memUsers{m} }
func (m *memDB) Sessions(dbx.DBTX) sessions.Repository               { return memSessions{m} }
func (m *memDB) PasswordHistory(dbx.DBTX) passwordhistory.Repository { return memHistory{m} }
func (m *memDB) BackupCodes(dbx.DBTX) backupcodes.Repository         { return memBackup{m} }
func (m *memDB) Vaults(dbx.DBTX) vaults.Repository                   { return memVaults{m} }
func (m *memDB) AuditLog(dbx.DBTX) auditlog.Repository               { return memAudit{m} }

type memUsers struct{ m *memDB }

func (r memUsers) Create(_ context.Context, u *models.User) error {
	if err := r.m.fail("users.Create"); err != nil {
		return err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, x := range r.m.st.users {
		if x.UserName == u.UserName {
			return common.ErrAlreadyExists
		}
	}
	c := *u
	c.UpdatedAt, c.PasswordChangedAt = c.CreatedAt, c.CreatedAt
	r.m.st.users[u.ID] = c
	return nil
}

func (r memUsers) GetByUsername(_ context.Context, name string) (*models.User, error) {
	if err := r.m.fail("users.GetByUsername"); err != nil {
		return nil, err
	}
	r.m.mu.Lock()
	var (
		found models.User
		ok    bool
	)
	for _, x := range r.m.st.users {
		if x.UserName == name {
			found, ok = x, true
			break
		}
	}
	hook := r.m.afterUserRead
	r.m.mu.Unlock()

	if !ok {
		return nil, common.ErrorNotFound
	}
	if hook != nil {
		hook(found)
	}
	return &found, nil
}

func (r memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.st.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r memUsers) LockByID(ctx context.Context, id string) (*models.User, error) {
	return r.GetByID(ctx, id)
}

func (r memUsers) RecordFailure(_ context.Context, id string, maxAttempts int, now, lockedUntil time.Time) (*models.LockoutState, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.st.users[id]
	if !ok || u.IsLocked(now) {
		return nil, common.ErrorNotFound
	}
	u.FailedAttempts++
	u.LockedUntil = nil
	if u.FailedAttempts >= maxAttempts {
		u.FailedAttempts = 0
		until := lockedUntil
		u.LockedUntil = &until
	}
	u.LastFailedAt = &now
	r.m.st.users[id] = u
	return &models.LockoutState{FailedAttempts: u.FailedAttempts, LockedUntil: u.LockedUntil}, nil
}

func (r memUsers) update(id string, fn func(u *models.User)) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.st.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(&u)
	r.m.st.users[id] = u
	return nil
}

func (r memUsers) RecordLogin(_ context.Context, id string, now time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.st.users[id]
	if !ok || u.IsLocked(now) {
		return common.ErrorNotFound
	}
	u.FailedAttempts, u.LockedUntil, u.LastLoginAt = 0, nil, &now
	r.m.st.users[id] = u
	return nil
}

func (r memUsers) UpdateCredentials(_ context.Context, upd models.CredentialUpdate) error {
	if err := r.m.fail("users.UpdateCredentials"); err != nil {
		return err
	}
	return r.update(upd.UserID, func(u *models.User) {
		u.PasswordHash, u.PasswordSalt = upd.PasswordHash, upd.PasswordSalt
		u.KeySalt, u.WrappedKey, u.KeyAlgorithm = upd.Envelope.Salt, upd.Envelope.WrappedKey, upd.Envelope.KDF
		u.FailedAttempts, u.LockedUntil = 0, nil
		u.PasswordChangedAt = upd.ChangedAt
	})
}

func (r memUsers) SetRecovery(_ context.Context, id string, rec *models.RecoveryEnvelope, _ time.Time) error {
	return r.update(id, func(u *models.User) {
		c := *rec
		u.Recovery = &c
	})
}

func (r memUsers) EnableSecondFactor(_ context.Context, id, secret string, step int64, _ time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.st.users[id]
	if !ok || u.MFAEnabled {
		return common.ErrorNotFound
	}
	u.MFAEnabled, u.MFASecret, u.TOTPLastStep = true, &secret, step
	r.m.st.users[id] = u
	return nil
}

func (r memUsers) DisableSecondFactor(_ context.Context, id string, _ time.Time) error {
	return r.update(id, func(u *models.User) {
		u.MFAEnabled, u.MFASecret, u.TOTPLastStep = false, nil, 0
	})
}

func (r memUsers) AdvanceTOTPStep(_ context.Context, id string, step int64) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.st.users[id]
	if !ok || !u.MFAEnabled || u.TOTPLastStep >= step {
		return false, nil
	}
	u.TOTPLastStep = step
	r.m.st.users[id] = u
	return true, nil
}

func (r memUsers) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.st.users[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.m.st.users, id)
	for k, s := range r.m.st.sessions {
		if s.UserID == id {
			delete(r.m.st.sessions, k)
		}
	}
	delete(r.m.st.backup, id)
	return nil
}

type memSessions struct{ m *memDB }

func (r memSessions) Create(_ context.Context, s *models.Session) error {
	if err := r.m.fail("sessions.Create"); err != nil {
		return err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.st.sessions[s.ID] = *s
	return nil
}

func (r memSessions) Find(_ context.Context, id string) (*models.Session, error) {
	if err := r.m.fail("sessions.Find"); err != nil {
		return nil, err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.st.sessions[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &s, nil
}

func (r memSessions) Extend(_ context.Context, id string, expiresAt time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if s, ok := r.m.st.sessions[id]; ok && s.ExpiresAt.Before(expiresAt) {
		s.ExpiresAt = expiresAt
		r.m.st.sessions[id] = s
	}
	return nil
}

func (r memSessions) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.st.sessions, id)
	return nil
}

func (r memSessions) ListByUser(_ context.Context, userID string, now time.Time) ([]models.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.Session
	for _, s := range r.m.st.sessions {
		if s.UserID == userID && s.ExpiresAt.After(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memSessions) DeleteByUser(_ context.Context, userID string) (int64, error) {
	if err := r.m.fail("sessions.DeleteByUser"); err != nil {
		return 0, err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for k, s := range r.m.st.sessions {
		if s.UserID == userID {
			delete(r.m.st.sessions, k)
			n++
		}
	}
	return n, nil
}

type memHistory struct{ m *memDB }

func (r memHistory) Add(_ context.Context, e *models.PasswordHistoryEntry) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.st.nextID++
	e.ID = r.m.st.nextID
	r.m.st.history = append(r.m.st.history, *e)
	return nil
}

// Recent orders by id descending; ids grow with insertion.
func (r memHistory) Recent(_ context.Context, userID string, limit int) ([]models.PasswordHistoryEntry, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.PasswordHistoryEntry
	for i := len(r.m.st.history) - 1; i >= 0 && len(out) < limit; i-- {
		if e := r.m.st.history[i]; e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r memHistory) Prune(_ context.Context, userID string, keep int) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var (
		kept    []models.PasswordHistoryEntry
		seen    int
		removed int64
	)
	for i := len(r.m.st.history) - 1; i >= 0; i-- {
		e := r.m.st.history[i]
		if e.UserID == userID {
			if seen >= keep {
				removed++
				continue
			}
			seen++
		}
		kept = append([]models.PasswordHistoryEntry{e}, kept...)
	}
	r.m.st.history = kept
	return removed, nil
}

func (m *memDB) historyLen(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.st.history {
		if e.UserID == userID {
			n++
		}
	}
	return n
}

type memBackup struct{ m *memDB }

func (r memBackup) Replace(_ context.Context, userID string, hashes []string, _ time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	set := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		set[h] = true
	}
	r.m.st.backup[userID] = set
	return nil
}

func (r memBackup) Consume(_ context.Context, userID, hash string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if !r.m.st.backup[userID][hash] {
		return false, nil
	}
	delete(r.m.st.backup[userID], hash)
	return true, nil
}

func (r memBackup) Count(_ context.Context, userID string) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return len(r.m.st.backup[userID]), nil
}

func (r memBackup) DeleteAll(_ context.Context, userID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.st.backup, userID)
	return nil
}

type memVaults struct{ m *memDB }

func (r memVaults) Create(_ context.Context, v *models.Vault) error {
	if err := r.m.fail("vaults.Create"); err != nil {
		return err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.st.nextID++
	v.ID = r.m.st.nextID
	r.m.st.vaults = append(r.m.st.vaults, *v)
	return nil
}

func (r memVaults) ListByUser(_ context.Context, userID string) ([]models.Vault, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.Vault
	for _, v := range r.m.st.vaults {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	return out, nil
}

type memAudit struct{ m *memDB }

func (r memAudit) Append(_ context.Context, e *models.AuditEntry) error {
	if err := r.m.fail("audit.Append"); err != nil {
		return err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.st.audit = append(r.m.st.audit, *e)
	return nil
}

func (r memAudit) ListByUser(_ context.Context, userID string, limit int) ([]models.AuditEntry, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.AuditEntry
	for i := len(r.m.st.audit) - 1; i >= 0 && len(out) < limit; i-- {
		if r.m.st.audit[i].UserID == userID {
			out = append(out, r.m.st.audit[i])
		}
	}
	return out, nil
}

// clock is a settable time source shared by every service under test.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var errBoom = fmt.Errorf("boom")
