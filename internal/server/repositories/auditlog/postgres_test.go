package auditlog

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const insertQuery = `(?s)^INSERT\s+INTO\s+audit_log\s*\(id,\s*user_id,\s*action,\s*details,\s*ip_address,\s*created_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6\)\s*$`

func TestAppend(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(insertQuery).
		WithArgs("a1", sql.NullString{String: "u1", Valid: true}, models.ActionLogin, "ok", "10.0.0.1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(context.Background(), &models.AuditEntry{
		ID: "a1", UserID: "u1", Action: models.ActionLogin, Details: "ok", IPAddress: "10.0.0.1", CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("Append error: %v", err)
	}
}

func TestAppend_NoUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQuery).
		WithArgs("a1", sql.NullString{}, models.ActionLoginFailure, "", "", sqlmock.AnyArg()).
		WillReturnError(errors.New("db down"))

	err := repo.Append(context.Background(), &models.AuditEntry{ID: "a1", Action: models.ActionLoginFailure})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestListByUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "action", "details", "ip_address", "created_at"}).
		AddRow("a2", "u1", models.ActionLogout, "", "", now).
		AddRow("a1", "u1", models.ActionLogin, "", "", now.Add(-time.Minute))
	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*user_id,.*FROM\s+audit_log\s+WHERE\s+user_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+DESC\s+LIMIT\s+\$2\s*$`).
		WithArgs("u1", 50).
		WillReturnRows(rows)

	got, err := repo.ListByUser(context.Background(), "u1", 50)
	if err != nil {
		t.Fatalf("ListByUser error: %v", err)
	}
	if len(got) != 2 || got[0].Action != models.ActionLogout {
		t.Fatalf("unexpected entries: %+v", got)
	}
}
