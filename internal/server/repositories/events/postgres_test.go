package events

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"

	"github.com/dmitrijs2005/gophvault/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const (
	insertQ = `(?s)^INSERT\s+INTO\s+vault_events\b.*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6\)\s*$`
	recentQ = `(?s)^SELECT\s+id,\s*kind,\s*path,\s*detail,\s*actor,\s*created_at\s+FROM\s+vault_events\s+WHERE\s+path\s+LIKE\s+\$1\s+ORDER\s+BY\s+created_at\s+DESC\s+LIMIT\s+\$2\s*$`
	pruneQ  = `(?s)^DELETE\s+FROM\s+vault_events\s+WHERE\s+created_at\s*<\s*\$1\s*$`
)

func TestRecord_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(insertQ).
		WithArgs("e1", "upload", "shared/a.pdb", "", "user-0000000a", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Record(context.Background(), models.Event{
		ID: "e1", Kind: models.EventUpload, Path: "shared/a.pdb", Actor: "user-0000000a", CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecord_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQ).WillReturnError(errors.New("db down"))

	err := repo.Record(context.Background(), models.Event{ID: "e1"})
	if err == nil || !regexp.MustCompile(`error performing sql request: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestRecent_ScansRows(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "kind", "path", "detail", "actor", "created_at"}).
		AddRow("e2", "rename", "user-0000000a/b.pdb", "user-0000000a/c.pdb", "user-0000000a", at).
		AddRow("e1", "create", "user-0000000a", "", "anonymous", at.Add(-time.Minute))

	mock.ExpectQuery(recentQ).
		WithArgs(`user-0000000a%`, 10).
		WillReturnRows(rows)

	got, err := repo.Recent(context.Background(), "user-0000000a", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []models.Event{
		{ID: "e2", Kind: models.EventRename, Path: "user-0000000a/b.pdb", Detail: "user-0000000a/c.pdb", Actor: "user-0000000a", CreatedAt: at},
		{ID: "e1", Kind: models.EventCreate, Path: "user-0000000a", Actor: "anonymous", CreatedAt: at.Add(-time.Minute)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Recent mismatch (-want +got):\n%s", diff)
	}
}

func TestRecent_EscapesLikePattern(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(recentQ).
		WithArgs(`shared/50\%\_off%`, 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "path", "detail", "actor", "created_at"}))

	got, err := repo.Recent(context.Background(), "shared/50%_off", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no rows, got %d", len(got))
	}
}

func TestRecent_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(recentQ).WillReturnError(errors.New("db err"))

	_, err := repo.Recent(context.Background(), "", 10)
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestPrune(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(pruneQ).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.Prune(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 7 {
		t.Fatalf("want 7 rows, got %d", n)
	}
}

func TestPrune_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(pruneQ).WillReturnError(errors.New("db err"))

	if _, err := repo.Prune(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error")
	}
}
