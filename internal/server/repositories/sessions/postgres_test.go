package sessions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dsantanna/biolock/internal/common"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	expires := time.Now().Add(240 * time.Hour)
	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+sessions`).
		WithArgs(sqlmock.AnyArg(), int64(7), "refresh-abc", expires).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	s, err := repo.Create(context.Background(), 7, "refresh-abc", expires)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if s.ID == "" || s.UserID != 7 || s.RefreshToken != "refresh-abc" {
		t.Fatalf("unexpected session: %+v", s)
	}
}

func TestFindByRefreshToken_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "refresh_token", "expires_at", "created_at"}).
		AddRow("sess-1", int64(7), "refresh-abc", now.Add(time.Hour), now)
	mock.ExpectQuery(`(?s)SELECT\s+.*FROM\s+sessions\s+WHERE\s+refresh_token`).
		WithArgs("refresh-abc").
		WillReturnRows(rows)

	s, err := repo.FindByRefreshToken(context.Background(), "refresh-abc")
	if err != nil {
		t.Fatalf("FindByRefreshToken error: %v", err)
	}
	if s.UserID != 7 {
		t.Fatalf("unexpected session: %+v", s)
	}
}

func TestFindByRefreshToken_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)SELECT\s+.*FROM\s+sessions`).
		WithArgs("revoked").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByRefreshToken(context.Background(), "revoked")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}

func TestDeleteByRefreshToken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)DELETE\s+FROM\s+sessions\s+WHERE\s+refresh_token`).
		WithArgs("refresh-abc").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.DeleteByRefreshToken(context.Background(), "refresh-abc"); err != nil {
		t.Fatalf("DeleteByRefreshToken error: %v", err)
	}
}

func TestDeleteAllForUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)DELETE\s+FROM\s+sessions\s+WHERE\s+user_id`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := repo.DeleteAllForUser(context.Background(), 7); err != nil {
		t.Fatalf("DeleteAllForUser error: %v", err)
	}
}

func TestDeleteExpired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)DELETE\s+FROM\s+sessions\s+WHERE\s+expires_at`).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := repo.DeleteExpired(context.Background())
	if err != nil {
		t.Fatalf("DeleteExpired error: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 purged rows, got %d", n)
	}
}

func TestDeleteExpired_RowsAffectedError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)DELETE\s+FROM\s+sessions\s+WHERE\s+expires_at`).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("driver glitch")))

	if _, err := repo.DeleteExpired(context.Background()); err == nil {
		t.Fatalf("expected error when the row count is unavailable")
	}
}
