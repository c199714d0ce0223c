package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/dsantanna/biolock/internal/biometric"
	"github.com/dsantanna/biolock/internal/common"
	"github.com/dsantanna/biolock/internal/dbx"
	"github.com/dsantanna/biolock/internal/logging"
	"github.com/dsantanna/biolock/internal/server/models"
	sessionsrepo "github.com/dsantanna/biolock/internal/server/repositories/sessions"
	usersrepo "github.com/dsantanna/biolock/internal/server/repositories/users"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func discardLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// --- fake users repository ---

type fakeUsersRepo struct {
	createOut *models.User
	createErr error

	getOut *models.User
	getErr error

	existsOut bool
	existsErr error

	updateOut *models.User
	updateErr error

	setActiveErr error
	deleteErr    error

	created []*models.User
	deleted []int64
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, u)
	if f.createOut != nil {
		return f.createOut, nil
	}
	out := *u
	out.ID = 1
	out.CreatedAt = time.Now()
	out.UpdatedAt = out.CreatedAt
	return &out, nil
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}

func (f *fakeUsersRepo) GetByEmailOrNickname(ctx context.Context, email, nickname string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}

func (f *fakeUsersRepo) ExistsByEmailOrNickname(ctx context.Context, email, nickname string) (bool, error) {
	return f.existsOut, f.existsErr
}

func (f *fakeUsersRepo) UpdateProfile(ctx context.Context, id int64, username, lastname string, role int) (*models.User, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return f.updateOut, nil
}

func (f *fakeUsersRepo) SetActive(ctx context.Context, id int64, active bool) error {
	return f.setActiveErr
}

func (f *fakeUsersRepo) Delete(ctx context.Context, id int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

// --- fake sessions repository ---

type fakeSessionsRepo struct {
	mu        sync.Mutex
	byToken   map[string]*models.Session
	createErr error
}

func newFakeSessionsRepo() *fakeSessionsRepo {
	return &fakeSessionsRepo{byToken: make(map[string]*models.Session)}
}

func (f *fakeSessionsRepo) Create(ctx context.Context, userID int64, token string, expiresAt time.Time) (*models.Session, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	// refresh_token carries a unique index in the real store
	if _, exists := f.byToken[token]; exists {
		return nil, common.ErrorDuplicate
	}
	s := &models.Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		RefreshToken: token,
		ExpiresAt:    expiresAt,
		CreatedAt:    time.Now(),
	}
	f.byToken[token] = s
	return s, nil
}

func (f *fakeSessionsRepo) FindByRefreshToken(ctx context.Context, token string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byToken[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return s, nil
}

func (f *fakeSessionsRepo) DeleteByRefreshToken(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byToken, token)
	return nil
}

func (f *fakeSessionsRepo) DeleteAllForUser(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for token, s := range f.byToken {
		if s.UserID == userID {
			delete(f.byToken, token)
		}
	}
	return nil
}

func (f *fakeSessionsRepo) DeleteExpired(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for token, s := range f.byToken {
		if s.ExpiresAt.Before(time.Now()) {
			delete(f.byToken, token)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessionsRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byToken)
}

// --- fake repository manager ---

type fakeRepoManager struct {
	u  *fakeUsersRepo
	se *fakeSessionsRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository       { return m.u }
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessionsrepo.Repository { return m.se }

// --- fake extractor ---

type fakeExtractor struct {
	out *biometric.Template
	err error

	lastCtxHadDeadline bool
}

func (f *fakeExtractor) Extract(ctx context.Context, image []byte) (*biometric.Template, error) {
	_, f.lastCtxHadDeadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

// histogramWithBin builds a histogram with all mass in one bin.
func histogramWithBin(bin int) *biometric.Template {
	h := make([]float64, biometric.HistogramBins)
	h[bin] = 1000
	return &biometric.Template{Tag: biometric.TagHistogram, Histogram: h}
}
