package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dsantanna/biolock/internal/biometric"
	"github.com/dsantanna/biolock/internal/common"
	"github.com/dsantanna/biolock/internal/server/config"
	"github.com/dsantanna/biolock/internal/server/imagestore"
)

type recordingArchive struct {
	mu     sync.Mutex
	saved  [][]byte
	key    string
	err    error
	called int
}

func (a *recordingArchive) Save(ctx context.Context, image []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.called++
	if a.err != nil {
		return "", a.err
	}
	a.saved = append(a.saved, image)
	return a.key, nil
}

type enrollmentFixture struct {
	svc     *EnrollmentService
	users   *fakeUsersRepo
	archive *recordingArchive
	codec   *biometric.Codec
}

func newEnrollmentFixture(t *testing.T, extractor biometric.Extractor, archive *recordingArchive) *enrollmentFixture {
	t.Helper()

	db, _ := newSQLMockDB(t)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{}
	cfg.LoadDefaults()

	codec, err := biometric.NewCodec([]byte(cfg.TemplateSecret), cfg.TemplateValidityDuration)
	if err != nil {
		t.Fatalf("NewCodec error: %v", err)
	}

	users := &fakeUsersRepo{}
	rm := &fakeRepoManager{u: users, se: newFakeSessionsRepo()}

	var store imagestore.Archive
	if archive != nil {
		store = archive
	}
	svc := NewEnrollmentService(db, rm, extractor, codec, cfg, store, discardLogger())

	return &enrollmentFixture{svc: svc, users: users, archive: archive, codec: codec}
}

func validParams() CreateUserParams {
	return CreateUserParams{
		Username: "Alice",
		Lastname: "Doe",
		Nickname: "alice",
		Email:    "alice@example.com",
		Role:     3,
	}
}

func TestCreateUser_Success(t *testing.T) {
	extractor := &fakeExtractor{out: histogramWithBin(10)}
	f := newEnrollmentFixture(t, extractor, nil)

	user, err := f.svc.CreateUser(context.Background(), validParams(), []byte("img"))
	if err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	if user.ID == 0 {
		t.Fatalf("expected a persisted user, got %+v", user)
	}
	if !user.Active {
		t.Fatalf("new users must start active")
	}
	if user.TemplateEnvelope != nil {
		t.Fatalf("template envelope must never be returned")
	}
	if !extractor.lastCtxHadDeadline {
		t.Fatalf("extraction must run under a deadline")
	}

	// the persisted envelope decodes back to the extracted template
	if len(f.users.created) != 1 {
		t.Fatalf("expected 1 persisted user, got %d", len(f.users.created))
	}
	stored, err := f.codec.Decode(f.users.created[0].TemplateEnvelope)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if stored.Tag != biometric.TagHistogram || stored.Histogram[10] == 0 {
		t.Fatalf("persisted template does not round-trip: %+v", stored)
	}
}

func TestCreateUser_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateUserParams)
	}{
		{"bad role", func(p *CreateUserParams) { p.Role = 0 }},
		{"empty username", func(p *CreateUserParams) { p.Username = "  " }},
		{"empty nickname", func(p *CreateUserParams) { p.Nickname = "" }},
		{"bad email", func(p *CreateUserParams) { p.Email = "nope" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extractor := &fakeExtractor{out: histogramWithBin(0)}
			f := newEnrollmentFixture(t, extractor, nil)
			params := validParams()
			tt.mutate(&params)

			_, err := f.svc.CreateUser(context.Background(), params, []byte("img"))
			if !errors.Is(err, common.ErrorValidation) {
				t.Fatalf("expected ErrorValidation, got %v", err)
			}
			if extractor.lastCtxHadDeadline {
				t.Fatalf("extraction must not run for invalid params")
			}
		})
	}
}

func TestCreateUser_DuplicatePrecheck(t *testing.T) {
	f := newEnrollmentFixture(t, &fakeExtractor{out: histogramWithBin(0)}, nil)
	f.users.existsOut = true

	_, err := f.svc.CreateUser(context.Background(), validParams(), []byte("img"))
	if !errors.Is(err, common.ErrorDuplicate) {
		t.Fatalf("expected ErrorDuplicate, got %v", err)
	}
	if len(f.users.created) != 0 {
		t.Fatalf("duplicate must not be persisted")
	}
}

func TestCreateUser_DuplicateAtInsert(t *testing.T) {
	// the pre-check races with concurrent enrollments; the unique index
	// violation at insert time must surface the same way
	f := newEnrollmentFixture(t, &fakeExtractor{out: histogramWithBin(0)}, nil)
	f.users.createErr = fmt.Errorf("saving user: %w", common.ErrorDuplicate)

	_, err := f.svc.CreateUser(context.Background(), validParams(), []byte("img"))
	if !errors.Is(err, common.ErrorDuplicate) {
		t.Fatalf("expected ErrorDuplicate, got %v", err)
	}
}

func TestCreateUser_InsufficientQuality(t *testing.T) {
	sparse := &biometric.Template{Tag: biometric.TagSIFT, Descriptors: [][]float32{{1, 2}}}
	f := newEnrollmentFixture(t, &fakeExtractor{out: sparse}, nil)

	_, err := f.svc.CreateUser(context.Background(), validParams(), []byte("img"))
	if !errors.Is(err, common.ErrorInsufficientQuality) {
		t.Fatalf("expected ErrorInsufficientQuality, got %v", err)
	}
	if len(f.users.created) != 0 {
		t.Fatalf("low quality template must not be persisted")
	}
}

func TestCreateUser_ExtractionTimeout(t *testing.T) {
	f := newEnrollmentFixture(t, &fakeExtractor{err: common.ErrorExtractionTimeout}, nil)

	_, err := f.svc.CreateUser(context.Background(), validParams(), []byte("img"))
	if !errors.Is(err, common.ErrorExtractionTimeout) {
		t.Fatalf("expected ErrorExtractionTimeout, got %v", err)
	}
}

func TestCreateUser_ArchivesImage(t *testing.T) {
	archive := &recordingArchive{key: "fingerprints/2026/08/29/abc"}
	f := newEnrollmentFixture(t, &fakeExtractor{out: histogramWithBin(0)}, archive)

	if _, err := f.svc.CreateUser(context.Background(), validParams(), []byte("raw-image")); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	if archive.called != 1 || string(archive.saved[0]) != "raw-image" {
		t.Fatalf("expected the raw image archived once, got called=%d", archive.called)
	}
}

func TestCreateUser_ArchiveFailureIsNotFatal(t *testing.T) {
	archive := &recordingArchive{err: errors.New("bucket unreachable")}
	f := newEnrollmentFixture(t, &fakeExtractor{out: histogramWithBin(0)}, archive)

	user, err := f.svc.CreateUser(context.Background(), validParams(), []byte("img"))
	if err != nil {
		t.Fatalf("archive failure must not fail enrollment: %v", err)
	}
	if user == nil || archive.called != 1 {
		t.Fatalf("expected enrollment to succeed with archive attempted")
	}
}
