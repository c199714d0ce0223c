// Package services contains server-side business logic: enrollment of new
// users, fingerprint login with session issuance, and profile management.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dsantanna/biolock/internal/biometric"
	"github.com/dsantanna/biolock/internal/common"
	"github.com/dsantanna/biolock/internal/logging"
	"github.com/dsantanna/biolock/internal/server/config"
	"github.com/dsantanna/biolock/internal/server/imagestore"
	"github.com/dsantanna/biolock/internal/server/models"
	"github.com/dsantanna/biolock/internal/server/repositories/repomanager"
)

// CreateUserParams carries the profile fields for enrollment.
type CreateUserParams struct {
	Username string
	Lastname string
	Nickname string
	Email    string
	Role     int
}

// EnrollmentService registers new users: it validates the profile, extracts
// and quality-gates the reference template, seals it, and persists the user.
type EnrollmentService struct {
	db                *sql.DB
	repomanager       repomanager.RepositoryManager
	extractor         biometric.Extractor
	codec             *biometric.Codec
	policies          biometric.Policies
	extractionTimeout time.Duration
	archive           imagestore.Archive
	logger            logging.Logger
}

// NewEnrollmentService constructs an EnrollmentService. archive may be nil
// to disable raw-image archiving.
func NewEnrollmentService(db *sql.DB, m repomanager.RepositoryManager, extractor biometric.Extractor,
	codec *biometric.Codec, cfg *config.Config, archive imagestore.Archive, logger logging.Logger) *EnrollmentService {
	return &EnrollmentService{
		db:                db,
		repomanager:       m,
		extractor:         extractor,
		codec:             codec,
		policies:          cfg.Policies(),
		extractionTimeout: cfg.ExtractionTimeout,
		archive:           archive,
		logger:            logger.With("module", "enrollment"),
	}
}

// CreateUser enrolls a new user from profile data and a fingerprint image.
// The existence pre-check is a UX nicety only: the store's unique indexes are
// the real duplicate guard, and a constraint violation at insert time also
// reports ErrorDuplicate.
func (s *EnrollmentService) CreateUser(ctx context.Context, params CreateUserParams, image []byte) (*models.User, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	repo := s.repomanager.Users(s.db)

	exists, err := repo.ExistsByEmailOrNickname(ctx, params.Email, params.Nickname)
	if err != nil {
		return nil, fmt.Errorf("checking existing users: %w", err)
	}
	if exists {
		return nil, common.ErrorDuplicate
	}

	template, err := s.extractTemplate(ctx, image)
	if err != nil {
		return nil, err
	}

	policy, ok := s.policies.For(template.Tag)
	if !ok {
		return nil, fmt.Errorf("%w: no policy for tag %q", common.ErrorInternal, template.Tag)
	}
	if err := policy.CheckEnrollmentQuality(template); err != nil {
		return nil, err
	}

	envelope, err := s.codec.Encode(template)
	if err != nil {
		return nil, fmt.Errorf("sealing template: %w", err)
	}

	user, err := repo.Create(ctx, &models.User{
		Username:         params.Username,
		Lastname:         params.Lastname,
		Nickname:         params.Nickname,
		Email:            params.Email,
		Role:             params.Role,
		Active:           true,
		TemplateEnvelope: envelope,
	})
	if err != nil {
		return nil, err
	}

	if s.archive != nil {
		if key, err := s.archive.Save(ctx, image); err != nil {
			s.logger.Warn(ctx, "image archive failed", "user_id", user.ID, "error", err.Error())
		} else {
			s.logger.Info(ctx, "enrollment image archived", "user_id", user.ID, "key", key)
		}
	}

	s.logger.Info(ctx, "user enrolled", "user_id", user.ID, "nickname", user.Nickname,
		"features", template.TotalFeatures())

	return scrubEnvelope(user), nil
}

func (s *EnrollmentService) extractTemplate(ctx context.Context, image []byte) (*biometric.Template, error) {
	ctx, cancel := context.WithTimeout(ctx, s.extractionTimeout)
	defer cancel()
	return s.extractor.Extract(ctx, image)
}

func validateParams(p CreateUserParams) error {
	if !models.ValidRole(p.Role) {
		return fmt.Errorf("%w: role must be 1, 2 or 3", common.ErrorValidation)
	}
	if strings.TrimSpace(p.Username) == "" {
		return fmt.Errorf("%w: username is required", common.ErrorValidation)
	}
	if strings.TrimSpace(p.Nickname) == "" {
		return fmt.Errorf("%w: nickname is required", common.ErrorValidation)
	}
	if !strings.Contains(p.Email, "@") {
		return fmt.Errorf("%w: invalid email", common.ErrorValidation)
	}
	return nil
}

// scrubEnvelope returns a copy without the sealed template, which never
// leaves the service layer.
func scrubEnvelope(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	c := *u
	c.TemplateEnvelope = nil
	return &c
}
