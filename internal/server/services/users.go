package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dsantanna/biolock/internal/common"
	"github.com/dsantanna/biolock/internal/dbx"
	"github.com/dsantanna/biolock/internal/logging"
	"github.com/dsantanna/biolock/internal/server/models"
	"github.com/dsantanna/biolock/internal/server/repositories/repomanager"
)

// UpdateUserParams carries the only profile fields an update may touch.
// Nickname, email, the template envelope, and timestamps are immutable
// through this path.
type UpdateUserParams struct {
	Username string
	Lastname string
	Role     int
}

// UserService covers profile reads and mutations after enrollment.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *UserService {
	return &UserService{db: db, repomanager: m, logger: logger.With("module", "users")}
}

// GetByID returns the user without its template envelope.
func (s *UserService) GetByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return scrubEnvelope(user), nil
}

// Update changes the mutable profile fields.
func (s *UserService) Update(ctx context.Context, id int64, params UpdateUserParams) (*models.User, error) {
	if !models.ValidRole(params.Role) {
		return nil, fmt.Errorf("%w: role must be 1, 2 or 3", common.ErrorValidation)
	}
	if params.Username == "" {
		return nil, fmt.Errorf("%w: username is required", common.ErrorValidation)
	}

	user, err := s.repomanager.Users(s.db).UpdateProfile(ctx, id, params.Username, params.Lastname, params.Role)
	if err != nil {
		return nil, err
	}
	return scrubEnvelope(user), nil
}

// Deactivate flips the active flag off; the user keeps their data but can no
// longer log in or refresh.
func (s *UserService) Deactivate(ctx context.Context, id int64) error {
	return s.repomanager.Users(s.db).SetActive(ctx, id, false)
}

// Delete removes the user and all their sessions in one transaction, so no
// orphaned refresh session can outlive its owner.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Sessions(tx).DeleteAllForUser(ctx, id); err != nil {
			return err
		}
		return s.repomanager.Users(tx).Delete(ctx, id)
	})
}
