// Package users declares the persistence contract for user accounts.
package users

import (
	"context"

	"github.com/dsantanna/biolock/internal/server/models"
)

// Repository defines storage operations for users. Implementations map
// not-found conditions to common.ErrorNotFound and unique-index violations
// to common.ErrorDuplicate.
type Repository interface {
	// Create inserts a new user and returns it with ID and timestamps set.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByID returns a user by primary key.
	GetByID(ctx context.Context, id int64) (*models.User, error)

	// GetByEmailOrNickname returns the user matching either identifier.
	// Empty arguments are excluded from the lookup.
	GetByEmailOrNickname(ctx context.Context, email, nickname string) (*models.User, error)

	// ExistsByEmailOrNickname reports whether any user already holds either
	// identifier. This is a pre-check only; the unique index is authoritative.
	ExistsByEmailOrNickname(ctx context.Context, email, nickname string) (bool, error)

	// UpdateProfile changes the mutable profile fields and returns the
	// updated row.
	UpdateProfile(ctx context.Context, id int64, username, lastname string, role int) (*models.User, error)

	// SetActive toggles the active flag.
	SetActive(ctx context.Context, id int64, active bool) error

	// Delete removes the user row.
	Delete(ctx context.Context, id int64) error
}
