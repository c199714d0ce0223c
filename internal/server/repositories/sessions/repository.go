// Package sessions declares the server-side store contract for refresh
// sessions. Presence in the store is the actual revocation check: a
// signature-valid refresh token without a session row is treated as revoked.
package sessions

import (
	"context"
	"time"

	"github.com/dsantanna/biolock/internal/server/models"
)

// Repository defines operations for creating, finding, and revoking sessions.
type Repository interface {
	// Create stores a new session for userID expiring at expiresAt.
	Create(ctx context.Context, userID int64, refreshToken string, expiresAt time.Time) (*models.Session, error)

	// FindByRefreshToken looks up a session by its refresh token value.
	// Implementations return common.ErrorNotFound when the token is absent.
	FindByRefreshToken(ctx context.Context, token string) (*models.Session, error)

	// DeleteByRefreshToken removes one session. Deleting a non-existent
	// token is not an error.
	DeleteByRefreshToken(ctx context.Context, token string) error

	// DeleteAllForUser removes every session owned by userID.
	DeleteAllForUser(ctx context.Context, userID int64) error

	// DeleteExpired purges sessions past their expiry and reports how many
	// rows were removed.
	DeleteExpired(ctx context.Context) (int64, error)
}
