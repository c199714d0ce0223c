package models

import "time"

// Session makes a refresh token revocable: a signature-valid token without a
// live session row is treated as revoked.
type Session struct {
	ID           string
	UserID       int64
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}
