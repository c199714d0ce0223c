// Package auth issues and verifies the JWT credentials used by the API:
// short-lived access tokens and longer-lived refresh tokens, signed with
// independent secrets so compromising one does not compromise the other.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dsantanna/biolock/internal/common"
)

// Claims carries the registered claims plus the user identity needed by the
// API layer. Refresh tokens only populate UserID.
type Claims struct {
	jwt.RegisteredClaims
	UserID   int64  `json:"uid"`
	Nickname string `json:"nickname,omitempty"`
	Role     int    `json:"role,omitempty"`
}

// Issuer mints and verifies both token kinds.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewIssuer(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// RefreshTTL exposes the refresh token lifetime so callers can align session
// expiry with it.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssueAccess mints a short-lived access token carrying the user identity.
func (i *Issuer) IssueAccess(userID int64, nickname string, role int) (string, error) {
	return sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(i.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID:   userID,
		Nickname: nickname,
		Role:     role,
	}, i.accessSecret)
}

// IssueRefresh mints a longer-lived refresh token carrying only the user id.
// Every token gets a fresh jti: refresh tokens are stored under a unique
// index, so two issued in the same second must still differ byte for byte.
func (i *Issuer) IssueRefresh(userID int64) (string, error) {
	return sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(i.refreshTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID: userID,
	}, i.refreshSecret)
}

// VerifyAccess validates an access token and returns its claims.
func (i *Issuer) VerifyAccess(token string) (*Claims, error) {
	return verify(token, i.accessSecret)
}

// VerifyRefresh validates a refresh token and returns its claims. Validity
// here only proves the signature and expiry; the session store decides
// whether the token is still live.
func (i *Issuer) VerifyRefresh(token string) (*Claims, error) {
	return verify(token, i.refreshSecret)
}

func sign(claims Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func verify(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
