package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dsantanna/biolock/internal/biometric"
	"github.com/dsantanna/biolock/internal/common"
	"github.com/dsantanna/biolock/internal/logging"
	"github.com/dsantanna/biolock/internal/server/auth"
	"github.com/dsantanna/biolock/internal/server/config"
	"github.com/dsantanna/biolock/internal/server/models"
	"github.com/dsantanna/biolock/internal/server/repositories/repomanager"
)

// LoginIdentifier addresses a user by email, nickname, or both.
type LoginIdentifier struct {
	Email    string
	Nickname string
}

// MatchDiagnostics reports how the comparison went. It is returned to the
// caller on success and logged server-side on rejection; the rejection error
// itself never carries the score, so the API cannot be used as an oracle for
// threshold probing.
type MatchDiagnostics struct {
	Similarity      float64
	MatchedFeatures int
	TotalFeatures   int
}

// LoginResult bundles the authenticated user, both tokens, and diagnostics.
type LoginResult struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
	Diagnostics  MatchDiagnostics
}

// AuthService handles fingerprint login and the refresh-session lifecycle.
type AuthService struct {
	db                *sql.DB
	repomanager       repomanager.RepositoryManager
	extractor         biometric.Extractor
	matcher           *biometric.Matcher
	codec             *biometric.Codec
	issuer            *auth.Issuer
	policies          biometric.Policies
	extractionTimeout time.Duration
	logger            logging.Logger
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, extractor biometric.Extractor,
	matcher *biometric.Matcher, codec *biometric.Codec, issuer *auth.Issuer,
	cfg *config.Config, logger logging.Logger) *AuthService {
	return &AuthService{
		db:                db,
		repomanager:       m,
		extractor:         extractor,
		matcher:           matcher,
		codec:             codec,
		issuer:            issuer,
		policies:          cfg.Policies(),
		extractionTimeout: cfg.ExtractionTimeout,
		logger:            logger.With("module", "auth"),
	}
}

// Login compares a fresh fingerprint against the stored reference and, on
// acceptance, mints a token pair and creates the refresh session.
func (s *AuthService) Login(ctx context.Context, ident LoginIdentifier, image []byte) (*LoginResult, error) {
	if ident.Email == "" && ident.Nickname == "" {
		return nil, fmt.Errorf("%w: email or nickname required", common.ErrorValidation)
	}

	userRepo := s.repomanager.Users(s.db)

	user, err := userRepo.GetByEmailOrNickname(ctx, ident.Email, ident.Nickname)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, common.ErrorInactive
	}

	stored, err := s.codec.Decode(user.TemplateEnvelope)
	if err != nil {
		return nil, err
	}

	extractCtx, cancel := context.WithTimeout(ctx, s.extractionTimeout)
	fresh, err := s.extractor.Extract(extractCtx, image)
	cancel()
	if err != nil {
		return nil, err
	}

	policy, ok := s.policies.For(stored.Tag)
	if !ok {
		return nil, fmt.Errorf("%w: no policy for tag %q", common.ErrorInternal, stored.Tag)
	}
	if err := policy.CheckLoginQuality(fresh); err != nil {
		return nil, err
	}

	result, err := s.matcher.Compare(fresh, stored)
	if err != nil {
		return nil, err
	}

	diag := MatchDiagnostics{
		Similarity:      result.Similarity,
		MatchedFeatures: result.MatchedFeatures,
		TotalFeatures:   result.TotalFeatures,
	}

	if !policy.Accept(result) {
		// score is diagnostic only, keep it out of the returned error
		s.logger.Info(ctx, "login rejected", "user_id", user.ID,
			"similarity", result.Similarity, "matched", result.MatchedFeatures,
			"total", result.TotalFeatures)
		return nil, common.ErrorNoMatch
	}

	accessToken, err := s.issuer.IssueAccess(user.ID, user.Nickname, user.Role)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refreshToken, err := s.issuer.IssueRefresh(user.ID)
	if err != nil {
		return nil, common.ErrorInternal
	}

	expiresAt := time.Now().Add(s.issuer.RefreshTTL())
	if _, err := s.repomanager.Sessions(s.db).Create(ctx, user.ID, refreshToken, expiresAt); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Info(ctx, "login accepted", "user_id", user.ID,
		"similarity", result.Similarity, "matched", result.MatchedFeatures)

	return &LoginResult{
		User:         scrubEnvelope(user),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Diagnostics:  diag,
	}, nil
}

// Refresh validates a refresh token and, when a live session backs it, mints
// a new access token. The refresh token itself is not rotated. A token that
// verifies but has no session row is treated as revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return "", err
	}

	sessionRepo := s.repomanager.Sessions(s.db)

	session, err := sessionRepo.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrorSessionNotFound
		}
		return "", err
	}
	if session.UserID != claims.UserID {
		return "", common.ErrInvalidToken
	}
	if session.ExpiresAt.Before(time.Now()) {
		// expired rows are purged lazily on access
		_ = sessionRepo.DeleteByRefreshToken(ctx, refreshToken)
		return "", common.ErrorSessionNotFound
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, session.UserID)
	if err != nil {
		return "", err
	}
	if !user.Active {
		return "", common.ErrorInactive
	}

	accessToken, err := s.issuer.IssueAccess(user.ID, user.Nickname, user.Role)
	if err != nil {
		return "", common.ErrorInternal
	}
	return accessToken, nil
}

// PurgeExpiredSessions removes session rows past their expiry and reports
// how many were swept. The lazy purge in Refresh only catches tokens that
// are presented again; the periodic sweep reclaims the rest.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.repomanager.Sessions(s.db).DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info(ctx, "expired sessions purged", "count", n)
	}
	return n, nil
}

// Logout revokes a single refresh session. Revoking an unknown token is not
// an error.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.repomanager.Sessions(s.db).DeleteByRefreshToken(ctx, refreshToken)
}

// LogoutAll revokes every refresh session the user owns. A login racing this
// call may or may not survive the sweep; last writer wins.
func (s *AuthService) LogoutAll(ctx context.Context, userID int64) error {
	return s.repomanager.Sessions(s.db).DeleteAllForUser(ctx, userID)
}
