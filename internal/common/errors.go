// Package common defines shared constants and sentinel errors used across
// the biolock server layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound  = errors.New("not found")
	ErrorDuplicate = errors.New("already registered")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Biometric pipeline errors.
	ErrorExtraction          = errors.New("feature extraction failed")
	ErrorExtractionTimeout   = errors.New("feature extraction timed out")
	ErrorInsufficientQuality = errors.New("not enough features detected")
	ErrorAlgorithmMismatch   = errors.New("template algorithm mismatch")
	ErrorCorruptTemplate     = errors.New("corrupt template envelope")
	ErrorNoMatch             = errors.New("fingerprint does not match")

	// Account state errors.
	ErrorInactive = errors.New("user is inactive")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired      = errors.New("token expired")
	ErrorSessionNotFound = errors.New("session not found")
)
