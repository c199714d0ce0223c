package biometric

import "context"

// Extractor turns raw fingerprint image bytes into a Template.
//
// Implementations report common.ErrorExtraction for malformed or empty input
// and common.ErrorExtractionTimeout when the bounded extraction interval
// elapses. Callers bound the call with a context deadline; a timed-out
// extraction must leave no side effects behind.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (*Template, error)
}
