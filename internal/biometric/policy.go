package biometric

import (
	"fmt"

	"github.com/dsantanna/biolock/internal/common"
)

// Policy holds the accept/reject tuning for one algorithm tag.
//
// A comparison is accepted only when Similarity >= SimilarityThreshold AND
// MatchedFeatures >= MinMatchCount. Quality gates run before any comparison;
// enrollment demands more features than login because a poor reference
// poisons every future login, while a poor login attempt only fails once.
type Policy struct {
	SimilarityThreshold   float64
	MinMatchCount         int
	MinEnrollmentFeatures int
	MinLoginFeatures      int
}

// Accept reports whether the result clears both thresholds.
func (p Policy) Accept(r *MatchResult) bool {
	if r == nil {
		return false
	}
	return r.Similarity >= p.SimilarityThreshold && r.MatchedFeatures >= p.MinMatchCount
}

// CheckEnrollmentQuality rejects templates too sparse to serve as a stored
// reference.
func (p Policy) CheckEnrollmentQuality(t *Template) error {
	return checkQuality(t, p.MinEnrollmentFeatures)
}

// CheckLoginQuality rejects templates too sparse to be compared at login.
func (p Policy) CheckLoginQuality(t *Template) error {
	return checkQuality(t, p.MinLoginFeatures)
}

func checkQuality(t *Template, minFeatures int) error {
	if got := t.TotalFeatures(); got < minFeatures {
		return fmt.Errorf("%w: %d features, need at least %d",
			common.ErrorInsufficientQuality, got, minFeatures)
	}
	return nil
}

// Policies maps algorithm tags to their tuning. Lookup of an unknown tag
// returns a zero Policy, which accepts nothing useful, so callers should
// configure every tag they store.
type Policies map[AlgorithmTag]Policy

// For returns the policy for tag and whether one is configured.
func (ps Policies) For(tag AlgorithmTag) (Policy, bool) {
	p, ok := ps[tag]
	return p, ok
}
