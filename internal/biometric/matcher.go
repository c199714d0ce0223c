package biometric

import (
	"fmt"
	"math"

	"github.com/dsantanna/biolock/internal/common"
)

// DefaultRatio is the nearest/second-nearest distance ratio below which a
// descriptor pair counts as a good match (Lowe's ratio test).
const DefaultRatio = 0.7

// MatchResult carries the outcome of comparing two templates. Similarity is
// always in [0,1]. For histogram templates MatchedFeatures and TotalFeatures
// both report the vector length.
type MatchResult struct {
	Similarity      float64
	MatchedFeatures int
	TotalFeatures   int
}

// Matcher compares two templates of the same algorithm tag. The decision of
// whether a result is "good enough" belongs to the caller's Policy, not here.
type Matcher struct {
	ratio float64
}

// NewMatcher builds a Matcher with the given ratio threshold for descriptor
// matching. A non-positive ratio falls back to DefaultRatio.
func NewMatcher(ratio float64) *Matcher {
	if ratio <= 0 {
		ratio = DefaultRatio
	}
	return &Matcher{ratio: ratio}
}

// Compare produces a MatchResult for two templates carrying the same tag.
// Templates with different tags never produce a score.
func (m *Matcher) Compare(a, b *Template) (*MatchResult, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: nil template", common.ErrorAlgorithmMismatch)
	}
	if a.Tag != b.Tag {
		return nil, fmt.Errorf("%w: %q vs %q", common.ErrorAlgorithmMismatch, a.Tag, b.Tag)
	}

	switch a.Tag {
	case TagHistogram:
		return m.compareHistograms(a, b)
	case TagSIFT:
		return m.compareDescriptors(a, b)
	default:
		return nil, fmt.Errorf("%w: unknown tag %q", common.ErrorAlgorithmMismatch, a.Tag)
	}
}

func (m *Matcher) compareHistograms(a, b *Template) (*MatchResult, error) {
	if len(a.Histogram) != len(b.Histogram) {
		return nil, fmt.Errorf("%w: histogram lengths %d vs %d",
			common.ErrorAlgorithmMismatch, len(a.Histogram), len(b.Histogram))
	}

	var sum float64
	for i := range a.Histogram {
		d := a.Histogram[i] - b.Histogram[i]
		sum += d * d
	}
	distance := math.Sqrt(sum)

	return &MatchResult{
		Similarity:      1 / (1 + distance),
		MatchedFeatures: len(a.Histogram),
		TotalFeatures:   len(a.Histogram),
	}, nil
}

func (m *Matcher) compareDescriptors(a, b *Template) (*MatchResult, error) {
	totalA, totalB := len(a.Descriptors), len(b.Descriptors)
	total := totalA
	if totalB > total {
		total = totalB
	}
	if total == 0 {
		return &MatchResult{}, nil
	}

	good := 0
	for _, query := range a.Descriptors {
		first, second := nearestTwo(query, b.Descriptors)
		if first < 0 {
			continue
		}
		// exact hits always count; otherwise apply the ratio test against
		// the second-nearest neighbor when one exists
		switch {
		case first == 0:
			good++
		case second < 0:
			// single candidate, nothing to compare the ratio against
		case first < m.ratio*second:
			good++
		}
	}

	return &MatchResult{
		Similarity:      float64(good) / float64(total),
		MatchedFeatures: good,
		TotalFeatures:   total,
	}, nil
}

// nearestTwo returns the two smallest euclidean distances between query and
// the candidate descriptors. Missing neighbors are reported as -1.
func nearestTwo(query []float32, candidates [][]float32) (first, second float64) {
	first, second = -1, -1
	for _, c := range candidates {
		d := euclidean(query, c)
		switch {
		case first < 0 || d < first:
			second = first
			first = d
		case second < 0 || d < second:
			second = d
		}
	}
	return first, second
}

func euclidean(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
