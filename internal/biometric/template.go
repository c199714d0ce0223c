// Package biometric implements the fingerprint matching core: template
// representation, feature extraction adapters, template comparison, and the
// sealed envelope format used to persist templates at rest.
package biometric

// AlgorithmTag identifies which extraction/comparison algorithm produced a
// template. Templates carrying different tags are never comparable.
type AlgorithmTag string

const (
	// TagHistogram marks fixed-length grayscale intensity histograms.
	TagHistogram AlgorithmTag = "histogram"
	// TagSIFT marks variable-length keypoint/descriptor templates.
	TagSIFT AlgorithmTag = "sift"
)

// FormatVersion is the current envelope format version.
const FormatVersion = "1"

// HistogramBins is the fixed length of histogram templates.
const HistogramBins = 256

// Keypoint describes a single detected feature point.
type Keypoint struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Size     float64 `json:"size"`
	Angle    float64 `json:"angle"`
	Response float64 `json:"response"`
	Octave   int     `json:"octave"`
	ClassID  int     `json:"class_id"`
}

// Template is the in-memory biometric representation of a fingerprint.
// It is a tagged union: histogram templates populate Histogram, descriptor
// templates populate Keypoints and Descriptors.
type Template struct {
	Tag         AlgorithmTag `json:"tag"`
	Histogram   []float64    `json:"histogram,omitempty"`
	Keypoints   []Keypoint   `json:"keypoints,omitempty"`
	Descriptors [][]float32  `json:"descriptors,omitempty"`
}

// TotalFeatures returns the feature count used by quality gating: the vector
// length for histograms, the descriptor count otherwise.
func (t *Template) TotalFeatures() int {
	if t == nil {
		return 0
	}
	if t.Tag == TagHistogram {
		return len(t.Histogram)
	}
	return len(t.Descriptors)
}
