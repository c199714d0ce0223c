package biometric

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/dsantanna/biolock/internal/common"
)

// HistogramExtractor is the in-process extraction adapter. It decodes the
// image, converts it to grayscale, and produces a normalized 256-bin
// intensity histogram.
type HistogramExtractor struct{}

func NewHistogramExtractor() *HistogramExtractor {
	return &HistogramExtractor{}
}

func (e *HistogramExtractor) Extract(ctx context.Context, img []byte) (*Template, error) {
	if len(img) == 0 {
		return nil, fmt.Errorf("%w: empty image", common.ErrorExtraction)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorExtractionTimeout, err)
	}

	decoded, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorExtraction, err)
	}

	bins := make([]float64, HistogramBins)
	bounds := decoded.Bounds()
	total := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := decoded.At(x, y).RGBA()
			// luma on 16-bit channel values, scaled back to 0..255
			gray := (299*r + 587*g + 114*b) / 1000 >> 8
			bins[gray]++
			total++
		}
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: image has no pixels", common.ErrorExtraction)
	}

	for i := range bins {
		bins[i] /= float64(total)
	}

	return &Template{Tag: TagHistogram, Histogram: bins}, nil
}
