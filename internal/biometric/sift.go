package biometric

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/dsantanna/biolock/internal/common"
)

// SIFTExtractor is the out-of-process extraction adapter. It runs the OpenCV
// worker script with the "extract" command, feeding the image as base64 on
// stdin and reading a single JSON document from stdout:
//
//	{"success": true, "keypoints": [...], "descriptors": [[...]], "num_features": N}
//	{"success": false, "error": "..."}
//
// The worker is bounded by the caller's context deadline; hitting it kills
// the process and reports an extraction timeout.
type SIFTExtractor struct {
	// Python is the interpreter binary, e.g. "python3".
	Python string
	// Script is the path to the SIFT worker script.
	Script string
}

func NewSIFTExtractor(python, script string) *SIFTExtractor {
	return &SIFTExtractor{Python: python, Script: script}
}

type siftKeypoint struct {
	Pt       [2]float64 `json:"pt"`
	Size     float64    `json:"size"`
	Angle    float64    `json:"angle"`
	Response float64    `json:"response"`
	Octave   int        `json:"octave"`
	ClassID  int        `json:"class_id"`
}

type siftResponse struct {
	Success     bool           `json:"success"`
	Error       string         `json:"error"`
	Keypoints   []siftKeypoint `json:"keypoints"`
	Descriptors [][]float32    `json:"descriptors"`
	NumFeatures int            `json:"num_features"`
}

func (e *SIFTExtractor) Extract(ctx context.Context, image []byte) (*Template, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", common.ErrorExtraction)
	}

	cmd := exec.CommandContext(ctx, e.Python, e.Script, "extract")
	cmd.Stdin = strings.NewReader(base64.StdEncoding.EncodeToString(image))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: worker killed after deadline", common.ErrorExtractionTimeout)
		}
		return nil, fmt.Errorf("%w: worker failed: %v: %s", common.ErrorExtraction, err, stderr.String())
	}

	var resp siftResponse
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
		return nil, fmt.Errorf("%w: bad worker output: %v", common.ErrorExtraction, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s", common.ErrorExtraction, resp.Error)
	}
	if len(resp.Descriptors) == 0 {
		return nil, fmt.Errorf("%w: no descriptors returned", common.ErrorExtraction)
	}

	keypoints := make([]Keypoint, len(resp.Keypoints))
	for i, kp := range resp.Keypoints {
		keypoints[i] = Keypoint{
			X:        kp.Pt[0],
			Y:        kp.Pt[1],
			Size:     kp.Size,
			Angle:    kp.Angle,
			Response: kp.Response,
			Octave:   kp.Octave,
			ClassID:  kp.ClassID,
		}
	}

	return &Template{Tag: TagSIFT, Keypoints: keypoints, Descriptors: resp.Descriptors}, nil
}
