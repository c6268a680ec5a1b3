// Package detector wraps the face detection and encoding backends behind one
// interface and gates access until the backend model is loaded.
package detector

import (
	"context"
	"errors"
)

// Backend names accepted by the configuration.
const (
	BackendDlib   = "dlib"
	BackendRemote = "remote"
)

// ErrNotReady is returned while the backend model is still loading or after
// loading failed.
var ErrNotReady = errors.New("face detector is not ready")

// Face is one detected face.
type Face struct {
	Descriptor []float32 `json:"descriptor"`
	BBox       []float64 `json:"bbox"` // [x1, y1, x2, y2] in pixels
	Score      float64   `json:"score,omitempty"`
}

// Detector finds faces in a JPEG-encoded image. Faces are returned in the
// backend's own order.
type Detector interface {
	Detect(ctx context.Context, jpegData []byte) ([]Face, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, jpegData []byte) ([]Face, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, jpegData []byte) ([]Face, error) {
	return f(ctx, jpegData)
}
