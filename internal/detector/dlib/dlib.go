// Package dlib implements detector.Detector on top of go-face, the cgo
// binding for dlib's face detector and ResNet face encoder.
package dlib

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/kozaktomas/face-groups/internal/detector"
)

// Recognizer detects and encodes faces with the dlib models shipped with go-face
// (shape_predictor_5_face_landmarks.dat, dlib_face_recognition_resnet_model_v1.dat,
// mmod_human_face_detector.dat). Descriptors have 128 dimensions.
type Recognizer struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

// New loads the models from modelDir. Loading takes a few seconds.
func New(modelDir string) (*Recognizer, error) {
	if _, err := os.Stat(modelDir); err != nil {
		return nil, fmt.Errorf("model directory: %w", err)
	}
	rec, err := face.NewRecognizer(modelDir)
	if err != nil {
		return nil, fmt.Errorf("initializing dlib recognizer: %w", err)
	}
	return &Recognizer{rec: rec}, nil
}

// Loader returns a detector.Loader for New.
func Loader(modelDir string) detector.Loader {
	return func(context.Context) (detector.Detector, error) {
		return New(modelDir)
	}
}

// Detect runs detection on JPEG data. The recognizer is not safe for
// concurrent use, so calls are serialized.
func (d *Recognizer) Detect(ctx context.Context, jpegData []byte) ([]detector.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.rec == nil {
		d.mu.Unlock()
		return nil, detector.ErrNotReady
	}
	faces, err := d.rec.Recognize(jpegData)
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("dlib recognize: %w", err)
	}

	result := make([]detector.Face, 0, len(faces))
	for _, f := range faces {
		desc := make([]float32, len(f.Descriptor))
		copy(desc, f.Descriptor[:])
		r := f.Rectangle
		result = append(result, detector.Face{
			Descriptor: desc,
			BBox:       []float64{float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y)},
		})
	}
	return result, nil
}

// Close frees the native recognizer.
func (d *Recognizer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rec != nil {
		d.rec.Close()
		d.rec = nil
	}
	return nil
}
