package detector

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// Gate status values reported by Status.
const (
	StatusIdle    = "idle"
	StatusLoading = "loading"
	StatusReady   = "ready"
	StatusFailed  = "failed"
)

// Loader builds a Detector. It runs once per process.
type Loader func(ctx context.Context) (Detector, error)

// Gate holds the process-wide detector. The model is loaded once in the
// background by Start; until it is loaded Detect returns ErrNotReady.
// After loading the detector is only read, never replaced.
type Gate struct {
	load    Loader
	once    sync.Once
	started chan struct{}
	done    chan struct{}

	// Written once before done is closed.
	det Detector
	err error
}

// NewGate creates a gate around load. Nothing is loaded until Start.
func NewGate(load Loader) *Gate {
	return &Gate{
		load:    load,
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Ready wraps an already loaded detector in an open gate.
func Ready(det Detector) *Gate {
	g := NewGate(func(context.Context) (Detector, error) { return det, nil })
	g.Start(context.Background())
	<-g.done
	return g
}

// Start begins loading in a background goroutine. Subsequent calls are no-ops.
func (g *Gate) Start(ctx context.Context) {
	g.once.Do(func() {
		close(g.started)
		go func() {
			defer close(g.done)
			start := time.Now()
			det, err := g.load(ctx)
			if err != nil {
				g.err = fmt.Errorf("loading face detector: %w", err)
				log.Printf("Face detector failed to load: %v", err)
				return
			}
			g.det = det
			log.Printf("Face detector ready in %s", time.Since(start).Round(time.Millisecond))
		}()
	})
}

// Wait blocks until loading finished or ctx is done. It returns the load error,
// if any.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return g.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsReady reports whether the detector loaded successfully.
func (g *Gate) IsReady() bool {
	select {
	case <-g.done:
		return g.err == nil
	default:
		return false
	}
}

// Status returns one of the Status* constants.
func (g *Gate) Status() string {
	select {
	case <-g.done:
		if g.err != nil {
			return StatusFailed
		}
		return StatusReady
	default:
	}
	select {
	case <-g.started:
		return StatusLoading
	default:
		return StatusIdle
	}
}

// Detect forwards to the loaded detector.
func (g *Gate) Detect(ctx context.Context, jpegData []byte) ([]Face, error) {
	if !g.IsReady() {
		return nil, ErrNotReady
	}
	return g.det.Detect(ctx, jpegData)
}

// Close releases the detector if it holds native resources.
func (g *Gate) Close() error {
	if !g.IsReady() {
		return nil
	}
	if c, ok := g.det.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
