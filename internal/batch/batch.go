// Package batch turns a list of image references into identity groups.
//
// Every reference is fetched, decoded and run through the face detector
// independently. Images that fail at any stage, or show no face, are reported
// as skipped instead of failing the batch. Grouping runs once, after every
// image has been handled.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-groups/internal/constants"
	"github.com/kozaktomas/face-groups/internal/detector"
	"github.com/kozaktomas/face-groups/internal/facematch"
	"github.com/kozaktomas/face-groups/internal/fingerprint"
	"github.com/kozaktomas/face-groups/internal/grouping"
)

// Stage names where processing of a single image stopped.
type Stage string

const (
	StageFetch  Stage = "fetch"
	StageDecode Stage = "decode"
	StageDetect Stage = "detect"
	StageNoFace Stage = "no_face"
)

// Reason returns the caller-facing description of a stage failure.
func (s Stage) Reason() string {
	switch s {
	case StageFetch:
		return "image could not be fetched"
	case StageDecode:
		return "image could not be decoded"
	case StageDetect:
		return "face detection failed"
	case StageNoFace:
		return "no face detected"
	default:
		return "image was skipped"
	}
}

// ErrPanic is returned when processing an image panicked.
var ErrPanic = errors.New("image processing panicked")

// Skip records an image that produced no recognized face.
type Skip struct {
	Ref    string `json:"url"`
	Stage  Stage  `json:"stage"`
	Reason string `json:"reason"`
}

// Stats summarizes one batch.
type Stats struct {
	Total      int `json:"total"`
	Recognized int `json:"recognized"`
	Skipped    int `json:"skipped"`
	Groups     int `json:"groups"`
	MultiFace  int `json:"multi_face"` // images where more than one face was detected
}

// Result is the outcome of one batch.
type Result struct {
	ID      string
	Groups  []grouping.Group
	Skipped []Skip
	Stats   Stats
}

// Options tune a Processor.
type Options struct {
	Concurrency  int              // parallel fetch+detect tasks
	MaxImageSize int              // longest side after decoding, 0 keeps the original size
	Policy       facematch.Policy // which face represents a multi-face image
	OnProgress   func(done, total int)
}

// Processor runs batches. It holds no per-batch state and is safe for
// concurrent use.
type Processor struct {
	fetcher  Fetcher
	detector detector.Detector
	engine   *grouping.Engine
	opts     Options
}

// NewProcessor creates a processor.
func NewProcessor(fetcher Fetcher, det detector.Detector, engine *grouping.Engine, opts Options) *Processor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = constants.DefaultConcurrency
	}
	if opts.Policy == "" {
		opts.Policy = facematch.PolicyFirst
	}
	return &Processor{
		fetcher:  fetcher,
		detector: det,
		engine:   engine,
		opts:     opts,
	}
}

// imageOutcome is the result of handling one reference.
type imageOutcome struct {
	face  *grouping.Face
	skip  *Skip
	multi bool
	err   error // batch-level failure
}

type readiness interface {
	IsReady() bool
}

// Process handles refs and groups the recognized faces.
//
// It returns an error only for failures of the whole batch: the detector is
// not ready, ctx ended before every image was handled, or an image panicked.
// Groups are never computed from a partial set of images.
func (p *Processor) Process(ctx context.Context, refs []string) (*Result, error) {
	id := uuid.New().String()

	if r, ok := p.detector.(readiness); ok && !r.IsReady() {
		return nil, detector.ErrNotReady
	}

	outcomes := make([]imageOutcome, len(refs))
	progress := p.progressFunc(len(refs))

	sem := make(chan struct{}, p.opts.Concurrency)
	var wg sync.WaitGroup

	for i, ref := range refs {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}

			outcomes[i] = p.processImage(ctx, id, ref)
			progress()
		}()
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		log.Printf("Batch %s: cancelled after fan-out: %v", id, err)
		return nil, fmt.Errorf("batch %s: %w", id, err)
	}

	result := &Result{
		ID:      id,
		Skipped: make([]Skip, 0),
	}
	faces := make([]grouping.Face, 0, len(refs))
	for _, o := range outcomes {
		if o.err != nil {
			return nil, fmt.Errorf("batch %s: %w", id, o.err)
		}
		if o.multi {
			result.Stats.MultiFace++
		}
		if o.skip != nil {
			result.Skipped = append(result.Skipped, *o.skip)
			continue
		}
		faces = append(faces, *o.face)
	}

	result.Groups = p.engine.Group(faces)
	result.Stats.Total = len(refs)
	result.Stats.Recognized = len(faces)
	result.Stats.Skipped = len(result.Skipped)
	result.Stats.Groups = len(result.Groups)

	log.Printf("Batch %s: %d images, %d recognized, %d skipped, %d groups",
		id, result.Stats.Total, result.Stats.Recognized, result.Stats.Skipped, result.Stats.Groups)
	return result, nil
}

// processImage fetches, decodes and detects a single image.
func (p *Processor) processImage(ctx context.Context, batchID, ref string) (out imageOutcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Batch %s: panic while processing %s: %v", batchID, sanitizeForLog(ref), r)
			out = imageOutcome{err: fmt.Errorf("%w: %v", ErrPanic, r)}
		}
	}()

	skip := func(stage Stage, err error) imageOutcome {
		if err != nil {
			log.Printf("Batch %s: skipping %s at %s stage: %v", batchID, sanitizeForLog(ref), stage, err)
		}
		return imageOutcome{skip: &Skip{Ref: ref, Stage: stage, Reason: stage.Reason()}}
	}

	data, err := p.fetcher.Fetch(ctx, ref)
	if err != nil {
		return skip(StageFetch, err)
	}

	jpegData, err := fingerprint.PrepareImage(data, p.opts.MaxImageSize)
	if err != nil {
		return skip(StageDecode, err)
	}

	faces, err := p.detector.Detect(ctx, jpegData)
	if err != nil {
		if errors.Is(err, detector.ErrNotReady) {
			return imageOutcome{err: err}
		}
		return skip(StageDetect, err)
	}

	selected, ok := p.opts.Policy.Select(faces)
	if !ok {
		return skip(StageNoFace, nil)
	}

	return imageOutcome{
		face:  &grouping.Face{Ref: ref, Descriptor: selected.Descriptor},
		multi: len(faces) > 1,
	}
}

// progressFunc returns a callback that reports completed images. Calls are
// serialized so the reported count never goes backwards.
func (p *Processor) progressFunc(total int) func() {
	if p.opts.OnProgress == nil {
		return func() {}
	}
	var mu sync.Mutex
	done := 0
	return func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		p.opts.OnProgress(done, total)
	}
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}
