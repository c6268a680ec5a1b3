package cmd

import (
	"fmt"

	"github.com/kozaktomas/face-groups/internal/batch"
	"github.com/kozaktomas/face-groups/internal/config"
	"github.com/kozaktomas/face-groups/internal/detector"
	"github.com/kozaktomas/face-groups/internal/detector/dlib"
	"github.com/kozaktomas/face-groups/internal/facematch"
	"github.com/kozaktomas/face-groups/internal/fingerprint"
	"github.com/kozaktomas/face-groups/internal/grouping"
)

// newDetectorLoader returns the loader for the configured extractor backend.
func newDetectorLoader(cfg *config.Config) (detector.Loader, error) {
	switch cfg.Extractor.Backend {
	case detector.BackendDlib:
		return dlib.Loader(cfg.Extractor.ModelDir), nil
	case detector.BackendRemote:
		if cfg.Extractor.EmbeddingURL == "" {
			return nil, fmt.Errorf("EMBEDDING_URL is required for the %s backend", detector.BackendRemote)
		}
		client := fingerprint.NewEmbeddingClient(cfg.Extractor.EmbeddingURL, cfg.Extractor.EmbeddingTimeout)
		return detector.RemoteLoader(client), nil
	default:
		return nil, fmt.Errorf("unknown extractor backend %q", cfg.Extractor.Backend)
	}
}

// newProcessor wires the grouping engine and batch processor from cfg.
func newProcessor(cfg *config.Config, fetcher batch.Fetcher, det detector.Detector, onProgress func(done, total int)) (*batch.Processor, error) {
	distance, err := grouping.MetricByName(cfg.Grouping.Metric)
	if err != nil {
		return nil, err
	}
	engine, err := grouping.New(cfg.Grouping.Threshold, distance)
	if err != nil {
		return nil, err
	}
	policy, err := facematch.ParsePolicy(cfg.Grouping.FacePolicy)
	if err != nil {
		return nil, err
	}

	return batch.NewProcessor(fetcher, det, engine, batch.Options{
		Concurrency:  cfg.Batch.Concurrency,
		MaxImageSize: cfg.Batch.MaxImageSize,
		Policy:       policy,
		OnProgress:   onProgress,
	}), nil
}
