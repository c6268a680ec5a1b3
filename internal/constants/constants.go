// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Server constants
const (
	// DefaultPort matches the port the service has always listened on
	DefaultPort = 3000

	// DefaultPortAttempts is how many consecutive ports are tried when the
	// configured one is already in use
	DefaultPortAttempts = 10

	// DefaultRoute is the path that accepts grouping requests
	DefaultRoute = "/"

	// DefaultRequestTimeout bounds a whole grouping request
	DefaultRequestTimeout = 5 * time.Minute

	// MaxRequestBodyBytes limits the JSON request body
	MaxRequestBodyBytes = 1 << 20
)

// Face grouping constants
const (
	// DefaultDistanceThreshold is the default maximum descriptor distance for
	// two faces to belong to the same person. Lower values = stricter matching
	DefaultDistanceThreshold = 0.6

	// DefaultDistanceMetric is used when none is configured
	DefaultDistanceMetric = "euclidean"

	// DefaultFacePolicy selects which face of a multi-face image is grouped
	DefaultFacePolicy = "first"
)

// Processing constants
const (
	// DefaultConcurrency is the default number of images fetched and detected in parallel
	DefaultConcurrency = 8

	// DefaultMaxImages caps the number of image references in one request
	DefaultMaxImages = 500

	// MaxImageSize is the maximum dimension (width or height) for image processing
	MaxImageSize = 1920

	// DefaultFetchTimeout bounds a single image download
	DefaultFetchTimeout = 30 * time.Second

	// MaxDownloadBytes limits the size of a single downloaded image
	MaxDownloadBytes = 32 << 20
)

// Extractor constants
const (
	// DefaultExtractorBackend is the detector used when none is configured
	DefaultExtractorBackend = "dlib"

	// DefaultModelDir is where the dlib model files are read from
	DefaultModelDir = "./models"

	// DefaultEmbeddingTimeout bounds a single request to the embedding server
	DefaultEmbeddingTimeout = 60 * time.Second
)
