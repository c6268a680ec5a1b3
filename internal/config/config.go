package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-groups/internal/constants"
	"github.com/kozaktomas/face-groups/internal/detector"
	"github.com/kozaktomas/face-groups/internal/facematch"
	"github.com/kozaktomas/face-groups/internal/grouping"
	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable pointing to an optional YAML config file.
const FileEnv = "FACEGROUPS_CONFIG"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Grouping  GroupingConfig  `yaml:"grouping"`
	Batch     BatchConfig     `yaml:"batch"`
	Extractor ExtractorConfig `yaml:"extractor"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	PortAttempts   int           `yaml:"port_attempts"` // consecutive ports tried when Port is busy
	Route          string        `yaml:"route"`         // path of the grouping endpoint
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"` // CORS whitelist, "*" allows all
}

type GroupingConfig struct {
	Threshold  float64 `yaml:"threshold"`   // maximum distance for two faces to match (inclusive)
	Metric     string  `yaml:"metric"`      // euclidean or cosine
	FacePolicy string  `yaml:"face_policy"` // first or largest
}

type BatchConfig struct {
	Concurrency      int           `yaml:"concurrency"`
	MaxImages        int           `yaml:"max_images"`
	MaxImageSize     int           `yaml:"max_image_size"` // longest side fed to the detector
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	MaxDownloadBytes int64         `yaml:"max_download_bytes"`
}

type ExtractorConfig struct {
	Backend          string        `yaml:"backend"`   // dlib or remote
	ModelDir         string        `yaml:"model_dir"` // dlib model files
	EmbeddingURL     string        `yaml:"embedding_url"`
	EmbeddingTimeout time.Duration `yaml:"embedding_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           constants.DefaultPort,
			PortAttempts:   constants.DefaultPortAttempts,
			Route:          constants.DefaultRoute,
			RequestTimeout: constants.DefaultRequestTimeout,
		},
		Grouping: GroupingConfig{
			Threshold:  constants.DefaultDistanceThreshold,
			Metric:     constants.DefaultDistanceMetric,
			FacePolicy: constants.DefaultFacePolicy,
		},
		Batch: BatchConfig{
			Concurrency:      constants.DefaultConcurrency,
			MaxImages:        constants.DefaultMaxImages,
			MaxImageSize:     constants.MaxImageSize,
			FetchTimeout:     constants.DefaultFetchTimeout,
			MaxDownloadBytes: constants.MaxDownloadBytes,
		},
		Extractor: ExtractorConfig{
			Backend:          constants.DefaultExtractorBackend,
			ModelDir:         constants.DefaultModelDir,
			EmbeddingTimeout: constants.DefaultEmbeddingTimeout,
		},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// FACEGROUPS_CONFIG (if set) and environment variables, in that order.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(FileEnv))
}

// LoadFile is Load with an explicit config file path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Host = envString("HOST", c.Server.Host)
	c.Server.Port = envInt("PORT", c.Server.Port)
	c.Server.PortAttempts = envInt("PORT_ATTEMPTS", c.Server.PortAttempts)
	c.Server.Route = envString("GROUP_ROUTE", c.Server.Route)
	c.Server.RequestTimeout = envDuration("REQUEST_TIMEOUT", c.Server.RequestTimeout)
	c.Server.AllowedOrigins = envList("ALLOWED_ORIGINS", c.Server.AllowedOrigins)

	c.Grouping.Threshold = envFloat("SIMILARITY_THRESHOLD", c.Grouping.Threshold)
	c.Grouping.Metric = envString("DISTANCE_METRIC", c.Grouping.Metric)
	c.Grouping.FacePolicy = envString("FACE_POLICY", c.Grouping.FacePolicy)

	c.Batch.Concurrency = envInt("CONCURRENCY", c.Batch.Concurrency)
	c.Batch.MaxImages = envInt("MAX_IMAGES", c.Batch.MaxImages)
	c.Batch.MaxImageSize = envInt("MAX_IMAGE_SIZE", c.Batch.MaxImageSize)
	c.Batch.FetchTimeout = envDuration("FETCH_TIMEOUT", c.Batch.FetchTimeout)
	c.Batch.MaxDownloadBytes = int64(envInt("MAX_DOWNLOAD_BYTES", int(c.Batch.MaxDownloadBytes)))

	c.Extractor.Backend = envString("EXTRACTOR_BACKEND", c.Extractor.Backend)
	c.Extractor.ModelDir = envString("MODEL_DIR", c.Extractor.ModelDir)
	c.Extractor.EmbeddingURL = envString("EMBEDDING_URL", c.Extractor.EmbeddingURL)
	c.Extractor.EmbeddingTimeout = envDuration("EMBEDDING_TIMEOUT", c.Extractor.EmbeddingTimeout)
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Server.Port))
	}
	if c.Server.PortAttempts < 1 {
		errs = append(errs, errors.New("port_attempts must be at least 1"))
	}
	if !strings.HasPrefix(c.Server.Route, "/") {
		errs = append(errs, fmt.Errorf("route %q must start with /", c.Server.Route))
	} else if c.Server.Route == "/health" {
		errs = append(errs, errors.New("route /health is reserved for the health check"))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}

	if math.IsNaN(c.Grouping.Threshold) || c.Grouping.Threshold < 0 {
		errs = append(errs, fmt.Errorf("threshold %v must be a non-negative number", c.Grouping.Threshold))
	}
	if _, err := grouping.MetricByName(c.Grouping.Metric); err != nil {
		errs = append(errs, err)
	}
	if _, err := facematch.ParsePolicy(c.Grouping.FacePolicy); err != nil {
		errs = append(errs, err)
	}

	if c.Batch.Concurrency < 1 {
		errs = append(errs, errors.New("concurrency must be at least 1"))
	}
	if c.Batch.MaxImages < 1 {
		errs = append(errs, errors.New("max_images must be at least 1"))
	}

	switch c.Extractor.Backend {
	case detector.BackendDlib:
		if c.Extractor.ModelDir == "" {
			errs = append(errs, errors.New("model_dir is required for the dlib backend"))
		}
	case detector.BackendRemote:
	default:
		errs = append(errs, fmt.Errorf("unknown extractor backend %q", c.Extractor.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated list.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var list []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a float. Unparsable values keep the default; range checks are
// left to Validate.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envDuration reads a Go duration string such as "30s". Invalid values keep the default.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}
