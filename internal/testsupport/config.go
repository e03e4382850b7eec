package testsupport

import (
	"path/filepath"
	"testing"

	"curator/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LibraryDir = filepath.Join(base, "library")
	cfg.Paths.CacheDir = filepath.Join(base, "cache")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Providers.TMDB.APIKey = "test"
	cfg.Providers.Fanart.APIKey = "test"
	cfg.Workflow.RetryBackoffBaseSeconds = 1
	cfg.Workflow.RetryBackoffCapSeconds = 8

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithWorkers overrides the worker count on the test config.
func WithWorkers(count int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.Workers = count
	}
}

// WithMaxRetries overrides the default retry budget on the test config.
func WithMaxRetries(count int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.MaxRetries = count
	}
}

// WithSimilarityThreshold overrides the selection similarity threshold.
func WithSimilarityThreshold(threshold float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Selection.SimilarityThreshold = threshold
	}
}
