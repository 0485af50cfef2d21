package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/rbarrimond/rss-analyzer-poster/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.CacheDir = filepath.Join(base, "cache")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.FeedsFile = filepath.Join(base, "feeds.yaml")
	cfg.AI.APIKey = "test"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithAIKey sets the enrichment API key on the test config.
func WithAIKey(key string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.AI.APIKey = key
	}
}

// WithMaxDeliveries overrides the queue retry budget on the test config.
func WithMaxDeliveries(limit int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.MaxDeliveries = limit
	}
}
