package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	CacheDir  string `toml:"cache_dir"`
	LogDir    string `toml:"log_dir"`
	FeedsFile string `toml:"feeds_file"`
}

// HTTP contains settings for outbound feed and entry fetches.
type HTTP struct {
	UserAgent      string `toml:"user_agent"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// AI contains connection settings for the enrichment collaborator.
type AI struct {
	APIKey             string `toml:"api_key"`
	BaseURL            string `toml:"base_url"`
	Model              string `toml:"model"`
	EmbeddingFastModel string `toml:"embedding_fast_model"`
	EmbeddingDeepModel string `toml:"embedding_deep_model"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
}

// Pipeline contains worker-pool sizing, queue timing, and retry budgets.
type Pipeline struct {
	EnrichmentVersion  int `toml:"enrichment_version"`
	IngestWorkers      int `toml:"ingest_workers"`
	EnrichWorkers      int `toml:"enrich_workers"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	MaxDeliveries      int `toml:"max_deliveries"`
	RetryBaseSeconds   int `toml:"retry_base_seconds"`
	RetryMaxSeconds    int `toml:"retry_max_seconds"`
	LeaseSeconds       int `toml:"lease_seconds"`
}

// Ranking contains the scoring weights and posting cycle settings. Weights
// are configuration rather than constants so they can be tuned without a
// redeploy.
type Ranking struct {
	EngagementWeight     float64 `toml:"engagement_weight"`
	ReadabilityWeight    float64 `toml:"readability_weight"`
	RecencyWeight        float64 `toml:"recency_weight"`
	RecencyHalfLifeHours float64 `toml:"recency_half_life_hours"`
	TopN                 int     `toml:"top_n"`
	IntervalMinutes      int     `toml:"interval_minutes"`
}

// Scheduler contains the feed poll schedule.
type Scheduler struct {
	PollCron string `toml:"poll_cron"`
}

// Cache contains content-cache maintenance settings.
type Cache struct {
	SweepGraceHours int `toml:"sweep_grace_hours"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the pipeline.
//
// Sections by subsystem:
//   - Paths: data, cache, and log directories plus the feed subscription file
//   - HTTP: outbound fetch behavior
//   - AI: chat-completion and embedding endpoint settings
//   - Pipeline: worker counts, poll intervals, and retry budget
//   - Ranking: scoring weights and posting cycle
//   - Scheduler: cron expression driving feed polls
//   - Cache: content cache garbage collection
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	HTTP      HTTP      `toml:"http"`
	AI        AI        `toml:"ai"`
	Pipeline  Pipeline  `toml:"pipeline"`
	Ranking   Ranking   `toml:"ranking"`
	Scheduler Scheduler `toml:"scheduler"`
	Cache     Cache     `toml:"cache"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/rssap/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The returned bool
// reports whether a file existed at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("rssap.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.FeedsFile, err = expandPath(c.Paths.FeedsFile); err != nil {
		return err
	}
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.CacheDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "pipeline.db")
}

// LockPath returns the daemon lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "rssap.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
