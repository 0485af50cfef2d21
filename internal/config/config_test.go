package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("expected missing config file")
	}
	if cfg.Pipeline.EnrichmentVersion != defaultEnrichmentVersion {
		t.Fatalf("unexpected enrichment version %d", cfg.Pipeline.EnrichmentVersion)
	}
	if cfg.Ranking.TopN != defaultRankTopN {
		t.Fatalf("unexpected top_n %d", cfg.Ranking.TopN)
	}
}

func TestLoadOverridesAndExpandsPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
cache_dir = "` + filepath.Join(dir, "cache") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[pipeline]
enrichment_version = 7
enrich_workers = 8
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved=%q exists=%v", resolved, exists)
	}
	if cfg.Pipeline.EnrichmentVersion != 7 || cfg.Pipeline.EnrichWorkers != 8 {
		t.Fatalf("overrides not applied: %+v", cfg.Pipeline)
	}
	if !filepath.IsAbs(cfg.Paths.DataDir) {
		t.Fatalf("data dir not absolute: %q", cfg.Paths.DataDir)
	}
	if cfg.HTTP.UserAgent != defaultUserAgent {
		t.Fatalf("defaults lost on partial override: %q", cfg.HTTP.UserAgent)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero workers", func(c *Config) { c.Pipeline.EnrichWorkers = 0 }, "worker counts"},
		{"zero deliveries", func(c *Config) { c.Pipeline.MaxDeliveries = 0 }, "max_deliveries"},
		{"bad cron", func(c *Config) { c.Scheduler.PollCron = "not a cron" }, "poll_cron"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"negative weight", func(c *Config) { c.Ranking.EngagementWeight = -1 }, "non-negative"},
		{"inverted backoff", func(c *Config) { c.Pipeline.RetryMaxSeconds = 1; c.Pipeline.RetryBaseSeconds = 10 }, "inverted"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("sample file should exist")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config invalid: %v", err)
	}
}
