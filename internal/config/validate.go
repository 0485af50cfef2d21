package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return fmt.Errorf("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		return fmt.Errorf("paths.cache_dir must be set")
	}
	if c.Pipeline.EnrichmentVersion < 1 {
		return fmt.Errorf("pipeline.enrichment_version must be >= 1")
	}
	if c.Pipeline.IngestWorkers < 1 || c.Pipeline.EnrichWorkers < 1 {
		return fmt.Errorf("pipeline worker counts must be >= 1")
	}
	if c.Pipeline.MaxDeliveries < 1 {
		return fmt.Errorf("pipeline.max_deliveries must be >= 1")
	}
	if c.Pipeline.RetryBaseSeconds < 0 || c.Pipeline.RetryMaxSeconds < c.Pipeline.RetryBaseSeconds {
		return fmt.Errorf("pipeline retry backoff window is inverted")
	}
	if c.Pipeline.LeaseSeconds < 1 {
		return fmt.Errorf("pipeline.lease_seconds must be >= 1")
	}
	if c.Ranking.TopN < 1 {
		return fmt.Errorf("ranking.top_n must be >= 1")
	}
	if c.Ranking.RecencyHalfLifeHours <= 0 {
		return fmt.Errorf("ranking.recency_half_life_hours must be positive")
	}
	if c.Ranking.EngagementWeight < 0 || c.Ranking.ReadabilityWeight < 0 || c.Ranking.RecencyWeight < 0 {
		return fmt.Errorf("ranking weights must be non-negative")
	}
	if c.Ranking.EngagementWeight+c.Ranking.ReadabilityWeight+c.Ranking.RecencyWeight == 0 {
		return fmt.Errorf("at least one ranking weight must be positive")
	}
	if spec := strings.TrimSpace(c.Scheduler.PollCron); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("scheduler.poll_cron: %w", err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
