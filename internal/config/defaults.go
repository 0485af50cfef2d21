package config

const (
	defaultDataDir   = "~/.local/share/rssap"
	defaultCacheDir  = "~/.local/share/rssap/cache"
	defaultLogDir    = "~/.local/share/rssap/logs"
	defaultFeedsFile = "~/.config/rssap/feeds.yaml"

	defaultUserAgent          = "rss-analyzer-poster/1.0"
	defaultHTTPTimeoutSeconds = 30

	defaultAIBaseURL         = "https://api.openai.com/v1"
	defaultAIModel           = "gpt-4o-mini"
	defaultEmbedFastModel    = "text-embedding-3-small"
	defaultEmbedDeepModel    = "text-embedding-3-large"
	defaultAITimeoutSeconds  = 60
	defaultEnrichmentVersion = 1

	defaultIngestWorkers      = 2
	defaultEnrichWorkers      = 4
	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10
	defaultMaxDeliveries      = 3
	defaultRetryBaseSeconds   = 30
	defaultRetryMaxSeconds    = 900
	defaultLeaseSeconds       = 300

	defaultEngagementWeight     = 0.5
	defaultReadabilityWeight    = 0.2
	defaultRecencyWeight        = 0.3
	defaultRecencyHalfLifeHours = 36.0
	defaultRankTopN             = 3
	defaultRankIntervalMinutes  = 60

	defaultPollCron        = "0 6 * * *"
	defaultSweepGraceHours = 72

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			CacheDir:  defaultCacheDir,
			LogDir:    defaultLogDir,
			FeedsFile: defaultFeedsFile,
		},
		HTTP: HTTP{
			UserAgent:      defaultUserAgent,
			TimeoutSeconds: defaultHTTPTimeoutSeconds,
		},
		AI: AI{
			BaseURL:            defaultAIBaseURL,
			Model:              defaultAIModel,
			EmbeddingFastModel: defaultEmbedFastModel,
			EmbeddingDeepModel: defaultEmbedDeepModel,
			TimeoutSeconds:     defaultAITimeoutSeconds,
		},
		Pipeline: Pipeline{
			EnrichmentVersion:  defaultEnrichmentVersion,
			IngestWorkers:      defaultIngestWorkers,
			EnrichWorkers:      defaultEnrichWorkers,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			MaxDeliveries:      defaultMaxDeliveries,
			RetryBaseSeconds:   defaultRetryBaseSeconds,
			RetryMaxSeconds:    defaultRetryMaxSeconds,
			LeaseSeconds:       defaultLeaseSeconds,
		},
		Ranking: Ranking{
			EngagementWeight:     defaultEngagementWeight,
			ReadabilityWeight:    defaultReadabilityWeight,
			RecencyWeight:        defaultRecencyWeight,
			RecencyHalfLifeHours: defaultRecencyHalfLifeHours,
			TopN:                 defaultRankTopN,
			IntervalMinutes:      defaultRankIntervalMinutes,
		},
		Scheduler: Scheduler{
			PollCron: defaultPollCron,
		},
		Cache: Cache{
			SweepGraceHours: defaultSweepGraceHours,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
