package enrich

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rbarrimond/rss-analyzer-poster/internal/config"
	"github.com/rbarrimond/rss-analyzer-poster/internal/contentcache"
	"github.com/rbarrimond/rss-analyzer-poster/internal/logging"
	"github.com/rbarrimond/rss-analyzer-poster/internal/queue"
	"github.com/rbarrimond/rss-analyzer-poster/internal/services"
	"github.com/rbarrimond/rss-analyzer-poster/internal/services/ai"
	"github.com/rbarrimond/rss-analyzer-poster/internal/store"
)

// AnalysisClient is the slice of the AI client the enrichment stage needs.
type AnalysisClient interface {
	AnalyzeEntry(ctx context.Context, title, body string) (ai.EntryInsights, error)
	EmbedFast(ctx context.Context, text string) ([]float32, error)
	EmbedDeep(ctx context.Context, text string) ([]float32, error)
}

// Service consumes entry-enrichment work: it loads the cached content,
// asks the AI collaborator for insights and embeddings, and records the
// results. Processing is idempotent so at-least-once delivery is safe.
type Service struct {
	cfg    *config.Config
	store  *store.Store
	cache  *contentcache.Cache
	client AnalysisClient
	logger *slog.Logger
}

// NewService wires the enrichment service.
func NewService(cfg *config.Config, st *store.Store, cache *contentcache.Cache, client AnalysisClient, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		cfg:    cfg,
		store:  st,
		cache:  cache,
		client: client,
		logger: logging.NewComponentLogger(logger, "enrich"),
	}
}

// Process enriches the entry named by the task. A nil return means the
// message should be acked, including the no-op cases: entry gone, task
// superseded by a newer content revision, or results already recorded for
// this content at the current enrichment version.
func (s *Service) Process(ctx context.Context, task queue.EntryTask) error {
	ctx = services.WithFeedKey(ctx, task.FeedKey)
	ctx = services.WithEntryKey(ctx, task.EntryKey)
	log := logging.WithContext(ctx, s.logger)

	entry, err := s.store.GetEntry(ctx, task.FeedKey, task.EntryKey)
	if err != nil {
		if services.IsNotFound(err) {
			log.DebugContext(ctx, "entry gone, dropping task")
			return nil
		}
		return err
	}
	if task.ContentHash != "" && entry.ContentHash != task.ContentHash {
		log.DebugContext(ctx, "task superseded by newer content revision")
		return nil
	}
	if s.alreadyEnriched(ctx, entry) {
		log.DebugContext(ctx, "entry already enriched, dropping redelivery")
		return nil
	}

	if err := s.setState(ctx, entry, store.StateEnriching, false); err != nil {
		return err
	}

	body, err := s.cache.Get(entry.ContentHash)
	if err != nil {
		if services.IsNotFound(err) {
			return services.Wrap(services.ErrPermanent, "enrich", "load content", fmt.Sprintf("blob %s missing", entry.ContentHash), err)
		}
		return err
	}

	insights, err := s.client.AnalyzeEntry(ctx, entry.Title, string(body))
	if err != nil {
		return services.Classify(err)
	}

	enrichment := s.coerce(ctx, entry, insights)

	if err := s.storeEmbeddings(ctx, string(body), enrichment); err != nil {
		return err
	}
	if err := s.store.SaveEnrichment(ctx, enrichment); err != nil {
		return err
	}
	if err := s.setState(ctx, entry, store.StateEnriched, true); err != nil {
		return err
	}

	log.InfoContext(ctx, "entry enriched",
		logging.String(logging.FieldContentHash, entry.ContentHash),
		logging.String("sentiment", string(enrichment.Sentiment)),
		logging.Float64("readability", enrichment.ReadabilityScore),
		logging.Int("engagement", enrichment.EngagementScore))
	return nil
}

// MarkFailed records that the task exhausted its retry budget. The entry is
// parked in the failed state with the processed flag still clear, so a later
// content change or manual replay re-enters the pipeline cleanly.
func (s *Service) MarkFailed(ctx context.Context, task queue.EntryTask, cause error) {
	ctx = services.WithFeedKey(ctx, task.FeedKey)
	ctx = services.WithEntryKey(ctx, task.EntryKey)
	log := logging.WithContext(ctx, s.logger)

	err := store.RetryOnConflict(ctx, 3, func(ctx context.Context) error {
		entry, getErr := s.store.GetEntry(ctx, task.FeedKey, task.EntryKey)
		if getErr != nil {
			if services.IsNotFound(getErr) {
				return nil
			}
			return getErr
		}
		entry.State = store.StateFailed
		entry.Processed = false
		return s.store.UpdateEntry(ctx, entry)
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to mark entry failed", logging.Error(err))
		return
	}
	log.WarnContext(ctx, "entry enrichment dead lettered", logging.Error(cause))
}

// alreadyEnriched reports whether the current content revision was already
// processed at the configured enrichment version.
func (s *Service) alreadyEnriched(ctx context.Context, entry *store.Entry) bool {
	if !entry.Processed {
		return false
	}
	existing, err := s.store.GetEnrichment(ctx, entry.FeedKey, entry.Key)
	if err != nil {
		return false
	}
	return existing.EnrichmentVersion == s.cfg.Pipeline.EnrichmentVersion &&
		existing.ContentHash == entry.ContentHash
}

// coerce maps raw model output into the storage schema. Out-of-range scores
// clamp, unknown sentiments collapse to Neutral, and unknown engagement
// types drop. Model drift degrades results, never the pipeline.
func (s *Service) coerce(ctx context.Context, entry *store.Entry, insights ai.EntryInsights) *store.Enrichment {
	log := logging.WithContext(ctx, s.logger)

	sentiment := store.ParseSentiment(insights.Sentiment)
	if insights.Sentiment != "" && string(sentiment) != insights.Sentiment {
		log.WarnContext(ctx, "coerced sentiment", logging.String("raw", insights.Sentiment))
	}
	readability := store.ClampReadability(insights.Readability)
	if readability != insights.Readability {
		log.WarnContext(ctx, "clamped readability", logging.Float64("raw", insights.Readability))
	}
	engagement := store.ClampEngagement(insights.Engagement)
	if engagement != insights.Engagement {
		log.WarnContext(ctx, "clamped engagement", logging.Int("raw", insights.Engagement))
	}

	return &store.Enrichment{
		FeedKey:           entry.FeedKey,
		EntryKey:          entry.Key,
		Summary:           insights.Summary,
		Sentiment:         sentiment,
		ReadabilityScore:  readability,
		EngagementScore:   engagement,
		Keywords:          insights.Keywords,
		EngagementTypes:   store.ParseEngagementTypes(insights.EngagementTypes),
		ResponseReceived:  true,
		EnrichmentVersion: s.cfg.Pipeline.EnrichmentVersion,
		ContentHash:       entry.ContentHash,
	}
}

func (s *Service) storeEmbeddings(ctx context.Context, body string, enrichment *store.Enrichment) error {
	fast, err := s.client.EmbedFast(ctx, body)
	if err != nil {
		return services.Classify(err)
	}
	fastKey, err := s.cache.PutEmbedding(fast)
	if err != nil {
		return err
	}
	enrichment.EmbeddingFastKey = fastKey

	deep, err := s.client.EmbedDeep(ctx, body)
	if err != nil {
		return services.Classify(err)
	}
	deepKey, err := s.cache.PutEmbedding(deep)
	if err != nil {
		return err
	}
	enrichment.EmbeddingDeepKey = deepKey
	return nil
}

func (s *Service) setState(ctx context.Context, entry *store.Entry, state store.EnrichmentState, processed bool) error {
	return store.RetryOnConflict(ctx, 3, func(ctx context.Context) error {
		fresh, err := s.store.GetEntry(ctx, entry.FeedKey, entry.Key)
		if err != nil {
			return err
		}
		fresh.State = state
		fresh.Processed = processed
		if err := s.store.UpdateEntry(ctx, fresh); err != nil {
			return err
		}
		*entry = *fresh
		return nil
	})
}
