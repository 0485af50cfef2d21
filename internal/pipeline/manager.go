package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rbarrimond/rss-analyzer-poster/internal/config"
	"github.com/rbarrimond/rss-analyzer-poster/internal/contentcache"
	"github.com/rbarrimond/rss-analyzer-poster/internal/enrich"
	"github.com/rbarrimond/rss-analyzer-poster/internal/ingest"
	"github.com/rbarrimond/rss-analyzer-poster/internal/logging"
	"github.com/rbarrimond/rss-analyzer-poster/internal/queue"
	"github.com/rbarrimond/rss-analyzer-poster/internal/rank"
	"github.com/rbarrimond/rss-analyzer-poster/internal/services"
	"github.com/rbarrimond/rss-analyzer-poster/internal/store"
)

const cacheSweepInterval = 24 * time.Hour

// Manager runs the pipeline's worker pools: ingest workers on the
// feed-changes queue, enrich workers on the entry-enrichment queue, a
// ranking ticker, and a daily cache sweep. All cross-stage flow goes
// through the store and queues; workers share no mutable state.
type Manager struct {
	cfg      *config.Config
	store    *store.Store
	queue    *queue.Queue
	cache    *contentcache.Cache
	ingestor *ingest.Service
	enricher *enrich.Service
	ranker   *rank.Service
	logger   *slog.Logger
}

// NewManager wires the pipeline manager.
func NewManager(
	cfg *config.Config,
	st *store.Store,
	q *queue.Queue,
	cache *contentcache.Cache,
	ingestor *ingest.Service,
	enricher *enrich.Service,
	ranker *rank.Service,
	logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		store:    st,
		queue:    q,
		cache:    cache,
		ingestor: ingestor,
		enricher: enricher,
		ranker:   ranker,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Run starts the worker pools and blocks until the context is canceled.
// Cancellation drains cleanly: in-flight work finishes or is released back
// to its queue by lease expiry.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < m.workerCount(m.cfg.Pipeline.IngestWorkers); i++ {
		g.Go(func() error {
			return m.consume(ctx, queue.FeedChanges, "ingest", m.handleFeedChange, nil)
		})
	}
	for i := 0; i < m.workerCount(m.cfg.Pipeline.EnrichWorkers); i++ {
		g.Go(func() error {
			return m.consume(ctx, queue.EntryEnrichment, "enrich", m.handleEntryTask, m.entryTaskDead)
		})
	}
	g.Go(func() error { return m.runRankTicker(ctx) })
	g.Go(func() error { return m.runCacheSweep(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (m *Manager) workerCount(configured int) int {
	if configured < 1 {
		return 1
	}
	return configured
}

// consume is the shared worker loop: dequeue, handle, settle. A nil handler
// error acks the message; retryable errors release it with backoff until
// the delivery budget runs out, then it is dead lettered and onDead fires.
func (m *Manager) consume(
	ctx context.Context,
	queueName string,
	stage string,
	handle func(context.Context, *queue.Message) error,
	onDead func(context.Context, *queue.Message, error),
) error {
	log := m.logger.With(logging.String(logging.FieldQueue, queueName))
	lease := m.leaseDuration()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := m.queue.Dequeue(ctx, queueName, lease)
		if err != nil {
			log.ErrorContext(ctx, "dequeue failed", logging.Error(err))
			if waitErr := m.wait(ctx, m.errorRetryInterval()); waitErr != nil {
				return waitErr
			}
			continue
		}
		if msg == nil {
			if waitErr := m.wait(ctx, m.pollInterval()); waitErr != nil {
				return waitErr
			}
			continue
		}

		msgCtx := services.WithStage(ctx, stage)
		msgCtx = services.WithMessageID(msgCtx, strconv.FormatInt(msg.ID, 10))
		m.settle(msgCtx, logging.WithContext(msgCtx, log), msg, handle(msgCtx, msg), onDead)
	}
}

func (m *Manager) settle(
	ctx context.Context,
	log *slog.Logger,
	msg *queue.Message,
	err error,
	onDead func(context.Context, *queue.Message, error),
) {
	switch {
	case err == nil:
		if ackErr := m.queue.Ack(ctx, msg.ID); ackErr != nil {
			log.ErrorContext(ctx, "ack failed", logging.Error(ackErr))
		}
	case errors.Is(err, context.Canceled):
		// Leave the lease to expire; the message redelivers after restart.
	case services.Retryable(err) && msg.DeliveryCount < m.maxDeliveries():
		backoff := queue.Backoff(msg.DeliveryCount, m.retryBase(), m.retryMax())
		log.WarnContext(ctx, "message released for retry",
			logging.Int("delivery_count", msg.DeliveryCount),
			logging.Duration("backoff", backoff),
			logging.Error(err))
		if relErr := m.queue.Release(ctx, msg.ID, err, backoff); relErr != nil {
			log.ErrorContext(ctx, "release failed", logging.Error(relErr))
		}
	default:
		log.ErrorContext(ctx, "message dead lettered",
			logging.String(logging.FieldEventType, "message_dead_lettered"),
			logging.Int("delivery_count", msg.DeliveryCount),
			logging.Error(err))
		if dlErr := m.queue.DeadLetter(ctx, msg.ID, err); dlErr != nil {
			log.ErrorContext(ctx, "dead letter failed", logging.Error(dlErr))
			return
		}
		if onDead != nil {
			onDead(ctx, msg, err)
		}
	}
}

func (m *Manager) handleFeedChange(ctx context.Context, msg *queue.Message) error {
	var change queue.FeedChange
	if err := msg.Decode(&change); err != nil {
		return services.Wrap(services.ErrPermanent, "pipeline", "decode feed change", fmt.Sprintf("message %d", msg.ID), err)
	}
	return m.ingestor.IngestFeed(ctx, change.FeedKey)
}

func (m *Manager) handleEntryTask(ctx context.Context, msg *queue.Message) error {
	var task queue.EntryTask
	if err := msg.Decode(&task); err != nil {
		return services.Wrap(services.ErrPermanent, "pipeline", "decode entry task", fmt.Sprintf("message %d", msg.ID), err)
	}
	return m.enricher.Process(ctx, task)
}

func (m *Manager) entryTaskDead(ctx context.Context, msg *queue.Message, cause error) {
	var task queue.EntryTask
	if err := msg.Decode(&task); err != nil {
		return
	}
	m.enricher.MarkFailed(ctx, task, cause)
}

func (m *Manager) runRankTicker(ctx context.Context) error {
	interval := time.Duration(m.cfg.Ranking.IntervalMinutes) * time.Minute
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			drafted, err := m.ranker.RunCycle(ctx)
			if err != nil {
				m.logger.ErrorContext(ctx, "rank cycle failed", logging.Error(err))
				continue
			}
			if drafted > 0 {
				m.logger.InfoContext(ctx, "rank cycle complete", logging.Int("drafted", drafted))
			}
		}
	}
}

// runCacheSweep removes cache blobs no entry or enrichment references
// anymore, keeping anything younger than the configured grace window.
func (m *Manager) runCacheSweep(ctx context.Context) error {
	ticker := time.NewTicker(cacheSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			live, err := m.store.ReferencedContentHashes(ctx)
			if err != nil {
				m.logger.ErrorContext(ctx, "cache sweep skipped", logging.Error(err))
				continue
			}
			grace := time.Duration(m.cfg.Cache.SweepGraceHours) * time.Hour
			result, err := m.cache.Sweep(live, grace)
			if err != nil {
				m.logger.ErrorContext(ctx, "cache sweep failed", logging.Error(err))
				continue
			}
			if result.Removed > 0 {
				m.logger.InfoContext(ctx, "cache sweep complete",
					logging.Int("scanned", result.Scanned),
					logging.Int("removed", result.Removed))
			}
		}
	}
}

func (m *Manager) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (m *Manager) pollInterval() time.Duration {
	if m.cfg.Pipeline.QueuePollInterval > 0 {
		return time.Duration(m.cfg.Pipeline.QueuePollInterval) * time.Second
	}
	return 5 * time.Second
}

func (m *Manager) errorRetryInterval() time.Duration {
	if m.cfg.Pipeline.ErrorRetryInterval > 0 {
		return time.Duration(m.cfg.Pipeline.ErrorRetryInterval) * time.Second
	}
	return 10 * time.Second
}

func (m *Manager) leaseDuration() time.Duration {
	if m.cfg.Pipeline.LeaseSeconds > 0 {
		return time.Duration(m.cfg.Pipeline.LeaseSeconds) * time.Second
	}
	return 5 * time.Minute
}

func (m *Manager) maxDeliveries() int {
	if m.cfg.Pipeline.MaxDeliveries > 0 {
		return m.cfg.Pipeline.MaxDeliveries
	}
	return 3
}

func (m *Manager) retryBase() time.Duration {
	if m.cfg.Pipeline.RetryBaseSeconds > 0 {
		return time.Duration(m.cfg.Pipeline.RetryBaseSeconds) * time.Second
	}
	return 30 * time.Second
}

func (m *Manager) retryMax() time.Duration {
	if m.cfg.Pipeline.RetryMaxSeconds > 0 {
		return time.Duration(m.cfg.Pipeline.RetryMaxSeconds) * time.Second
	}
	return 10 * time.Minute
}
