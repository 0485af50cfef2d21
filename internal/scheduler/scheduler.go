package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rbarrimond/rss-analyzer-poster/internal/config"
	"github.com/rbarrimond/rss-analyzer-poster/internal/ingest"
	"github.com/rbarrimond/rss-analyzer-poster/internal/logging"
	"github.com/rbarrimond/rss-analyzer-poster/internal/services"
)

const pollTimeout = 5 * time.Minute

// Scheduler enqueues a poll for every subscribed feed on the configured
// cron schedule. The actual fetching happens in the ingest workers; the
// scheduler only publishes feed-changes messages.
type Scheduler struct {
	cron     *cron.Cron
	ingestor *ingest.Service
	logger   *slog.Logger
}

// New builds a scheduler from the configured cron expression.
func New(cfg *config.Config, ingestor *ingest.Service, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Scheduler{
		cron:     cron.New(),
		ingestor: ingestor,
		logger:   logging.NewComponentLogger(logger, "scheduler"),
	}
	if _, err := s.cron.AddFunc(cfg.Scheduler.PollCron, s.poll); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "scheduler", "parse cron", cfg.Scheduler.PollCron, err)
	}
	return s, nil
}

// Start begins cron dispatch in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts cron dispatch and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()
	if err := s.RunPoll(ctx); err != nil {
		s.logger.ErrorContext(ctx, "scheduled poll failed", logging.Error(err))
	}
}

// RunPoll syncs the subscription file into the store and enqueues one poll
// message per feed.
func (s *Scheduler) RunPoll(ctx context.Context) error {
	synced, err := s.ingestor.SyncSubscriptions(ctx)
	if err != nil {
		return err
	}
	enqueued, err := s.ingestor.EnqueueAll(ctx)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "feed polls enqueued",
		logging.Int("synced", synced),
		logging.Int("enqueued", enqueued))
	return nil
}
