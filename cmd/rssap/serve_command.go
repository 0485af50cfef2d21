package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/rbarrimond/rss-analyzer-poster/internal/config"
	"github.com/rbarrimond/rss-analyzer-poster/internal/enrich"
	"github.com/rbarrimond/rss-analyzer-poster/internal/ingest"
	"github.com/rbarrimond/rss-analyzer-poster/internal/logging"
	"github.com/rbarrimond/rss-analyzer-poster/internal/pipeline"
	"github.com/rbarrimond/rss-analyzer-poster/internal/queue"
	"github.com/rbarrimond/rss-analyzer-poster/internal/rank"
	"github.com/rbarrimond/rss-analyzer-poster/internal/scheduler"
	"github.com/rbarrimond/rss-analyzer-poster/internal/services/ai"
	"github.com/rbarrimond/rss-analyzer-poster/internal/store"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var pollNow bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the feed pipeline in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx, pollNow)
		},
	}

	cmd.Flags().BoolVar(&pollNow, "poll-now", false, "Poll all feeds immediately on startup instead of waiting for the schedule")
	return cmd
}

func runServe(cmdCtx context.Context, ctx *commandContext, pollNow bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another rssap instance is already running")
	}
	defer func() { _ = lock.Unlock() }()

	logPath := filepath.Join(cfg.Paths.LogDir, "rssap.log")
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}
	defer st.Close()

	q, err := queue.New(st.DB())
	if err != nil {
		logger.Error("open queue", logging.Error(err))
		return err
	}

	cache, err := ctx.openCache(cfg)
	if err != nil {
		logger.Error("open content cache", logging.Error(err))
		return err
	}

	client := ai.NewClient(ai.Config{
		APIKey:             cfg.AI.APIKey,
		BaseURL:            cfg.AI.BaseURL,
		Model:              cfg.AI.Model,
		EmbeddingFastModel: cfg.AI.EmbeddingFastModel,
		EmbeddingDeepModel: cfg.AI.EmbeddingDeepModel,
		TimeoutSeconds:     cfg.AI.TimeoutSeconds,
	})
	logStartupSnapshot(logger, cfg)
	checkModelEndpoint(signalCtx, logger, client)

	ingestor := ingest.NewService(cfg, st, q, cache, logger)
	enricher := enrich.NewService(cfg, st, cache, client, logger)
	ranker := rank.NewService(cfg, st, logger)

	sched, err := scheduler.New(cfg, ingestor, logger)
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if pollNow {
		if err := sched.RunPoll(signalCtx); err != nil {
			logger.Warn("startup poll", logging.Error(err))
		}
	}

	mgr := pipeline.NewManager(cfg, st, q, cache, ingestor, enricher, ranker, logger)
	err = mgr.Run(signalCtx)
	logger.Info("rssap shutting down")
	return err
}

func logStartupSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("startup snapshot",
		logging.Bool("ai_key_present", strings.TrimSpace(cfg.AI.APIKey) != ""),
		logging.String("model", cfg.AI.Model),
		logging.String("poll_cron", cfg.Scheduler.PollCron),
		logging.Int("ingest_workers", cfg.Pipeline.IngestWorkers),
		logging.Int("enrich_workers", cfg.Pipeline.EnrichWorkers),
		logging.String("database", cfg.DatabasePath()),
	)
}

func checkModelEndpoint(ctx context.Context, logger *slog.Logger, client *ai.Client) {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.HealthCheck(checkCtx); err != nil {
		logger.Warn("model endpoint unreachable; enrichment will retry per task", logging.Error(err))
	}
}
