package scheduler_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rbarrimond/rss-analyzer-poster/internal/contentcache"
	"github.com/rbarrimond/rss-analyzer-poster/internal/ingest"
	"github.com/rbarrimond/rss-analyzer-poster/internal/logging"
	"github.com/rbarrimond/rss-analyzer-poster/internal/queue"
	"github.com/rbarrimond/rss-analyzer-poster/internal/scheduler"
	"github.com/rbarrimond/rss-analyzer-poster/internal/testsupport"
)

func TestNewRejectsBadCronSpec(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Scheduler.PollCron = "not a cron spec"
	st := testsupport.MustOpenStore(t, cfg)
	q, err := queue.New(st.DB())
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	cache, err := contentcache.New(cfg.Paths.CacheDir)
	if err != nil {
		t.Fatalf("contentcache.New: %v", err)
	}
	ingestor := ingest.NewService(cfg, st, q, cache, logging.NewNop())

	if _, err := scheduler.New(cfg, ingestor, logging.NewNop()); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestRunPollSyncsAndEnqueues(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	q, err := queue.New(st.DB())
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	cache, err := contentcache.New(cfg.Paths.CacheDir)
	if err != nil {
		t.Fatalf("contentcache.New: %v", err)
	}
	ingestor := ingest.NewService(cfg, st, q, cache, logging.NewNop())

	yamlBody := `feeds:
  - url: https://a.example.com/rss.xml
  - url: https://b.example.com/rss.xml
`
	if err := os.WriteFile(cfg.Paths.FeedsFile, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write feeds file: %v", err)
	}

	sched, err := scheduler.New(cfg, ingestor, logging.NewNop())
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	if err := sched.RunPoll(context.Background()); err != nil {
		t.Fatalf("RunPoll: %v", err)
	}

	count := 0
	for {
		msg, deqErr := q.Dequeue(context.Background(), queue.FeedChanges, time.Minute)
		if deqErr != nil {
			t.Fatalf("Dequeue: %v", deqErr)
		}
		if msg == nil {
			break
		}
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 poll messages, got %d", count)
	}
}
