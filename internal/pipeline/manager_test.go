package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rbarrimond/rss-analyzer-poster/internal/config"
	"github.com/rbarrimond/rss-analyzer-poster/internal/contentcache"
	"github.com/rbarrimond/rss-analyzer-poster/internal/contenthash"
	"github.com/rbarrimond/rss-analyzer-poster/internal/enrich"
	"github.com/rbarrimond/rss-analyzer-poster/internal/ingest"
	"github.com/rbarrimond/rss-analyzer-poster/internal/logging"
	"github.com/rbarrimond/rss-analyzer-poster/internal/pipeline"
	"github.com/rbarrimond/rss-analyzer-poster/internal/queue"
	"github.com/rbarrimond/rss-analyzer-poster/internal/rank"
	"github.com/rbarrimond/rss-analyzer-poster/internal/services"
	"github.com/rbarrimond/rss-analyzer-poster/internal/services/ai"
	"github.com/rbarrimond/rss-analyzer-poster/internal/store"
	"github.com/rbarrimond/rss-analyzer-poster/internal/testsupport"
)

type stubClient struct {
	err error

	mu        sync.Mutex
	stage     string
	messageID string
}

func (s *stubClient) AnalyzeEntry(ctx context.Context, title, body string) (ai.EntryInsights, error) {
	s.mu.Lock()
	s.stage, _ = services.StageFromContext(ctx)
	s.messageID, _ = services.MessageIDFromContext(ctx)
	s.mu.Unlock()
	if s.err != nil {
		return ai.EntryInsights{}, s.err
	}
	return ai.EntryInsights{
		Summary:     "Stub summary.",
		Sentiment:   "Positive",
		Readability: 60,
		Engagement:  400,
	}, nil
}

func (s *stubClient) EmbedFast(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1}, nil
}

func (s *stubClient) EmbedDeep(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.2}, nil
}

func newManagerHarness(t *testing.T, client enrich.AnalysisClient, tune func(*config.Config)) (*pipeline.Manager, *store.Store, *queue.Queue, *contentcache.Cache) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.QueuePollInterval = 1
	cfg.Pipeline.ErrorRetryInterval = 1
	if tune != nil {
		tune(cfg)
	}
	st := testsupport.MustOpenStore(t, cfg)
	q, err := queue.New(st.DB())
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	cache, err := contentcache.New(cfg.Paths.CacheDir)
	if err != nil {
		t.Fatalf("contentcache.New: %v", err)
	}
	logger := logging.NewNop()
	ingestor := ingest.NewService(cfg, st, q, cache, logger)
	enricher := enrich.NewService(cfg, st, cache, client, logger)
	ranker := rank.NewService(cfg, st, logger)
	mgr := pipeline.NewManager(cfg, st, q, cache, ingestor, enricher, ranker, logger)
	return mgr, st, q, cache
}

func runManager(t *testing.T, mgr *pipeline.Manager) (context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Run(ctx) }()
	return cancel, done
}

func waitFor(t *testing.T, what string, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestManagerProcessesFeedEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>T</title>
<item><guid>p1</guid><title>Post</title><link>https://example.com/p1</link><description>Body text here.</description></item>
</channel></rss>`)
	}))
	defer server.Close()

	client := &stubClient{}
	mgr, st, q, _ := newManagerHarness(t, client, nil)
	ctx := context.Background()

	feedKey := contenthash.SumKey(server.URL)
	if err := st.UpsertFeed(ctx, &store.Feed{Key: feedKey, SiteURL: server.URL}); err != nil {
		t.Fatalf("UpsertFeed: %v", err)
	}
	if _, err := q.Enqueue(ctx, queue.FeedChanges, queue.FeedChange{FeedKey: feedKey}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	cancel, done := runManager(t, mgr)
	defer cancel()

	entryKey := contenthash.SumKey("p1")
	waitFor(t, "entry enriched", func() bool {
		entry, err := st.GetEntry(ctx, feedKey, entryKey)
		return err == nil && entry.Processed && entry.State == store.StateEnriched
	})

	enrichment, err := st.GetEnrichment(ctx, feedKey, entryKey)
	if err != nil {
		t.Fatalf("GetEnrichment: %v", err)
	}
	if enrichment.Summary != "Stub summary." {
		t.Fatalf("unexpected summary %q", enrichment.Summary)
	}

	// The worker tags handler context so downstream logs carry the stage
	// and the queue message id as a correlation id.
	client.mu.Lock()
	stage, messageID := client.stage, client.messageID
	client.mu.Unlock()
	if stage != "enrich" {
		t.Fatalf("handler context stage = %q, want %q", stage, "enrich")
	}
	if messageID == "" {
		t.Fatal("handler context missing message correlation id")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Both queues drained.
	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	for _, s := range stats {
		if s.Pending != 0 || s.Dead != 0 {
			t.Fatalf("expected drained queues, got %+v", s)
		}
	}
}

func TestManagerDeadLettersAfterBudget(t *testing.T) {
	failing := &stubClient{err: errors.New("analyze entry: http 500: model overloaded")}
	mgr, st, q, cache := newManagerHarness(t, failing, func(cfg *config.Config) {
		cfg.Pipeline.MaxDeliveries = 1
	})
	ctx := context.Background()

	cfgFeed := &store.Feed{Key: "feedpipe00000001", SiteURL: "https://example.com/feed.xml"}
	if err := st.UpsertFeed(ctx, cfgFeed); err != nil {
		t.Fatalf("UpsertFeed: %v", err)
	}

	hash := contenthash.SumBody("entry body")
	if err := cache.Put(hash, []byte("entry body")); err != nil {
		t.Fatalf("cache.Put: %v", err)
	}
	entry := testsupport.NewEntry(t, st, cfgFeed.Key, "entrypipe0000001", hash)
	if _, err := q.Enqueue(ctx, queue.EntryEnrichment, queue.EntryTask{
		FeedKey:     cfgFeed.Key,
		EntryKey:    entry.Key,
		ContentHash: hash,
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	cancel, done := runManager(t, mgr)
	defer cancel()

	waitFor(t, "dead letter", func() bool {
		dead, deadErr := q.Dead(ctx, queue.EntryEnrichment)
		return deadErr == nil && len(dead) == 1
	})
	waitFor(t, "entry failed", func() bool {
		refreshed, getErr := st.GetEntry(ctx, cfgFeed.Key, entry.Key)
		return getErr == nil && refreshed.State == store.StateFailed && !refreshed.Processed
	})

	// The dead message must keep the failure cause for operators replaying it.
	dead, err := q.Dead(ctx, queue.EntryEnrichment)
	if err != nil {
		t.Fatalf("Dead: %v", err)
	}
	if !strings.Contains(dead[0].LastError, "model overloaded") {
		t.Fatalf("dead message lost its cause: %q", dead[0].LastError)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
