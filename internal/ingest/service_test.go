package ingest_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rbarrimond/rss-analyzer-poster/internal/contentcache"
	"github.com/rbarrimond/rss-analyzer-poster/internal/contenthash"
	"github.com/rbarrimond/rss-analyzer-poster/internal/ingest"
	"github.com/rbarrimond/rss-analyzer-poster/internal/logging"
	"github.com/rbarrimond/rss-analyzer-poster/internal/queue"
	"github.com/rbarrimond/rss-analyzer-poster/internal/services"
	"github.com/rbarrimond/rss-analyzer-poster/internal/store"
	"github.com/rbarrimond/rss-analyzer-poster/internal/testsupport"
)

func newHarness(t *testing.T) (*ingest.Service, *store.Store, *queue.Queue, *contentcache.Cache, string) {
	t.Helper()
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
	svc := ingest.NewService(cfg, st, q, cache, logging.NewNop())
	return svc, st, q, cache, cfg.Paths.FeedsFile
}

func rssDocument(items string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Example Feed</title>
<link>https://example.com</link>
<language>EN-us</language>
%s
</channel>
</rss>`, items)
}

const itemOne = `<item>
<guid>post-1</guid>
<title>First Post</title>
<link>https://example.com/1</link>
<description>&lt;p&gt;Hello &lt;b&gt;world&lt;/b&gt; from the first post.&lt;/p&gt;</description>
<pubDate>Mon, 02 Mar 2026 10:00:00 GMT</pubDate>
</item>`

const itemTwo = `<item>
<guid>post-2</guid>
<title>Second Post</title>
<link>https://example.com/2</link>
<description>Another article body entirely.</description>
<pubDate>Tue, 03 Mar 2026 10:00:00 GMT</pubDate>
</item>`

func addFeed(t *testing.T, st *store.Store, url string) *store.Feed {
	t.Helper()
	key := contenthash.SumKey(url)
	feed := &store.Feed{Key: key, Title: "Seed", SiteURL: url}
	if err := st.UpsertFeed(context.Background(), feed); err != nil {
		t.Fatalf("UpsertFeed: %v", err)
	}
	stored, err := st.GetFeed(context.Background(), key)
	if err != nil {
		t.Fatalf("GetFeed: %v", err)
	}
	return stored
}

func TestIngestFeedInsertsEntriesAndEnqueuesWork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", "Mon, 02 Mar 2026 10:00:00 GMT")
		_, _ = w.Write([]byte(rssDocument(itemOne + itemTwo)))
	}))
	defer server.Close()

	svc, st, q, cache, _ := newHarness(t)
	ctx := context.Background()
	feed := addFeed(t, st, server.URL)

	if err := svc.IngestFeed(ctx, feed.Key); err != nil {
		t.Fatalf("IngestFeed: %v", err)
	}

	entries, err := st.ListEntries(ctx, store.EntryFilter{FeedKey: feed.Key})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.Processed {
			t.Fatalf("entry %s should start unprocessed", entry.Key)
		}
		has, hasErr := cache.Has(entry.ContentHash)
		if hasErr != nil || !has {
			t.Fatalf("expected cached content for %s (has=%v err=%v)", entry.Key, has, hasErr)
		}
	}

	// Feed title and language picked up from the payload.
	stored, err := st.GetFeed(ctx, feed.Key)
	if err != nil {
		t.Fatalf("GetFeed: %v", err)
	}
	if stored.Title != "Example Feed" {
		t.Fatalf("expected refreshed title, got %q", stored.Title)
	}
	if stored.Language != "en-US" {
		t.Fatalf("expected normalized language, got %q", stored.Language)
	}
	if stored.ETag != `"v1"` {
		t.Fatalf("expected stored etag, got %q", stored.ETag)
	}
	if stored.LastChecked.IsZero() {
		t.Fatal("expected advanced checkpoint")
	}

	// One enrichment message per entry.
	seen := 0
	for {
		msg, deqErr := q.Dequeue(ctx, queue.EntryEnrichment, time.Minute)
		if deqErr != nil {
			t.Fatalf("Dequeue: %v", deqErr)
		}
		if msg == nil {
			break
		}
		seen++
	}
	if seen != 2 {
		t.Fatalf("expected 2 enrichment messages, got %d", seen)
	}
}

func TestIngestFeedNotModifiedAdvancesCheckpointOnly(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(rssDocument(itemOne)))
	}))
	defer server.Close()

	svc, st, q, _, _ := newHarness(t)
	ctx := context.Background()
	feed := addFeed(t, st, server.URL)

	if err := svc.IngestFeed(ctx, feed.Key); err != nil {
		t.Fatalf("IngestFeed first: %v", err)
	}
	drainQueue(t, q, queue.EntryEnrichment)

	before, _ := st.GetFeed(ctx, feed.Key)
	if err := svc.IngestFeed(ctx, feed.Key); err != nil {
		t.Fatalf("IngestFeed second: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 fetches, got %d", calls)
	}

	after, _ := st.GetFeed(ctx, feed.Key)
	if !after.LastChecked.After(before.LastChecked) && !after.LastChecked.Equal(before.LastChecked) {
		t.Fatal("expected checkpoint to advance on 304")
	}
	if msg, _ := q.Dequeue(ctx, queue.EntryEnrichment, time.Minute); msg != nil {
		t.Fatalf("expected no new work on 304, got message %d", msg.ID)
	}
}

func TestIngestFeedReactivatesChangedEntry(t *testing.T) {
	body := "Original body."
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		item := fmt.Sprintf(`<item><guid>post-1</guid><title>Post</title><link>https://example.com/1</link><description>%s</description></item>`, body)
		_, _ = w.Write([]byte(rssDocument(item)))
	}))
	defer server.Close()

	svc, st, q, _, _ := newHarness(t)
	ctx := context.Background()
	feed := addFeed(t, st, server.URL)

	if err := svc.IngestFeed(ctx, feed.Key); err != nil {
		t.Fatalf("IngestFeed first: %v", err)
	}
	drainQueue(t, q, queue.EntryEnrichment)

	entryKey := contenthash.SumKey("post-1")
	entry, err := st.GetEntry(ctx, feed.Key, entryKey)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	entry.Processed = true
	entry.State = store.StateEnriched
	if err := st.UpdateEntry(ctx, entry); err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	firstHash := entry.ContentHash

	body = "Substantially revised body."
	if err := svc.IngestFeed(ctx, feed.Key); err != nil {
		t.Fatalf("IngestFeed second: %v", err)
	}

	refreshed, err := st.GetEntry(ctx, feed.Key, entryKey)
	if err != nil {
		t.Fatalf("GetEntry refreshed: %v", err)
	}
	if refreshed.ContentHash == firstHash {
		t.Fatal("expected content hash to change")
	}
	if refreshed.Processed {
		t.Fatal("changed content must reset the processed flag")
	}
	if refreshed.State != store.StatePending {
		t.Fatalf("expected pending state, got %q", refreshed.State)
	}

	msg, err := q.Dequeue(ctx, queue.EntryEnrichment, time.Minute)
	if err != nil || msg == nil {
		t.Fatalf("expected re-enrichment message, msg=%v err=%v", msg, err)
	}
	var task queue.EntryTask
	if err := msg.Decode(&task); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if task.ContentHash != refreshed.ContentHash {
		t.Fatalf("message pinned to %q, entry has %q", task.ContentHash, refreshed.ContentHash)
	}
}

func TestIngestFeedFetchErrorLeavesCheckpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	svc, st, _, _, _ := newHarness(t)
	ctx := context.Background()
	feed := addFeed(t, st, server.URL)

	err := svc.IngestFeed(ctx, feed.Key)
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if !services.Retryable(err) {
		t.Fatalf("expected transient classification, got %v", err)
	}

	stored, _ := st.GetFeed(ctx, feed.Key)
	if !stored.LastChecked.IsZero() {
		t.Fatal("checkpoint must not advance on fetch failure")
	}
}

func TestIngestFeedSkipsMalformedItem(t *testing.T) {
	malformed := `<item><title>No guid no link no body</title></item>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rssDocument(malformed + itemTwo)))
	}))
	defer server.Close()

	svc, st, _, _, _ := newHarness(t)
	ctx := context.Background()
	feed := addFeed(t, st, server.URL)

	if err := svc.IngestFeed(ctx, feed.Key); err != nil {
		t.Fatalf("IngestFeed: %v", err)
	}

	entries, err := st.ListEntries(ctx, store.EntryFilter{FeedKey: feed.Key})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the well-formed sibling to land, got %d entries", len(entries))
	}
	stored, _ := st.GetFeed(ctx, feed.Key)
	if stored.LastChecked.IsZero() {
		t.Fatal("skipping a malformed item must not block the checkpoint")
	}
}

func TestIngestFeedFallsBackToLinkFetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>Fetched article body.</p></body></html>"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		item := fmt.Sprintf(`<item><guid>post-x</guid><title>Bodyless</title><link>%s/article</link></item>`, server.URL)
		_, _ = w.Write([]byte(rssDocument(item)))
	})

	svc, st, _, cache, _ := newHarness(t)
	ctx := context.Background()
	feed := addFeed(t, st, server.URL+"/feed")

	if err := svc.IngestFeed(ctx, feed.Key); err != nil {
		t.Fatalf("IngestFeed: %v", err)
	}

	entry, err := st.GetEntry(ctx, feed.Key, contenthash.SumKey("post-x"))
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	blob, err := cache.Get(entry.ContentHash)
	if err != nil {
		t.Fatalf("cache.Get: %v", err)
	}
	if string(blob) != "Fetched article body." {
		t.Fatalf("unexpected cached body %q", blob)
	}
}

func TestSyncSubscriptions(t *testing.T) {
	svc, st, _, _, feedsFile := newHarness(t)
	ctx := context.Background()

	yamlBody := `feeds:
  - url: https://a.example.com/rss.xml
    title: Feed A
    publisher: Example Press
    language: en
  - url: https://b.example.com/rss.xml
`
	if err := os.WriteFile(feedsFile, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write feeds file: %v", err)
	}

	count, err := svc.SyncSubscriptions(ctx)
	if err != nil {
		t.Fatalf("SyncSubscriptions: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", count)
	}

	feeds, err := st.ListFeeds(ctx)
	if err != nil {
		t.Fatalf("ListFeeds: %v", err)
	}
	if len(feeds) != 2 {
		t.Fatalf("expected 2 feeds stored, got %d", len(feeds))
	}
	stored, err := st.GetFeed(ctx, contenthash.SumKey("https://a.example.com/rss.xml"))
	if err != nil {
		t.Fatalf("GetFeed: %v", err)
	}
	if stored.Title != "Feed A" || stored.Publisher != "Example Press" || stored.Language != "en" {
		t.Fatalf("unexpected feed: %+v", stored)
	}
}

func TestSyncSubscriptionsMissingFileIsEmpty(t *testing.T) {
	svc, _, _, _, _ := newHarness(t)
	count, err := svc.SyncSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("SyncSubscriptions: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 subscriptions, got %d", count)
	}
}

func drainQueue(t *testing.T, q *queue.Queue, name string) {
	t.Helper()
	ctx := context.Background()
	for {
		msg, err := q.Dequeue(ctx, name, time.Minute)
		if err != nil {
			t.Fatalf("drain dequeue: %v", err)
		}
		if msg == nil {
			return
		}
		if err := q.Ack(ctx, msg.ID); err != nil {
			t.Fatalf("drain ack: %v", err)
		}
	}
}
