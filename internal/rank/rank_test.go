package rank_test

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rbarrimond/rss-analyzer-poster/internal/logging"
	"github.com/rbarrimond/rss-analyzer-poster/internal/rank"
	"github.com/rbarrimond/rss-analyzer-poster/internal/store"
	"github.com/rbarrimond/rss-analyzer-poster/internal/testsupport"
)

var testWeights = rank.Weights{
	Engagement:      0.5,
	Readability:     0.2,
	Recency:         0.3,
	RecencyHalfLife: 36 * time.Hour,
}

func TestScoreIsPureAndBounded(t *testing.T) {
	now := time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)
	enrichment := &store.Enrichment{EngagementScore: 500, ReadabilityScore: 50}
	published := now.Add(-36 * time.Hour)

	first := rank.Score(enrichment, published, now, testWeights)
	second := rank.Score(enrichment, published, now, testWeights)
	if first != second {
		t.Fatalf("score must be deterministic: %v vs %v", first, second)
	}
	if first < 0 || first > 1 {
		t.Fatalf("score out of range: %v", first)
	}

	// 0.5*0.5 + 0.2*0.5 + 0.3*0.5 over a weight total of 1.0.
	want := 0.5*0.5 + 0.2*0.5 + 0.3*0.5
	if math.Abs(first-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", first, want)
	}
}

func TestScoreRecencyDecay(t *testing.T) {
	now := time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)
	enrichment := &store.Enrichment{}

	fresh := rank.Score(enrichment, now, now, testWeights)
	aged := rank.Score(enrichment, now.Add(-36*time.Hour), now, testWeights)
	stale := rank.Score(enrichment, now.Add(-72*time.Hour), now, testWeights)

	if !(fresh > aged && aged > stale) {
		t.Fatalf("expected monotonic decay: %v > %v > %v", fresh, aged, stale)
	}
	// One half-life halves the recency contribution.
	if math.Abs(aged-fresh/2) > 1e-9 {
		t.Fatalf("expected half decay at half-life: fresh=%v aged=%v", fresh, aged)
	}

	zero := rank.Score(enrichment, time.Time{}, now, testWeights)
	if zero != 0 {
		t.Fatalf("missing publication time must score zero recency, got %v", zero)
	}
}

func TestScoreZeroWeightTotal(t *testing.T) {
	enrichment := &store.Enrichment{EngagementScore: 1000, ReadabilityScore: 100}
	if got := rank.Score(enrichment, time.Now(), time.Now(), rank.Weights{}); got != 0 {
		t.Fatalf("zero weights must score zero, got %v", got)
	}
}

func TestRunCycleDraftsTopN(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Ranking.TopN = 2
	st := testsupport.MustOpenStore(t, cfg)
	svc := rank.NewService(cfg, st, logging.NewNop())
	ctx := context.Background()

	feed := testsupport.NewFeed(t, st, "feedrank00000001", "https://example.com/feed.xml")
	scores := []int{100, 900, 500}
	keys := []string{"entry00000000001", "entry00000000002", "entry00000000003"}
	for i, key := range keys {
		entry := testsupport.NewEntry(t, st, feed.Key, key, "c0ffee000000000"+string(rune('0'+i)))
		entry.Processed = true
		entry.State = store.StateEnriched
		if err := st.UpdateEntry(ctx, entry); err != nil {
			t.Fatalf("UpdateEntry: %v", err)
		}
		if err := st.SaveEnrichment(ctx, &store.Enrichment{
			FeedKey:         feed.Key,
			EntryKey:        key,
			Summary:         "Summary for " + key,
			Sentiment:       store.SentimentNeutral,
			EngagementScore: scores[i],
			Keywords:        []string{"go"},
			ContentHash:     entry.ContentHash,
		}); err != nil {
			t.Fatalf("SaveEnrichment: %v", err)
		}
	}

	drafted, err := svc.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if drafted != 2 {
		t.Fatalf("expected 2 drafts, got %d", drafted)
	}

	posts, err := st.ListPosts(ctx, store.PostFilter{FeedKey: feed.Key})
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}
	got := map[string]bool{}
	for _, post := range posts {
		got[post.EntryKey] = true
		if !post.IsDraft {
			t.Fatal("drafted posts must be drafts")
		}
		if !strings.Contains(post.Content, "Summary for "+post.EntryKey) {
			t.Fatalf("post content missing summary: %q", post.Content)
		}
		if !strings.Contains(post.Content, "Topics: go") {
			t.Fatalf("post content missing keywords: %q", post.Content)
		}
	}
	// The two highest engagement entries win.
	if !got["entry00000000002"] || !got["entry00000000003"] {
		t.Fatalf("expected top-2 by engagement, got %v", got)
	}
}

func TestRunCycleIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := rank.NewService(cfg, st, logging.NewNop())
	ctx := context.Background()

	feed := testsupport.NewFeed(t, st, "feedrank00000002", "https://example.com/feed.xml")
	entry := testsupport.NewEntry(t, st, feed.Key, "entry00000000009", "c0ffee0000000009")
	entry.Processed = true
	entry.State = store.StateEnriched
	if err := st.UpdateEntry(ctx, entry); err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	if err := st.SaveEnrichment(ctx, &store.Enrichment{
		FeedKey:     feed.Key,
		EntryKey:    entry.Key,
		Summary:     "s",
		ContentHash: entry.ContentHash,
	}); err != nil {
		t.Fatalf("SaveEnrichment: %v", err)
	}

	if _, err := svc.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle first: %v", err)
	}
	drafted, err := svc.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle second: %v", err)
	}
	if drafted != 0 {
		t.Fatalf("second cycle must draft nothing, got %d", drafted)
	}

	posts, err := st.ListPosts(ctx, store.PostFilter{FeedKey: feed.Key})
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected a single post, got %d", len(posts))
	}
}
