package contentcache

import (
	"errors"
	"testing"
	"time"

	"github.com/rbarrimond/rss-analyzer-poster/internal/contenthash"
	"github.com/rbarrimond/rss-analyzer-poster/internal/services"
)

func newCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cache
}

func TestPutGetRoundTrip(t *testing.T) {
	cache := newCache(t)
	body := []byte("entry body text")
	hash := contenthash.SumBytes(body)

	if err := cache.Put(hash, body); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := cache.Get(hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(body) {
		t.Fatalf("got %q", got)
	}
}

func TestPutIsIdempotent(t *testing.T) {
	cache := newCache(t)
	body := []byte("shared content")
	hash := contenthash.SumBytes(body)

	for i := 0; i < 3; i++ {
		if err := cache.Put(hash, body); err != nil {
			t.Fatalf("Put #%d: %v", i, err)
		}
	}
	ok, err := cache.Has(hash)
	if err != nil || !ok {
		t.Fatalf("Has=%v err=%v", ok, err)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	cache := newCache(t)
	_, err := cache.Get("00000000000000aa")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInvalidHashRejected(t *testing.T) {
	cache := newCache(t)
	for _, hash := range []string{"", "short", "XYZ4567890123456", "../etc/passwd0AA"} {
		if err := cache.Put(hash, []byte("x")); err == nil {
			t.Fatalf("hash %q accepted", hash)
		}
	}
}

func TestSweepKeepsLiveAndRecentBlobs(t *testing.T) {
	cache := newCache(t)

	liveBody := []byte("still referenced")
	liveHash := contenthash.SumBytes(liveBody)
	deadBody := []byte("orphaned")
	deadHash := contenthash.SumBytes(deadBody)
	freshBody := []byte("just written")
	freshHash := contenthash.SumBytes(freshBody)

	for hash, body := range map[string][]byte{liveHash: liveBody, deadHash: deadBody, freshHash: freshBody} {
		if err := cache.Put(hash, body); err != nil {
			t.Fatalf("Put %s: %v", hash, err)
		}
	}

	live := map[string]struct{}{liveHash: {}}
	// Grace of zero ages out everything unreferenced; the fresh blob is only
	// protected when it is in the live set or inside the window.
	result, err := cache.Sweep(live, time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.Removed != 0 {
		t.Fatalf("grace window ignored, removed %d", result.Removed)
	}

	result, err = cache.Sweep(live, 0)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.Removed != 2 || result.Kept != 1 {
		t.Fatalf("unexpected sweep result %+v", result)
	}
	if ok, _ := cache.Has(liveHash); !ok {
		t.Fatal("live blob deleted")
	}
	if ok, _ := cache.Has(deadHash); ok {
		t.Fatal("orphaned blob survived")
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	cache := newCache(t)
	vector := []float32{0.25, -1.5, 3.0, 0}

	hash, err := cache.PutEmbedding(vector)
	if err != nil {
		t.Fatalf("PutEmbedding: %v", err)
	}
	got, err := cache.GetEmbedding(hash)
	if err != nil {
		t.Fatalf("GetEmbedding: %v", err)
	}
	if len(got) != len(vector) {
		t.Fatalf("length mismatch: %d", len(got))
	}
	for i := range vector {
		if got[i] != vector[i] {
			t.Fatalf("component %d: got %v want %v", i, got[i], vector[i])
		}
	}
}

func TestEmbeddingDeterministicKey(t *testing.T) {
	cache := newCache(t)
	a, err := cache.PutEmbedding([]float32{1, 2, 3})
	if err != nil {
		t.Fatalf("PutEmbedding: %v", err)
	}
	b, err := cache.PutEmbedding([]float32{1, 2, 3})
	if err != nil {
		t.Fatalf("PutEmbedding: %v", err)
	}
	if a != b {
		t.Fatalf("identical vectors keyed differently: %s vs %s", a, b)
	}
}
