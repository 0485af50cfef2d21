package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/rbarrimond/rss-analyzer-poster/internal/config"
	"github.com/rbarrimond/rss-analyzer-poster/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewFeed persists a feed subscription for tests using the provided store.
func NewFeed(t testing.TB, st *store.Store, key, url string) *store.Feed {
	t.Helper()

	feed := &store.Feed{Key: key, Title: "Test Feed " + key, SiteURL: url}
	if err := st.UpsertFeed(context.Background(), feed); err != nil {
		t.Fatalf("store.UpsertFeed: %v", err)
	}
	stored, err := st.GetFeed(context.Background(), key)
	if err != nil {
		t.Fatalf("store.GetFeed: %v", err)
	}
	return stored
}

// NewEntry persists an entry for tests using the provided store.
func NewEntry(t testing.TB, st *store.Store, feedKey, key, contentHash string) *store.Entry {
	t.Helper()

	entry := &store.Entry{
		FeedKey:     feedKey,
		Key:         key,
		GUID:        "guid-" + key,
		Title:       "Entry " + key,
		Link:        "https://example.com/" + key,
		Published:   time.Now().UTC().Add(-time.Hour),
		ContentHash: contentHash,
	}
	if err := st.InsertEntry(context.Background(), entry); err != nil {
		t.Fatalf("store.InsertEntry: %v", err)
	}
	return entry
}
