package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/rbarrimond/rss-analyzer-poster/internal/config"
	"github.com/rbarrimond/rss-analyzer-poster/internal/contentcache"
	"github.com/rbarrimond/rss-analyzer-poster/internal/contenthash"
	"github.com/rbarrimond/rss-analyzer-poster/internal/logging"
	"github.com/rbarrimond/rss-analyzer-poster/internal/queue"
	"github.com/rbarrimond/rss-analyzer-poster/internal/services"
	"github.com/rbarrimond/rss-analyzer-poster/internal/store"
)

const maxResponseBytes = 10 << 20

// Service polls subscribed feeds, persists new and changed entries, and
// publishes enrichment work for each one.
type Service struct {
	cfg        *config.Config
	store      *store.Store
	queue      *queue.Queue
	cache      *contentcache.Cache
	parser     *gofeed.Parser
	httpClient *http.Client
	logger     *slog.Logger
}

// NewService wires the ingestion service.
func NewService(cfg *config.Config, st *store.Store, q *queue.Queue, cache *contentcache.Cache, logger *slog.Logger) *Service {
	timeout := 30 * time.Second
	if cfg.HTTP.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		cfg:        cfg,
		store:      st,
		queue:      q,
		cache:      cache,
		parser:     gofeed.NewParser(),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(logger, "ingest"),
	}
}

// EnqueueAll publishes one feed-changes message per subscribed feed.
func (s *Service) EnqueueAll(ctx context.Context) (int, error) {
	feeds, err := s.store.ListFeeds(ctx)
	if err != nil {
		return 0, err
	}
	for _, feed := range feeds {
		if _, err := s.queue.Enqueue(ctx, queue.FeedChanges, queue.FeedChange{FeedKey: feed.Key}); err != nil {
			return 0, err
		}
	}
	return len(feeds), nil
}

// IngestFeed polls one feed and reconciles its entries. The feed checkpoint
// advances only when the whole pass completes without a fetch, parse, or
// store failure; a single malformed entry is logged and skipped without
// aborting its siblings.
func (s *Service) IngestFeed(ctx context.Context, feedKey string) error {
	ctx = services.WithFeedKey(ctx, feedKey)
	log := logging.WithContext(ctx, s.logger)

	feed, err := s.store.GetFeed(ctx, feedKey)
	if err != nil {
		return err
	}

	checkedAt := time.Now().UTC()
	result, err := s.fetchFeed(ctx, feed)
	if err != nil {
		return err
	}
	if result.notModified {
		log.DebugContext(ctx, "feed unchanged")
		return s.store.AdvanceLastChecked(ctx, feed.Key, checkedAt, feed.ETag, feed.LastModified)
	}

	parsed, err := s.parser.ParseString(result.body)
	if err != nil {
		return services.Wrap(services.ErrPermanent, "ingest", "parse feed", fmt.Sprintf("feed %s", feed.SiteURL), err)
	}

	if err := s.refreshFeedMetadata(ctx, feed, parsed); err != nil {
		return err
	}

	var added, updated, skipped int
	for _, item := range parsed.Items {
		outcome, itemErr := s.reconcileItem(ctx, feed, item)
		if itemErr != nil {
			if services.IsMalformedItem(itemErr) {
				skipped++
				log.WarnContext(ctx, "skipping malformed entry",
					logging.String("entry_title", item.Title),
					logging.Error(itemErr))
				continue
			}
			return itemErr
		}
		switch outcome {
		case itemAdded:
			added++
		case itemUpdated:
			updated++
		}
	}

	log.InfoContext(ctx, "feed ingested",
		logging.Int("added", added),
		logging.Int("updated", updated),
		logging.Int("skipped", skipped))

	return s.store.AdvanceLastChecked(ctx, feed.Key, checkedAt, result.etag, result.lastModified)
}

type fetchResult struct {
	body         string
	etag         string
	lastModified string
	notModified  bool
}

// fetchFeed issues a conditional GET using the stored validators so an
// unchanged feed costs one 304 round trip instead of a full download.
func (s *Service) fetchFeed(ctx context.Context, feed *store.Feed) (fetchResult, error) {
	var result fetchResult
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.SiteURL, nil)
	if err != nil {
		return result, services.Wrap(services.ErrPermanent, "ingest", "fetch feed", "build request", err)
	}
	if s.cfg.HTTP.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.HTTP.UserAgent)
	}
	if feed.ETag != "" {
		req.Header.Set("If-None-Match", feed.ETag)
	}
	if feed.LastModified != "" {
		req.Header.Set("If-Modified-Since", feed.LastModified)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return result, services.Wrap(services.ErrTransient, "ingest", "fetch feed", feed.SiteURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		result.notModified = true
		return result, nil
	}
	if resp.StatusCode >= http.StatusBadRequest {
		marker := services.ErrTransient
		if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError && resp.StatusCode != http.StatusTooManyRequests {
			marker = services.ErrPermanent
		}
		return result, services.Wrap(marker, "ingest", "fetch feed", fmt.Sprintf("%s: http %d", feed.SiteURL, resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return result, services.Wrap(services.ErrTransient, "ingest", "fetch feed", "read body", err)
	}
	result.body = string(body)
	result.etag = resp.Header.Get("ETag")
	result.lastModified = resp.Header.Get("Last-Modified")
	return result, nil
}

// refreshFeedMetadata copies title and language from the parsed payload
// onto the stored feed when they changed.
func (s *Service) refreshFeedMetadata(ctx context.Context, feed *store.Feed, parsed *gofeed.Feed) error {
	title := strings.TrimSpace(parsed.Title)
	lang := normalizeLanguage(parsed.Language)
	if (title == "" || title == feed.Title) && (lang == "" || lang == feed.Language) {
		return nil
	}
	return store.RetryOnConflict(ctx, 3, func(ctx context.Context) error {
		fresh, err := s.store.GetFeed(ctx, feed.Key)
		if err != nil {
			return err
		}
		if title != "" {
			fresh.Title = title
		}
		if lang != "" {
			fresh.Language = lang
		}
		return s.store.UpdateFeed(ctx, fresh)
	})
}

type itemOutcome int

const (
	itemUnchanged itemOutcome = iota
	itemAdded
	itemUpdated
)

func (s *Service) reconcileItem(ctx context.Context, feed *store.Feed, item *gofeed.Item) (itemOutcome, error) {
	guid := strings.TrimSpace(item.GUID)
	if guid == "" {
		guid = strings.TrimSpace(item.Link)
	}
	if guid == "" {
		return itemUnchanged, services.MalformedItem("entry has neither guid nor link")
	}
	entryKey := contenthash.SumKey(guid)
	ctx = services.WithEntryKey(ctx, entryKey)

	body, err := s.entryContent(ctx, item)
	if err != nil {
		return itemUnchanged, err
	}
	normalized := contenthash.Normalize(body)
	hash := contenthash.Sum(normalized)

	existing, err := s.store.GetEntry(ctx, feed.Key, entryKey)
	if err != nil && !services.IsNotFound(err) {
		return itemUnchanged, err
	}

	if existing != nil && existing.ContentHash == hash {
		return itemUnchanged, nil
	}

	// Content-addressed: entries sharing normalized content across feeds
	// share one blob, and Put is a no-op when it already exists.
	if err := s.cache.Put(hash, []byte(normalized)); err != nil {
		return itemUnchanged, err
	}

	if existing == nil {
		entry := &store.Entry{
			FeedKey:     feed.Key,
			Key:         entryKey,
			GUID:        guid,
			Title:       strings.TrimSpace(item.Title),
			Link:        strings.TrimSpace(item.Link),
			Published:   itemPublished(item),
			Author:      itemAuthor(item),
			FeedSummary: strings.TrimSpace(item.Description),
			ContentHash: hash,
			Tags:        item.Categories,
		}
		if err := s.store.InsertEntry(ctx, entry); err != nil {
			return itemUnchanged, err
		}
		if err := s.enqueueEnrichment(ctx, feed.Key, entryKey, hash); err != nil {
			return itemUnchanged, err
		}
		return itemAdded, nil
	}

	err = store.RetryOnConflict(ctx, 3, func(ctx context.Context) error {
		fresh, getErr := s.store.GetEntry(ctx, feed.Key, entryKey)
		if getErr != nil {
			return getErr
		}
		fresh.Title = strings.TrimSpace(item.Title)
		fresh.Link = strings.TrimSpace(item.Link)
		fresh.Author = itemAuthor(item)
		fresh.FeedSummary = strings.TrimSpace(item.Description)
		fresh.Tags = item.Categories
		fresh.ContentHash = hash
		// Changed content re-enters the enrichment pipeline.
		fresh.Processed = false
		fresh.State = store.StatePending
		return s.store.UpdateEntry(ctx, fresh)
	})
	if err != nil {
		return itemUnchanged, err
	}
	if err := s.enqueueEnrichment(ctx, feed.Key, entryKey, hash); err != nil {
		return itemUnchanged, err
	}
	return itemUpdated, nil
}

func (s *Service) enqueueEnrichment(ctx context.Context, feedKey, entryKey, hash string) error {
	_, err := s.queue.Enqueue(ctx, queue.EntryEnrichment, queue.EntryTask{
		FeedKey:     feedKey,
		EntryKey:    entryKey,
		ContentHash: hash,
	})
	return err
}

// entryContent picks the richest body the feed item carries, falling back
// to fetching the linked page when the item has none.
func (s *Service) entryContent(ctx context.Context, item *gofeed.Item) (string, error) {
	if body := strings.TrimSpace(item.Content); body != "" {
		return body, nil
	}
	if body := strings.TrimSpace(item.Description); body != "" {
		return body, nil
	}
	link := strings.TrimSpace(item.Link)
	if link == "" {
		return "", services.MalformedItem("entry has no content and no link")
	}
	return s.fetchEntryBody(ctx, link)
}

func (s *Service) fetchEntryBody(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", services.MalformedItem(fmt.Sprintf("bad entry link %q", link))
	}
	if s.cfg.HTTP.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.HTTP.UserAgent)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "ingest", "fetch entry body", link, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return "", services.Wrap(services.ErrTransient, "ingest", "fetch entry body", fmt.Sprintf("%s: http %d", link, resp.StatusCode), nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "ingest", "fetch entry body", "read body", err)
	}
	return string(body), nil
}

func itemPublished(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC()
	}
	return time.Now().UTC()
}

func itemAuthor(item *gofeed.Item) string {
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		return strings.TrimSpace(item.Authors[0].Name)
	}
	return ""
}
