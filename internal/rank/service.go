package rank

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/rbarrimond/rss-analyzer-poster/internal/config"
	"github.com/rbarrimond/rss-analyzer-poster/internal/logging"
	"github.com/rbarrimond/rss-analyzer-poster/internal/services"
	"github.com/rbarrimond/rss-analyzer-poster/internal/store"
)

// Service selects the top enriched entries per feed each cycle and drafts
// posts for them.
type Service struct {
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the ranking service.
func NewService(cfg *config.Config, st *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		cfg:    cfg,
		store:  st,
		logger: logging.NewComponentLogger(logger, "rank"),
		now:    time.Now,
	}
}

// RunCycle scores every feed's enriched unposted entries and drafts posts
// for the top N of each. Entries that already have a post are skipped
// silently; the store's uniqueness constraint backstops races.
func (s *Service) RunCycle(ctx context.Context) (int, error) {
	feeds, err := s.store.ListFeeds(ctx)
	if err != nil {
		return 0, err
	}

	drafted := 0
	for _, feed := range feeds {
		n, feedErr := s.rankFeed(ctx, feed)
		if feedErr != nil {
			return drafted, feedErr
		}
		drafted += n
	}
	return drafted, nil
}

func (s *Service) rankFeed(ctx context.Context, feed *store.Feed) (int, error) {
	ctx = services.WithFeedKey(ctx, feed.Key)
	log := logging.WithContext(ctx, s.logger)

	candidates, err := s.store.EnrichedUnposted(ctx, feed.Key)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	now := s.now().UTC()
	weights := s.weights()
	sort.SliceStable(candidates, func(i, j int) bool {
		return Score(candidates[i].Enrichment, candidates[i].Entry.Published, now, weights) >
			Score(candidates[j].Enrichment, candidates[j].Entry.Published, now, weights)
	})

	limit := s.cfg.Ranking.TopN
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	drafted := 0
	for _, candidate := range candidates[:limit] {
		post := draftPost(candidate)
		if err := s.store.InsertPost(ctx, post); err != nil {
			if services.IsConflict(err) {
				continue
			}
			return drafted, err
		}
		drafted++
		log.InfoContext(ctx, "post drafted",
			logging.String("post_id", post.ID),
			logging.String("entry_key", candidate.Entry.Key))
	}
	return drafted, nil
}

func (s *Service) weights() Weights {
	return Weights{
		Engagement:      s.cfg.Ranking.EngagementWeight,
		Readability:     s.cfg.Ranking.ReadabilityWeight,
		Recency:         s.cfg.Ranking.RecencyWeight,
		RecencyHalfLife: time.Duration(s.cfg.Ranking.RecencyHalfLifeHours * float64(time.Hour)),
	}
}

// draftPost synthesizes a markdown draft from the enrichment output.
func draftPost(candidate store.RankCandidate) *store.Post {
	entry := candidate.Entry
	enrichment := candidate.Enrichment

	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", entry.Title)
	if enrichment.Summary != "" {
		b.WriteString(enrichment.Summary)
		b.WriteString("\n\n")
	}
	if len(enrichment.Keywords) > 0 {
		b.WriteString("*Topics: ")
		b.WriteString(strings.Join(enrichment.Keywords, ", "))
		b.WriteString("*\n\n")
	}
	if entry.Link != "" {
		fmt.Fprintf(&b, "[Read the full article](%s)\n", entry.Link)
	}

	return &store.Post{
		FeedKey:  entry.FeedKey,
		EntryKey: entry.Key,
		Title:    entry.Title,
		Content:  strings.TrimSpace(b.String()),
	}
}
