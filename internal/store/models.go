package store

import (
	"strings"
	"time"
)

// Sentiment is the closed classification set for AI sentiment output.
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNeutral  Sentiment = "Neutral"
	SentimentNegative Sentiment = "Negative"
	SentimentMixed    Sentiment = "Mixed"
)

var sentimentSet = map[Sentiment]struct{}{
	SentimentPositive: {},
	SentimentNeutral:  {},
	SentimentNegative: {},
	SentimentMixed:    {},
}

// ParseSentiment maps arbitrary model output into the closed sentiment set.
// Anything outside the set, including casing drift, collapses to Neutral so a
// drifting model never fails the pipeline.
func ParseSentiment(value string) Sentiment {
	candidate := Sentiment(capitalize(value))
	if _, ok := sentimentSet[candidate]; ok {
		return candidate
	}
	return SentimentNeutral
}

// EngagementType describes how audiences interacted with an entry.
type EngagementType string

const (
	EngagementShared    EngagementType = "Shared"
	EngagementLiked     EngagementType = "Liked"
	EngagementCommented EngagementType = "Commented"
)

var engagementTypeSet = map[EngagementType]struct{}{
	EngagementShared:    {},
	EngagementLiked:     {},
	EngagementCommented: {},
}

// ParseEngagementTypes filters arbitrary model output down to the known
// engagement set, preserving order and dropping duplicates and unknowns.
func ParseEngagementTypes(values []string) []EngagementType {
	seen := make(map[EngagementType]struct{}, len(values))
	out := make([]EngagementType, 0, len(values))
	for _, v := range values {
		candidate := EngagementType(capitalize(v))
		if _, ok := engagementTypeSet[candidate]; !ok {
			continue
		}
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
	}
	return out
}

func capitalize(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	return strings.ToUpper(trimmed[:1]) + strings.ToLower(trimmed[1:])
}

// EnrichmentState is the per-entry lifecycle of AI enrichment.
type EnrichmentState string

const (
	StatePending   EnrichmentState = "pending"
	StateEnriching EnrichmentState = "enriching"
	StateEnriched  EnrichmentState = "enriched"
	StateFailed    EnrichmentState = "failed"
)

// Feed is a subscribed RSS feed. Key is the xxh64 of the feed URL.
type Feed struct {
	Key          string
	Title        string
	SiteURL      string
	Language     string
	Publisher    string
	LastChecked  time.Time
	ETag         string
	LastModified string
	Version      int64
}

// Entry is one item discovered in a feed. (FeedKey, Key) is unique; Key is
// the xxh64 of the feed-provided GUID (falling back to the link). ContentHash
// addresses the normalized body in the content cache, so entries with
// identical normalized content share one blob across feeds.
type Entry struct {
	FeedKey     string
	Key         string
	GUID        string
	Title       string
	Link        string
	Published   time.Time
	Author      string
	FeedSummary string
	ContentHash string
	Tags        []string
	Processed   bool
	State       EnrichmentState
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Enrichment is the AI-derived metadata for an Entry, one-to-one by
// (FeedKey, EntryKey). Embedding vectors live in the content cache; the row
// stores only their blob keys.
type Enrichment struct {
	FeedKey           string
	EntryKey          string
	Summary           string
	Sentiment         Sentiment
	ReadabilityScore  float64
	EngagementScore   int
	Keywords          []string
	EngagementTypes   []EngagementType
	EmbeddingFastKey  string
	EmbeddingDeepKey  string
	ResponseReceived  bool
	EnrichmentVersion int
	ContentHash       string
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

const (
	// ReadabilityMin and ReadabilityMax bound the stored readability score.
	ReadabilityMin = 0.0
	ReadabilityMax = 100.0
	// EngagementMin and EngagementMax bound the stored engagement score.
	EngagementMin = 0
	EngagementMax = 1000
)

// ClampReadability forces a readability score into its declared range.
func ClampReadability(score float64) float64 {
	switch {
	case score < ReadabilityMin:
		return ReadabilityMin
	case score > ReadabilityMax:
		return ReadabilityMax
	default:
		return score
	}
}

// ClampEngagement forces an engagement score into its declared range.
func ClampEngagement(score int) int {
	switch {
	case score < EngagementMin:
		return EngagementMin
	case score > EngagementMax:
		return EngagementMax
	default:
		return score
	}
}

// Post is a drafted content suggestion synthesized from an enriched entry.
// A uniqueness constraint on the source entry forbids duplicates; posts are
// mutated only by explicit publish/discard actions and never auto-deleted.
type Post struct {
	ID        string
	FeedKey   string
	EntryKey  string
	Title     string
	Content   string
	IsDraft   bool
	CreatedAt time.Time
	Version   int64
}
