package rank

import (
	"math"
	"time"

	"github.com/rbarrimond/rss-analyzer-poster/internal/store"
)

// Weights control how the three scoring signals combine. They are read
// from configuration so tuning does not require a rebuild.
type Weights struct {
	Engagement      float64
	Readability     float64
	Recency         float64
	RecencyHalfLife time.Duration
}

// Score computes the posting priority of an enriched entry at the given
// instant. It is a pure function: engagement and readability normalize to
// [0,1] against their storage ranges, recency decays exponentially with
// the configured half-life, and the three combine as a weighted average.
func Score(enrichment *store.Enrichment, publishedAt, now time.Time, weights Weights) float64 {
	total := weights.Engagement + weights.Readability + weights.Recency
	if total <= 0 {
		return 0
	}

	engagement := float64(enrichment.EngagementScore) / float64(store.EngagementMax)
	readability := enrichment.ReadabilityScore / store.ReadabilityMax
	recency := recencyFactor(publishedAt, now, weights.RecencyHalfLife)

	weighted := weights.Engagement*engagement + weights.Readability*readability + weights.Recency*recency
	return weighted / total
}

// recencyFactor is 1.0 at publication and halves every half-life. Entries
// with no usable publication time score zero recency rather than failing.
func recencyFactor(publishedAt, now time.Time, halfLife time.Duration) float64 {
	if publishedAt.IsZero() || halfLife <= 0 {
		return 0
	}
	age := now.Sub(publishedAt)
	if age <= 0 {
		return 1
	}
	return math.Exp2(-age.Hours() / halfLife.Hours())
}
