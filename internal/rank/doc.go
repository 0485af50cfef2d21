// Package rank scores enriched entries and drafts posts for the best of
// them. Scoring is a pure weighted blend of engagement, readability, and
// an exponentially decaying recency signal; each cycle drafts at most the
// configured top N posts per feed, and an entry never backs more than one
// post.
package rank
