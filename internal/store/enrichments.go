package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rbarrimond/rss-analyzer-poster/internal/services"
)

const enrichmentColumns = `feed_key, entry_key, summary, sentiment, readability_score, engagement_score, keywords_json, engagement_types_json, embedding_fast_key, embedding_deep_key, response_received, enrichment_version, content_hash, version, created_at, updated_at`

// SaveEnrichment inserts the enrichment for an entry or replaces it when a
// newer AI pass produced fresh results. Scores are clamped into their
// declared ranges before the row is written.
func (s *Store) SaveEnrichment(ctx context.Context, enrichment *Enrichment) error {
	if enrichment.FeedKey == "" || enrichment.EntryKey == "" {
		return services.Wrap(services.ErrValidation, "store", "save enrichment", "enrichment requires feed key and entry key", nil)
	}
	enrichment.ReadabilityScore = ClampReadability(enrichment.ReadabilityScore)
	enrichment.EngagementScore = ClampEngagement(enrichment.EngagementScore)
	if enrichment.Sentiment == "" {
		enrichment.Sentiment = SentimentNeutral
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	keywords, err := marshalStrings(enrichment.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}
	engagementTypes, err := marshalEngagementTypes(enrichment.EngagementTypes)
	if err != nil {
		return fmt.Errorf("marshal engagement types: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO enrichments (
            feed_key, entry_key, summary, sentiment, readability_score,
            engagement_score, keywords_json, engagement_types_json,
            embedding_fast_key, embedding_deep_key, response_received,
            enrichment_version, content_hash, version, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
        ON CONFLICT(feed_key, entry_key) DO UPDATE SET
            summary = excluded.summary,
            sentiment = excluded.sentiment,
            readability_score = excluded.readability_score,
            engagement_score = excluded.engagement_score,
            keywords_json = excluded.keywords_json,
            engagement_types_json = excluded.engagement_types_json,
            embedding_fast_key = excluded.embedding_fast_key,
            embedding_deep_key = excluded.embedding_deep_key,
            response_received = excluded.response_received,
            enrichment_version = excluded.enrichment_version,
            content_hash = excluded.content_hash,
            version = enrichments.version + 1,
            updated_at = excluded.updated_at`,
		enrichment.FeedKey,
		enrichment.EntryKey,
		nullableString(enrichment.Summary),
		string(enrichment.Sentiment),
		enrichment.ReadabilityScore,
		enrichment.EngagementScore,
		keywords,
		engagementTypes,
		nullableString(enrichment.EmbeddingFastKey),
		nullableString(enrichment.EmbeddingDeepKey),
		boolToInt(enrichment.ResponseReceived),
		enrichment.EnrichmentVersion,
		enrichment.ContentHash,
		timestamp,
		timestamp,
	)
	if err != nil {
		return fmt.Errorf("save enrichment: %w", err)
	}
	return nil
}

// GetEnrichment fetches the enrichment for an entry, if one exists.
func (s *Store) GetEnrichment(ctx context.Context, feedKey, entryKey string) (*Enrichment, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+enrichmentColumns+` FROM enrichments WHERE feed_key = ? AND entry_key = ?`,
		feedKey,
		entryKey,
	)
	enrichment, err := scanEnrichment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "get enrichment", fmt.Sprintf("enrichment %s/%s", feedKey, entryKey), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get enrichment: %w", err)
	}
	return enrichment, nil
}

// RankCandidate pairs an enriched entry with its AI metadata for ranking.
type RankCandidate struct {
	Entry      *Entry
	Enrichment *Enrichment
}

// EnrichedUnposted returns enriched entries for a feed that have no drafted
// post yet, the input set for rank selection.
func (s *Store) EnrichedUnposted(ctx context.Context, feedKey string) ([]RankCandidate, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+prefixColumns("e", entryColumns)+`, `+prefixColumns("n", enrichmentColumns)+`
         FROM entries e
         JOIN enrichments n ON n.feed_key = e.feed_key AND n.entry_key = e.key
         LEFT JOIN posts p ON p.feed_key = e.feed_key AND p.entry_key = e.key
         WHERE e.feed_key = ? AND e.state = ? AND p.id IS NULL
         ORDER BY e.published DESC`,
		feedKey,
		string(StateEnriched),
	)
	if err != nil {
		return nil, fmt.Errorf("list enriched unposted: %w", err)
	}
	defer rows.Close()

	var candidates []RankCandidate
	for rows.Next() {
		candidate, scanErr := scanRankCandidate(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan rank candidate: %w", scanErr)
		}
		candidates = append(candidates, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rank candidates: %w", err)
	}
	return candidates, nil
}

func scanEnrichment(row rowScanner) (*Enrichment, error) {
	var (
		enrichment       Enrichment
		summary          sql.NullString
		sentiment        string
		keywords         sql.NullString
		engagementTypes  sql.NullString
		embeddingFast    sql.NullString
		embeddingDeep    sql.NullString
		responseReceived int
		createdAt        string
		updatedAt        string
	)
	if err := row.Scan(
		&enrichment.FeedKey,
		&enrichment.EntryKey,
		&summary,
		&sentiment,
		&enrichment.ReadabilityScore,
		&enrichment.EngagementScore,
		&keywords,
		&engagementTypes,
		&embeddingFast,
		&embeddingDeep,
		&responseReceived,
		&enrichment.EnrichmentVersion,
		&enrichment.ContentHash,
		&enrichment.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	enrichment.Summary = summary.String
	enrichment.Sentiment = Sentiment(sentiment)
	enrichment.EmbeddingFastKey = embeddingFast.String
	enrichment.EmbeddingDeepKey = embeddingDeep.String
	enrichment.ResponseReceived = intToBool(responseReceived)
	if t, err := parseTimeString(createdAt); err == nil {
		enrichment.CreatedAt = t
	}
	if t, err := parseTimeString(updatedAt); err == nil {
		enrichment.UpdatedAt = t
	}
	if keywords.Valid && keywords.String != "" {
		if err := json.Unmarshal([]byte(keywords.String), &enrichment.Keywords); err != nil {
			return nil, fmt.Errorf("decode keywords: %w", err)
		}
	}
	if engagementTypes.Valid && engagementTypes.String != "" {
		if err := json.Unmarshal([]byte(engagementTypes.String), &enrichment.EngagementTypes); err != nil {
			return nil, fmt.Errorf("decode engagement types: %w", err)
		}
	}
	return &enrichment, nil
}

// scanRankCandidate relies on the joined query selecting the entry columns
// followed by the enrichment columns in declaration order.
func scanRankCandidate(row rowScanner) (RankCandidate, error) {
	var (
		entry            Entry
		entryTitle       sql.NullString
		link             sql.NullString
		published        sql.NullString
		author           sql.NullString
		feedSummary      sql.NullString
		tags             sql.NullString
		processed        int
		state            string
		entryCreatedAt   string
		entryUpdatedAt   string
		enrichment       Enrichment
		summary          sql.NullString
		sentiment        string
		keywords         sql.NullString
		engagementTypes  sql.NullString
		embeddingFast    sql.NullString
		embeddingDeep    sql.NullString
		responseReceived int
		createdAt        string
		updatedAt        string
	)
	if err := row.Scan(
		&entry.FeedKey,
		&entry.Key,
		&entry.GUID,
		&entryTitle,
		&link,
		&published,
		&author,
		&feedSummary,
		&entry.ContentHash,
		&tags,
		&processed,
		&state,
		&entry.Version,
		&entryCreatedAt,
		&entryUpdatedAt,
		&enrichment.FeedKey,
		&enrichment.EntryKey,
		&summary,
		&sentiment,
		&enrichment.ReadabilityScore,
		&enrichment.EngagementScore,
		&keywords,
		&engagementTypes,
		&embeddingFast,
		&embeddingDeep,
		&responseReceived,
		&enrichment.EnrichmentVersion,
		&enrichment.ContentHash,
		&enrichment.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return RankCandidate{}, err
	}
	entry.Title = entryTitle.String
	entry.Link = link.String
	entry.Author = author.String
	entry.FeedSummary = feedSummary.String
	entry.Processed = intToBool(processed)
	entry.State = EnrichmentState(state)
	if t := timePointer(published); t != nil {
		entry.Published = *t
	}
	if t, err := parseTimeString(entryCreatedAt); err == nil {
		entry.CreatedAt = t
	}
	if t, err := parseTimeString(entryUpdatedAt); err == nil {
		entry.UpdatedAt = t
	}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &entry.Tags); err != nil {
			return RankCandidate{}, fmt.Errorf("decode entry tags: %w", err)
		}
	}
	enrichment.Summary = summary.String
	enrichment.Sentiment = Sentiment(sentiment)
	enrichment.EmbeddingFastKey = embeddingFast.String
	enrichment.EmbeddingDeepKey = embeddingDeep.String
	enrichment.ResponseReceived = intToBool(responseReceived)
	if t, err := parseTimeString(createdAt); err == nil {
		enrichment.CreatedAt = t
	}
	if t, err := parseTimeString(updatedAt); err == nil {
		enrichment.UpdatedAt = t
	}
	if keywords.Valid && keywords.String != "" {
		if err := json.Unmarshal([]byte(keywords.String), &enrichment.Keywords); err != nil {
			return RankCandidate{}, fmt.Errorf("decode keywords: %w", err)
		}
	}
	if engagementTypes.Valid && engagementTypes.String != "" {
		if err := json.Unmarshal([]byte(engagementTypes.String), &enrichment.EngagementTypes); err != nil {
			return RankCandidate{}, fmt.Errorf("decode engagement types: %w", err)
		}
	}
	return RankCandidate{Entry: &entry, Enrichment: &enrichment}, nil
}

func marshalEngagementTypes(values []EngagementType) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func prefixColumns(alias, columns string) string {
	cols := strings.Split(columns, ", ")
	for i, col := range cols {
		cols[i] = alias + "." + col
	}
	return strings.Join(cols, ", ")
}
