package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/rbarrimond/rss-analyzer-poster/internal/services"
)

const entryColumns = `feed_key, key, guid, title, link, published, author, feed_summary, content_hash, tags_json, processed, state, version, created_at, updated_at`

// InsertEntry persists a newly discovered entry. New entries always start
// unprocessed in the pending state.
func (s *Store) InsertEntry(ctx context.Context, entry *Entry) error {
	if entry.FeedKey == "" || entry.Key == "" {
		return services.Wrap(services.ErrValidation, "store", "insert entry", "entry requires feed key and key", nil)
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	tags, err := marshalStrings(entry.Tags)
	if err != nil {
		return fmt.Errorf("marshal entry tags: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO entries (
            feed_key, key, guid, title, link, published, author, feed_summary,
            content_hash, tags_json, processed, state, version, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, 1, ?, ?)`,
		entry.FeedKey,
		entry.Key,
		entry.GUID,
		nullableString(entry.Title),
		nullableString(entry.Link),
		nullableTimeValue(entry.Published),
		nullableString(entry.Author),
		nullableString(entry.FeedSummary),
		entry.ContentHash,
		tags,
		string(StatePending),
		timestamp,
		timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	entry.Processed = false
	entry.State = StatePending
	entry.Version = 1
	entry.CreatedAt = now
	entry.UpdatedAt = now
	return nil
}

// GetEntry fetches an entry by its feed and entry keys.
func (s *Store) GetEntry(ctx context.Context, feedKey, key string) (*Entry, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+entryColumns+` FROM entries WHERE feed_key = ? AND key = ?`,
		feedKey,
		key,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "get entry", fmt.Sprintf("entry %s/%s", feedKey, key), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

// UpdateEntry writes the full entry row, guarded by its version counter.
// A stale version reports services.ErrConflict.
func (s *Store) UpdateEntry(ctx context.Context, entry *Entry) error {
	now := time.Now().UTC()
	tags, err := marshalStrings(entry.Tags)
	if err != nil {
		return fmt.Errorf("marshal entry tags: %w", err)
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE entries SET
            guid = ?, title = ?, link = ?, published = ?, author = ?,
            feed_summary = ?, content_hash = ?, tags_json = ?,
            processed = ?, state = ?, version = version + 1, updated_at = ?
         WHERE feed_key = ? AND key = ? AND version = ?`,
		entry.GUID,
		nullableString(entry.Title),
		nullableString(entry.Link),
		nullableTimeValue(entry.Published),
		nullableString(entry.Author),
		nullableString(entry.FeedSummary),
		entry.ContentHash,
		tags,
		boolToInt(entry.Processed),
		string(entry.State),
		now.Format(time.RFC3339Nano),
		entry.FeedKey,
		entry.Key,
		entry.Version,
	)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entry rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrConflict, "store", "update entry", fmt.Sprintf("entry %s/%s version %d is stale", entry.FeedKey, entry.Key, entry.Version), nil)
	}
	entry.Version++
	entry.UpdatedAt = now
	return nil
}

// EntryFilter narrows ListEntries. Zero-valued fields match everything.
type EntryFilter struct {
	FeedKey   string
	Processed *bool
	State     EnrichmentState
	Limit     uint64
}

// ListEntries returns entries matching the filter, newest publication first.
func (s *Store) ListEntries(ctx context.Context, filter EntryFilter) ([]*Entry, error) {
	builder := sq.Select(entryColumns).
		From("entries").
		OrderBy("published DESC", "created_at DESC")
	if filter.FeedKey != "" {
		builder = builder.Where(sq.Eq{"feed_key": filter.FeedKey})
	}
	if filter.Processed != nil {
		builder = builder.Where(sq.Eq{"processed": boolToInt(*filter.Processed)})
	}
	if filter.State != "" {
		builder = builder.Where(sq.Eq{"state": string(filter.State)})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build entry query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan entry: %w", scanErr)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// UnprocessedEntries returns entries that still need enrichment for a feed.
func (s *Store) UnprocessedEntries(ctx context.Context, feedKey string) ([]*Entry, error) {
	processed := false
	return s.ListEntries(ctx, EntryFilter{FeedKey: feedKey, Processed: &processed})
}

// ContentHashInUse reports whether any entry still references the hash.
// Entries with identical normalized content share a single cached blob, so
// the cache sweep must consult every feed before discarding one.
func (s *Store) ContentHashInUse(ctx context.Context, hash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM entries WHERE content_hash = ?`,
		hash,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count content hash: %w", err)
	}
	return count > 0, nil
}

// ReferencedContentHashes collects every content and embedding blob key
// still reachable from the database, for use as the cache sweep live set.
func (s *Store) ReferencedContentHashes(ctx context.Context) (map[string]struct{}, error) {
	live := make(map[string]struct{})
	queries := []string{
		`SELECT DISTINCT content_hash FROM entries WHERE content_hash != ''`,
		`SELECT DISTINCT embedding_fast_key FROM enrichments WHERE embedding_fast_key IS NOT NULL AND embedding_fast_key != ''`,
		`SELECT DISTINCT embedding_deep_key FROM enrichments WHERE embedding_deep_key IS NOT NULL AND embedding_deep_key != ''`,
	}
	for _, query := range queries {
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("collect referenced hashes: %w", err)
		}
		for rows.Next() {
			var hash string
			if scanErr := rows.Scan(&hash); scanErr != nil {
				rows.Close()
				return nil, fmt.Errorf("scan referenced hash: %w", scanErr)
			}
			live[hash] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterate referenced hashes: %w", err)
		}
		rows.Close()
	}
	return live, nil
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		entry       Entry
		title       sql.NullString
		link        sql.NullString
		published   sql.NullString
		author      sql.NullString
		feedSummary sql.NullString
		tags        sql.NullString
		processed   int
		state       string
		createdAt   string
		updatedAt   string
	)
	if err := row.Scan(
		&entry.FeedKey,
		&entry.Key,
		&entry.GUID,
		&title,
		&link,
		&published,
		&author,
		&feedSummary,
		&entry.ContentHash,
		&tags,
		&processed,
		&state,
		&entry.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	entry.Title = title.String
	entry.Link = link.String
	entry.Author = author.String
	entry.FeedSummary = feedSummary.String
	entry.Processed = intToBool(processed)
	entry.State = EnrichmentState(state)
	if t := timePointer(published); t != nil {
		entry.Published = *t
	}
	if t, err := parseTimeString(createdAt); err == nil {
		entry.CreatedAt = t
	}
	if t, err := parseTimeString(updatedAt); err == nil {
		entry.UpdatedAt = t
	}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &entry.Tags); err != nil {
			return nil, fmt.Errorf("decode entry tags: %w", err)
		}
	}
	return &entry, nil
}

func marshalStrings(values []string) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
