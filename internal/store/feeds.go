package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rbarrimond/rss-analyzer-poster/internal/services"
)

const feedColumns = `key, title, site_url, language, publisher, last_checked, etag, last_modified, version`

// UpsertFeed inserts a feed subscription or refreshes its descriptive
// metadata if the key already exists. Conditional fetch state and the
// version counter are left untouched on the update path.
func (s *Store) UpsertFeed(ctx context.Context, feed *Feed) error {
	if feed.Key == "" {
		return services.Wrap(services.ErrValidation, "store", "upsert feed", "feed key is empty", nil)
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO feeds (key, title, site_url, language, publisher, version)
         VALUES (?, ?, ?, ?, ?, 1)
         ON CONFLICT(key) DO UPDATE SET
            title = excluded.title,
            site_url = excluded.site_url,
            language = excluded.language,
            publisher = excluded.publisher`,
		feed.Key,
		nullableString(feed.Title),
		feed.SiteURL,
		nullableString(feed.Language),
		nullableString(feed.Publisher),
	)
	if err != nil {
		return fmt.Errorf("upsert feed: %w", err)
	}
	return nil
}

// GetFeed fetches a feed by key.
func (s *Store) GetFeed(ctx context.Context, key string) (*Feed, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE key = ?`,
		key,
	)
	feed, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "get feed", fmt.Sprintf("feed %s", key), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}
	return feed, nil
}

// ListFeeds returns all subscriptions ordered by key.
func (s *Store) ListFeeds(ctx context.Context) ([]*Feed, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+feedColumns+` FROM feeds ORDER BY key`,
	)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []*Feed
	for rows.Next() {
		feed, scanErr := scanFeed(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan feed: %w", scanErr)
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feeds: %w", err)
	}
	return feeds, nil
}

// UpdateFeed writes the full feed row, guarded by its version counter.
// A stale version reports services.ErrConflict so callers can re-read
// and retry.
func (s *Store) UpdateFeed(ctx context.Context, feed *Feed) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE feeds SET
            title = ?, site_url = ?, language = ?, publisher = ?,
            last_checked = ?, etag = ?, last_modified = ?,
            version = version + 1
         WHERE key = ? AND version = ?`,
		nullableString(feed.Title),
		feed.SiteURL,
		nullableString(feed.Language),
		nullableString(feed.Publisher),
		nullableTimeValue(feed.LastChecked),
		nullableString(feed.ETag),
		nullableString(feed.LastModified),
		feed.Key,
		feed.Version,
	)
	if err != nil {
		return fmt.Errorf("update feed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update feed rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrConflict, "store", "update feed", fmt.Sprintf("feed %s version %d is stale", feed.Key, feed.Version), nil)
	}
	feed.Version++
	return nil
}

// AdvanceLastChecked records a successful poll. The checkpoint only moves
// forward; a late writer with an older timestamp leaves the row untouched
// without reporting an error.
func (s *Store) AdvanceLastChecked(ctx context.Context, key string, checkedAt time.Time, etag, lastModified string) error {
	timestamp := checkedAt.UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE feeds SET
            last_checked = ?, etag = ?, last_modified = ?,
            version = version + 1
         WHERE key = ? AND (last_checked IS NULL OR last_checked < ?)`,
		timestamp,
		nullableString(etag),
		nullableString(lastModified),
		key,
		timestamp,
	)
	if err != nil {
		return fmt.Errorf("advance last checked: %w", err)
	}
	return nil
}

// DeleteFeed removes a subscription along with its entries, enrichments,
// and drafted posts.
func (s *Store) DeleteFeed(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete feed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM posts WHERE feed_key = ?`,
		`DELETE FROM enrichments WHERE feed_key = ?`,
		`DELETE FROM entries WHERE feed_key = ?`,
		`DELETE FROM feeds WHERE key = ?`,
	} {
		if _, execErr := tx.ExecContext(ctx, stmt, key); execErr != nil {
			return fmt.Errorf("delete feed: %w", execErr)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete feed: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(row rowScanner) (*Feed, error) {
	var (
		feed         Feed
		title        sql.NullString
		language     sql.NullString
		publisher    sql.NullString
		lastChecked  sql.NullString
		etag         sql.NullString
		lastModified sql.NullString
	)
	if err := row.Scan(
		&feed.Key,
		&title,
		&feed.SiteURL,
		&language,
		&publisher,
		&lastChecked,
		&etag,
		&lastModified,
		&feed.Version,
	); err != nil {
		return nil, err
	}
	feed.Title = title.String
	feed.Language = language.String
	feed.Publisher = publisher.String
	feed.ETag = etag.String
	feed.LastModified = lastModified.String
	if t := timePointer(lastChecked); t != nil {
		feed.LastChecked = *t
	}
	return &feed, nil
}

func nullableTimeValue(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}
