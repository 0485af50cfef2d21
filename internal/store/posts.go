package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/rbarrimond/rss-analyzer-poster/internal/services"
)

const postColumns = `id, feed_key, entry_key, title, content, is_draft, created_at, version`

// InsertPost drafts a post for an enriched entry. Each entry may back at
// most one post; attempting a second draft for the same entry reports
// services.ErrConflict so rank passes stay idempotent.
func (s *Store) InsertPost(ctx context.Context, post *Post) error {
	if post.FeedKey == "" || post.EntryKey == "" {
		return services.Wrap(services.ErrValidation, "store", "insert post", "post requires feed key and entry key", nil)
	}
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO posts (id, feed_key, entry_key, title, content, is_draft, created_at, version)
         VALUES (?, ?, ?, ?, ?, 1, ?, 1)`,
		post.ID,
		post.FeedKey,
		post.EntryKey,
		nullableString(post.Title),
		nullableString(post.Content),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return services.Wrap(services.ErrConflict, "store", "insert post", fmt.Sprintf("entry %s/%s already has a post", post.FeedKey, post.EntryKey), err)
		}
		return fmt.Errorf("insert post: %w", err)
	}
	post.IsDraft = true
	post.CreatedAt = now
	post.Version = 1
	return nil
}

// GetPost fetches a post by identifier.
func (s *Store) GetPost(ctx context.Context, id string) (*Post, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = ?`,
		id,
	)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "get post", fmt.Sprintf("post %s", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

// PostFilter narrows ListPosts. Zero-valued fields match everything.
type PostFilter struct {
	FeedKey string
	Draft   *bool
	Limit   uint64
}

// ListPosts returns posts matching the filter, newest first.
func (s *Store) ListPosts(ctx context.Context, filter PostFilter) ([]*Post, error) {
	builder := sq.Select(postColumns).
		From("posts").
		OrderBy("created_at DESC")
	if filter.FeedKey != "" {
		builder = builder.Where(sq.Eq{"feed_key": filter.FeedKey})
	}
	if filter.Draft != nil {
		builder = builder.Where(sq.Eq{"is_draft": boolToInt(*filter.Draft)})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build post query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		post, scanErr := scanPost(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan post: %w", scanErr)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// MarkPostPublished clears the draft flag, guarded by the version counter.
func (s *Store) MarkPostPublished(ctx context.Context, id string, version int64) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE posts SET is_draft = 0, version = version + 1 WHERE id = ? AND version = ?`,
		id,
		version,
	)
	if err != nil {
		return fmt.Errorf("mark post published: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark post published rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrConflict, "store", "mark post published", fmt.Sprintf("post %s version %d is stale", id, version), nil)
	}
	return nil
}

// DiscardPost removes a draft. Discards are explicit operator actions and
// never happen as a side effect of ranking.
func (s *Store) DiscardPost(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("discard post: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("discard post rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "store", "discard post", fmt.Sprintf("post %s", id), nil)
	}
	return nil
}

func scanPost(row rowScanner) (*Post, error) {
	var (
		post      Post
		title     sql.NullString
		content   sql.NullString
		isDraft   int
		createdAt string
	)
	if err := row.Scan(
		&post.ID,
		&post.FeedKey,
		&post.EntryKey,
		&title,
		&content,
		&isDraft,
		&createdAt,
		&post.Version,
	); err != nil {
		return nil, err
	}
	post.Title = title.String
	post.Content = content.String
	post.IsDraft = intToBool(isDraft)
	if t, err := parseTimeString(createdAt); err == nil {
		post.CreatedAt = t
	}
	return &post, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
