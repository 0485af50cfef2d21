package services

import "context"

type contextKey string

const (
	feedKeyKey   contextKey = "feed_key"
	entryKeyKey  contextKey = "entry_key"
	stageKey     contextKey = "stage"
	messageIDKey contextKey = "message_id"
)

// WithFeedKey annotates context with the owning feed identifier.
func WithFeedKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, feedKeyKey, key)
}

// FeedKeyFromContext extracts the feed identifier if present.
func FeedKeyFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(feedKeyKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithEntryKey annotates context with the entry identifier.
func WithEntryKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, entryKeyKey, key)
}

// EntryKeyFromContext extracts the entry identifier if present.
func EntryKeyFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(entryKeyKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithMessageID annotates context with a queue message correlation identifier.
func WithMessageID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, messageIDKey, id)
}

// MessageIDFromContext extracts the correlation identifier if present.
func MessageIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(messageIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
