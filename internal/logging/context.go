package logging

import (
	"context"
	"log/slog"

	"github.com/rbarrimond/rss-analyzer-poster/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldFeedKey is the standardized structured logging key for feed identifiers.
	FieldFeedKey = "feed_key"
	// FieldEntryKey is the standardized structured logging key for entry identifiers.
	FieldEntryKey = "entry_key"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldQueue is the standardized structured logging key for queue names.
	FieldQueue = "queue"
	// FieldContentHash is the standardized structured logging key for content-addressing hashes.
	FieldContentHash = "content_hash"
	// FieldCorrelationID is the standardized structured logging key for message correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType tags log records for downstream filtering.
	FieldEventType = "event_type"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if key, ok := services.FeedKeyFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldFeedKey, key))
	}
	if key, ok := services.EntryKeyFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldEntryKey, key))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if id, ok := services.MessageIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
