// Package logging wraps log/slog with the structured field vocabulary used
// across the pipeline, a console handler for interactive use, and helpers for
// deriving per-message logger context.
package logging
