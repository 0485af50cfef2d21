// Package pipeline runs the ingestion and enrichment worker pools plus the
// periodic ranking and cache maintenance loops under one errgroup with
// structured cancellation.
package pipeline
