// Package ai wraps an OpenAI-compatible chat completion and embeddings API
// for entry enrichment. Requests retry transient failures with exponential
// backoff and honor Retry-After on rate limits.
package ai
