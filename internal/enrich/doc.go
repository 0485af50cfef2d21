// Package enrich runs AI analysis over ingested entries: summary,
// sentiment, readability, engagement, keywords, and two embedding vectors
// per entry. Each entry moves pending → enriching → enriched, or failed
// when its work message exhausts the retry budget. Processing is
// idempotent across message redelivery.
package enrich
