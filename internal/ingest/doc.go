// Package ingest polls subscribed feeds and reconciles their entries into
// the store. Fetches are conditional (If-None-Match, If-Modified-Since), new
// and changed entries land unprocessed with their normalized bodies in the
// content cache, and each one is published to the enrichment queue. A feed's
// checkpoint advances only when the whole pass succeeds.
package ingest
