// Package store persists feeds, entries, enrichments, and drafted posts in
// SQLite. Rows carry version counters; writers compare the expected version
// on update and report services.ErrConflict when another writer got there
// first, so callers retry from a fresh read instead of clobbering.
package store
