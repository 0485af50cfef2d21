package store

// Schema for the pipeline database. Every mutable row carries a version
// column used for optimistic concurrency: updates compare the expected
// version in the WHERE clause and bump it on success.
const schema = `
CREATE TABLE IF NOT EXISTS feeds (
    key            TEXT PRIMARY KEY,
    title          TEXT,
    site_url       TEXT NOT NULL,
    language       TEXT,
    publisher      TEXT,
    last_checked   TEXT,
    etag           TEXT,
    last_modified  TEXT,
    version        INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS entries (
    feed_key      TEXT NOT NULL,
    key           TEXT NOT NULL,
    guid          TEXT NOT NULL,
    title         TEXT,
    link          TEXT,
    published     TEXT,
    author        TEXT,
    feed_summary  TEXT,
    content_hash  TEXT NOT NULL,
    tags_json     TEXT,
    processed     INTEGER NOT NULL DEFAULT 0,
    state         TEXT NOT NULL DEFAULT 'pending',
    version       INTEGER NOT NULL DEFAULT 1,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL,
    PRIMARY KEY (feed_key, key)
);
CREATE INDEX IF NOT EXISTS idx_entries_processed ON entries (processed, feed_key);
CREATE INDEX IF NOT EXISTS idx_entries_content_hash ON entries (content_hash);

CREATE TABLE IF NOT EXISTS enrichments (
    feed_key            TEXT NOT NULL,
    entry_key           TEXT NOT NULL,
    summary             TEXT,
    sentiment           TEXT NOT NULL DEFAULT 'Neutral',
    readability_score   REAL NOT NULL DEFAULT 0,
    engagement_score    INTEGER NOT NULL DEFAULT 0,
    keywords_json       TEXT,
    engagement_types_json TEXT,
    embedding_fast_key  TEXT,
    embedding_deep_key  TEXT,
    response_received   INTEGER NOT NULL DEFAULT 0,
    enrichment_version  INTEGER NOT NULL DEFAULT 1,
    content_hash        TEXT NOT NULL,
    version             INTEGER NOT NULL DEFAULT 1,
    created_at          TEXT NOT NULL,
    updated_at          TEXT NOT NULL,
    PRIMARY KEY (feed_key, entry_key)
);

CREATE TABLE IF NOT EXISTS posts (
    id          TEXT PRIMARY KEY,
    feed_key    TEXT NOT NULL,
    entry_key   TEXT NOT NULL,
    title       TEXT,
    content     TEXT,
    is_draft    INTEGER NOT NULL DEFAULT 1,
    created_at  TEXT NOT NULL,
    version     INTEGER NOT NULL DEFAULT 1,
    UNIQUE (feed_key, entry_key)
);
`
