// Package index is the SQLite-backed record store: it holds the indexed form of
// every replica record and answers keyed, equality and time-range queries.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	url      TEXT PRIMARY KEY,
	origin   TEXT NOT NULL,
	path     TEXT NOT NULL,
	kind     TEXT NOT NULL,
	checksum TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_records_origin ON records(origin);

CREATE TABLE IF NOT EXISTS profiles (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	origin     TEXT NOT NULL UNIQUE,
	url        TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	bio        TEXT NOT NULL DEFAULT '',
	avatar     TEXT NOT NULL DEFAULT '',
	follows    TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

-- followUrls: one row per followed origin, rewritten with its profile row.
CREATE TABLE IF NOT EXISTS profile_follows (
	origin   TEXT NOT NULL,
	target   TEXT NOT NULL,
	position INTEGER NOT NULL,
	UNIQUE(origin, target)
);

CREATE INDEX IF NOT EXISTS idx_profile_follows_target ON profile_follows(target);

CREATE TABLE IF NOT EXISTS posts (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	url           TEXT NOT NULL UNIQUE,
	origin        TEXT NOT NULL,
	text          TEXT NOT NULL DEFAULT '',
	mentions      TEXT NOT NULL DEFAULT '[]',
	thread_parent TEXT NOT NULL DEFAULT '',
	thread_root   TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at, seq);
CREATE INDEX IF NOT EXISTS idx_posts_parent ON posts(thread_parent);
CREATE INDEX IF NOT EXISTS idx_posts_root ON posts(thread_root);

CREATE TABLE IF NOT EXISTS votes (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	url          TEXT NOT NULL UNIQUE,
	origin       TEXT NOT NULL,
	subject      TEXT NOT NULL,
	vote         INTEGER NOT NULL,
	subject_type TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL,
	UNIQUE(subject, origin)
);

CREATE INDEX IF NOT EXISTS idx_votes_subject ON votes(subject, seq);

CREATE TABLE IF NOT EXISTS notifications (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	type       TEXT NOT NULL,
	url        TEXT NOT NULL,
	origin     TEXT NOT NULL,
	subject    TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	UNIQUE(type, url)
);

CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at, seq);
`

// DB wraps a sql.DB with record-store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
