// Package store is the durable state layer: jobs, assets and provider
// configs in SQLite, with row-level atomicity per job.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a job or asset row does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id                   TEXT PRIMARY KEY,
	status               TEXT NOT NULL DEFAULT 'pending',
	source_type          TEXT NOT NULL,
	source_value         TEXT NOT NULL,
	title                TEXT,
	artist               TEXT,
	album                TEXT,
	album_art            TEXT,
	duration             INTEGER,
	isrc                 TEXT,
	spotify_id           TEXT,
	songlink_data        TEXT,
	master_audio_path    TEXT,
	master_audio_format  TEXT,
	master_audio_service TEXT,
	progress             INTEGER NOT NULL DEFAULT 0,
	progress_message     TEXT,
	error_message        TEXT,
	expires_at           TIMESTAMP,
	created_at           TIMESTAMP NOT NULL,
	updated_at           TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS assets (
	id         TEXT PRIMARY KEY,
	job_id     TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	type       TEXT NOT NULL DEFAULT 'stem',
	stem_type  TEXT NOT NULL,
	file_path  TEXT NOT NULL,
	file_size  INTEGER NOT NULL DEFAULT 0,
	mime_type  TEXT NOT NULL DEFAULT 'audio/wav',
	has_midi   INTEGER NOT NULL DEFAULT 0,
	midi_path  TEXT,
	provider   TEXT,
	expires_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (job_id, stem_type)
);

CREATE INDEX IF NOT EXISTS idx_assets_job_id ON assets(job_id);
CREATE INDEX IF NOT EXISTS idx_jobs_expires_at ON jobs(expires_at);

CREATE TABLE IF NOT EXISTS provider_configs (
	service_name   TEXT PRIMARY KEY,
	api_key        TEXT,
	api_secret     TEXT,
	priority       INTEGER NOT NULL DEFAULT 100,
	is_enabled     INTEGER NOT NULL DEFAULT 1,
	rate_limit     INTEGER,
	rate_window    INTEGER,
	current_usage  INTEGER NOT NULL DEFAULT 0,
	usage_reset_at TIMESTAMP,
	config         TEXT
);
`

// Store wraps the SQLite connection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and runs migrations.
// Pass ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection keeps the foreign-key pragma in effect everywhere
	// and makes ":memory:" databases visible to every caller.
	db.SetMaxOpenConns(1)

	// Cascading asset deletes depend on foreign keys being enforced.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
