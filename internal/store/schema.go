// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

// schemaDDL is applied with CREATE TABLE/INDEX IF NOT EXISTS on every Open,
// the same idempotent-init idiom as sqlitevec.Backend.init() — appropriate
// here because the schema is a single fixed shape with no versioned
// migrations to track, unlike the teacher's Postgres schema managed by
// golang-migrate (cmd/migrate.go). golang-migrate's only SQLite database
// driver wraps the cgo mattn/go-sqlite3 driver; this store is deliberately
// pure-Go (modernc.org/sqlite, per sqlitevec.Backend), so wiring
// golang-migrate here would reintroduce the cgo dependency it was chosen to
// avoid. See DESIGN.md.
const schemaDDL = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS files (
	project_path  TEXT NOT NULL,
	relative_path TEXT NOT NULL,
	component     TEXT NOT NULL DEFAULT '',
	language      TEXT NOT NULL DEFAULT '',
	size_bytes    INTEGER NOT NULL DEFAULT 0,
	line_count    INTEGER NOT NULL DEFAULT 0,
	is_test       INTEGER NOT NULL DEFAULT 0,
	content_hash  TEXT NOT NULL,
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (project_path, relative_path)
);

CREATE INDEX IF NOT EXISTS idx_files_project ON files(project_path);

CREATE TABLE IF NOT EXISTS symbols (
	project_path    TEXT NOT NULL,
	relative_path   TEXT NOT NULL,
	name            TEXT NOT NULL,
	kind            TEXT NOT NULL,
	line_number     INTEGER NOT NULL,
	FOREIGN KEY (project_path, relative_path) REFERENCES files(project_path, relative_path) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_symbols_project ON symbols(project_path);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);

CREATE TABLE IF NOT EXISTS chunk_embeddings (
	rowid         INTEGER PRIMARY KEY AUTOINCREMENT,
	project_path  TEXT NOT NULL,
	file_path     TEXT NOT NULL,
	chunk_index   INTEGER NOT NULL,
	chunk_text    TEXT NOT NULL,
	vector        BLOB NOT NULL,
	dimension     INTEGER NOT NULL,
	provider_id   TEXT NOT NULL,
	model_id      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_project ON chunk_embeddings(project_path);
CREATE INDEX IF NOT EXISTS idx_chunks_project_dim ON chunk_embeddings(project_path, dimension);

CREATE TABLE IF NOT EXISTS vocabularies (
	project_path TEXT PRIMARY KEY,
	payload      BLOB NOT NULL,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS settings (
	project_path TEXT PRIMARY KEY,
	embedding_config_json BLOB,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sessions (
	id                  TEXT PRIMARY KEY,
	project_path        TEXT NOT NULL,
	status              TEXT NOT NULL,
	provider            TEXT NOT NULL DEFAULT '',
	model               TEXT NOT NULL DEFAULT '',
	system_prompt       TEXT NOT NULL DEFAULT '',
	stories_json        BLOB NOT NULL DEFAULT '[]',
	current_story_index INTEGER NOT NULL DEFAULT 0,
	total_input_tokens  INTEGER NOT NULL DEFAULT 0,
	total_output_tokens INTEGER NOT NULL DEFAULT 0,
	created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	started_at          DATETIME,
	completed_at        DATETIME,
	error               TEXT NOT NULL DEFAULT '',
	metadata_json       BLOB
);

CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_path);

CREATE VIRTUAL TABLE IF NOT EXISTS symbols_fts USING fts5(
	name, project_path UNINDEXED, relative_path UNINDEXED, kind UNINDEXED, line_number UNINDEXED,
	tokenize='porter unicode61'
);

CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
	relative_path, project_path UNINDEXED,
	tokenize='porter unicode61'
);
`
