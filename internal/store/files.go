// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"fmt"
)

// UpsertFileIndex writes a file's metadata and symbol table, idempotent by
// (project_path, relative_path). Re-parse is the caller's concern — this
// always overwrites, so BackgroundIndexer is expected to call it only when
// ContentHash actually changed (spec.md §4.4).
func (s *SQLiteStore) UpsertFileIndex(ctx context.Context, entry FileIndexEntry) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin upsert_file_index: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO files (project_path, relative_path, component, language, size_bytes, line_count, is_test, content_hash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(project_path, relative_path) DO UPDATE SET
			component = excluded.component,
			language = excluded.language,
			size_bytes = excluded.size_bytes,
			line_count = excluded.line_count,
			is_test = excluded.is_test,
			content_hash = excluded.content_hash,
			updated_at = CURRENT_TIMESTAMP
	`, entry.ProjectPath, entry.RelativePath, entry.Component, entry.Language,
		entry.SizeBytes, entry.LineCount, boolToInt(entry.IsTest), entry.ContentHash)
	if err != nil {
		return fmt.Errorf("store: upsert_file_index: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM symbols WHERE project_path = ? AND relative_path = ?`,
		entry.ProjectPath, entry.RelativePath); err != nil {
		return fmt.Errorf("store: clearing stale symbols: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM symbols_fts WHERE project_path = ? AND relative_path = ?`,
		entry.ProjectPath, entry.RelativePath); err != nil {
		return fmt.Errorf("store: clearing stale symbol fts rows: %w", err)
	}

	for _, sym := range entry.Symbols {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO symbols (project_path, relative_path, name, kind, line_number)
			VALUES (?, ?, ?, ?, ?)
		`, entry.ProjectPath, entry.RelativePath, sym.Name, string(sym.Kind), sym.LineNumber); err != nil {
			return fmt.Errorf("store: inserting symbol %s: %w", sym.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO symbols_fts (name, project_path, relative_path, kind, line_number)
			VALUES (?, ?, ?, ?, ?)
		`, sym.Name, entry.ProjectPath, entry.RelativePath, string(sym.Kind), sym.LineNumber); err != nil {
			return fmt.Errorf("store: indexing symbol %s: %w", sym.Name, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM files_fts WHERE project_path = ? AND relative_path = ?`,
		entry.ProjectPath, entry.RelativePath); err != nil {
		return fmt.Errorf("store: clearing stale file fts row: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO files_fts (relative_path, project_path) VALUES (?, ?)`,
		entry.RelativePath, entry.ProjectPath); err != nil {
		return fmt.Errorf("store: indexing file path: %w", err)
	}

	return tx.Commit()
}

// QueryFilesByPath is the LIKE fallback over file paths, per spec.md §4.4.
func (s *SQLiteStore) QueryFilesByPath(ctx context.Context, projectPath, likePattern string) ([]FileIndexEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_path, relative_path, component, language, size_bytes, line_count, is_test, content_hash
		FROM files WHERE project_path = ? AND relative_path LIKE ?
	`, projectPath, likePattern)
	if err != nil {
		return nil, fmt.Errorf("store: query_files_by_path: %w", err)
	}
	defer rows.Close()

	var out []FileIndexEntry
	for rows.Next() {
		var e FileIndexEntry
		var isTest int
		if err := rows.Scan(&e.ProjectPath, &e.RelativePath, &e.Component, &e.Language,
			&e.SizeBytes, &e.LineCount, &isTest, &e.ContentHash); err != nil {
			return nil, fmt.Errorf("store: scanning file row: %w", err)
		}
		e.IsTest = isTest != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// FTSSearchFiles runs the BM25-ranked full-text channel over file paths.
func (s *SQLiteStore) FTSSearchFiles(ctx context.Context, query, projectPath string, limit int) ([]FTSFileHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT relative_path, bm25(files_fts) AS rank
		FROM files_fts
		WHERE files_fts MATCH ? AND project_path = ?
		ORDER BY rank LIMIT ?
	`, query, projectPath, limit)
	if err != nil {
		return nil, fmt.Errorf("store: fts_search_files: %w", err)
	}
	defer rows.Close()

	var out []FTSFileHit
	for rows.Next() {
		var hit FTSFileHit
		if err := rows.Scan(&hit.RelativePath, &hit.Rank); err != nil {
			return nil, fmt.Errorf("store: scanning fts file hit: %w", err)
		}
		out = append(out, hit)
	}
	return out, rows.Err()
}

// DeleteChunkEmbeddingsForFile clears one file's previously persisted
// chunk embeddings ahead of a re-embed, returning the rowids they held so
// the caller can also prune the matching AnnIndex nodes. Without this,
// reprocessing a changed file would accumulate duplicate chunk rows
// instead of replacing them.
func (s *SQLiteStore) DeleteChunkEmbeddingsForFile(ctx context.Context, projectPath, relativePath string) ([]int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT rowid FROM chunk_embeddings WHERE project_path = ? AND file_path = ?`,
		projectPath, relativePath)
	if err != nil {
		return nil, fmt.Errorf("store: listing rowids before chunk delete: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scanning rowid before chunk delete: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM chunk_embeddings WHERE project_path = ? AND file_path = ?`,
		projectPath, relativePath); err != nil {
		return nil, fmt.Errorf("store: clearing chunk embeddings: %w", err)
	}
	return ids, nil
}

// DeleteFileIndex removes one file's metadata, symbols, and chunk
// embeddings, returning the rowids the chunk embeddings held (so the
// caller — BackgroundIndexer's Phase 2 delete path — can also prune the
// matching AnnIndex nodes). Per spec.md §4.7's "if deleted, remove from
// VectorStore and AnnIndex".
func (s *SQLiteStore) DeleteFileIndex(ctx context.Context, projectPath, relativePath string) ([]int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin delete_file_index: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT rowid FROM chunk_embeddings WHERE project_path = ? AND file_path = ?`,
		projectPath, relativePath)
	if err != nil {
		return nil, fmt.Errorf("store: listing rowids before delete: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scanning rowid before delete: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, stmt := range []string{
		`DELETE FROM chunk_embeddings WHERE project_path = ? AND file_path = ?`,
		`DELETE FROM symbols WHERE project_path = ? AND relative_path = ?`,
		`DELETE FROM symbols_fts WHERE project_path = ? AND relative_path = ?`,
		`DELETE FROM files_fts WHERE project_path = ? AND relative_path = ?`,
		`DELETE FROM files WHERE project_path = ? AND relative_path = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, projectPath, relativePath); err != nil {
			return nil, fmt.Errorf("store: delete_file_index: %w", err)
		}
	}

	return ids, tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
