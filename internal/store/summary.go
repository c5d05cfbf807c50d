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

// GetProjectSummary computes the derived ProjectIndexSummary spec.md §3
// names: totals, distinct languages/components, and up to 10 key entry
// points (files named main.go / index.* / __init__.py, the common
// entry-point naming conventions across the indexer's supported languages).
func (s *SQLiteStore) GetProjectSummary(ctx context.Context, projectPath string) (ProjectIndexSummary, error) {
	var summary ProjectIndexSummary

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE project_path = ?`, projectPath,
	).Scan(&summary.TotalFiles); err != nil {
		return summary, fmt.Errorf("store: counting files: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM symbols WHERE project_path = ?`, projectPath,
	).Scan(&summary.TotalSymbols); err != nil {
		return summary, fmt.Errorf("store: counting symbols: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunk_embeddings WHERE project_path = ?`, projectPath,
	).Scan(&summary.EmbeddingChunks); err != nil {
		return summary, fmt.Errorf("store: counting chunks: %w", err)
	}

	langs, err := s.distinctColumn(ctx, "language", projectPath)
	if err != nil {
		return summary, err
	}
	summary.Languages = langs

	components, err := s.distinctColumn(ctx, "component", projectPath)
	if err != nil {
		return summary, err
	}
	summary.Components = components

	entries, err := s.db.QueryContext(ctx, `
		SELECT relative_path FROM files
		WHERE project_path = ? AND (
			relative_path = 'main.go' OR relative_path LIKE '%/main.go' OR
			relative_path LIKE 'index.%' OR relative_path LIKE '%/index.%' OR
			relative_path = '__init__.py' OR relative_path LIKE '%/\_\_init\_\_.py' ESCAPE '\'
		)
		ORDER BY relative_path LIMIT 10
	`, projectPath)
	if err != nil {
		return summary, fmt.Errorf("store: finding entry points: %w", err)
	}
	defer entries.Close()
	for entries.Next() {
		var path string
		if err := entries.Scan(&path); err != nil {
			return summary, fmt.Errorf("store: scanning entry point: %w", err)
		}
		summary.KeyEntryPoints = append(summary.KeyEntryPoints, path)
	}

	return summary, entries.Err()
}

func (s *SQLiteStore) distinctColumn(ctx context.Context, column, projectPath string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT DISTINCT %s FROM files WHERE project_path = ? AND %s != ''`, column, column),
		projectPath)
	if err != nil {
		return nil, fmt.Errorf("store: listing distinct %s: %w", column, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("store: scanning %s: %w", column, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DeleteProjectIndex removes every row (files, symbols, chunks, vocabulary,
// and both FTS tables) for projectPath. Used when a project is removed from
// the IndexManager (spec.md §4.8 remove_directory).
func (s *SQLiteStore) DeleteProjectIndex(ctx context.Context, projectPath string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin delete_project_index: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM symbols_fts WHERE project_path = ?`,
		`DELETE FROM files_fts WHERE project_path = ?`,
		`DELETE FROM symbols WHERE project_path = ?`,
		`DELETE FROM chunk_embeddings WHERE project_path = ?`,
		`DELETE FROM vocabularies WHERE project_path = ?`,
		`DELETE FROM files WHERE project_path = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, projectPath); err != nil {
			return fmt.Errorf("store: delete_project_index: %w", err)
		}
	}

	return tx.Commit()
}
