// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SaveEmbeddingConfig persists the one-row-per-project persisted embedding
// config JSON blob spec.md §6 names. internal/config owns encoding.
func (s *SQLiteStore) SaveEmbeddingConfig(ctx context.Context, projectPath string, configJSON []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (project_path, embedding_config_json, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(project_path) DO UPDATE SET embedding_config_json = excluded.embedding_config_json, updated_at = CURRENT_TIMESTAMP
	`, projectPath, configJSON)
	if err != nil {
		return fmt.Errorf("store: save_embedding_config: %w", err)
	}
	return nil
}

// LoadEmbeddingConfig restores a previously saved config. Returns (nil,
// nil) if a project has never persisted one — not an error condition.
func (s *SQLiteStore) LoadEmbeddingConfig(ctx context.Context, projectPath string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT embedding_config_json FROM settings WHERE project_path = ?
	`, projectPath).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load_embedding_config: %w", err)
	}
	return payload, nil
}
