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

// SaveVocabulary persists the TF-IDF VocabularySnapshot JSON for a project
// (spec.md §3, §4.4). The caller (TFIDFProvider) owns the encoding.
func (s *SQLiteStore) SaveVocabulary(ctx context.Context, projectPath string, vocabularyJSON []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vocabularies (project_path, payload, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(project_path) DO UPDATE SET payload = excluded.payload, updated_at = CURRENT_TIMESTAMP
	`, projectPath, vocabularyJSON)
	if err != nil {
		return fmt.Errorf("store: save_vocabulary: %w", err)
	}
	return nil
}

// LoadVocabulary restores a previously saved vocabulary. Returns
// (nil, nil) if none was ever saved for projectPath — a fresh project has
// no vocabulary yet, which is not an error condition.
func (s *SQLiteStore) LoadVocabulary(ctx context.Context, projectPath string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM vocabularies WHERE project_path = ?
	`, projectPath).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load_vocabulary: %w", err)
	}
	return payload, nil
}
