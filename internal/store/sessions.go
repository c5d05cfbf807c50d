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
	"encoding/json"
	"errors"
	"fmt"
)

// UpsertSession persists an ExecutionSession, including its Stories slice,
// in one write. Storing stories as a JSON column on the session row (rather
// than a separate stories table with its own foreign key) is what makes
// "stories and session rows are reconciled atomically per story" (spec.md
// §4.11) trivially true: one upsert, one row, no multi-statement
// transaction to keep in sync.
func (s *SQLiteStore) UpsertSession(ctx context.Context, session ExecutionSession) error {
	storiesJSON, err := json.Marshal(session.Stories)
	if err != nil {
		return fmt.Errorf("store: upsert_session: encoding stories: %w", err)
	}
	metadata := session.MetadataJSON
	if metadata == nil {
		metadata = []byte("{}")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, project_path, status, provider, model, system_prompt, stories_json,
			current_story_index, total_input_tokens, total_output_tokens,
			started_at, completed_at, error, metadata_json, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			project_path        = excluded.project_path,
			status               = excluded.status,
			provider             = excluded.provider,
			model                = excluded.model,
			system_prompt        = excluded.system_prompt,
			stories_json         = excluded.stories_json,
			current_story_index  = excluded.current_story_index,
			total_input_tokens   = excluded.total_input_tokens,
			total_output_tokens  = excluded.total_output_tokens,
			started_at           = excluded.started_at,
			completed_at         = excluded.completed_at,
			error                = excluded.error,
			metadata_json        = excluded.metadata_json,
			updated_at           = CURRENT_TIMESTAMP
	`,
		session.ID, session.ProjectPath, session.Status, session.Provider, session.Model,
		session.SystemPrompt, storiesJSON, session.CurrentStoryIndex,
		session.TotalInputTokens, session.TotalOutputTokens,
		session.StartedAt, session.CompletedAt, session.Error, metadata,
	)
	if err != nil {
		return fmt.Errorf("store: upsert_session: %w", err)
	}
	return nil
}

// LoadSession loads a session by id. Callers (internal/orchestrator) keep
// an in-memory cache in front of this and only fall through here on a miss,
// per spec.md §4.11's "load_session serves from cache first".
func (s *SQLiteStore) LoadSession(ctx context.Context, id string) (ExecutionSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_path, status, provider, model, system_prompt, stories_json,
			current_story_index, total_input_tokens, total_output_tokens,
			created_at, updated_at, started_at, completed_at, error, metadata_json
		FROM sessions WHERE id = ?
	`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ExecutionSession{}, fmt.Errorf("store: load_session: no session %s: %w", id, err)
	}
	if err != nil {
		return ExecutionSession{}, fmt.Errorf("store: load_session: %w", err)
	}
	return session, nil
}

// ListSessionsByProject returns every session recorded for a project,
// newest first.
func (s *SQLiteStore) ListSessionsByProject(ctx context.Context, projectPath string) ([]ExecutionSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_path, status, provider, model, system_prompt, stories_json,
			current_story_index, total_input_tokens, total_output_tokens,
			created_at, updated_at, started_at, completed_at, error, metadata_json
		FROM sessions WHERE project_path = ? ORDER BY created_at DESC
	`, projectPath)
	if err != nil {
		return nil, fmt.Errorf("store: list_sessions_by_project: %w", err)
	}
	defer rows.Close()

	var sessions []ExecutionSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list_sessions_by_project: scanning row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list_sessions_by_project: %w", err)
	}
	return sessions, nil
}

// rowScanner covers both *sql.Row and *sql.Rows so scanSession serves both
// LoadSession and ListSessionsByProject.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (ExecutionSession, error) {
	var session ExecutionSession
	var storiesJSON, metadataJSON []byte
	if err := row.Scan(
		&session.ID, &session.ProjectPath, &session.Status, &session.Provider, &session.Model,
		&session.SystemPrompt, &storiesJSON, &session.CurrentStoryIndex,
		&session.TotalInputTokens, &session.TotalOutputTokens,
		&session.CreatedAt, &session.UpdatedAt, &session.StartedAt, &session.CompletedAt,
		&session.Error, &metadataJSON,
	); err != nil {
		return ExecutionSession{}, err
	}
	if len(storiesJSON) > 0 {
		if err := json.Unmarshal(storiesJSON, &session.Stories); err != nil {
			return ExecutionSession{}, fmt.Errorf("decoding stories_json: %w", err)
		}
	}
	session.MetadataJSON = metadataJSON
	return session, nil
}
