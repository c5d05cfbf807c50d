// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/aleutian-core/internal/store"
)

// SessionManager wraps a project's VectorStore session methods with an
// in-memory cache, per spec.md §4.11: "load_session(id) is cache-first".
// RunSession upserts through it synchronously at start, at each story
// boundary, on failure and on completion; pausing writes nothing. It
// deliberately does not own a VectorStore lifecycle
// of its own — the caller passes in the handle obtained from
// indexmanager.Manager.Store, the same SQLite connection the project's
// index already uses, rather than opening a second store.
type SessionManager struct {
	mu    sync.Mutex
	cache map[string]store.ExecutionSession
	vs    store.VectorStore
}

// NewSessionManager builds a SessionManager over an already-open
// VectorStore.
func NewSessionManager(vs store.VectorStore) *SessionManager {
	return &SessionManager{cache: make(map[string]store.ExecutionSession), vs: vs}
}

// NewSession builds a fresh, unpersisted ExecutionSession record. The
// caller persists it via Persist once ready to start (or leaves it
// Pending, for a caller that queues sessions before running them).
func NewSession(projectPath, providerName, model, systemPrompt string) store.ExecutionSession {
	return store.ExecutionSession{
		ID:           uuid.NewString(),
		ProjectPath:  projectPath,
		Status:       store.SessionPending,
		Provider:     providerName,
		Model:        model,
		SystemPrompt: systemPrompt,
	}
}

// Persist upserts session and refreshes the in-memory cache entry, the one
// write path every status/story/usage transition funnels through.
func (sm *SessionManager) Persist(ctx context.Context, session store.ExecutionSession) error {
	if err := sm.vs.UpsertSession(ctx, session); err != nil {
		return err
	}
	sm.mu.Lock()
	sm.cache[session.ID] = session
	sm.mu.Unlock()
	return nil
}

// Load returns a session by id, preferring the in-memory cache and falling
// back to the VectorStore on a miss (e.g. after a process restart).
func (sm *SessionManager) Load(ctx context.Context, id string) (store.ExecutionSession, error) {
	sm.mu.Lock()
	if cached, ok := sm.cache[id]; ok {
		sm.mu.Unlock()
		return cached, nil
	}
	sm.mu.Unlock()

	session, err := sm.vs.LoadSession(ctx, id)
	if err != nil {
		return store.ExecutionSession{}, err
	}
	sm.mu.Lock()
	sm.cache[id] = session
	sm.mu.Unlock()
	return session, nil
}

// ListByProject lists every session recorded for projectPath, newest
// first, bypassing the cache (a full project listing is never served from
// a single-session cache entry).
func (sm *SessionManager) ListByProject(ctx context.Context, projectPath string) ([]store.ExecutionSession, error) {
	return sm.vs.ListSessionsByProject(ctx, projectPath)
}
