// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store is the per-project VectorStore: a SQLite-backed index of
// file metadata, symbols, and chunk embeddings, with FTS5 keyword channels
// and a brute-force cosine fallback. Grounded on
// internal/memory/backend/sqlitevec/backend.go's plain database/sql +
// modernc.org/sqlite idiom, extended with the FTS5 tables and multi-entity
// schema SPEC_FULL.md's IndexManager/HybridSearchEngine require.
package store

import (
	"context"
	"time"
)

// SymbolKind enumerates the kinds a parsed Symbol can be.
type SymbolKind string

const (
	SymbolFunction SymbolKind = "function"
	SymbolStruct   SymbolKind = "struct"
	SymbolClass    SymbolKind = "class"
	SymbolEnum     SymbolKind = "enum"
	SymbolTrait    SymbolKind = "trait"
	SymbolMethod   SymbolKind = "method"
	SymbolModule   SymbolKind = "module"
	SymbolConst    SymbolKind = "const"
	SymbolVar      SymbolKind = "var"
)

// Symbol is one parsed declaration site.
type Symbol struct {
	Name          string
	Kind          SymbolKind
	LineNumber    int
	ContainingFile string
}

// FileIndexEntry is one indexed source file. Uniqueness is (ProjectPath,
// RelativePath); ContentHash is the content-addressed key that gates
// re-parsing.
type FileIndexEntry struct {
	ProjectPath string
	RelativePath string
	Component   string
	Language    string
	SizeBytes   int64
	LineCount   int
	IsTest      bool
	ContentHash string
	Symbols     []Symbol
}

// ChunkEmbedding is one embedded chunk of a file. RowID is the integer
// identity shared with the AnnIndex node id once persisted.
type ChunkEmbedding struct {
	RowID       int64
	ProjectPath string
	FilePath    string
	ChunkIndex  int
	ChunkText   string
	Vector      []float32
	Dimension   int
	ProviderID  string
	ModelID     string
}

// SemanticHit is one semantic_search result.
type SemanticHit struct {
	FilePath   string
	ChunkIndex int
	ChunkText  string
	Similarity float32
}

// EmbeddingRef is the (file, chunk_idx, chunk_text) a RowID resolves to.
type EmbeddingRef struct {
	FilePath   string
	ChunkIndex int
	ChunkText  string
}

// SessionStatus enumerates an ExecutionSession's lifecycle states. Valid
// transitions form a DAG: Pending -> Running -> {Paused <-> Running,
// Completed, Failed, Cancelled}.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// StoryStatus enumerates a single StoryState's progress within a session.
type StoryStatus string

const (
	StoryPending   StoryStatus = "pending"
	StoryActive    StoryStatus = "active"
	StoryCompleted StoryStatus = "completed"
	StoryFailed    StoryStatus = "failed"
)

// StoryState is one entry of ExecutionSession.Stories, supplementing
// current_story_index with a concrete backing record (per SPEC_FULL.md §3,
// grounded on original_source's service.rs/timeline.rs story breakdown).
type StoryState struct {
	Index   int
	Title   string
	Status  StoryStatus
	Summary string
}

// ExecutionSession is the persistent orchestrator run record spec.md §3
// names. Stories is ordered by Index; CurrentStoryIndex must be <=
// len(Stories).
type ExecutionSession struct {
	ID                string
	ProjectPath       string
	Status            SessionStatus
	Provider          string
	Model             string
	SystemPrompt      string
	Stories           []StoryState
	CurrentStoryIndex int
	TotalInputTokens  int64
	TotalOutputTokens int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	StartedAt         *time.Time
	CompletedAt       *time.Time
	Error             string
	MetadataJSON      []byte
}

// ProjectIndexSummary is the derived per-project summary spec.md §3 names.
type ProjectIndexSummary struct {
	TotalFiles       int
	TotalSymbols     int
	EmbeddingChunks  int
	Languages        []string
	Components       []string
	KeyEntryPoints   []string
}

// FTSSymbolHit and FTSFileHit carry BM25-ranked FTS5 matches plus their
// rank, so callers (HybridSearchEngine) can build RRF provenance without a
// second query.
type FTSSymbolHit struct {
	Symbol Symbol
	Rank   float64
}

type FTSFileHit struct {
	RelativePath string
	Rank         float64
}

// VectorStore is the per-project storage contract SPEC_FULL.md's
// BackgroundIndexer, HybridSearchEngine, and IndexManager drive. A single
// writer operates on a project's store at a time. SQLiteStore uses one
// connection, so its reads wait while a write transaction is open.
type VectorStore interface {
	UpsertFileIndex(ctx context.Context, entry FileIndexEntry) error
	DeleteFileIndex(ctx context.Context, projectPath, relativePath string) ([]int64, error)
	DeleteChunkEmbeddingsForFile(ctx context.Context, projectPath, relativePath string) ([]int64, error)
	UpsertChunkEmbedding(ctx context.Context, chunk ChunkEmbedding) (int64, error)
	GetEmbeddingsByRowIDs(ctx context.Context, ids []int64) (map[int64]EmbeddingRef, error)
	SemanticSearch(ctx context.Context, projectPath string, queryVec []float32, k int) ([]SemanticHit, error)
	GetAllEmbeddingIDsAndVectors(ctx context.Context, projectPath string) ([]int64, [][]float32, error)

	QuerySymbols(ctx context.Context, likePattern string) ([]Symbol, error)
	QueryFilesByPath(ctx context.Context, projectPath, likePattern string) ([]FileIndexEntry, error)
	FTSSearchSymbols(ctx context.Context, query string, limit int) ([]FTSSymbolHit, error)
	FTSSearchFiles(ctx context.Context, query, projectPath string, limit int) ([]FTSFileHit, error)

	SaveVocabulary(ctx context.Context, projectPath string, vocabularyJSON []byte) error
	LoadVocabulary(ctx context.Context, projectPath string) ([]byte, error)

	SaveEmbeddingConfig(ctx context.Context, projectPath string, configJSON []byte) error
	LoadEmbeddingConfig(ctx context.Context, projectPath string) ([]byte, error)

	GetProjectSummary(ctx context.Context, projectPath string) (ProjectIndexSummary, error)
	DeleteProjectIndex(ctx context.Context, projectPath string) error
	Vacuum(ctx context.Context) error

	UpsertSession(ctx context.Context, session ExecutionSession) error
	LoadSession(ctx context.Context, id string) (ExecutionSession, error)
	ListSessionsByProject(ctx context.Context, projectPath string) ([]ExecutionSession, error)

	Close() error
}
