// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/aleutian-core/internal/store"
)

func TestComputeRRFScores_FusesAndRanks(t *testing.T) {
	channels := []ChannelResult{
		{Channel: "symbol", Items: []string{"a.go", "b.go"}},
		{Channel: "file_path", Items: []string{"b.go", "c.go"}},
	}
	scores, provenance := ComputeRRFScores(channels, 60)

	require.InDelta(t, 1.0/61, scores["a.go"], 1e-9)
	require.InDelta(t, 1.0/62+1.0/61, scores["b.go"], 1e-9)
	require.InDelta(t, 1.0/62, scores["c.go"], 1e-9)

	require.Len(t, provenance["b.go"], 2)
}

func TestComputeRRFScores_DefaultsKWhenNonPositive(t *testing.T) {
	channels := []ChannelResult{{Channel: "symbol", Items: []string{"a.go"}}}
	scores, _ := ComputeRRFScores(channels, 0)
	require.InDelta(t, 1.0/(DefaultRRFK+1), scores["a.go"], 1e-9)
}

func TestComputeRRFScores_DeduplicatesWithinChannel(t *testing.T) {
	channels := []ChannelResult{{Channel: "symbol", Items: []string{"a.go", "a.go"}}}
	scores, provenance := ComputeRRFScores(channels, 60)
	require.InDelta(t, 1.0/61, scores["a.go"], 1e-9)
	require.Len(t, provenance["a.go"], 1)
}

// fakeStore is a minimal store.VectorStore double for exercising engine
// channel-selection and fallback behavior without a real SQLite backend.
type fakeStore struct {
	ftsSymbols    []store.FTSSymbolHit
	ftsSymbolsErr error
	likeSymbols   []store.Symbol

	ftsFiles    []store.FTSFileHit
	ftsFilesErr error
	likeFiles   []store.FileIndexEntry

	semanticHits []store.SemanticHit
	semanticErr  error

	embeddingRefs map[int64]store.EmbeddingRef
}

func (f *fakeStore) UpsertFileIndex(ctx context.Context, entry store.FileIndexEntry) error {
	return nil
}
func (f *fakeStore) DeleteFileIndex(ctx context.Context, projectPath, relativePath string) ([]int64, error) {
	return nil, nil
}
func (f *fakeStore) DeleteChunkEmbeddingsForFile(ctx context.Context, projectPath, relativePath string) ([]int64, error) {
	return nil, nil
}
func (f *fakeStore) UpsertChunkEmbedding(ctx context.Context, chunk store.ChunkEmbedding) (int64, error) {
	return 0, nil
}
func (f *fakeStore) GetEmbeddingsByRowIDs(ctx context.Context, ids []int64) (map[int64]store.EmbeddingRef, error) {
	return f.embeddingRefs, nil
}
func (f *fakeStore) SemanticSearch(ctx context.Context, projectPath string, queryVec []float32, k int) ([]store.SemanticHit, error) {
	return f.semanticHits, f.semanticErr
}
func (f *fakeStore) GetAllEmbeddingIDsAndVectors(ctx context.Context, projectPath string) ([]int64, [][]float32, error) {
	return nil, nil, nil
}
func (f *fakeStore) QuerySymbols(ctx context.Context, likePattern string) ([]store.Symbol, error) {
	return f.likeSymbols, nil
}
func (f *fakeStore) QueryFilesByPath(ctx context.Context, projectPath, likePattern string) ([]store.FileIndexEntry, error) {
	return f.likeFiles, nil
}
func (f *fakeStore) FTSSearchSymbols(ctx context.Context, query string, limit int) ([]store.FTSSymbolHit, error) {
	return f.ftsSymbols, f.ftsSymbolsErr
}
func (f *fakeStore) FTSSearchFiles(ctx context.Context, query, projectPath string, limit int) ([]store.FTSFileHit, error) {
	return f.ftsFiles, f.ftsFilesErr
}
func (f *fakeStore) SaveVocabulary(ctx context.Context, projectPath string, vocabularyJSON []byte) error {
	return nil
}
func (f *fakeStore) LoadVocabulary(ctx context.Context, projectPath string) ([]byte, error) {
	return nil, nil
}
func (f *fakeStore) SaveEmbeddingConfig(ctx context.Context, projectPath string, configJSON []byte) error {
	return nil
}
func (f *fakeStore) LoadEmbeddingConfig(ctx context.Context, projectPath string) ([]byte, error) {
	return nil, nil
}
func (f *fakeStore) GetProjectSummary(ctx context.Context, projectPath string) (store.ProjectIndexSummary, error) {
	return store.ProjectIndexSummary{}, nil
}
func (f *fakeStore) DeleteProjectIndex(ctx context.Context, projectPath string) error { return nil }
func (f *fakeStore) Close() error                                                    { return nil }

func TestSearch_WithNoEmbedderSkipsSemanticChannel(t *testing.T) {
	fs := &fakeStore{
		ftsSymbols: []store.FTSSymbolHit{{Symbol: store.Symbol{Name: "Foo", ContainingFile: "foo.go"}, Rank: 1}},
	}
	eng := New(fs, nil, nil, nil)

	outcome, err := eng.Search(context.Background(), "foo", Options{ProjectPath: "/proj"})
	require.NoError(t, err)
	require.NotContains(t, outcome.ActiveChannels, channelSemantic)
	require.False(t, outcome.SemanticDegraded)
	require.Len(t, outcome.Results, 1)
	require.Equal(t, "foo.go", outcome.Results[0].FilePath)
}

func TestSearch_SymbolChannelFallsBackToLikeOnFTSError(t *testing.T) {
	fs := &fakeStore{
		ftsSymbolsErr: errors.New("fts5 unavailable"),
		likeSymbols:   []store.Symbol{{Name: "Bar", ContainingFile: "bar.go"}},
	}
	eng := New(fs, nil, nil, nil)

	outcome, err := eng.Search(context.Background(), "bar", Options{ProjectPath: "/proj"})
	require.NoError(t, err)
	require.Contains(t, outcome.ActiveChannels, channelSymbol)
	require.Len(t, outcome.Results, 1)
	require.Equal(t, "bar.go", outcome.Results[0].FilePath)
}

func TestSearch_NoChannelsYieldsEmptyResults(t *testing.T) {
	fs := &fakeStore{}
	eng := New(fs, nil, nil, nil)

	outcome, err := eng.Search(context.Background(), "nothing", Options{ProjectPath: "/proj"})
	require.NoError(t, err)
	require.Empty(t, outcome.Results)
}

func TestSearch_OrdersByScoreBeforePath(t *testing.T) {
	fs := &fakeStore{
		ftsFiles: []store.FTSFileHit{
			{RelativePath: "z.go", Rank: 1},
			{RelativePath: "a.go", Rank: 2},
		},
	}
	eng := New(fs, nil, nil, nil)

	outcome, err := eng.Search(context.Background(), "q", Options{ProjectPath: "/proj"})
	require.NoError(t, err)
	require.Len(t, outcome.Results, 2)
	// z.go ranked first in the channel so it scores higher; order is by
	// score, not alphabetical, confirming tie-break only applies on equal
	// scores.
	require.Equal(t, "z.go", outcome.Results[0].FilePath)
	require.Equal(t, "a.go", outcome.Results[1].FilePath)
}

func TestSearch_MaxResultsTruncates(t *testing.T) {
	fs := &fakeStore{
		ftsFiles: []store.FTSFileHit{
			{RelativePath: "a.go"}, {RelativePath: "b.go"}, {RelativePath: "c.go"},
		},
	}
	eng := New(fs, nil, nil, nil)

	outcome, err := eng.Search(context.Background(), "q", Options{ProjectPath: "/proj", MaxResults: 2})
	require.NoError(t, err)
	require.Len(t, outcome.Results, 2)
}
