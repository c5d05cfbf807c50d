// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertFileIndex_IdempotentAndReplacesSymbols(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	entry := FileIndexEntry{
		ProjectPath:  "/proj",
		RelativePath: "main.go",
		Language:     "go",
		ContentHash:  "h1",
		Symbols: []Symbol{
			{Name: "main", Kind: SymbolFunction, LineNumber: 10, ContainingFile: "main.go"},
		},
	}
	require.NoError(t, s.UpsertFileIndex(ctx, entry))

	entry.ContentHash = "h2"
	entry.Symbols = []Symbol{
		{Name: "run", Kind: SymbolFunction, LineNumber: 20, ContainingFile: "main.go"},
	}
	require.NoError(t, s.UpsertFileIndex(ctx, entry))

	files, err := s.QueryFilesByPath(ctx, "/proj", "main.go")
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "h2", files[0].ContentHash)

	syms, err := s.QuerySymbols(ctx, "%")
	require.NoError(t, err)
	require.Len(t, syms, 1)
	require.Equal(t, "run", syms[0].Name)
}

func TestChunkEmbeddingRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	vec := []float32{0.1, 0.2, 0.3}
	rowID, err := s.UpsertChunkEmbedding(ctx, ChunkEmbedding{
		ProjectPath: "/proj", FilePath: "a.go", ChunkIndex: 0,
		ChunkText: "package main", Vector: vec, Dimension: len(vec),
		ProviderID: "tfidf", ModelID: "tfidf-local-v1",
	})
	require.NoError(t, err)
	require.NotZero(t, rowID)

	refs, err := s.GetEmbeddingsByRowIDs(ctx, []int64{rowID})
	require.NoError(t, err)
	require.Equal(t, "a.go", refs[rowID].FilePath)
	require.Equal(t, "package main", refs[rowID].ChunkText)

	ids, vecs, err := s.GetAllEmbeddingIDsAndVectors(ctx, "/proj")
	require.NoError(t, err)
	require.Equal(t, []int64{rowID}, ids)
	require.Equal(t, vec, vecs[0])
}

func TestSemanticSearchRanksByCosine(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.UpsertChunkEmbedding(ctx, ChunkEmbedding{
		ProjectPath: "/proj", FilePath: "close.go", ChunkText: "close",
		Vector: []float32{1, 0}, Dimension: 2, ProviderID: "p", ModelID: "m",
	})
	require.NoError(t, err)
	_, err = s.UpsertChunkEmbedding(ctx, ChunkEmbedding{
		ProjectPath: "/proj", FilePath: "far.go", ChunkText: "far",
		Vector: []float32{0, 1}, Dimension: 2, ProviderID: "p", ModelID: "m",
	})
	require.NoError(t, err)

	hits, err := s.SemanticSearch(ctx, "/proj", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "close.go", hits[0].FilePath)
	require.Greater(t, hits[0].Similarity, hits[1].Similarity)
}

func TestFTSSearchSymbolsAndFiles(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.UpsertFileIndex(ctx, FileIndexEntry{
		ProjectPath: "/proj", RelativePath: "widget.go", ContentHash: "h1",
		Symbols: []Symbol{{Name: "RenderWidget", Kind: SymbolFunction, LineNumber: 5, ContainingFile: "widget.go"}},
	}))

	symHits, err := s.FTSSearchSymbols(ctx, "widget", 10)
	require.NoError(t, err)
	require.NotEmpty(t, symHits)
	require.Equal(t, "RenderWidget", symHits[0].Symbol.Name)

	fileHits, err := s.FTSSearchFiles(ctx, "widget", "/proj", 10)
	require.NoError(t, err)
	require.NotEmpty(t, fileHits)
	require.Equal(t, "widget.go", fileHits[0].RelativePath)
}

func TestVocabularyRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	got, err := s.LoadVocabulary(ctx, "/proj")
	require.NoError(t, err)
	require.Nil(t, got)

	payload := []byte(`{"token_index":{"foo":0},"idf":[1.2],"num_docs":3}`)
	require.NoError(t, s.SaveVocabulary(ctx, "/proj", payload))

	got, err = s.LoadVocabulary(ctx, "/proj")
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestEmbeddingConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	got, err := s.LoadEmbeddingConfig(ctx, "/proj")
	require.NoError(t, err)
	require.Nil(t, got)

	payload := []byte(`{"provider":"ollama","model":"nomic-embed-text","dimension":768}`)
	require.NoError(t, s.SaveEmbeddingConfig(ctx, "/proj", payload))

	got, err = s.LoadEmbeddingConfig(ctx, "/proj")
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestDeleteProjectIndexRemovesEverything(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.UpsertFileIndex(ctx, FileIndexEntry{
		ProjectPath: "/proj", RelativePath: "a.go", ContentHash: "h1",
		Symbols: []Symbol{{Name: "Foo", Kind: SymbolFunction, LineNumber: 1, ContainingFile: "a.go"}},
	}))
	_, err := s.UpsertChunkEmbedding(ctx, ChunkEmbedding{
		ProjectPath: "/proj", FilePath: "a.go", ChunkText: "foo",
		Vector: []float32{1}, Dimension: 1, ProviderID: "p", ModelID: "m",
	})
	require.NoError(t, err)
	require.NoError(t, s.SaveVocabulary(ctx, "/proj", []byte(`{}`)))

	require.NoError(t, s.DeleteProjectIndex(ctx, "/proj"))

	summary, err := s.GetProjectSummary(ctx, "/proj")
	require.NoError(t, err)
	require.Zero(t, summary.TotalFiles)
	require.Zero(t, summary.TotalSymbols)
	require.Zero(t, summary.EmbeddingChunks)

	vocab, err := s.LoadVocabulary(ctx, "/proj")
	require.NoError(t, err)
	require.Nil(t, vocab)
}

func TestGetProjectSummary(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.UpsertFileIndex(ctx, FileIndexEntry{
		ProjectPath: "/proj", RelativePath: "cmd/main.go", Language: "go", Component: "cmd", ContentHash: "h1",
		Symbols: []Symbol{{Name: "main", Kind: SymbolFunction, LineNumber: 1, ContainingFile: "cmd/main.go"}},
	}))
	require.NoError(t, s.UpsertFileIndex(ctx, FileIndexEntry{
		ProjectPath: "/proj", RelativePath: "internal/foo.go", Language: "go", Component: "internal", ContentHash: "h2",
	}))

	summary, err := s.GetProjectSummary(ctx, "/proj")
	require.NoError(t, err)
	require.Equal(t, 2, summary.TotalFiles)
	require.Equal(t, 1, summary.TotalSymbols)
	require.Equal(t, []string{"go"}, summary.Languages)
	require.ElementsMatch(t, []string{"cmd", "internal"}, summary.Components)
	require.Contains(t, summary.KeyEntryPoints, "cmd/main.go")
}
