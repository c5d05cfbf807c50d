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
	"sort"
	"strings"
)

// UpsertChunkEmbedding stores one chunk's vector blob and returns the SQLite
// ROWID that becomes the cross-index identity shared with the AnnIndex node
// id (spec.md §3 "ChunkEmbedding", §4.4).
func (s *SQLiteStore) UpsertChunkEmbedding(ctx context.Context, chunk ChunkEmbedding) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chunk_embeddings (project_path, file_path, chunk_index, chunk_text, vector, dimension, provider_id, model_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, chunk.ProjectPath, chunk.FilePath, chunk.ChunkIndex, chunk.ChunkText,
		encodeVector(chunk.Vector), chunk.Dimension, chunk.ProviderID, chunk.ModelID)
	if err != nil {
		return 0, fmt.Errorf("store: upsert_chunk_embedding: %w", err)
	}
	return res.LastInsertId()
}

// GetEmbeddingsByRowIDs is the join-through from an ANN hit's node id back
// to readable context.
func (s *SQLiteStore) GetEmbeddingsByRowIDs(ctx context.Context, ids []int64) (map[int64]EmbeddingRef, error) {
	out := make(map[int64]EmbeddingRef, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT rowid, file_path, chunk_index, chunk_text
		FROM chunk_embeddings WHERE rowid IN (%s)
	`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: get_embeddings_by_rowids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rowID int64
		var ref EmbeddingRef
		if err := rows.Scan(&rowID, &ref.FilePath, &ref.ChunkIndex, &ref.ChunkText); err != nil {
			return nil, fmt.Errorf("store: scanning embedding ref: %w", err)
		}
		out[rowID] = ref
	}
	return out, rows.Err()
}

// SemanticSearch is the O(n) brute-force cosine ground-truth fallback, used
// when the AnnIndex is unavailable or under rebuild (spec.md §4.4, §4.5).
func (s *SQLiteStore) SemanticSearch(ctx context.Context, projectPath string, queryVec []float32, k int) ([]SemanticHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_path, chunk_index, chunk_text, vector
		FROM chunk_embeddings WHERE project_path = ? AND dimension = ?
	`, projectPath, len(queryVec))
	if err != nil {
		return nil, fmt.Errorf("store: semantic_search: %w", err)
	}
	defer rows.Close()

	var hits []SemanticHit
	for rows.Next() {
		var filePath, chunkText string
		var chunkIdx int
		var blob []byte
		if err := rows.Scan(&filePath, &chunkIdx, &chunkText, &blob); err != nil {
			return nil, fmt.Errorf("store: scanning semantic row: %w", err)
		}
		vec := decodeVector(blob)
		hits = append(hits, SemanticHit{
			FilePath:   filePath,
			ChunkIndex: chunkIdx,
			ChunkText:  chunkText,
			Similarity: cosineSimilarity(queryVec, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// GetAllEmbeddingIDsAndVectors enumerates a project's rows for ANN rebuild.
func (s *SQLiteStore) GetAllEmbeddingIDsAndVectors(ctx context.Context, projectPath string) ([]int64, [][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rowid, vector FROM chunk_embeddings WHERE project_path = ?
	`, projectPath)
	if err != nil {
		return nil, nil, fmt.Errorf("store: get_all_embedding_ids_and_vectors: %w", err)
	}
	defer rows.Close()

	var ids []int64
	var vecs [][]float32
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, nil, fmt.Errorf("store: scanning rebuild row: %w", err)
		}
		ids = append(ids, id)
		vecs = append(vecs, decodeVector(blob))
	}
	return ids, vecs, rows.Err()
}
