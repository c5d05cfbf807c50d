// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package annindex is the AnnIndex: an approximate (here, exact
// brute-force) nearest-neighbor index over f32 vectors under cosine
// distance, with atomic rebuild-via-swap and BadgerDB-backed disk
// persistence (spec.md §4.5). Grounded on the VectorStore interface shape
// in other_examples' amanmcp internal/store (Add/Search/Delete/Count/Save
// against a USearch-style index) and the dimension-mismatch-detection
// discipline in that same pack's index runner
// (storeIndexEmbeddingInfo/vectors.hnsw), generalized from a real HNSW
// library wrapper to a from-scratch cosine index since no pack go.mod
// imports a real HNSW package (e.g. usearch's cgo bindings never appear
// in the retrieved slice) — see DESIGN.md.
package annindex

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/aleutian-core/internal/kvstore"
)

// Hit is one search result: a VectorStore rowid and its cosine distance
// (1 − cosine_similarity) from the query.
type Hit struct {
	DataID   int64
	Distance float32
}

type node struct {
	DataID int64
	Vector []float32
}

// snapshot is the structure swapped atomically on rebuild. Immutable once
// built: readers hold a reference to one snapshot and never observe a
// partial rebuild.
type snapshot struct {
	dimension int
	nodes     []node
}

// Index is the AnnIndex for one project. initialize/set_dimension/insert/
// search/rebuild_from_vectors/save_to_disk/load_from_disk/is_ready/
// get_count from spec.md §4.5 map onto Initialize/SetDimension/Insert/
// Search/RebuildFromVectors/SaveToDisk/LoadFromDisk/IsReady/Count.
type Index struct {
	mu          sync.RWMutex
	dimension   int
	snap        *snapshot
	projectPath string
	dataHome    string
	logger      *slog.Logger
}

// New constructs an Index for projectPath, persisting under dataHome per
// spec.md §4.5's `<data_home>/hnsw_indexes/<sha256(project_path)[:16]>/`
// path convention.
func New(projectPath, dataHome string, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{projectPath: projectPath, dataHome: dataHome, logger: logger, snap: &snapshot{}}
}

// Initialize resets the index to empty with no dimension set.
func (idx *Index) Initialize() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.dimension = 0
	idx.snap = &snapshot{}
}

// SetDimension fixes the vector dimension this index accepts. Calling it
// again with a different value resets the index (a dimension change only
// happens after a provider switch, which always rebuilds from scratch).
func (idx *Index) SetDimension(d int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.dimension == d {
		return
	}
	idx.dimension = d
	idx.snap = &snapshot{dimension: d}
}

// Insert adds one vector under dataID, the VectorStore ROWID. Vectors
// whose length doesn't match the configured dimension are rejected.
func (idx *Index) Insert(dataID int64, vec []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.dimension != 0 && len(vec) != idx.dimension {
		return fmt.Errorf("annindex: vector length %d does not match index dimension %d", len(vec), idx.dimension)
	}
	if idx.dimension == 0 {
		idx.dimension = len(vec)
		idx.snap = &snapshot{dimension: idx.dimension}
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)

	next := &snapshot{dimension: idx.snap.dimension, nodes: make([]node, 0, len(idx.snap.nodes)+1)}
	for _, n := range idx.snap.nodes {
		if n.DataID == dataID {
			continue // replace
		}
		next.nodes = append(next.nodes, n)
	}
	next.nodes = append(next.nodes, node{DataID: dataID, Vector: cp})
	idx.snap = next
	return nil
}

// Search returns the k nearest neighbors to query by cosine distance.
// Reads a single snapshot reference, so a concurrent RebuildFromVectors
// never produces a partial view (spec.md §4.5's atomicity invariant).
func (idx *Index) Search(query []float32, k int) []Hit {
	idx.mu.RLock()
	snap := idx.snap
	idx.mu.RUnlock()

	if len(snap.nodes) == 0 || k <= 0 {
		return nil
	}

	hits := make([]Hit, 0, len(snap.nodes))
	for _, n := range snap.nodes {
		hits = append(hits, Hit{DataID: n.DataID, Distance: cosineDistance(query, n.Vector)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// RebuildFromVectors replaces the index contents atomically: it builds a
// fresh snapshot off to the side, then swaps the pointer under the write
// lock, per spec.md §4.5. Vectors whose length doesn't match dimension
// are skipped and counted.
func (idx *Index) RebuildFromVectors(ids []int64, vecs [][]float32) {
	idx.mu.RLock()
	dim := idx.dimension
	idx.mu.RUnlock()

	next := &snapshot{dimension: dim, nodes: make([]node, 0, len(ids))}
	skipped := 0
	for i := range ids {
		if dim != 0 && len(vecs[i]) != dim {
			skipped++
			continue
		}
		cp := make([]float32, len(vecs[i]))
		copy(cp, vecs[i])
		next.nodes = append(next.nodes, node{DataID: ids[i], Vector: cp})
	}
	if skipped > 0 {
		idx.logger.Warn("annindex: rebuild skipped dimension-mismatched vectors", "count", skipped, "dimension", dim)
	}

	idx.mu.Lock()
	idx.snap = next
	idx.mu.Unlock()
}

// Delete removes dataID from the index, if present, via the same
// copy-on-write snapshot swap Insert uses.
func (idx *Index) Delete(dataID int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	next := &snapshot{dimension: idx.snap.dimension, nodes: make([]node, 0, len(idx.snap.nodes))}
	for _, n := range idx.snap.nodes {
		if n.DataID == dataID {
			continue
		}
		next.nodes = append(next.nodes, n)
	}
	idx.snap = next
}

// IsReady reports whether the index has a dimension and at least one node.
func (idx *Index) IsReady() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dimension != 0 && len(idx.snap.nodes) > 0
}

// Count returns the number of indexed vectors.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.snap.nodes)
}

// diskKey is the Badger key a project's snapshot is stored under.
const diskKey = "annindex/snapshot"

// diskDir returns <data_home>/hnsw_indexes/<sha256(project_path)[:16]>/.
func (idx *Index) diskDir() string {
	sum := sha256.Sum256([]byte(idx.projectPath))
	return filepath.Join(idx.dataHome, "hnsw_indexes", hex.EncodeToString(sum[:])[:16])
}

type wireSnapshot struct {
	Dimension int
	Nodes     []node
}

// SaveToDisk persists the current snapshot, removing any stale directory
// first so a save never leaves mixed old/new state behind.
func (idx *Index) SaveToDisk() error {
	idx.mu.RLock()
	snap := idx.snap
	idx.mu.RUnlock()

	dir := idx.diskDir()
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("annindex: clearing stale index dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("annindex: creating index dir: %w", err)
	}

	db, err := kvstore.Open(dir)
	if err != nil {
		return fmt.Errorf("annindex: opening disk store: %w", err)
	}
	defer db.Close()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(wireSnapshot{Dimension: snap.dimension, Nodes: snap.nodes}); err != nil {
		return fmt.Errorf("annindex: encoding snapshot: %w", err)
	}

	return db.WithTxn(context.Background(), func(txn *badger.Txn) error {
		return txn.Set([]byte(diskKey), buf.Bytes())
	})
}

// RemoveFromDisk deletes any persisted snapshot directory for this project.
// Used by IndexManager.trigger_reindex and remove_directory, which must
// drop the on-disk AnnIndex alongside the in-memory one rather than leave
// a stale snapshot a later LoadFromDisk would resurrect.
func (idx *Index) RemoveFromDisk() error {
	dir := idx.diskDir()
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("annindex: removing index dir: %w", err)
	}
	return nil
}

// LoadFromDisk restores a previously saved snapshot. Returns false (not an
// error) if nothing was saved, or if the restored dimension doesn't match
// the index's currently configured dimension — spec.md §4.5's "mismatch
// returns false rather than corrupting state".
func (idx *Index) LoadFromDisk() bool {
	dir := idx.diskDir()
	if _, err := os.Stat(dir); err != nil {
		return false
	}

	db, err := kvstore.Open(dir)
	if err != nil {
		idx.logger.Warn("annindex: opening disk store for load", "error", err)
		return false
	}
	defer db.Close()

	var raw []byte
	err = db.WithReadTxn(context.Background(), func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(diskKey))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return false
	}

	var ws wireSnapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&ws); err != nil {
		idx.logger.Warn("annindex: decoding snapshot", "error", err)
		return false
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.dimension != 0 && idx.dimension != ws.Dimension {
		return false
	}
	idx.dimension = ws.Dimension
	idx.snap = &snapshot{dimension: ws.Dimension, nodes: ws.Nodes}
	return true
}

func cosineDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return float32(1 - sim)
}
