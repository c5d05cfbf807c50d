// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package indexer is the BackgroundIndexer: a full-walk-then-watch
// pipeline that keeps one project's store.VectorStore and annindex.Index
// current, per spec.md §4.7. Phase 1 walks the tree, hashing and
// symbol-extracting changed files; Phase 1b chunks and embeds them; Phase
// 2 consumes a debounced fsnotify stream for incremental updates.
// Grounded on haasonsaas-nexus's internal/templates/registry.go watch
// loop (fsnotify.Watcher, a single debounce timer reset on every event)
// for Phase 2's shape.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/aleutian-core/internal/annindex"
	"github.com/AleutianAI/aleutian-core/internal/embedding"
	"github.com/AleutianAI/aleutian-core/internal/store"
)

const (
	// changeChannelCapacity is Phase 2's bounded file-change channel,
	// per spec.md §4.7 / §3 back-pressure note.
	changeChannelCapacity = 4096
	watchDebounce         = 300 * time.Millisecond
	maxFileSizeBytes      = 4 * 1024 * 1024
)

// Progress is Phase 1's periodic progress callback: done/total files
// processed so far in this walk.
type Progress func(done, total int)

// BatchComplete fires after each unit of Phase 1b persists, and after
// each incremental change persists, so IndexManager can refresh its
// externally visible status, per spec.md §4.7.
type BatchComplete func()

// Indexer runs the full walk-then-watch pipeline for one project.
// Embedder may be nil — Phase 1b and incremental embedding are skipped
// entirely when no EmbeddingManager is configured for the project.
type Indexer struct {
	projectPath string
	vs          store.VectorStore
	ann         *annindex.Index
	embedder    *embedding.Manager
	logger      *slog.Logger

	onProgress      Progress
	onBatchComplete BatchComplete

	watcher     *fsnotify.Watcher
	watcherMu   sync.Mutex
	cancelWatch context.CancelFunc
	watchWg     sync.WaitGroup
}

// New constructs an Indexer for projectPath.
func New(projectPath string, vs store.VectorStore, ann *annindex.Index, embedder *embedding.Manager, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{projectPath: projectPath, vs: vs, ann: ann, embedder: embedder, logger: logger}
}

// OnProgress registers Phase 1's progress callback.
func (idx *Indexer) OnProgress(f Progress) { idx.onProgress = f }

// OnBatchComplete registers the Phase 1b / Phase 2 batch callback.
func (idx *Indexer) OnBatchComplete(f BatchComplete) { idx.onBatchComplete = f }

// RunFullWalk executes Phase 1 and Phase 1b: walk, hash, symbol-extract,
// upsert, then chunk-embed-persist-ANN-insert for every new or changed
// file. Runs exactly once per call, per spec.md §4.7's termination note.
func (idx *Indexer) RunFullWalk(ctx context.Context) error {
	ignore := loadIgnoreSet(idx.projectPath)

	var paths []string
	err := filepath.WalkDir(idx.projectPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(idx.projectPath, path)
		if relErr != nil {
			return nil
		}
		if d.IsDir() {
			if rel != "." && (isIgnoredDir(d.Name()) || ignore.matches(rel)) {
				return filepath.SkipDir
			}
			return nil
		}
		if ignore.matches(rel) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("indexer: walk failed: %w", err)
	}

	total := len(paths)
	done := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if procErr := idx.processFile(ctx, path); procErr != nil {
			idx.logger.Warn("indexer: processing file failed", "path", path, "error", procErr)
		}
		done++
		if idx.onProgress != nil {
			idx.onProgress(done, total)
		}
	}

	return nil
}

// processFile runs the single-file pipeline: hash, skip-if-unchanged,
// symbol-extract, upsert, then (if embedding is configured) chunk/embed.
func (idx *Indexer) processFile(ctx context.Context, absPath string) error {
	info, err := os.Stat(absPath)
	if err != nil {
		return err
	}
	if info.Size() > maxFileSizeBytes {
		return nil
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(idx.projectPath, absPath)
	if err != nil {
		return err
	}

	hash := contentHash(content)

	existing, err := idx.vs.QueryFilesByPath(ctx, idx.projectPath, rel)
	if err == nil {
		for _, e := range existing {
			if e.RelativePath == rel && e.ContentHash == hash {
				return nil // unchanged, skip re-parse
			}
		}
	}

	language := detectLanguage(absPath)
	entry := store.FileIndexEntry{
		ProjectPath:  idx.projectPath,
		RelativePath: rel,
		Component:    topLevelComponent(rel),
		Language:     language,
		SizeBytes:    info.Size(),
		LineCount:    countLines(content),
		IsTest:       isTestFile(rel),
		ContentHash:  hash,
		Symbols:      extractSymbols(content, rel, language),
	}

	if err := idx.vs.UpsertFileIndex(ctx, entry); err != nil {
		return fmt.Errorf("indexer: upsert_file_index: %w", err)
	}

	if idx.embedder == nil {
		return nil
	}
	if err := idx.embedAndPersist(ctx, rel, string(content)); err != nil {
		// Phase 1b's embedding failures are recorded and do not stop the
		// walk, per spec.md §4.7.
		idx.logger.Warn("indexer: embedding failed, continuing", "path", rel, "error", err)
	}
	if idx.onBatchComplete != nil {
		idx.onBatchComplete()
	}
	return nil
}

// embedAndPersist chunks content, embeds every chunk, persists the
// vectors, and inserts each into the AnnIndex (if configured).
func (idx *Indexer) embedAndPersist(ctx context.Context, relPath, content string) error {
	chunks := chunkText(content)
	if len(chunks) == 0 {
		return nil
	}

	idx.embedder.FitVocabulary(chunks)
	vecs, err := idx.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return err
	}

	staleIDs, err := idx.vs.DeleteChunkEmbeddingsForFile(ctx, idx.projectPath, relPath)
	if err != nil {
		return fmt.Errorf("indexer: clearing stale chunk embeddings: %w", err)
	}

	if idx.ann != nil {
		idx.ann.SetDimension(idx.embedder.Dimension())
		for _, id := range staleIDs {
			idx.ann.Delete(id)
		}
	}

	for i, vec := range vecs {
		rowID, err := idx.vs.UpsertChunkEmbedding(ctx, store.ChunkEmbedding{
			ProjectPath: idx.projectPath,
			FilePath:    relPath,
			ChunkIndex:  i,
			ChunkText:   chunks[i],
			Vector:      vec,
			Dimension:   len(vec),
			ProviderID:  idx.embedder.ActiveProviderName(),
			ModelID:     idx.embedder.ActiveModelName(),
		})
		if err != nil {
			return fmt.Errorf("indexer: persisting chunk embedding: %w", err)
		}
		if idx.ann != nil {
			if insErr := idx.ann.Insert(rowID, vec); insErr != nil {
				idx.logger.Warn("indexer: ann insert failed", "path", relPath, "error", insErr)
			}
		}
	}
	return nil
}

// StartWatch begins Phase 2: an fsnotify watcher over the project tree,
// debounced, feeding a bounded change channel. On overflow, a catch-up
// full walk is triggered to reconcile (spec.md §4.7).
func (idx *Indexer) StartWatch(ctx context.Context) error {
	idx.watcherMu.Lock()
	if idx.watcher != nil {
		idx.watcherMu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		idx.watcherMu.Unlock()
		return fmt.Errorf("indexer: creating watcher: %w", err)
	}
	idx.watcher = watcher
	watchCtx, cancel := context.WithCancel(ctx)
	idx.cancelWatch = cancel
	idx.watcherMu.Unlock()

	if err := idx.addWatchDirs(watcher); err != nil {
		idx.logger.Warn("indexer: adding watch dirs failed", "error", err)
	}

	changes := make(chan fsnotify.Event, changeChannelCapacity)
	overflow := make(chan struct{}, 1)

	idx.watchWg.Add(2)
	go idx.pumpEvents(watchCtx, watcher, changes, overflow)
	go idx.consumeChanges(watchCtx, changes, overflow)

	return nil
}

// StopWatch ends Phase 2.
func (idx *Indexer) StopWatch() error {
	idx.watcherMu.Lock()
	if idx.cancelWatch != nil {
		idx.cancelWatch()
		idx.cancelWatch = nil
	}
	watcher := idx.watcher
	idx.watcher = nil
	idx.watcherMu.Unlock()

	if watcher != nil {
		_ = watcher.Close()
	}
	idx.watchWg.Wait()
	return nil
}

func (idx *Indexer) addWatchDirs(watcher *fsnotify.Watcher) error {
	ignore := loadIgnoreSet(idx.projectPath)
	return filepath.WalkDir(idx.projectPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(idx.projectPath, path)
		if relErr != nil {
			return nil
		}
		if rel != "." && (isIgnoredDir(d.Name()) || ignore.matches(rel)) {
			return filepath.SkipDir
		}
		if wErr := watcher.Add(path); wErr != nil {
			idx.logger.Debug("indexer: watch add failed", "path", path, "error", wErr)
		}
		return nil
	})
}

// pumpEvents forwards fsnotify events into the bounded changes channel,
// raising overflow when the channel is full rather than blocking the
// watcher's own goroutine, per spec.md §3's back-pressure note.
func (idx *Indexer) pumpEvents(ctx context.Context, watcher *fsnotify.Watcher, changes chan<- fsnotify.Event, overflow chan<- struct{}) {
	defer idx.watchWg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			select {
			case changes <- event:
			default:
				select {
				case overflow <- struct{}{}:
				default:
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			idx.logger.Warn("indexer: watch error", "error", err)
		}
	}
}

// consumeChanges debounces bursts of events per path and runs the
// single-file pipeline (or delete path) once the debounce window elapses.
// An overflow signal triggers a full catch-up walk instead.
func (idx *Indexer) consumeChanges(ctx context.Context, changes <-chan fsnotify.Event, overflow <-chan struct{}) {
	defer idx.watchWg.Done()

	var mu sync.Mutex
	timers := make(map[string]*time.Timer)

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[path]; ok {
			t.Stop()
		}
		timers[path] = time.AfterFunc(watchDebounce, func() {
			idx.handleChange(ctx, path)
			if idx.onBatchComplete != nil {
				idx.onBatchComplete()
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-changes:
			if !ok {
				return
			}
			schedule(event.Name)
		case _, ok := <-overflow:
			if !ok {
				return
			}
			idx.logger.Warn("indexer: watch channel overflow, running catch-up walk")
			if err := idx.RunFullWalk(ctx); err != nil {
				idx.logger.Warn("indexer: catch-up walk failed", "error", err)
			}
		}
	}
}

func (idx *Indexer) handleChange(ctx context.Context, absPath string) {
	rel, err := filepath.Rel(idx.projectPath, absPath)
	if err != nil {
		return
	}

	if _, statErr := os.Stat(absPath); errors.Is(statErr, os.ErrNotExist) {
		rowIDs, delErr := idx.vs.DeleteFileIndex(ctx, idx.projectPath, rel)
		if delErr != nil {
			idx.logger.Warn("indexer: delete_file_index failed", "path", rel, "error", delErr)
			return
		}
		if idx.ann != nil {
			for _, id := range rowIDs {
				idx.ann.Delete(id)
			}
		}
		return
	}

	if err := idx.processFile(ctx, absPath); err != nil {
		idx.logger.Warn("indexer: reprocessing changed file failed", "path", rel, "error", err)
	}
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := 1
	for _, b := range content {
		if b == '\n' {
			n++
		}
	}
	return n
}

// topLevelComponent is the first path segment, a light heuristic for
// FileIndexEntry.Component (e.g. "internal", "services", "cmd").
func topLevelComponent(relPath string) string {
	if i := indexOfSeparator(relPath); i >= 0 {
		return relPath[:i]
	}
	return relPath
}

func indexOfSeparator(s string) int {
	for i, r := range s {
		if r == '/' || r == os.PathSeparator {
			return i
		}
	}
	return -1
}
