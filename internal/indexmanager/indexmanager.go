// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package indexmanager is the IndexManager: a per-process singleton that
// owns one BackgroundIndexer, one store.VectorStore, and one AnnIndex per
// project, and exposes ensure_indexed/start_indexing/trigger_reindex/
// remove_directory plus a status-event stream (spec.md §4.8). Grounded on
// haasonsaas-nexus's internal/templates/registry.go for the
// map-of-handles-plus-mutex shape a singleton manager takes in the
// example pack, and on amanmcp's indexer-vs-search-engine separation for
// how a per-project handle wires a VectorStore/AnnIndex pair into both an
// Indexer and a search.Engine without either owning the other's
// lifecycle.
package indexmanager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/AleutianAI/aleutian-core/internal/annindex"
	cfgpkg "github.com/AleutianAI/aleutian-core/internal/config"
	"github.com/AleutianAI/aleutian-core/internal/embedding"
	"github.com/AleutianAI/aleutian-core/internal/indexer"
	"github.com/AleutianAI/aleutian-core/internal/keyring"
	"github.com/AleutianAI/aleutian-core/internal/search"
	"github.com/AleutianAI/aleutian-core/internal/store"
)

// projectHandle bundles every live resource one indexed project owns.
type projectHandle struct {
	vs       store.VectorStore
	ann      *annindex.Index
	embedder *embedding.Manager
	engine   *search.Engine
	idx      *indexer.Indexer

	cancel context.CancelFunc
}

// Manager is the IndexManager singleton. One Manager is constructed per
// process (cmd/agentd wires it once); every project's indexing state
// lives in its active/statuses maps.
type Manager struct {
	mu       sync.Mutex
	dataHome string
	keys     keyring.Store
	logger   *slog.Logger
	events   chan IndexStatusEvent

	active   map[string]*projectHandle
	statuses map[string]IndexStatusEvent

	triggerGuard sync.Map // project path -> struct{}
}

// New constructs a Manager. dataHome is the root every project's
// VectorStore and AnnIndex persist under; keys resolves cloud-provider
// API keys by alias (spec.md §6).
func New(dataHome string, keys keyring.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		dataHome: dataHome,
		keys:     keys,
		logger:   logger,
		events:   make(chan IndexStatusEvent, 64),
		active:   make(map[string]*projectHandle),
		statuses: make(map[string]IndexStatusEvent),
	}
}

// Events returns the status-event stream. Consumed by the orchestrator's
// event sink to surface index progress to the UI layer, per spec.md §4.8.
func (m *Manager) Events() <-chan IndexStatusEvent { return m.events }

// Status returns the last known status for path, or the zero-value idle
// status if path has never been indexed this process.
func (m *Manager) Status(path string) IndexStatusEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev, ok := m.statuses[path]; ok {
		return ev
	}
	return IndexStatusEvent{ProjectPath: path, Status: StatusIdle, LSPEnrichment: LSPNone}
}

// EnsureIndexed is spec.md §4.8's ensure_indexed(path): a no-op re-entrant
// guard so a flurry of requests for the same path (e.g. several tool
// calls opening the same project) doesn't spawn duplicate indexers, a
// restore-from-persisted-state fast path when the project was already
// indexed in a previous process, and otherwise a fresh StartIndexing.
func (m *Manager) EnsureIndexed(ctx context.Context, path string) error {
	if _, loaded := m.triggerGuard.LoadOrStore(path, struct{}{}); loaded {
		return nil
	}
	defer m.triggerGuard.Delete(path)

	m.mu.Lock()
	_, running := m.active[path]
	m.mu.Unlock()
	if running {
		return nil
	}

	vs, err := m.openStore(path)
	if err != nil {
		return fmt.Errorf("indexmanager: opening store for %s: %w", path, err)
	}

	summary, err := vs.GetProjectSummary(ctx, path)
	if err != nil {
		_ = vs.Close()
		return fmt.Errorf("indexmanager: reading summary for %s: %w", path, err)
	}

	if summary.TotalFiles > 0 {
		// Previously indexed in a prior process: adopt the persisted state
		// rather than re-walking from scratch, and only start watching for
		// further changes.
		return m.restore(ctx, path, vs, summary)
	}

	_ = vs.Close()
	return m.StartIndexing(ctx, path)
}

// restore adopts an already-populated VectorStore/AnnIndex pair (built in
// a previous process) and resumes the incremental watcher against it,
// without repeating the full walk.
func (m *Manager) restore(ctx context.Context, path string, vs store.VectorStore, summary store.ProjectIndexSummary) error {
	ann := annindex.New(path, m.dataHome, m.logger)
	embedder, providerName := m.buildEmbeddingManager(ctx, vs, path)
	if embedder != nil {
		ann.SetDimension(embedder.Dimension())
		ann.LoadFromDisk()
	}

	engine := search.New(vs, ann, embedder, m.logger)
	idx := indexer.New(path, vs, ann, embedder, m.logger)

	watchCtx, cancel := context.WithCancel(context.Background())
	handle := &projectHandle{vs: vs, ann: ann, embedder: embedder, engine: engine, idx: idx, cancel: cancel}

	m.mu.Lock()
	m.active[path] = handle
	m.mu.Unlock()

	status := StatusIndexed
	if summary.EmbeddingChunks == 0 {
		status = StatusIndexedNoEmbedding
	}
	m.emit(IndexStatusEvent{
		ProjectPath:           path,
		Status:                status,
		IndexedFiles:          summary.TotalFiles,
		TotalFiles:            summary.TotalFiles,
		TotalSymbols:          summary.TotalSymbols,
		EmbeddingChunks:       summary.EmbeddingChunks,
		EmbeddingProviderName: providerName,
	})

	if err := idx.StartWatch(watchCtx); err != nil {
		m.logger.Warn("indexmanager: resuming watch failed", "path", path, "error", err)
	}
	return nil
}

// StartIndexing is spec.md §4.8's start_indexing(path): abort any
// existing indexer for path, then spawn a fresh BackgroundIndexer whose
// progress callbacks feed the status-event stream, running the full walk
// synchronously before handing off to the incremental watcher.
func (m *Manager) StartIndexing(ctx context.Context, path string) error {
	m.abort(path)

	vs, err := m.openStore(path)
	if err != nil {
		return fmt.Errorf("indexmanager: opening store for %s: %w", path, err)
	}

	ann := annindex.New(path, m.dataHome, m.logger)
	embedder, providerName := m.buildEmbeddingManager(ctx, vs, path)
	if embedder != nil {
		ann.SetDimension(embedder.Dimension())
	}

	engine := search.New(vs, ann, embedder, m.logger)
	idxr := indexer.New(path, vs, ann, embedder, m.logger)

	watchCtx, cancel := context.WithCancel(context.Background())
	handle := &projectHandle{vs: vs, ann: ann, embedder: embedder, engine: engine, idx: idxr, cancel: cancel}

	m.mu.Lock()
	m.active[path] = handle
	m.mu.Unlock()

	m.emit(IndexStatusEvent{ProjectPath: path, Status: StatusIndexing})

	totalFiles := 0
	idxr.OnProgress(func(done, total int) {
		totalFiles = total
		m.emit(IndexStatusEvent{
			ProjectPath:  path,
			Status:       StatusIndexing,
			IndexedFiles: done,
			TotalFiles:   total,
		})
	})
	idxr.OnBatchComplete(func() {
		summary, sumErr := vs.GetProjectSummary(ctx, path)
		if sumErr != nil {
			return
		}
		m.emit(IndexStatusEvent{
			ProjectPath:           path,
			Status:                StatusIndexing,
			IndexedFiles:          summary.TotalFiles,
			TotalFiles:            totalFiles,
			TotalSymbols:          summary.TotalSymbols,
			EmbeddingChunks:       summary.EmbeddingChunks,
			EmbeddingProviderName: providerName,
		})
	})

	if err := idxr.RunFullWalk(ctx); err != nil {
		m.emit(IndexStatusEvent{ProjectPath: path, Status: StatusError, ErrorMessage: err.Error()})
		return fmt.Errorf("indexmanager: full walk failed for %s: %w", path, err)
	}

	if ann.IsReady() {
		if err := ann.SaveToDisk(); err != nil {
			m.logger.Warn("indexmanager: saving ann index failed", "path", path, "error", err)
		}
	}
	if embedder != nil {
		m.persistVocabulary(ctx, vs, path, embedder)
	}

	summary, err := vs.GetProjectSummary(ctx, path)
	if err != nil {
		m.emit(IndexStatusEvent{ProjectPath: path, Status: StatusError, ErrorMessage: err.Error()})
		return fmt.Errorf("indexmanager: reading summary for %s: %w", path, err)
	}

	finalStatus := StatusIndexed
	if summary.EmbeddingChunks == 0 {
		finalStatus = StatusIndexedNoEmbedding
	}
	m.emit(IndexStatusEvent{
		ProjectPath:           path,
		Status:                finalStatus,
		IndexedFiles:          summary.TotalFiles,
		TotalFiles:            summary.TotalFiles,
		TotalSymbols:          summary.TotalSymbols,
		EmbeddingChunks:       summary.EmbeddingChunks,
		EmbeddingProviderName: providerName,
	})

	if err := idxr.StartWatch(watchCtx); err != nil {
		m.logger.Warn("indexmanager: starting watch failed", "path", path, "error", err)
	}
	return nil
}

// TriggerReindex is spec.md §4.8's trigger_reindex(path): drop every
// persisted artifact for path, both the VectorStore rows and the AnnIndex
// snapshot, then start_indexing from scratch.
func (m *Manager) TriggerReindex(ctx context.Context, path string) error {
	m.abort(path)

	vs, err := m.openStore(path)
	if err != nil {
		return fmt.Errorf("indexmanager: opening store for %s: %w", path, err)
	}
	if err := vs.DeleteProjectIndex(ctx, path); err != nil {
		_ = vs.Close()
		return fmt.Errorf("indexmanager: deleting project index for %s: %w", path, err)
	}
	_ = vs.Close()

	if err := annindex.New(path, m.dataHome, m.logger).RemoveFromDisk(); err != nil {
		m.logger.Warn("indexmanager: removing ann index from disk failed", "path", path, "error", err)
	}

	return m.StartIndexing(ctx, path)
}

// RemoveDirectory is spec.md §4.8's remove_directory(path): abort any
// running indexer and drop the in-memory caches and status entirely,
// without touching persisted storage (a project simply closed in the UI
// is not the same as a reindex request).
func (m *Manager) RemoveDirectory(path string) {
	m.abort(path)
	m.mu.Lock()
	delete(m.statuses, path)
	m.mu.Unlock()
}

// abort cancels and evicts path's projectHandle, if one is active.
func (m *Manager) abort(path string) {
	m.mu.Lock()
	handle, ok := m.active[path]
	if ok {
		delete(m.active, path)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	handle.cancel()
	if err := handle.idx.StopWatch(); err != nil {
		m.logger.Warn("indexmanager: stopping watch failed", "path", path, "error", err)
	}
	if err := handle.vs.Close(); err != nil {
		m.logger.Warn("indexmanager: closing store failed", "path", path, "error", err)
	}
}

// emit records ev as the latest status for its project and publishes it
// on the event stream, carrying the previous LSPEnrichment value forward
// when ev doesn't explicitly set one — an indexing-status update must
// never clobber an enrichment already in flight.
func (m *Manager) emit(ev IndexStatusEvent) {
	m.mu.Lock()
	if ev.LSPEnrichment == "" {
		if prev, ok := m.statuses[ev.ProjectPath]; ok {
			ev.LSPEnrichment = prev.LSPEnrichment
		} else {
			ev.LSPEnrichment = LSPNone
		}
	}
	m.statuses[ev.ProjectPath] = ev
	m.mu.Unlock()

	select {
	case m.events <- ev:
	default:
		m.logger.Warn("indexmanager: event stream full, dropping status event", "path", ev.ProjectPath, "status", ev.Status)
	}
}

// SetLSPEnrichment updates only the LSP enrichment sub-status for path,
// leaving its indexing status untouched. The hook an LSP integration
// calls as it begins and finishes enriching a project's symbols.
func (m *Manager) SetLSPEnrichment(path string, enrichment LSPEnrichment) {
	m.mu.Lock()
	prev, ok := m.statuses[path]
	if !ok {
		prev = IndexStatusEvent{ProjectPath: path, Status: StatusIdle}
	}
	prev.LSPEnrichment = enrichment
	m.statuses[path] = prev
	m.mu.Unlock()

	select {
	case m.events <- prev:
	default:
	}
}

// storeDBPath mirrors annindex's own data_home-relative disk convention
// (spec.md line 141's `<data_home>/hnsw_indexes/<hash>/`) for the
// VectorStore: spec.md names the AnnIndex path literally but is silent on
// where the VectorStore's SQLite file lives, so this package applies the
// same sha256(project_path)[:16] scheme under a sibling `vector_stores/`
// directory — see DESIGN.md's Open Question decision.
func storeDBPath(dataHome, projectPath string) string {
	sum := sha256.Sum256([]byte(projectPath))
	dir := filepath.Join(dataHome, "vector_stores", hex.EncodeToString(sum[:])[:16])
	return filepath.Join(dir, "index.db")
}

func (m *Manager) openStore(path string) (store.VectorStore, error) {
	dbPath := storeDBPath(m.dataHome, path)
	return store.Open(dbPath)
}

// buildEmbeddingManager is spec.md §4.8's embedding-manager construction
// policy: read the project's persisted EmbeddingConfig, resolve its
// provider's keyring alias, and construct the matching Manager. Any
// resolution failure — no config saved yet, unsupported provider, no
// credential available — falls back to local TF-IDF with no secondary
// fallback, since TF-IDF itself never fails to construct or embed.
func (m *Manager) buildEmbeddingManager(ctx context.Context, vs store.VectorStore, path string) (*embedding.Manager, string) {
	cfg, err := cfgpkg.Load(ctx, vs, path)
	if err != nil {
		m.logger.Warn("indexmanager: loading embedding config failed, falling back to tfidf", "path", path, "error", err)
		cfg = nil
	}
	if cfg == nil {
		d := cfgpkg.Default()
		cfg = &d
	}

	provider, providerName, err := m.buildProvider(*cfg)
	if err != nil {
		m.logger.Warn("indexmanager: building embedding provider failed, falling back to tfidf", "path", path, "provider", cfg.Provider, "error", err)
		provider = embedding.NewTFIDFProvider()
		providerName = string(cfgpkg.ProviderTFIDF)
	}

	mgr := embedding.NewManager(provider, embedding.WithLogger(m.logger))
	m.restoreVocabulary(ctx, vs, path, mgr)
	return mgr, providerName
}

// restoreVocabulary loads a previously persisted TF-IDF vocabulary into
// mgr, per spec.md line 194 ("Restore TF-IDF vocabulary from VectorStore
// if not already loaded"). A no-op for providers without a vocabulary.
func (m *Manager) restoreVocabulary(ctx context.Context, vs store.VectorStore, path string, mgr *embedding.Manager) {
	raw, err := vs.LoadVocabulary(ctx, path)
	if err != nil {
		m.logger.Warn("indexmanager: loading vocabulary failed", "path", path, "error", err)
		return
	}
	if raw == nil {
		return
	}
	var snap embedding.VocabularySnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		m.logger.Warn("indexmanager: decoding vocabulary failed", "path", path, "error", err)
		return
	}
	mgr.LoadVocabulary(snap)
}

// persistVocabulary saves mgr's current vocabulary, if it has one, so the
// next process restore skips re-learning it from scratch.
func (m *Manager) persistVocabulary(ctx context.Context, vs store.VectorStore, path string, mgr *embedding.Manager) {
	snap, ok := mgr.SnapshotVocabulary()
	if !ok {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		m.logger.Warn("indexmanager: encoding vocabulary failed", "path", path, "error", err)
		return
	}
	if err := vs.SaveVocabulary(ctx, path, raw); err != nil {
		m.logger.Warn("indexmanager: saving vocabulary failed", "path", path, "error", err)
	}
}

// buildProvider constructs the embedding.Provider named by cfg, resolving
// its API key through the keyring by provider-name alias.
func (m *Manager) buildProvider(cfg cfgpkg.EmbeddingConfig) (embedding.Provider, string, error) {
	switch cfg.Provider {
	case cfgpkg.ProviderTFIDF:
		return embedding.NewTFIDFProvider(), string(cfgpkg.ProviderTFIDF), nil

	case cfgpkg.ProviderOllama:
		return embedding.NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.Dimension), string(cfgpkg.ProviderOllama), nil

	case cfgpkg.ProviderQwen, cfgpkg.ProviderGLM, cfgpkg.ProviderOpenAI:
		key, ok, err := m.keys.Resolve(string(cfg.Provider))
		if err != nil {
			return nil, "", fmt.Errorf("resolving key for %s: %w", cfg.Provider, err)
		}
		if !ok {
			return nil, "", fmt.Errorf("no key stored for provider %s", cfg.Provider)
		}
		switch cfg.Provider {
		case cfgpkg.ProviderQwen:
			return embedding.NewQwenProvider(key, cfg.BaseURL, cfg.Model, cfg.Dimension), string(cfgpkg.ProviderQwen), nil
		case cfgpkg.ProviderGLM:
			return embedding.NewGLMProvider(key, cfg.BaseURL, cfg.Model, cfg.Dimension), string(cfgpkg.ProviderGLM), nil
		default:
			return embedding.NewOpenAIProvider(key, cfg.BaseURL, cfg.Model, cfg.Dimension), string(cfgpkg.ProviderOpenAI), nil
		}

	default:
		return nil, "", fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

// Engine returns the search.Engine for an already-indexed path, if one is
// active. Callers (the orchestrator's search tool) must call EnsureIndexed
// first; ok is false if no indexer has been started for path.
func (m *Manager) Engine(path string) (*search.Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	handle, ok := m.active[path]
	if !ok {
		return nil, false
	}
	return handle.engine, true
}

// Store returns the VectorStore handle for an already-indexed path, if one
// is active. The Orchestrator persists ExecutionSession/StoryState rows
// through this same handle (SPEC_FULL.md §4.11: "reusing the same SQLite
// handle rather than a second store") instead of opening its own.
func (m *Manager) Store(path string) (store.VectorStore, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	handle, ok := m.active[path]
	if !ok {
		return nil, false
	}
	return handle.vs, true
}

// VacuumAll runs housekeeping against every currently active project: a
// SQLite VACUUM of its VectorStore and an expired-entry sweep of its
// embedding cache. Called by internal/orchestrator's periodic cron sweep
// (SPEC_FULL.md §4.11), not from any request path — both operations are
// too slow to run inline after a delete.
func (m *Manager) VacuumAll(ctx context.Context) {
	m.mu.Lock()
	handles := make(map[string]*projectHandle, len(m.active))
	for path, h := range m.active {
		handles[path] = h
	}
	m.mu.Unlock()

	for path, h := range handles {
		if err := h.vs.Vacuum(ctx); err != nil {
			m.logger.Warn("indexmanager: vacuuming store failed", "path", path, "error", err)
		}
		if h.embedder == nil {
			continue
		}
		if err := h.embedder.VacuumCache(0.5); err != nil {
			m.logger.Warn("indexmanager: vacuuming embedding cache failed", "path", path, "error", err)
		}
	}
}

// Shutdown aborts every active project's indexer and closes its store.
// Called once at process exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	paths := make([]string, 0, len(m.active))
	for p := range m.active {
		paths = append(paths, p)
	}
	m.mu.Unlock()
	for _, p := range paths {
		m.abort(p)
	}
}
