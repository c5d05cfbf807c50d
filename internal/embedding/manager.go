// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// RMax is the retry cap per batch, matching the original Rust
	// orchestrator's EMBED_MAX_RETRY_ATTEMPTS constant.
	RMax = 3
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 10 * time.Second

	defaultCacheTTL      = 30 * time.Minute
	defaultCacheCapacity = 10_000

	// batchConcurrency bounds how many of a doc set's batches embed in
	// parallel, mirroring the teacher's toolEmbeddingWarmConcurrency
	// semaphore pattern but applied per-batch instead of per-tool.
	batchConcurrency = 4
)

// Manager is the EmbeddingManager dispatch layer: one primary provider, an
// optional fallback, and a bounded content-addressed Cache, shared safely
// across goroutines. Grounded on the teacher's ToolEmbeddingCache.Warm
// errgroup-based parallel-embed pattern, generalized from a single-document
// warm-up to the batched embed_documents contract of spec.md §4.3.
type Manager struct {
	primary  Provider
	fallback Provider // nil disables fallback
	cache    *Cache
	logger   *slog.Logger

	// mu guards usingFallback, which EmbedDocuments' batches read and
	// write concurrently (batchConcurrency batches in flight at once via
	// errgroup), the same mutex-guarded-flag pattern Cache uses for its
	// own shared state.
	mu            sync.Mutex
	usingFallback bool // sticky: once tripped, stays tripped for this Manager's lifetime
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithFallback attaches a fallback provider used once the primary's retries
// are exhausted with a retryable terminal error.
func WithFallback(p Provider) ManagerOption {
	return func(m *Manager) { m.fallback = p }
}

// WithCache attaches a pre-built Cache (e.g. one wired to persistence via
// Cache.WithPersistence). Without this option, Manager builds its own
// in-memory cache.
func WithCache(c *Cache) ManagerOption {
	return func(m *Manager) { m.cache = c }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager constructs a Manager around primary.
func NewManager(primary Provider, opts ...ManagerOption) *Manager {
	m := &Manager{primary: primary, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	if m.cache == nil {
		m.cache = NewCache()
	}
	return m
}

// VacuumCache evicts expired cache entries and reclaims persisted-tier
// space, for a caller (internal/orchestrator's periodic sweep) that runs
// housekeeping outside the request path.
func (m *Manager) VacuumCache(discardRatio float64) error {
	return m.cache.Vacuum(discardRatio)
}

// Dimension reports the active provider's output dimension — authoritative
// for cache-key dimension-binding and ANN dimension checks, per spec.md §9.
func (m *Manager) Dimension() int {
	return m.activeProvider().Dimension()
}

// ActiveProviderDisplay reports "provider:model" for the currently active
// provider (primary, or fallback once tripped) — used to surface which
// embedding backend served a request without exposing the Provider
// interface itself to callers outside this package.
func (m *Manager) ActiveProviderDisplay() string {
	p := m.activeProvider()
	return p.Name() + ":" + p.Model()
}

// ActiveProviderName and ActiveModelName expose the active provider's
// name and model separately, for callers (BackgroundIndexer) that persist
// them as distinct columns rather than one combined display string.
func (m *Manager) ActiveProviderName() string { return m.activeProvider().Name() }
func (m *Manager) ActiveModelName() string    { return m.activeProvider().Model() }

// VocabularyFitter is implemented by providers (TFIDFProvider) whose
// vocabulary grows with the corpus rather than being fixed at
// construction. BackgroundIndexer calls FitVocabulary on every chunk
// before embedding it, per spec.md §4.2's "embed_documents requires a
// built vocabulary".
type VocabularyFitter interface {
	FitVocabulary(docs []string)
}

// FitVocabulary extends the active provider's vocabulary with docs, if it
// supports one. A no-op for providers with a fixed, pre-trained embedding
// space (Ollama, OpenAI-compatible).
func (m *Manager) FitVocabulary(docs []string) {
	if fitter, ok := m.activeProvider().(VocabularyFitter); ok {
		fitter.FitVocabulary(docs)
	}
}

// VocabularySnapshotter is implemented by providers whose vocabulary can
// be exported and restored across process restarts (TFIDFProvider).
type VocabularySnapshotter interface {
	Snapshot() VocabularySnapshot
	LoadVocabulary(snap VocabularySnapshot)
}

// SnapshotVocabulary returns the active provider's vocabulary snapshot, if
// it supports one, for IndexManager to persist via
// VectorStore.SaveVocabulary.
func (m *Manager) SnapshotVocabulary() (VocabularySnapshot, bool) {
	snapshotter, ok := m.activeProvider().(VocabularySnapshotter)
	if !ok {
		return VocabularySnapshot{}, false
	}
	return snapshotter.Snapshot(), true
}

// LoadVocabulary restores a previously persisted vocabulary into the
// active provider, if it supports one. Returns false if the active
// provider has no vocabulary to restore (not an error).
func (m *Manager) LoadVocabulary(snap VocabularySnapshot) bool {
	snapshotter, ok := m.activeProvider().(VocabularySnapshotter)
	if !ok {
		return false
	}
	snapshotter.LoadVocabulary(snap)
	return true
}

func (m *Manager) activeProvider() Provider {
	m.mu.Lock()
	usingFallback := m.usingFallback
	m.mu.Unlock()
	if usingFallback && m.fallback != nil {
		return m.fallback
	}
	return m.primary
}

// EmbedDocuments embeds docs, in order, applying cache lookup, batching,
// retry and fallback per spec.md §4.3. Returns one vector per doc.
func (m *Manager) EmbedDocuments(ctx context.Context, docs []string) ([][]float32, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	provider := m.activeProvider()
	dim := provider.Dimension()

	result := make([][]float32, len(docs))
	var missIdx []int
	var missDocs []string

	for i, doc := range docs {
		vec, ok := m.cache.Get(ctx, provider.Name(), provider.Model(), doc, dim)
		if ok && dim != 0 && len(vec) != dim {
			// Dimension drift after a provider reconfiguration: reject the
			// hit without erasing it (TTL/eviction clears it later).
			ok = false
			cacheLookupsTotal.WithLabelValues("dimension_mismatch").Inc()
		}
		if ok {
			result[i] = vec
			cacheLookupsTotal.WithLabelValues("hit").Inc()
			continue
		}
		cacheLookupsTotal.WithLabelValues("miss").Inc()
		missIdx = append(missIdx, i)
		missDocs = append(missDocs, doc)
	}

	if len(missDocs) == 0 {
		return result, nil
	}

	batches := chunkBatches(missDocs, provider.MaxBatchSize())

	type batchResult struct {
		offset int
		vecs   [][]float32
	}
	results := make([]batchResult, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, batchConcurrency)
	offset := 0
	for bi, batch := range batches {
		bi, batch, off := bi, batch, offset
		offset += len(batch)
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			vecs, err := m.embedBatchWithRetry(gctx, batch)
			if err != nil {
				return err
			}
			results[bi] = batchResult{offset: off, vecs: vecs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	provider = m.activeProvider() // may have flipped to fallback mid-run
	dim = provider.Dimension()
	for _, br := range results {
		for j, vec := range br.vecs {
			globalIdx := missIdx[br.offset+j]
			result[globalIdx] = vec
			if err := m.cache.Put(ctx, provider.Name(), provider.Model(), docs[globalIdx], dim, vec); err != nil {
				m.logger.Warn("embedding: cache write failed", "error", err)
			}
		}
	}

	return result, nil
}

// EmbedQuery embeds a single query text with identical cache/retry/fallback
// semantics to EmbedDocuments, per spec.md §4.3.
func (m *Manager) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := m.EmbedDocuments(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// embedBatchWithRetry embeds one batch against the active provider, retrying
// up to RMax attempts. On terminal retryable failure with a fallback
// configured, the Manager switches (stickily) to the fallback and retries
// the same batch fresh against it, per spec.md §4.3 step 3.
func (m *Manager) embedBatchWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	vecs, err := m.attemptWithRetry(ctx, m.activeProvider(), batch)
	if err == nil {
		return vecs, nil
	}
	if !IsRetryable(err) || m.fallback == nil {
		return nil, err
	}

	m.mu.Lock()
	alreadySwitched := m.usingFallback
	if !alreadySwitched {
		m.usingFallback = true
	}
	m.mu.Unlock()
	if alreadySwitched {
		return nil, err
	}

	m.logger.Warn("embedding: primary exhausted retries, switching to fallback for remaining operation", "error", err)
	return m.attemptWithRetry(ctx, m.fallback, batch)
}

func (m *Manager) attemptWithRetry(ctx context.Context, provider Provider, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < RMax; attempt++ {
		vecs, err := provider.Embed(ctx, batch)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
		if attempt == RMax-1 {
			break
		}

		delay := retryBaseDelay * time.Duration(1<<uint(attempt))
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
		if ra, ok := RetryAfter(err); ok && ra > 0 {
			delay = ra
		}
		m.logger.Warn("embedding: retrying batch", "provider", provider.Name(), "attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func chunkBatches(docs []string, maxBatch int) [][]string {
	if maxBatch <= 0 {
		maxBatch = len(docs)
	}
	var batches [][]string
	for i := 0; i < len(docs); i += maxBatch {
		end := i + maxBatch
		if end > len(docs) {
			end = len(docs)
		}
		batches = append(batches, docs[i:end])
	}
	return batches
}

// HealthCheck reports whether the active provider is reachable.
func (m *Manager) HealthCheck(ctx context.Context) error {
	_, err := m.activeProvider().Embed(ctx, []string{"health check"})
	if err != nil {
		return fmt.Errorf("embedding: health check failed: %w", err)
	}
	return nil
}
