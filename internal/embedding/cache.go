// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package embedding

import (
	"bytes"
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/aleutian-core/internal/kvstore"
)

// CacheKey content-addresses one cached vector. Dimension is part of the key
// (not just provider+model+text) so a provider reconfigured to a different
// output dimension never returns a stale vector under the old shape —
// spec.md §4.3's explicit anti-stale-vector invariant.
type CacheKey struct {
	Provider  string
	Model     string
	TextHash  string
	Dimension int
}

func newCacheKey(provider, model, text string, dimension int) CacheKey {
	sum := sha256.Sum256([]byte(text))
	return CacheKey{Provider: provider, Model: model, TextHash: hex.EncodeToString(sum[:]), Dimension: dimension}
}

func (k CacheKey) wireKey() []byte {
	return []byte(fmt.Sprintf("embed/v1/%s/%s/%d/%s", k.Provider, k.Model, k.Dimension, k.TextHash))
}

var errCacheMiss = errors.New("embedding: cache miss")

type cacheEntry struct {
	key     CacheKey
	vec     []float32
	expires time.Time
	elem    *list.Element
}

// Cache is the bounded, TTL-expiring, content-addressed embedding cache
// (spec.md §4.3: TTL 30 min, default capacity 10,000). In-memory by
// default; WithPersistence backs it additionally with a kvstore.DB so
// vectors survive restarts, generalizing the teacher's
// BadgerRouterCacheStore from a single corpus-hash key to one key per
// (provider, model, dimension, text hash). The in-memory tier is an LRU
// over entries; Badger enforces TTL independently on the persisted tier
// via its native entry expiry.
type Cache struct {
	mu       sync.Mutex
	entries  map[CacheKey]*cacheEntry
	order    *list.List // front = most recently used
	capacity int
	ttl      time.Duration
	db       *kvstore.DB // nil disables persistence
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCapacity overrides the default entry capacity (10,000).
func WithCapacity(n int) CacheOption {
	return func(c *Cache) { c.capacity = n }
}

// WithTTL overrides the default entry TTL (30 minutes).
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = ttl }
}

// NewCache constructs an in-memory-only cache with the spec's default
// bounds, overridable via options.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries:  make(map[CacheKey]*cacheEntry),
		order:    list.New(),
		capacity: defaultCacheCapacity,
		ttl:      defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithPersistence attaches a kvstore.DB for durable caching across restarts.
func (c *Cache) WithPersistence(db *kvstore.DB) *Cache {
	c.db = db
	return c
}

// Get returns the cached vector for (provider, model, text, dimension), and
// whether it was found (and not expired).
func (c *Cache) Get(ctx context.Context, provider, model, text string, dimension int) ([]float32, bool) {
	key := newCacheKey(provider, model, text, dimension)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if time.Now().Before(e.expires) {
			c.order.MoveToFront(e.elem)
			vec := e.vec
			c.mu.Unlock()
			return vec, true
		}
		c.removeLocked(e)
	}
	c.mu.Unlock()

	if c.db == nil {
		return nil, false
	}

	var raw []byte
	err := c.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key.wireKey())
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errCacheMiss
		}
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false
	}

	vec, err := decodeVector(raw)
	if err != nil {
		return nil, false
	}

	c.mu.Lock()
	c.insertLocked(key, vec)
	c.mu.Unlock()
	return vec, true
}

// Put stores vec for (provider, model, text, dimension), evicting the least
// recently used entry if the cache is at capacity.
func (c *Cache) Put(ctx context.Context, provider, model, text string, dimension int, vec []float32) error {
	key := newCacheKey(provider, model, text, dimension)

	c.mu.Lock()
	c.insertLocked(key, vec)
	c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	raw, err := encodeVector(vec)
	if err != nil {
		return fmt.Errorf("embedding: encoding cached vector: %w", err)
	}
	return c.db.WithTxn(ctx, func(txn *badger.Txn) error {
		entry := badger.NewEntry(key.wireKey(), raw).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
}

// insertLocked must be called with c.mu held.
func (c *Cache) insertLocked(key CacheKey, vec []float32) {
	if e, ok := c.entries[key]; ok {
		e.vec = vec
		e.expires = time.Now().Add(c.ttl)
		c.order.MoveToFront(e.elem)
		return
	}

	e := &cacheEntry{key: key, vec: vec, expires: time.Now().Add(c.ttl)}
	e.elem = c.order.PushFront(e)
	c.entries[key] = e

	if c.capacity > 0 && len(c.entries) > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.removeLocked(oldest.Value.(*cacheEntry))
		}
	}
}

// removeLocked must be called with c.mu held.
func (c *Cache) removeLocked(e *cacheEntry) {
	c.order.Remove(e.elem)
	delete(c.entries, e.key)
}

// Vacuum evicts every expired in-memory entry and, if persistence is
// attached, runs Badger's value-log GC so space from TTL-expired keys is
// reclaimed rather than left for Badger's own background compaction.
// internal/orchestrator's periodic sweep calls this; it is otherwise only
// ever a lazy side effect of Get.
func (c *Cache) Vacuum(discardRatio float64) error {
	now := time.Now()
	c.mu.Lock()
	var expired []*cacheEntry
	for _, e := range c.entries {
		if now.After(e.expires) {
			expired = append(expired, e)
		}
	}
	for _, e := range expired {
		c.removeLocked(e)
	}
	c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	if err := c.db.RunGC(discardRatio); err != nil {
		return fmt.Errorf("embedding: vacuuming persisted cache: %w", err)
	}
	return nil
}

func encodeVector(vec []float32) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeVector(raw []byte) ([]float32, error) {
	var vec []float32
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&vec); err != nil {
		return nil, err
	}
	return vec, nil
}
