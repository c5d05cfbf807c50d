// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCache_PutGetRoundTrip(t *testing.T) {
	c := NewCache()
	ctx := context.Background()

	vec := []float32{0.1, 0.2, 0.3}
	require.NoError(t, c.Put(ctx, "tfidf", "tfidf-local-v1", "hello", 3, vec))

	got, ok := c.Get(ctx, "tfidf", "tfidf-local-v1", "hello", 3)
	require.True(t, ok)
	require.Equal(t, vec, got)
}

func TestCache_MissOnUnknownKey(t *testing.T) {
	c := NewCache()
	_, ok := c.Get(context.Background(), "tfidf", "tfidf-local-v1", "never put", 3)
	require.False(t, ok)
}

func TestCache_DimensionIsPartOfKey(t *testing.T) {
	c := NewCache()
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "openai", "text-embedding-3-small", "hello", 1536, []float32{1, 2}))

	_, ok := c.Get(ctx, "openai", "text-embedding-3-small", "hello", 768)
	require.False(t, ok, "a dimension change must not return a stale vector under the old shape")
}

func TestCache_ExpiresEntriesPastTTL(t *testing.T) {
	c := NewCache(WithTTL(1 * time.Millisecond))
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "tfidf", "tfidf-local-v1", "hello", 3, []float32{1, 2, 3}))

	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get(ctx, "tfidf", "tfidf-local-v1", "hello", 3)
	require.False(t, ok)
}

func TestCache_EvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	c := NewCache(WithCapacity(2))
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "p", "m", "a", 1, []float32{1}))
	require.NoError(t, c.Put(ctx, "p", "m", "b", 1, []float32{2}))
	// touch "a" so "b" becomes least-recently-used
	_, _ = c.Get(ctx, "p", "m", "a", 1)
	require.NoError(t, c.Put(ctx, "p", "m", "c", 1, []float32{3}))

	_, ok := c.Get(ctx, "p", "m", "b", 1)
	require.False(t, ok, "b should have been evicted as least recently used")

	_, ok = c.Get(ctx, "p", "m", "a", 1)
	require.True(t, ok)
	_, ok = c.Get(ctx, "p", "m", "c", 1)
	require.True(t, ok)
}
