// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// embedcache_dump inspects a project's persisted embedding cache
// (internal/embedding.Cache's Badger-backed tier, spec.md §4.3). It opens
// the cache read-only and prints a human-readable summary of every
// entry: provider, model, dimension, TTL remaining, and a short sample
// of the cached vector.
//
// Usage:
//
//	embedcache_dump [--path /path/to/cache/badger/dir]
//
// If --path is not given, reads EMBED_CACHE_DIR from the environment,
// falling back to ~/.agentd/cache/embed/.
//
// Exit codes:
//
//	0 — success (including "empty cache", which prints a message and exits 0)
//	1 — error opening or reading the database
package main

import (
	"bytes"
	"encoding/gob"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// embedCacheKeyPrefix must match internal/embedding/cache.go's
// CacheKey.wireKey format exactly: "embed/v1/<provider>/<model>/<dim>/<hash>".
const embedCacheKeyPrefix = "embed/v1/"

func main() {
	pathFlag := flag.String("path", "", "path to the embedding cache's BadgerDB directory (overrides EMBED_CACHE_DIR)")
	flag.Parse()

	dbPath := *pathFlag
	if dbPath == "" {
		dbPath = os.Getenv("EMBED_CACHE_DIR")
	}
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fatalf("cannot resolve home directory: %v", err)
		}
		dbPath = filepath.Join(home, ".agentd", "cache", "embed")
	}

	fmt.Printf("Embedding cache path: %s\n", dbPath)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("Cache directory does not exist. No vectors have been persisted yet.")
		os.Exit(0)
	}

	opts := dgbadger.DefaultOptions(dbPath).
		WithLogger(nil).
		WithReadOnly(true)

	db, err := dgbadger.Open(opts)
	if err != nil {
		fatalf("open BadgerDB at %s: %v", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	type entry struct {
		key       string
		provider  string
		model     string
		dimension string
		textHash  string
		expiresAt time.Time
		hasExpiry bool
		vec       []float32
		rawSize   int
		decodeErr error
	}

	var entries []entry

	err = db.View(func(txn *dgbadger.Txn) error {
		iterOpts := dgbadger.DefaultIteratorOptions
		iterOpts.PrefetchValues = true
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		prefix := []byte(embedCacheKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())

			var e entry
			e.key = key
			e.provider, e.model, e.dimension, e.textHash = splitCacheKey(key)

			if expiresAt := item.ExpiresAt(); expiresAt > 0 {
				e.hasExpiry = true
				e.expiresAt = time.Unix(int64(expiresAt), 0)
			}

			raw, err := item.ValueCopy(nil)
			if err != nil {
				e.decodeErr = fmt.Errorf("copy value: %w", err)
				entries = append(entries, e)
				continue
			}
			e.rawSize = len(raw)

			vec, err := gobDecodeVector(raw)
			if err != nil {
				e.decodeErr = fmt.Errorf("gob decode: %w", err)
			} else {
				e.vec = vec
			}

			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		fatalf("read BadgerDB: %v", err)
	}

	if len(entries) == 0 {
		fmt.Println("\nNo embedding cache entries found.")
		os.Exit(0)
	}

	fmt.Printf("\nFound %d embedding cache entr%s:\n", len(entries), plural(len(entries), "y", "ies"))
	fmt.Println(strings.Repeat("─", 80))

	for i, e := range entries {
		fmt.Printf("\n[%d] Key:       %s\n", i+1, e.key)
		fmt.Printf("    Provider:  %s\n", e.provider)
		fmt.Printf("    Model:     %s\n", e.model)
		fmt.Printf("    Dimension: %s\n", e.dimension)
		fmt.Printf("    TextHash:  %s\n", e.textHash)

		if e.hasExpiry {
			remaining := time.Until(e.expiresAt)
			if remaining < 0 {
				fmt.Printf("    TTL:       EXPIRED (%s ago)\n", (-remaining).Round(time.Second))
			} else {
				fmt.Printf("    TTL:       %s remaining (expires %s)\n",
					remaining.Round(time.Second),
					e.expiresAt.Format("2006-01-02 15:04:05 MST"),
				)
			}
		} else {
			fmt.Printf("    TTL:       no expiry set\n")
		}

		fmt.Printf("    Raw size:  %s\n", formatBytes(e.rawSize))

		if e.decodeErr != nil {
			fmt.Printf("    DECODE ERROR: %v\n", e.decodeErr)
			continue
		}

		fmt.Printf("    Vector:    %d dims, L2Norm=%.4f, sample=%s\n", len(e.vec), l2Norm(e.vec), formatSample(e.vec, 4))
	}

	fmt.Printf("\n%s\n", strings.Repeat("─", 80))
	fmt.Printf("Summary: %d entr%s, cache path: %s\n",
		len(entries), plural(len(entries), "y", "ies"), dbPath)
}

// splitCacheKey parses "embed/v1/<provider>/<model>/<dim>/<hash>" into its
// four fields, taking the last three path segments as model/dimension/hash
// and joining everything before them into the provider. A provider name
// containing a slash is therefore tolerated; a model name containing a
// slash is not (its leading segments end up in the provider field).
func splitCacheKey(key string) (provider, model, dimension, textHash string) {
	trimmed := strings.TrimPrefix(key, embedCacheKeyPrefix)
	parts := strings.Split(trimmed, "/")
	if len(parts) < 4 {
		return "", "", "", trimmed
	}
	textHash = parts[len(parts)-1]
	dimension = parts[len(parts)-2]
	model = parts[len(parts)-3]
	provider = strings.Join(parts[:len(parts)-3], "/")
	return provider, model, dimension, textHash
}

// gobDecodeVector must match internal/embedding/cache.go's encodeVector
// exactly: a gob-encoded []float32.
func gobDecodeVector(data []byte) ([]float32, error) {
	var vec []float32
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func l2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func formatSample(v []float32, n int) string {
	if len(v) == 0 {
		return "[]"
	}
	if n > len(v) {
		n = len(v)
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("%+.4f", v[i])
	}
	suffix := ""
	if len(v) > n {
		suffix = " ..."
	}
	return "[" + strings.Join(parts, ", ") + suffix + "]"
}

func formatBytes(n int) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB (%d bytes)", float64(n)/1024/1024, n)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB (%d bytes)", float64(n)/1024, n)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "embedcache_dump: "+format+"\n", args...)
	os.Exit(1)
}
