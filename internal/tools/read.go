// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const readSchema = `{
  "type": "object",
  "properties": {
    "file_path": {"type": "string"},
    "offset": {"type": "integer", "minimum": 0},
    "limit": {"type": "integer", "minimum": 1}
  },
  "required": ["file_path"]
}`

// readCacheKey identifies one (path, offset, limit) read. A per-Executor
// cache keyed by this tuple avoids re-reading unchanged file
// ranges across tool calls within one Executor's lifetime (spec.md §4.9).
type readCacheKey struct {
	path   string
	offset int
	limit  int
}

type readCache struct {
	mu      sync.Mutex
	entries map[readCacheKey]string
}

func newReadCache() *readCache {
	return &readCache{entries: make(map[readCacheKey]string)}
}

func (c *readCache) get(key readCacheKey) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, found := c.entries[key]
	return v, found
}

func (c *readCache) put(key readCacheKey, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// invalidate drops every cached read under path, called after Write/Edit
// touch that file so a stale Read result is never served back.
func (c *readCache) invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.path == path {
			delete(c.entries, key)
		}
	}
}

func handleRead(ctx context.Context, ex *Executor, args map[string]any) Result {
	relPath, _ := args["file_path"].(string)
	if relPath == "" {
		return errResult("file_path is required")
	}
	full, err := ex.resolvePath(relPath)
	if err != nil {
		return errResult("%v", err)
	}

	offset := intArg(args, "offset", 0)
	limit := intArg(args, "limit", 2000)
	key := readCacheKey{path: full, offset: offset, limit: limit}

	if cached, found := ex.readCache.get(key); found {
		return ok(cached)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return errResult("reading %s: %v", relPath, err)
	}
	lines := strings.Split(string(data), "\n")
	if offset > len(lines) {
		offset = len(lines)
	}
	end := offset + limit
	if end > len(lines) {
		end = len(lines)
	}

	var b strings.Builder
	for i := offset; i < end; i++ {
		fmt.Fprintf(&b, "%6d\t%s\n", i+1, lines[i])
	}
	out := b.String()
	ex.readCache.put(key, out)
	return ok(out)
}

func intArg(args map[string]any, key string, def int) int {
	v, found := args[key]
	if !found {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}

// resolvePath rejects escapes from the project root, per spec.md §4.9's
// sandboxing requirement for every filesystem-touching tool.
func (ex *Executor) resolvePath(rel string) (string, error) {
	full := rel
	if !filepath.IsAbs(full) {
		full = filepath.Join(ex.projectRoot, rel)
	}
	full = filepath.Clean(full)
	root := filepath.Clean(ex.projectRoot)
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes project root", rel)
	}
	return full, nil
}
