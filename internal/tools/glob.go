// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"io/fs"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const globSchema = `{
  "type": "object",
  "properties": {
    "pattern": {"type": "string"},
    "path": {"type": "string"}
  },
  "required": ["pattern"]
}`

// handleGlob walks the project (or a scoped subdirectory) matching
// relative paths against pattern. No glob-matching library appears
// anywhere in the example pack (grepped for doublestar/gobwas/glob with
// no hits), so this is a hand-rolled ** -> regexp translation rather than
// a borrowed one; see DESIGN.md.
func handleGlob(ctx context.Context, ex *Executor, args map[string]any) Result {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return errResult("pattern is required")
	}
	rel, _ := args["path"].(string)
	if rel == "" {
		rel = "."
	}
	root, err := ex.resolvePath(rel)
	if err != nil {
		return errResult("%v", err)
	}

	re, err := globToRegexp(pattern)
	if err != nil {
		return errResult("invalid pattern %q: %v", pattern, err)
	}

	var matches []string
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		relPath, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)
		if re.MatchString(relPath) {
			matches = append(matches, relPath)
		}
		return nil
	})
	if walkErr != nil {
		return errResult("globbing %s: %v", rel, walkErr)
	}
	sort.Strings(matches)
	return ok(strings.Join(matches, "\n"))
}

// globToRegexp translates a shell-glob pattern (supporting ** as
// "any number of path segments") into an anchored regexp.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	pattern = path.Clean(pattern)
	var b strings.Builder
	b.WriteString("^")
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				b.WriteString(".*")
				i++
				if i+1 < len(runes) && runes[i+1] == '/' {
					i++
				}
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '.', '+', '(', ')', '^', '$', '|', '{', '}', '[', ']', '\\':
			b.WriteString(regexp.QuoteMeta(string(runes[i])))
		default:
			b.WriteRune(runes[i])
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
