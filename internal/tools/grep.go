// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const grepSchema = `{
  "type": "object",
  "properties": {
    "pattern": {"type": "string"},
    "path": {"type": "string"},
    "glob": {"type": "string"},
    "type": {"type": "string"}
  },
  "required": ["pattern"]
}`

var extByType = map[string][]string{
	"go":     {".go"},
	"py":     {".py"},
	"js":     {".js", ".jsx"},
	"ts":     {".ts", ".tsx"},
	"rust":   {".rs"},
	"java":   {".java"},
}

func handleGrep(ctx context.Context, ex *Executor, args map[string]any) Result {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return errResult("pattern is required")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return errResult("invalid pattern %q: %v", pattern, err)
	}

	rel, _ := args["path"].(string)
	if rel == "" {
		rel = "."
	}
	root, err := ex.resolvePath(rel)
	if err != nil {
		return errResult("%v", err)
	}

	var globRe *regexp.Regexp
	if g, _ := args["glob"].(string); g != "" {
		globRe, err = globToRegexp(g)
		if err != nil {
			return errResult("invalid glob %q: %v", g, err)
		}
	}
	var wantExts []string
	if t, _ := args["type"].(string); t != "" {
		wantExts = extByType[t]
	}

	var b strings.Builder
	matchCount := 0
	const maxMatches = 500

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || matchCount >= maxMatches {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		relPath, _ := filepath.Rel(root, p)
		relPath = filepath.ToSlash(relPath)
		if globRe != nil && !globRe.MatchString(relPath) {
			return nil
		}
		if len(wantExts) > 0 && !hasAnyExt(p, wantExts) {
			return nil
		}
		grepFile(p, relPath, re, &b, &matchCount, maxMatches)
		return nil
	})
	if walkErr != nil {
		return errResult("grepping %s: %v", rel, walkErr)
	}
	if matchCount == 0 {
		return ok("no matches")
	}
	out := b.String()
	if matchCount >= maxMatches {
		out += fmt.Sprintf("\n(truncated at %d matches)\n", maxMatches)
	}
	return ok(out)
}

func hasAnyExt(p string, exts []string) bool {
	for _, e := range exts {
		if strings.HasSuffix(p, e) {
			return true
		}
	}
	return false
}

func grepFile(fullPath, relPath string, re *regexp.Regexp, b *strings.Builder, matchCount *int, maxMatches int) {
	f, err := os.Open(fullPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if re.MatchString(line) {
			fmt.Fprintf(b, "%s:%d:%s\n", relPath, lineNo, line)
			*matchCount++
			if *matchCount >= maxMatches {
				return
			}
		}
	}
}
