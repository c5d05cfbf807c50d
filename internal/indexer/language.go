// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package indexer

import (
	"path/filepath"
	"strings"
)

// languageByExtension maps a lowercased file extension (with leading dot)
// to a canonical language name. Extensions absent from this table still
// walk and hash normally; they simply get symbols = nil, per spec.md §4.7
// ("a parser that cannot handle a language still yields an entry with
// symbols = []").
var languageByExtension = map[string]string{
	".go":   "go",
	".py":   "python",
	".pyi":  "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".rs":   "rust",
	".java": "java",
	".c":    "c",
	".h":    "c",
	".cc":   "cpp",
	".cpp":  "cpp",
	".hpp":  "cpp",
	".rb":   "ruby",
	".php":  "php",
	".cs":   "csharp",
	".kt":   "kotlin",
	".swift": "swift",
	".md":   "markdown",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
}

func detectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	return languageByExtension[ext]
}

// ignoredDirs are VCS metadata and build-artifact directories Phase 1's
// walk never descends into, per spec.md §4.7.
var ignoredDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	".mypy_cache":  true,
	".pytest_cache": true,
	".idea":        true,
	".vscode":      true,
	"bin":          true,
	"obj":          true,
}

func isIgnoredDir(name string) bool {
	return ignoredDirs[name]
}

// isTestFile is a light heuristic for FileIndexEntry.IsTest, matching the
// common per-language test-file naming conventions.
func isTestFile(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, "_test.go"):
		return true
	case strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py"):
		return true
	case strings.HasSuffix(base, "_test.py"):
		return true
	case strings.HasSuffix(base, ".test.js"), strings.HasSuffix(base, ".test.ts"),
		strings.HasSuffix(base, ".spec.js"), strings.HasSuffix(base, ".spec.ts"):
		return true
	default:
		return false
	}
}
