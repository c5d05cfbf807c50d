// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package indexer

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// ignoreSet holds the project's .gitignore patterns plus the built-in
// ignoredDirs table. No gitignore-parsing library appears anywhere in the
// retrieved example pack, so this is a deliberately partial implementation
// covering the common cases (plain names, trailing-slash directory
// patterns, single-level globs via filepath.Match) rather than the full
// gitignore spec (no negation, no nested-gitignore merging).
type ignoreSet struct {
	patterns []string
}

func loadIgnoreSet(rootDir string) *ignoreSet {
	is := &ignoreSet{}
	f, err := os.Open(filepath.Join(rootDir, ".gitignore"))
	if err != nil {
		return is
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		is.patterns = append(is.patterns, strings.TrimSuffix(line, "/"))
	}
	return is
}

// matches reports whether relPath (slash-separated, relative to the
// project root) should be skipped.
func (is *ignoreSet) matches(relPath string) bool {
	base := filepath.Base(relPath)
	for _, pat := range is.patterns {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, relPath); ok {
			return true
		}
		if strings.HasPrefix(relPath, pat+"/") {
			return true
		}
	}
	return false
}
