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
	"strings"
)

const editSchema = `{
  "type": "object",
  "properties": {
    "file_path": {"type": "string"},
    "old": {"type": "string"},
    "new": {"type": "string"},
    "expected_replacements": {"type": "integer", "minimum": 1}
  },
  "required": ["file_path", "old", "new"]
}`

// handleEdit replaces exactly one occurrence of old with new inside
// file_path, unless expected_replacements says otherwise, and returns a
// unified-diff preview of the change (spec.md §4.9).
func handleEdit(ctx context.Context, ex *Executor, args map[string]any) Result {
	relPath, _ := args["file_path"].(string)
	oldText, _ := args["old"].(string)
	newText, _ := args["new"].(string)
	if relPath == "" {
		return errResult("file_path is required")
	}
	if oldText == newText {
		return errResult("old and new are identical")
	}
	expected := intArg(args, "expected_replacements", 1)

	full, err := ex.resolvePath(relPath)
	if err != nil {
		return errResult("%v", err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return errResult("reading %s: %v", relPath, err)
	}
	content := string(data)

	count := strings.Count(content, oldText)
	if count == 0 {
		return errResult("old string not found in %s", relPath)
	}
	if count != expected {
		return errResult("found %d occurrences of old string in %s, expected %d", count, relPath, expected)
	}

	updated := strings.Replace(content, oldText, newText, expected)
	if err := os.WriteFile(full, []byte(updated), 0o644); err != nil {
		return errResult("writing %s: %v", relPath, err)
	}
	ex.readCache.invalidate(full)

	preview, err := renderUnifiedDiff(relPath, oldText, newText)
	if err != nil {
		return ok(fmt.Sprintf("edited %s (%d replacement(s))", relPath, expected))
	}
	return ok(fmt.Sprintf("edited %s (%d replacement(s))\n\n%s", relPath, expected, preview))
}
