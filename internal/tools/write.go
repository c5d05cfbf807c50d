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
)

const writeSchema = `{
  "type": "object",
  "properties": {
    "file_path": {"type": "string"},
    "content": {"type": "string"}
  },
  "required": ["file_path", "content"]
}`

func handleWrite(ctx context.Context, ex *Executor, args map[string]any) Result {
	relPath, _ := args["file_path"].(string)
	if relPath == "" {
		return errResult("file_path is required")
	}
	content, _ := args["content"].(string)

	full, err := ex.resolvePath(relPath)
	if err != nil {
		return errResult("%v", err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errResult("creating parent directories for %s: %v", relPath, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return errResult("writing %s: %v", relPath, err)
	}
	ex.readCache.invalidate(full)
	return ok(fmt.Sprintf("wrote %d bytes to %s", len(content), relPath))
}
