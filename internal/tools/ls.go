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
	"sort"
	"strings"
)

const lsSchema = `{
  "type": "object",
  "properties": {
    "path": {"type": "string"}
  }
}`

func handleLS(ctx context.Context, ex *Executor, args map[string]any) Result {
	rel, _ := args["path"].(string)
	if rel == "" {
		rel = "."
	}
	full, err := ex.resolvePath(rel)
	if err != nil {
		return errResult("%v", err)
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return errResult("listing %s: %v", rel, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var b strings.Builder
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintf(&b, "%s/\n", e.Name())
		} else {
			fmt.Fprintf(&b, "%s\n", e.Name())
		}
	}
	return ok(b.String())
}
