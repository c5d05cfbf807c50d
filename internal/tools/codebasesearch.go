// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import "context"

const codebaseSearchSchema = `{
  "type": "object",
  "properties": {
    "query": {"type": "string"},
    "scope": {"type": "string", "enum": ["symbols", "files", "all"]}
  },
  "required": ["query"]
}`

// handleCodebaseSearch delegates to the HybridSearchEngine bound by the
// IndexManager at Executor construction time (WithCodebaseSearch). A
// project with no completed index simply has no search function wired,
// surfacing as a tool error rather than a panic.
func handleCodebaseSearch(ctx context.Context, ex *Executor, args map[string]any) Result {
	if ex.searchFn == nil {
		return errResult("codebase search is unavailable: project is not indexed")
	}
	query, _ := args["query"].(string)
	if query == "" {
		return errResult("query is required")
	}
	scope, _ := args["scope"].(string)
	if scope == "" {
		scope = "all"
	}

	out, err := ex.searchFn(ctx, query, scope)
	if err != nil {
		return errResult("search failed: %v", err)
	}
	if out == "" {
		return ok("no results")
	}
	return ok(out)
}
