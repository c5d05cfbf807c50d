// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/aleutian-core/internal/search"
	"github.com/AleutianAI/aleutian-core/internal/tools"
)

// NewCodebaseSearchFunc adapts a project's HybridSearchEngine into the
// tools.CodebaseSearchFunc the CodebaseSearch tool calls, formatting
// Outcome into the plain-text observation the model reads back. scope is
// accepted for the tool's contract but currently only threads through as
// opts.ProjectPath — spec.md does not define component/path scoping
// beyond the project itself.
func NewCodebaseSearchFunc(engine *search.Engine, projectPath string) tools.CodebaseSearchFunc {
	return func(ctx context.Context, query, scope string) (string, error) {
		outcome, err := engine.Search(ctx, query, search.Options{ProjectPath: projectPath})
		if err != nil {
			return "", err
		}
		return formatSearchOutcome(outcome), nil
	}
}

func formatSearchOutcome(outcome search.Outcome) string {
	if len(outcome.Results) == 0 {
		return "No matches found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d result(s) across channels [%s]:\n\n", len(outcome.Results), strings.Join(outcome.ActiveChannels, ", "))
	for i, r := range outcome.Results {
		fmt.Fprintf(&b, "%d. %s", i+1, r.FilePath)
		if r.SymbolName != "" {
			fmt.Fprintf(&b, " (symbol: %s)", r.SymbolName)
		}
		fmt.Fprintf(&b, " [score=%.4f]\n", r.Score)
		if r.ChunkText != "" {
			fmt.Fprintf(&b, "   %s\n", strings.TrimSpace(r.ChunkText))
		}
	}
	if outcome.SemanticDegraded {
		fmt.Fprintf(&b, "\n(semantic channel degraded: %s)\n", outcome.SemanticError)
	}
	return strings.TrimSpace(b.String())
}
