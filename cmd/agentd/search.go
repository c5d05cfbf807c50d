// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/aleutian-core/internal/search"
)

func searchCmd() *cobra.Command {
	var maxResults int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid (symbol + file-path + semantic) search against the project index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := core.indexMgr.EnsureIndexed(cmd.Context(), core.projectPath); err != nil {
				return fmt.Errorf("agentd: ensure_indexed: %w", err)
			}
			engine, ok := core.indexMgr.Engine(core.projectPath)
			if !ok {
				return fmt.Errorf("agentd: no active search engine for %s", core.projectPath)
			}

			query := strings.Join(args, " ")
			outcome, err := engine.Search(cmd.Context(), query, search.Options{
				ProjectPath: core.projectPath,
				MaxResults:  maxResults,
			})
			if err != nil {
				return fmt.Errorf("agentd: search: %w", err)
			}
			printOutcome(outcome)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxResults, "max-results", 0, "cap the fused result count (0 uses the engine default)")
	return cmd
}

func printOutcome(outcome search.Outcome) {
	fmt.Printf("channels=[%s] results=%d\n", strings.Join(outcome.ActiveChannels, ","), len(outcome.Results))
	if outcome.SemanticDegraded {
		fmt.Printf("(semantic channel degraded: %s)\n", outcome.SemanticError)
	}
	for i, r := range outcome.Results {
		fmt.Printf("%d. %s", i+1, r.FilePath)
		if r.SymbolName != "" {
			fmt.Printf(" (%s)", r.SymbolName)
		}
		fmt.Printf(" score=%.4f\n", r.Score)
		if r.ChunkText != "" {
			fmt.Printf("   %s\n", strings.TrimSpace(r.ChunkText))
		}
	}
}
