// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/aleutian-core/internal/indexmanager"
)

func indexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the project index (spec.md §4.8)",
	}
	cmd.AddCommand(indexEnsureCmd())
	cmd.AddCommand(indexStatusCmd())
	cmd.AddCommand(indexReindexCmd())
	cmd.AddCommand(indexRemoveCmd())
	return cmd
}

func indexEnsureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure",
		Short: "Index the project if it isn't already (ensure_indexed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := core.indexMgr.EnsureIndexed(cmd.Context(), core.projectPath); err != nil {
				return fmt.Errorf("agentd: ensure_indexed: %w", err)
			}
			printStatus(core.indexMgr.Status(core.projectPath))
			return nil
		},
	}
}

func indexStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the project's current index status",
		Run: func(cmd *cobra.Command, args []string) {
			printStatus(core.indexMgr.Status(core.projectPath))
		},
	}
}

func indexReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Drop and rebuild the project's index (trigger_reindex)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := core.indexMgr.TriggerReindex(cmd.Context(), core.projectPath); err != nil {
				return fmt.Errorf("agentd: trigger_reindex: %w", err)
			}
			printStatus(core.indexMgr.Status(core.projectPath))
			return nil
		},
	}
}

func indexRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove",
		Short: "Stop watching the project and drop its active handle (remove_directory)",
		Run: func(cmd *cobra.Command, args []string) {
			core.indexMgr.RemoveDirectory(core.projectPath)
		},
	}
}

func printStatus(ev indexmanager.IndexStatusEvent) {
	fmt.Printf("project=%s status=%s files=%d/%d symbols=%d embedding_chunks=%d provider=%s lsp=%s\n",
		ev.ProjectPath, ev.Status, ev.IndexedFiles, ev.TotalFiles, ev.TotalSymbols,
		ev.EmbeddingChunks, ev.EmbeddingProviderName, ev.LSPEnrichment)
	if ev.ErrorMessage != "" {
		fmt.Printf("error: %s\n", ev.ErrorMessage)
	}
}
