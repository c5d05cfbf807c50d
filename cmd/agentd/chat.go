// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/aleutian-core/internal/config"
	"github.com/AleutianAI/aleutian-core/internal/orchestrator"
	"github.com/AleutianAI/aleutian-core/internal/provider"
	"github.com/AleutianAI/aleutian-core/internal/store"
)

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <message...>",
		Short: "Run one agentic session story to completion, streaming events to stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), strings.Join(args, " "))
		},
	}
	return cmd
}

func runChat(ctx context.Context, story string) error {
	if err := core.indexMgr.EnsureIndexed(ctx, core.projectPath); err != nil {
		return fmt.Errorf("agentd: ensure_indexed: %w", err)
	}
	vs, ok := core.indexMgr.Store(core.projectPath)
	if !ok {
		return fmt.Errorf("agentd: no active store for %s", core.projectPath)
	}
	engine, ok := core.indexMgr.Engine(core.projectPath)
	if !ok {
		return fmt.Errorf("agentd: no active search engine for %s", core.projectPath)
	}
	summary, err := vs.GetProjectSummary(ctx, core.projectPath)
	if err != nil {
		return fmt.Errorf("agentd: reading project summary: %w", err)
	}

	adapter, err := buildAdapter(core.runtimeCfg)
	if err != nil {
		return fmt.Errorf("agentd: building provider adapter: %w", err)
	}

	orch := orchestrator.New(orchestrator.Config{
		ProjectPath:    core.projectPath,
		Adapter:        adapter,
		Logger:         core.logger,
		ProjectSummary: summary,
		Prompt: orchestrator.SystemPromptSections{
			ProjectSummary: summarizeProject(summary),
		},
		CodebaseSearch: orchestrator.NewCodebaseSearchFunc(engine, core.projectPath),
	})

	sessions := orchestrator.NewSessionManager(vs)
	session := orchestrator.NewSession(core.projectPath, string(core.runtimeCfg.Provider), core.runtimeCfg.Model, "")

	events, sink, closeSink := orchestrator.NewChannelSink(100)
	defer closeSink()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			printEvent(ev)
		}
	}()

	_, err = orch.RunSession(ctx, session, []string{story}, sessions, sink)
	<-done
	if err != nil {
		return fmt.Errorf("agentd: session failed: %w", err)
	}
	return nil
}

// buildAdapter resolves the runtime config's API key (via the process
// keyring, skipped entirely when no keyring alias is configured, whatever
// the provider; an alias with no stored secret leaves the key empty) and
// constructs the matching
// provider.Adapter through the shared Factory — the one call site that
// converts config.Kind to provider.Kind, keeping internal/config free of
// a provider import.
func buildAdapter(cfg config.RuntimeConfig) (provider.Adapter, error) {
	var apiKey string
	if cfg.KeyringAlias != "" {
		secret, ok, err := core.keys.Resolve(cfg.KeyringAlias)
		if err != nil {
			return nil, fmt.Errorf("agentd: resolving keyring alias %q: %w", cfg.KeyringAlias, err)
		}
		if ok {
			apiKey = secret
		}
	}

	factory := provider.NewFactory()
	return factory.Create(provider.Config{
		Provider:      provider.Kind(cfg.Provider),
		Model:         cfg.Model,
		APIKey:        apiKey,
		BaseURL:       cfg.BaseURL,
		ContextWindow: cfg.ContextWindow,
	})
}

// summarizeProject renders a one-line project summary for the system
// prompt's ProjectSummary section, per spec.md §4.11's ordered prompt
// assembly.
func summarizeProject(summary store.ProjectIndexSummary) string {
	return fmt.Sprintf("%d files, %d symbols, %d embedded chunks, languages: %s",
		summary.TotalFiles, summary.TotalSymbols, summary.EmbeddingChunks, strings.Join(summary.Languages, ", "))
}

func printEvent(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventTextDelta:
		fmt.Print(ev.Content)
	case orchestrator.EventThinkingDelta:
		// suppressed on stdout; thinking is not the final answer
	case orchestrator.EventToolStart:
		fmt.Printf("\n[tool] %s(%s)\n", ev.ToolName, ev.ToolArgs)
	case orchestrator.EventToolComplete:
		fmt.Printf("[tool done] %s\n", ev.ToolName)
	case orchestrator.EventStoryStart:
		fmt.Printf("\n--- story: %s ---\n", ev.StoryTitle)
	case orchestrator.EventStoryComplete:
		fmt.Printf("\n--- story complete: %s ---\n", ev.StoryTitle)
	case orchestrator.EventSessionComplete:
		fmt.Println("\n--- session complete ---")
	case orchestrator.EventError:
		fmt.Printf("\n[error] %s\n", ev.ErrorMessage)
	}
}
