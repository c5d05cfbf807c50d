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

	"github.com/AleutianAI/aleutian-core/internal/message"
	"github.com/AleutianAI/aleutian-core/internal/obs"
	"github.com/AleutianAI/aleutian-core/internal/store"
)

// MaxDepth bounds Task-tool recursion, per spec.md §8 property 11: "no
// Task invocation at depth >= MAX_DEPTH".
const MaxDepth = 3

// largeProjectFileThreshold gates the Explore-escalation heuristic below.
const largeProjectFileThreshold = 500

// TaskExecutionResult is a sub-agent run's outcome, merged into the
// parent's usage by spawnSubAgent. tools.TaskFunc's flatter (string,
// error) contract only exposes Response/Error to the calling tool, but
// this richer shape is what spec.md §4.11 names and is what a caller
// driving sub-agents directly (rather than through the Task tool) wants.
type TaskExecutionResult struct {
	Response   string
	Usage      message.UsageStats
	Iterations int
	Success    bool
	Error      string
}

// subAgentPersona returns the persona line a sub-agent of subagentType
// receives in place of the parent's own persona, so its system prompt
// reads as a standalone agent rather than a truncated copy of the
// parent's.
func subAgentPersona(subagentType string) string {
	switch subagentType {
	case "Explore":
		return "You are a focused exploration sub-agent. Investigate the codebase to answer the request precisely, then report findings in prose."
	case "Plan":
		return "You are a planning sub-agent. Produce a concrete, ordered plan for the request; do not implement it."
	case "Bash":
		return "You are a command-execution sub-agent. Use the Bash tool to carry out the request and report its output."
	default:
		return "You are a general-purpose sub-agent. Carry out the request using the tools available and report the result in prose."
	}
}

// escalateIfNeeded rewrites a broad-scope Explore request against a large
// project into a GeneralPurpose coordinator prompt, per spec.md §4.11's
// auto-escalation heuristic: a single Explore sub-agent walking a large
// tree one file at a time wastes its own budget, whereas a coordinator
// that fans out parallel Task calls to narrower GeneralPurpose sub-agents
// covers more ground within the same depth budget. Escalation only fires
// when there is still headroom to spawn a further generation
// (depth+2 < MaxDepth) — escalating at the edge of the depth budget would
// just trade one exhausted Explore call for a coordinator that can't
// actually spawn any children.
func escalateIfNeeded(subagentType, prompt string, depth int, summary store.ProjectIndexSummary) (string, string) {
	if subagentType != "Explore" {
		return subagentType, prompt
	}
	if summary.TotalFiles < largeProjectFileThreshold {
		return subagentType, prompt
	}
	if depth+2 >= MaxDepth {
		return subagentType, prompt
	}

	rewritten := fmt.Sprintf(
		"Coordinate a broad exploration of this project (%d files across %s). "+
			"Break the search into focused parallel Task calls against GeneralPurpose "+
			"sub-agents, one per area of the codebase, then synthesize their findings "+
			"into a single report.\n\nOriginal request: %s",
		summary.TotalFiles, strings.Join(summary.Components, ", "), prompt,
	)
	return "GeneralPurpose", rewritten
}

// spawnSubAgent implements tools.TaskFunc: it is wired as the Task tool's
// runner for o's own Executor (and rebound onto every descendant's
// Executor so each depth level enforces its own limit, rather than the
// top-level orchestrator's). Per spec.md §4.11, a sub-agent inherits a
// narrowed provider config by reusing the parent's Adapter and Tools, a
// COPY of the index-store/embedding-manager/ANN handles (via the shared
// Executor.Spawn and the immutable Config fields rather than re-opening
// anything), a truncated system-prompt snapshot, a fresh read cache, and
// a cancellation token derived from the parent's.
func (o *Orchestrator) spawnSubAgent(ctx context.Context, prompt, subagentType string) (string, error) {
	if o.cfg.Depth >= MaxDepth {
		obs.SubAgentSpawnsTotal.WithLabelValues(subagentType, "depth_exceeded").Inc()
		return "", newDepthExceededError(fmt.Sprintf("orchestrator: sub-agent depth limit (%d) reached", MaxDepth))
	}

	subagentType, prompt = escalateIfNeeded(subagentType, prompt, o.cfg.Depth, o.cfg.ProjectSummary)

	childBudget := computeSubAgentBudget(o.cfg.Adapter.ContextWindow(), subagentType, o.cfg.Depth)
	childPrompt := o.cfg.Prompt.Truncated()
	childPrompt.Persona = subAgentPersona(subagentType)

	childCfg := Config{
		ProjectPath:    o.cfg.ProjectPath,
		Adapter:        o.cfg.Adapter,
		Budget:         childBudget,
		Logger:         o.cfg.Logger,
		Prompt:         childPrompt,
		Depth:          o.cfg.Depth + 1,
		ProjectSummary: o.cfg.ProjectSummary,
	}

	childExecutor := o.executor.Spawn()
	child := newWithExecutor(childCfg, childExecutor)
	childExecutor.RebindTaskRunner(child.spawnSubAgent)

	history := []message.Message{{Role: message.RoleUser, Content: []message.Part{message.TextPart(prompt)}}}
	session := store.ExecutionSession{
		ID:          childSessionID(),
		ProjectPath: o.cfg.ProjectPath,
		Status:      store.SessionPending,
		Provider:    o.cfg.Adapter.Name(),
		Model:       o.cfg.Adapter.Model(),
	}

	_, finalHistory, iterations, err := child.runTurns(ctx, session, history, nopSink)
	result := TaskExecutionResult{Usage: child.Usage(), Iterations: iterations}
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		o.mergeChildUsage(result.Usage)
		obs.SubAgentSpawnsTotal.WithLabelValues(subagentType, "error").Inc()
		return "", err
	}

	result.Success = true
	result.Response = lastAssistantText(finalHistory)
	o.mergeChildUsage(result.Usage)
	obs.SubAgentSpawnsTotal.WithLabelValues(subagentType, "success").Inc()
	return result.Response, nil
}

// mergeChildUsage folds a completed sub-agent's token usage into o's own
// running totals, per spec.md §4.11: "TaskExecutionResult ... merged into
// parent usage". Tool calls within one turn execute sequentially
// (spec.md §5), so no lock is needed around o.usage.
func (o *Orchestrator) mergeChildUsage(usage message.UsageStats) {
	o.usage.Add(usage)
}

func lastAssistantText(history []message.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == message.RoleAssistant {
			if text := history[i].Text(); text != "" {
				return text
			}
		}
	}
	return ""
}
