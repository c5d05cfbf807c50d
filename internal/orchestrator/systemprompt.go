// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"strings"

	"github.com/AleutianAI/aleutian-core/internal/fallback"
	"github.com/AleutianAI/aleutian-core/internal/provider"
)

// subAgentSnapshotLimit bounds the knowledge/skills/memory material copied
// down to a sub-agent's system prompt, per spec.md §4.11: "sub-agents get
// a 4 KiB-truncated knowledge/skills/memory snapshot". Persona/task and
// the project summary are not truncated — a sub-agent still needs to know
// what project it is in and what it was asked to do.
const subAgentSnapshotLimit = 4 * 1024

// SystemPromptSections holds the pieces assembled into one system prompt,
// in the fixed order spec.md §4.11 specifies: persona/task, project
// summary, skills, memories, then a knowledge-context block the caller
// queries once at session start and reuses verbatim for the run's
// duration (the caller builds this value once, before Run/RunSession is
// invoked, which is what makes it "cached per session start" — no
// additional caching layer is needed inside the Orchestrator itself).
type SystemPromptSections struct {
	Persona          string
	ProjectSummary   string
	Skills           string
	Memories         string
	KnowledgeContext string
}

// Truncated returns a copy with Skills/Memories/KnowledgeContext capped at
// subAgentSnapshotLimit, for handing down to a spawned sub-agent.
func (s SystemPromptSections) Truncated() SystemPromptSections {
	return SystemPromptSections{
		Persona:          s.Persona,
		ProjectSummary:   s.ProjectSummary,
		Skills:           truncateBytes(s.Skills, subAgentSnapshotLimit),
		Memories:         truncateBytes(s.Memories, subAgentSnapshotLimit),
		KnowledgeContext: truncateBytes(s.KnowledgeContext, subAgentSnapshotLimit),
	}
}

func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// systemPrompt assembles o's system prompt: persona, project summary,
// skills, memories, knowledge context, then — only when the active
// adapter cannot be trusted to emit native tool calls — the
// PromptFallbackParser's tool-description block (spec.md §4.11's
// tool-fallback section, §4.10's ToolCallReliability gate).
func (o *Orchestrator) systemPrompt() string {
	sec := o.cfg.Prompt
	var b strings.Builder

	writeSection := func(heading, body string) {
		if body == "" {
			return
		}
		if heading != "" {
			b.WriteString(heading)
			b.WriteString("\n")
		}
		b.WriteString(body)
		b.WriteString("\n\n")
	}

	writeSection("", sec.Persona)
	writeSection("## Project summary", sec.ProjectSummary)
	writeSection("## Skills", sec.Skills)
	writeSection("## Memories", sec.Memories)
	writeSection("## Knowledge context", sec.KnowledgeContext)

	if o.cfg.Adapter != nil && o.cfg.Adapter.ToolCallReliability() == provider.ReliabilityUnreliable {
		b.WriteString(fallback.EncodeSystemPromptBlock(o.executor.Definitions()))
	}

	return strings.TrimSpace(b.String())
}
