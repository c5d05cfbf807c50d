// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSystemPrompt_AssemblesSectionsInOrder(t *testing.T) {
	adapter := &fakeAdapter{}
	o, _ := newTestOrchestrator(t, adapter)
	o.cfg.Prompt = SystemPromptSections{
		Persona:          "You are an assistant.",
		ProjectSummary:   "42 files, 3 languages.",
		Skills:           "skill-a, skill-b",
		Memories:         "remembers X",
		KnowledgeContext: "doc excerpt",
	}

	prompt := o.systemPrompt()
	personaIdx := strings.Index(prompt, "You are an assistant.")
	summaryIdx := strings.Index(prompt, "## Project summary")
	skillsIdx := strings.Index(prompt, "## Skills")
	memoriesIdx := strings.Index(prompt, "## Memories")
	knowledgeIdx := strings.Index(prompt, "## Knowledge context")

	require.True(t, personaIdx >= 0 && personaIdx < summaryIdx)
	require.True(t, summaryIdx < skillsIdx)
	require.True(t, skillsIdx < memoriesIdx)
	require.True(t, memoriesIdx < knowledgeIdx)
}

func TestSystemPrompt_OmitsToolFallbackBlockForNativeAdapter(t *testing.T) {
	adapter := &fakeAdapter{reliability: "native"}
	o, _ := newTestOrchestrator(t, adapter)
	require.NotContains(t, o.systemPrompt(), "Available tools:")
}

func TestSystemPrompt_IncludesToolFallbackBlockForUnreliableAdapter(t *testing.T) {
	adapter := &fakeAdapter{reliability: "unreliable"}
	o, _ := newTestOrchestrator(t, adapter)
	prompt := o.systemPrompt()
	require.Contains(t, prompt, "Read")
}

func TestSystemPromptSections_TruncatedCapsLargeSectionsOnly(t *testing.T) {
	sec := SystemPromptSections{
		Persona:  "short persona, not truncated",
		Skills:   strings.Repeat("x", subAgentSnapshotLimit+500),
		Memories: "short memory",
	}
	truncated := sec.Truncated()
	require.Equal(t, sec.Persona, truncated.Persona)
	require.Len(t, truncated.Skills, subAgentSnapshotLimit)
	require.Equal(t, sec.Memories, truncated.Memories)
}
