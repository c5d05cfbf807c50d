// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/aleutian-core/internal/store"
)

func TestEscalateIfNeeded_RewritesBroadExploreOnLargeProject(t *testing.T) {
	summary := store.ProjectIndexSummary{TotalFiles: 1000, Components: []string{"api", "worker"}}
	kind, prompt := escalateIfNeeded("Explore", "find all the auth code", 0, summary)
	require.Equal(t, "GeneralPurpose", kind)
	require.Contains(t, prompt, "find all the auth code")
	require.Contains(t, prompt, "Coordinate")
}

func TestEscalateIfNeeded_LeavesSmallProjectExploreAlone(t *testing.T) {
	summary := store.ProjectIndexSummary{TotalFiles: 10}
	kind, prompt := escalateIfNeeded("Explore", "find the config loader", 0, summary)
	require.Equal(t, "Explore", kind)
	require.Equal(t, "find the config loader", prompt)
}

func TestEscalateIfNeeded_LeavesNonExploreTypesAlone(t *testing.T) {
	summary := store.ProjectIndexSummary{TotalFiles: 1000}
	kind, prompt := escalateIfNeeded("GeneralPurpose", "implement a feature", 0, summary)
	require.Equal(t, "GeneralPurpose", kind)
	require.Equal(t, "implement a feature", prompt)
}

func TestEscalateIfNeeded_SkipsWhenNoDepthHeadroom(t *testing.T) {
	summary := store.ProjectIndexSummary{TotalFiles: 1000}
	kind, prompt := escalateIfNeeded("Explore", "find all callers", MaxDepth-2, summary)
	require.Equal(t, "Explore", kind)
	require.Equal(t, "find all callers", prompt)
}

func TestSpawnSubAgent_RefusesAtMaxDepth(t *testing.T) {
	adapter := &fakeAdapter{}
	o, _ := newTestOrchestrator(t, adapter)
	o.cfg.Depth = MaxDepth

	_, err := o.spawnSubAgent(context.Background(), "do something", "GeneralPurpose")
	require.Error(t, err)
	var oe *Error
	require.ErrorAs(t, err, &oe)
	require.Equal(t, KindDepthExceeded, oe.Kind)
}

func TestSpawnSubAgent_RunsChildAndMergesUsage(t *testing.T) {
	adapter := &fakeAdapter{}
	o, _ := newTestOrchestrator(t, adapter)

	report, err := o.spawnSubAgent(context.Background(), "summarize main.go", "GeneralPurpose")
	require.NoError(t, err)
	require.NotEmpty(t, report)
}

func TestLastAssistantText_ReturnsMostRecentNonEmptyAssistantText(t *testing.T) {
	adapter := &fakeAdapter{}
	o, _ := newTestOrchestrator(t, adapter)
	session := NewSession(o.cfg.ProjectPath, "fake", "fake-model", "")
	_, history, _, err := o.runTurns(context.Background(), session, nil, nopSink)
	require.NoError(t, err)
	require.NotEmpty(t, lastAssistantText(history))
}
