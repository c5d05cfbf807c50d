// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/aleutian-core/internal/message"
	"github.com/AleutianAI/aleutian-core/internal/provider"
	"github.com/AleutianAI/aleutian-core/internal/store"
)

// fakeAdapter is a scripted provider.Adapter double: each StreamMessage
// call pops the next turn in turns, in order. It never emits StreamEvents
// beyond what a test explicitly wants to assert on, matching
// internal/embedding's fakeProvider double style.
type fakeAdapter struct {
	turns      []provider.CompletionResult
	call       int
	reliability provider.ToolCallReliability
	ctxWindow  int
}

func (a *fakeAdapter) next() provider.CompletionResult {
	if a.call >= len(a.turns) {
		return provider.CompletionResult{Content: "ok", StopReason: provider.StopEndTurn}
	}
	r := a.turns[a.call]
	a.call++
	return r
}

func (a *fakeAdapter) SendMessage(ctx context.Context, messages []message.Message, system string, tools []message.ToolDefinition, opts provider.Options) (provider.CompletionResult, error) {
	return a.next(), nil
}

func (a *fakeAdapter) StreamMessage(ctx context.Context, messages []message.Message, system string, tools []message.ToolDefinition, opts provider.Options, sink provider.EventSink) (provider.CompletionResult, error) {
	result := a.next()
	if result.Content != "" {
		_ = sink(ctx, provider.StreamEvent{Type: provider.EventTextDelta, Content: result.Content})
	}
	_ = sink(ctx, provider.StreamEvent{Type: provider.EventComplete, StopReason: result.StopReason})
	return result, nil
}

func (a *fakeAdapter) HealthCheck(ctx context.Context) error { return nil }
func (a *fakeAdapter) Name() string                          { return "fake" }
func (a *fakeAdapter) Model() string                         { return "fake-model" }
func (a *fakeAdapter) ContextWindow() int {
	if a.ctxWindow == 0 {
		return 100_000
	}
	return a.ctxWindow
}
func (a *fakeAdapter) SupportsThinking() bool { return false }
func (a *fakeAdapter) SupportsTools() bool    { return true }
func (a *fakeAdapter) ToolCallReliability() provider.ToolCallReliability {
	if a.reliability == "" {
		return provider.ReliabilityNative
	}
	return a.reliability
}
func (a *fakeAdapter) DefaultFallbackMode() provider.FallbackMode { return provider.FallbackOff }

func newTestOrchestrator(t *testing.T, adapter *fakeAdapter) (*Orchestrator, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	o := New(Config{ProjectPath: dir, Adapter: adapter})
	return o, dir
}

func TestRunTurns_ToolCallThenEndTurnProducesPairedHistory(t *testing.T) {
	adapter := &fakeAdapter{turns: []provider.CompletionResult{
		{
			ToolCalls: []message.ToolCall{{ID: "call-1", Name: "Read", Arguments: map[string]any{"file_path": "main.go"}}},
			StopReason: provider.StopToolUse,
		},
		{Content: "The file contains a minimal main package.", StopReason: provider.StopEndTurn},
	}}
	o, _ := newTestOrchestrator(t, adapter)

	session := NewSession(o.cfg.ProjectPath, adapter.Name(), adapter.Model(), "")
	finalSession, history, iterations, err := o.runTurns(context.Background(), session, nil, nopSink)
	require.NoError(t, err)
	require.Equal(t, 1, iterations)
	require.NoError(t, message.ValidatePairing(history))
	require.Equal(t, "The file contains a minimal main package.", lastAssistantText(history))
	require.GreaterOrEqual(t, finalSession.TotalInputTokens+finalSession.TotalOutputTokens, int64(0))
}

func TestRunTurns_BudgetExceededTerminatesLoop(t *testing.T) {
	var turns []provider.CompletionResult
	for i := 0; i < 10; i++ {
		turns = append(turns, provider.CompletionResult{
			ToolCalls:  []message.ToolCall{{ID: "call", Name: "Read", Arguments: map[string]any{"file_path": "main.go"}}},
			StopReason: provider.StopToolUse,
		})
	}
	adapter := &fakeAdapter{turns: turns}
	o, _ := newTestOrchestrator(t, adapter)
	o.cfg.Budget = Budget{MaxIterations: 2}

	session := NewSession(o.cfg.ProjectPath, adapter.Name(), adapter.Model(), "")
	_, _, _, err := o.runTurns(context.Background(), session, nil, nopSink)
	require.Error(t, err)
	require.True(t, IsBudgetExceeded(err))
}

func TestRunTurns_CancelStopsLoopPromptly(t *testing.T) {
	var turns []provider.CompletionResult
	for i := 0; i < 10; i++ {
		turns = append(turns, provider.CompletionResult{
			ToolCalls:  []message.ToolCall{{ID: "call", Name: "Read", Arguments: map[string]any{"file_path": "main.go"}}},
			StopReason: provider.StopToolUse,
		})
	}
	adapter := &fakeAdapter{turns: turns}
	o, _ := newTestOrchestrator(t, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	session := NewSession(o.cfg.ProjectPath, adapter.Name(), adapter.Model(), "")
	_, _, _, err := o.runTurns(ctx, session, nil, nopSink)
	require.Error(t, err)
	require.True(t, IsCancelled(err))
}

func TestRunSession_DrivesStoriesToCompletionAndPersists(t *testing.T) {
	adapter := &fakeAdapter{turns: []provider.CompletionResult{
		{Content: "done with story one", StopReason: provider.StopEndTurn},
		{Content: "done with story two", StopReason: provider.StopEndTurn},
	}}
	o, dir := newTestOrchestrator(t, adapter)

	vs, err := store.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { vs.Close() })
	sessions := NewSessionManager(vs)

	session := NewSession(dir, adapter.Name(), adapter.Model(), "system prompt")
	final, err := o.RunSession(context.Background(), session, []string{"story one", "story two"}, sessions, nopSink)
	require.NoError(t, err)
	require.Equal(t, store.SessionCompleted, final.Status)
	require.Len(t, final.Stories, 2)
	require.Equal(t, store.StoryCompleted, final.Stories[0].Status)
	require.Equal(t, store.StoryCompleted, final.Stories[1].Status)
	require.Equal(t, 2, final.CurrentStoryIndex)

	loaded, err := sessions.Load(context.Background(), final.ID)
	require.NoError(t, err)
	require.Equal(t, store.SessionCompleted, loaded.Status)
}

func TestRunSession_FailurePersistsFailedStatus(t *testing.T) {
	var turns []provider.CompletionResult
	for i := 0; i < 10; i++ {
		turns = append(turns, provider.CompletionResult{
			ToolCalls:  []message.ToolCall{{ID: "call", Name: "Read", Arguments: map[string]any{"file_path": "main.go"}}},
			StopReason: provider.StopToolUse,
		})
	}
	adapter := &fakeAdapter{turns: turns}
	o, dir := newTestOrchestrator(t, adapter)
	o.cfg.Budget = Budget{MaxIterations: 1}

	vs, err := store.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { vs.Close() })
	sessions := NewSessionManager(vs)

	session := NewSession(dir, adapter.Name(), adapter.Model(), "")
	final, err := o.RunSession(context.Background(), session, []string{"only story"}, sessions, nopSink)
	require.Error(t, err)
	require.Equal(t, store.SessionFailed, final.Status)
	require.Equal(t, store.StoryFailed, final.Stories[0].Status)
}

func TestPauseBlocksLoopUntilResumed(t *testing.T) {
	adapter := &fakeAdapter{turns: []provider.CompletionResult{
		{Content: "ok", StopReason: provider.StopEndTurn},
	}}
	o, _ := newTestOrchestrator(t, adapter)
	o.Pause()

	done := make(chan struct{})
	go func() {
		session := NewSession(o.cfg.ProjectPath, adapter.Name(), adapter.Model(), "")
		_, _, _, _ = o.runTurns(context.Background(), session, nil, nopSink)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("runTurns returned while paused")
	default:
	}

	o.Resume()
	<-done
}
