// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator drives the provider-agnostic agentic loop spec.md
// §4.11 names: alternating ProviderAdapter completions with ToolExecutor
// invocations, under iteration/token budgets, with streaming, pause/
// resume, cancellation, session/story persistence, and bounded sub-agent
// delegation via the Task tool.
//
// Grounded on services/trace/agent/phases/execute_execution.go's
// build/emit/execute-per-invocation loop shape, generalized from that
// package's MCTS/CRS-specific machinery down to the fixed
// completion<->tool-execution alternation spec.md names, and on
// internal/provider/retry.go's WithRetry generic helper, reused here
// around each LLM call per spec.md §7's NetworkError/RateLimited recovery
// policy. No MAX_DEPTH/sub-agent-spawning precedent exists anywhere in
// the teacher tree; that part is built directly from spec.md §4.11's own
// pseudocode.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/aleutian-core/internal/message"
	"github.com/AleutianAI/aleutian-core/internal/obs"
	"github.com/AleutianAI/aleutian-core/internal/provider"
	"github.com/AleutianAI/aleutian-core/internal/store"
	"github.com/AleutianAI/aleutian-core/internal/tools"
)

// orchestratorTracer is the package-level OTel tracer, the same
// otel.Tracer("<dotted.name>") idiom escalating_router.go uses at
// package scope.
var orchestratorTracer = otel.Tracer("aleutian.orchestrator")

// pausePollInterval is how often a paused Run checks whether it has been
// resumed or cancelled, per spec.md §8 property 15 ("pause/cancel
// responsiveness ... within one polling interval").
const pausePollInterval = 100 * time.Millisecond

// defaultMaxTokens bounds a single completion call when Config leaves it
// unset; distinct from Budget.MaxTotalTokens, which bounds the whole run.
const defaultMaxTokens = 4096

// Config wires one Orchestrator to its project, provider, and tool
// surface. Sub-agents receive a derived Config (see spawnSubAgent) rather
// than a caller-constructed one.
type Config struct {
	ProjectPath string
	Adapter     provider.Adapter
	Budget      Budget
	Logger      *slog.Logger
	Prompt      SystemPromptSections
	Depth       int
	ProjectSummary store.ProjectIndexSummary

	// CodebaseSearch and DenyCommands configure the top-level Executor this
	// Config builds. Unused by derived sub-agent Configs, which instead reuse
	// the parent's Executor via Spawn.
	CodebaseSearch tools.CodebaseSearchFunc
	DenyCommands   []string
}

// Orchestrator runs one project/provider/session's agentic loop. A fresh
// Orchestrator is constructed per top-level session; sub-agents get their
// own Orchestrator instance (see spawnSubAgent) so each depth level's
// budget, executor, and Task-tool wiring are independent.
type Orchestrator struct {
	cfg      Config
	executor *tools.Executor

	paused atomic.Bool
	usage  message.UsageStats

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New constructs a top-level Orchestrator, building its own ToolExecutor
// and wiring the Task tool back to this Orchestrator's own sub-agent
// spawner.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{cfg: cfg}

	opts := []tools.Option{tools.WithTaskRunner(o.spawnSubAgent)}
	if cfg.Logger != nil {
		opts = append(opts, tools.WithLogger(cfg.Logger))
	}
	if cfg.CodebaseSearch != nil {
		opts = append(opts, tools.WithCodebaseSearch(cfg.CodebaseSearch))
	}
	if cfg.DenyCommands != nil {
		opts = append(opts, tools.WithDenyCommands(cfg.DenyCommands))
	}
	o.executor = tools.New(cfg.ProjectPath, opts...)

	o.applyDefaults()
	return o
}

// newWithExecutor constructs an Orchestrator around an already-built
// Executor (a Spawn'd child), used by spawnSubAgent: the child Executor's
// Task tool is rebound onto the new Orchestrator immediately after this
// returns.
func newWithExecutor(cfg Config, executor *tools.Executor) *Orchestrator {
	o := &Orchestrator{cfg: cfg, executor: executor}
	o.applyDefaults()
	return o
}

func (o *Orchestrator) applyDefaults() {
	if o.cfg.Logger == nil {
		o.cfg.Logger = slog.Default()
	}
	if o.cfg.Budget.MaxIterations <= 0 {
		o.cfg.Budget.MaxIterations = defaultMaxIterations
	}
}

func childSessionID() string { return uuid.NewString() }

// Pause flips an atomic flag the run loop sleep-polls between iterations.
// It does not interrupt a completion or tool call already in flight.
func (o *Orchestrator) Pause() { o.paused.Store(true) }

// Resume clears the pause flag.
func (o *Orchestrator) Resume() { o.paused.Store(false) }

// Cancel aborts the in-flight Run/RunSession. Cancellation pre-empts
// pause: a paused loop polling on pausePollInterval still observes ctx.Done
// and exits within one polling interval, per spec.md §8 property 15.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Usage returns the run's accumulated token usage so far, including any
// merged-in sub-agent usage.
func (o *Orchestrator) Usage() message.UsageStats { return o.usage }

// RunSession drives an entire ExecutionSession story-by-story. Each story
// runs the plain agentic loop (runTurns) once; session/story state is
// persisted at start, at each story boundary, on failure and on
// completion. Pausing is not persisted: Pause only sets the in-memory
// flag, and the stored session keeps its last status while the loop is
// paused. A QualityGatesResult event closes out each story before the next one (or
// SessionComplete) begins. If session.Stories is already populated (a
// resumed session), storyTitles is ignored and the existing breakdown is
// used as-is, resuming from session.CurrentStoryIndex.
func (o *Orchestrator) RunSession(ctx context.Context, session store.ExecutionSession, storyTitles []string, sessions *SessionManager, sink EventSink) (store.ExecutionSession, error) {
	spanCtx, span := orchestratorTracer.Start(ctx, "orchestrator.RunSession",
		trace.WithAttributes(
			attribute.String("session_id", session.ID),
			attribute.String("project_path", o.cfg.ProjectPath),
			attribute.Int("story_count", len(storyTitles)),
		),
	)
	defer span.End()

	runCtx, cancel := context.WithCancel(spanCtx)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()
	defer cancel()

	if sink == nil {
		sink = nopSink
	}

	if len(session.Stories) == 0 {
		session.Stories = make([]store.StoryState, len(storyTitles))
		for i, title := range storyTitles {
			session.Stories[i] = store.StoryState{Index: i, Title: title, Status: store.StoryPending}
		}
	}

	session.Status = store.SessionRunning
	startedAt := time.Now()
	session.StartedAt = &startedAt
	o.persist(runCtx, sessions, &session)

	var history []message.Message

	for session.CurrentStoryIndex < len(session.Stories) {
		story := session.Stories[session.CurrentStoryIndex]
		story.Status = store.StoryActive
		session.Stories[session.CurrentStoryIndex] = story
		o.persist(runCtx, sessions, &session)
		_ = sink(runCtx, Event{Type: EventStoryStart, SessionID: session.ID, StoryIndex: story.Index, StoryTitle: story.Title})

		history = append(history, message.Message{Role: message.RoleUser, Content: []message.Part{message.TextPart(story.Title)}})

		var err error
		var iterations int
		session, history, iterations, err = o.runTurns(runCtx, session, history, sink)
		_ = iterations
		if err != nil {
			return o.failSession(runCtx, span, sessions, session, sink, err)
		}

		story = session.Stories[session.CurrentStoryIndex]
		story.Status = store.StoryCompleted
		story.Summary = lastAssistantText(history)
		session.Stories[session.CurrentStoryIndex] = story
		session.CurrentStoryIndex++
		o.persist(runCtx, sessions, &session)

		gatesPassed := message.ValidatePairing(history) == nil
		_ = sink(runCtx, Event{Type: EventQualityGatesResult, SessionID: session.ID, StoryIndex: story.Index, Success: gatesPassed})
		_ = sink(runCtx, Event{Type: EventStoryComplete, SessionID: session.ID, StoryIndex: story.Index, StoryTitle: story.Title})
		_ = sink(runCtx, Event{Type: EventSessionProgress, SessionID: session.ID, StoryIndex: session.CurrentStoryIndex})
	}

	session.Status = store.SessionCompleted
	completedAt := time.Now()
	session.CompletedAt = &completedAt
	o.persist(runCtx, sessions, &session)
	_ = sink(runCtx, Event{Type: EventSessionComplete, SessionID: session.ID})
	obs.SessionsTotal.WithLabelValues("completed").Inc()
	span.SetStatus(codes.Ok, "")
	return session, nil
}

func (o *Orchestrator) failSession(ctx context.Context, span trace.Span, sessions *SessionManager, session store.ExecutionSession, sink EventSink, err error) (store.ExecutionSession, error) {
	if session.CurrentStoryIndex < len(session.Stories) {
		story := session.Stories[session.CurrentStoryIndex]
		story.Status = store.StoryFailed
		session.Stories[session.CurrentStoryIndex] = story
	}
	if IsCancelled(err) {
		session.Status = store.SessionCancelled
		obs.SessionsTotal.WithLabelValues("cancelled").Inc()
	} else {
		session.Status = store.SessionFailed
		obs.SessionsTotal.WithLabelValues("failed").Inc()
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	session.Error = err.Error()
	completedAt := time.Now()
	session.CompletedAt = &completedAt
	o.persist(ctx, sessions, &session)
	_ = sink(ctx, Event{Type: EventError, SessionID: session.ID, ErrorMessage: err.Error()})
	return session, err
}

func (o *Orchestrator) persist(ctx context.Context, sessions *SessionManager, session *store.ExecutionSession) {
	if sessions == nil {
		return
	}
	if err := sessions.Persist(ctx, *session); err != nil {
		o.cfg.Logger.Warn("orchestrator: persisting session failed", "session", session.ID, "error", err)
	}
}

// runTurns is one story's agentic loop: alternate a completion call with
// tool execution until the model stops requesting tools, honoring
// pause/cancel and the configured Budget. It does not itself set a
// terminal session.Status — RunSession (or spawnSubAgent, for a
// sub-agent's single implicit story) owns that transition, since a
// runTurns failure may be either a Cancelled or Failed outcome depending
// on the error kind.
func (o *Orchestrator) runTurns(ctx context.Context, session store.ExecutionSession, history []message.Message, sink EventSink) (store.ExecutionSession, []message.Message, int, error) {
	defs := o.executor.Definitions()
	iterations := 0

	for {
		if ctx.Err() != nil {
			return session, history, iterations, newCancelledError()
		}
		for o.paused.Load() {
			select {
			case <-ctx.Done():
				return session, history, iterations, newCancelledError()
			case <-time.After(pausePollInterval):
			}
		}

		totalTokens := int(session.TotalInputTokens + session.TotalOutputTokens)
		if reason, exceeded := o.cfg.Budget.exceeded(iterations, totalTokens); exceeded {
			return session, history, iterations, newBudgetExceededError(fmt.Sprintf("orchestrator: budget exceeded (%s)", reason))
		}

		iterStart := time.Now()
		iterCtx, iterSpan := orchestratorTracer.Start(ctx, "orchestrator.runTurns.iteration",
			trace.WithAttributes(
				attribute.String("session_id", session.ID),
				attribute.Int("iteration", iterations),
			),
		)

		providerSink := o.translateProviderEvents(iterCtx, sink, session.ID)
		result, err := provider.WithRetry(iterCtx, provider.DefaultRetryPolicy, func(callCtx context.Context) (provider.CompletionResult, error) {
			return o.cfg.Adapter.StreamMessage(callCtx, history, o.systemPrompt(), defs, provider.Options{MaxTokens: defaultMaxTokens}, providerSink)
		})
		obs.LoopIterationDuration.Observe(time.Since(iterStart).Seconds())
		if err != nil {
			iterSpan.RecordError(err)
			iterSpan.SetStatus(codes.Error, err.Error())
			iterSpan.End()
			_ = sink(ctx, Event{Type: EventError, SessionID: session.ID, ErrorMessage: err.Error()})
			return session, history, iterations, err
		}
		iterSpan.SetAttributes(
			attribute.Int("tool_calls", len(result.ToolCalls)),
			attribute.String("stop_reason", string(result.StopReason)),
		)
		iterSpan.End()

		o.usage.Add(result.Usage)
		session.TotalInputTokens += int64(result.Usage.InputTokens)
		session.TotalOutputTokens += int64(result.Usage.OutputTokens)

		if len(result.ToolCalls) == 0 {
			history = append(history, assistantTextMessage(result.Content))
			_ = sink(ctx, Event{Type: EventUsage, SessionID: session.ID, Usage: result.Usage})
			_ = sink(ctx, Event{Type: EventComplete, SessionID: session.ID, StopReason: result.StopReason})
			return session, history, iterations, nil
		}

		history = append(history, assistantToolUseMessage(result.Content, result.ToolCalls))

		for _, call := range result.ToolCalls {
			_ = sink(ctx, Event{Type: EventToolStart, SessionID: session.ID, ToolID: call.ID, ToolName: call.Name})
			res := o.executor.Execute(ctx, call)
			toolResult := res.AsToolResult(call.ID)
			_ = sink(ctx, Event{Type: EventToolComplete, SessionID: session.ID, ToolID: call.ID, ToolName: call.Name, ToolArgs: toolResult.Output})
			history = append(history, toolResultMessage(toolResult))
		}

		iterations++
	}
}

func assistantTextMessage(text string) message.Message {
	return message.Message{Role: message.RoleAssistant, Content: []message.Part{message.TextPart(text)}}
}

func assistantToolUseMessage(text string, calls []message.ToolCall) message.Message {
	var parts []message.Part
	if text != "" {
		parts = append(parts, message.TextPart(text))
	}
	for _, c := range calls {
		parts = append(parts, message.ToolUsePart(c.ID, c.Name, c.Arguments))
	}
	return message.Message{Role: message.RoleAssistant, Content: parts}
}

func toolResultMessage(tr message.ToolResult) message.Message {
	text := tr.Output
	if tr.IsError {
		text = tr.Error
	}
	return message.Message{Role: message.RoleUser, Content: []message.Part{message.ToolResultPart(tr.ToolCallID, text, tr.IsError)}}
}
