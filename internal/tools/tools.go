// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tools is the ToolExecutor: dispatch and sandboxing of the
// built-in Read/Write/Edit/LS/Glob/Grep/Bash/CodebaseSearch/Task tools
// against a project root (spec.md §4.9). Grounded on haasonsaas-nexus's
// pkg/pluginsdk/validation.go for the santhosh-tekuri/jsonschema/v5
// compile-once-validate-per-call pattern, generalized from plugin config
// validation to per-tool argument validation.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/AleutianAI/aleutian-core/internal/message"
)

// Result is a tool invocation's outcome, per spec.md §4.9: "every tool
// invocation returns {success, output?, error?}; success=false still
// yields an observation that flows back into the conversation."
type Result struct {
	Success bool
	Output  string
	Error   string
}

// AsToolResult converts Result into the message-layer observation the
// orchestrator appends to conversation history.
func (r Result) AsToolResult(callID string) message.ToolResult {
	return message.ToolResult{ToolCallID: callID, Output: r.Output, Error: r.Error, IsError: !r.Success}
}

func ok(output string) Result           { return Result{Success: true, Output: output} }
func errResult(format string, a ...any) Result { return Result{Success: false, Error: fmt.Sprintf(format, a...)} }

// Handler executes one tool call against normalized arguments.
type Handler func(ctx context.Context, ex *Executor, args map[string]any) Result

// registration bundles a tool's definition, compiled schema, and handler.
type registration struct {
	def     message.ToolDefinition
	schema  *jsonschema.Schema
	handler Handler
}

// Executor is the ToolExecutor for one project root. Each sub-agent gets
// its own Executor (via Spawn) so its read cache doesn't pollute the
// parent's, per spec.md §4.9.
type Executor struct {
	projectRoot string
	logger      *slog.Logger

	registry map[string]registration

	readCache   *readCache
	searchFn    CodebaseSearchFunc
	taskFn      TaskFunc
	denyCmds    []string
}

// CodebaseSearchFunc delegates CodebaseSearch to the HybridSearchEngine.
// Bound per-project by the IndexManager, not by this package directly, to
// avoid a tools -> search -> indexmanager import cycle.
type CodebaseSearchFunc func(ctx context.Context, query, scope string) (string, error)

// TaskFunc spawns a sub-agent and returns its final text report. Bound by
// the Orchestrator, which owns sub-agent depth/lifecycle (spec.md §4.11);
// this package only defines the call shape.
type TaskFunc func(ctx context.Context, prompt, subagentType string) (string, error)

// Option configures an Executor at construction.
type Option func(*Executor)

// WithCodebaseSearch wires the CodebaseSearch tool to a HybridSearchEngine.
func WithCodebaseSearch(fn CodebaseSearchFunc) Option { return func(e *Executor) { e.searchFn = fn } }

// WithTaskRunner wires the Task tool to the Orchestrator's sub-agent spawner.
func WithTaskRunner(fn TaskFunc) Option { return func(e *Executor) { e.taskFn = fn } }

// WithDenyCommands overrides Bash's deny-list; a command containing any
// entry as a substring is rejected.
func WithDenyCommands(prefixes []string) Option {
	return func(e *Executor) { e.denyCmds = prefixes }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option { return func(e *Executor) { e.logger = l } }

var defaultDenyCommands = []string{
	"rm -rf /", "rm -rf /*", "mkfs", "dd if=", ":(){ :|:& };:", "shutdown", "reboot",
}

// New constructs an Executor rooted at projectRoot and registers every
// built-in tool's schema.
func New(projectRoot string, opts ...Option) *Executor {
	ex := &Executor{
		projectRoot: projectRoot,
		logger:      slog.Default(),
		registry:    make(map[string]registration),
		readCache:   newReadCache(),
		denyCmds:    defaultDenyCommands,
	}
	for _, opt := range opts {
		opt(ex)
	}
	ex.registerBuiltins()
	return ex
}

// Spawn returns a fresh Executor for a sub-agent at the same project root,
// sharing tool wiring (search/task functions, deny-list) but starting with
// an empty read cache — spec.md §4.9's "sub-agents get a fresh read cache
// so their state does not pollute the parent".
func (ex *Executor) Spawn() *Executor {
	child := &Executor{
		projectRoot: ex.projectRoot,
		logger:      ex.logger,
		registry:    ex.registry,
		readCache:   newReadCache(),
		searchFn:    ex.searchFn,
		taskFn:      ex.taskFn,
		denyCmds:    ex.denyCmds,
	}
	return child
}

// RebindTaskRunner replaces the Task tool's runner after construction. A
// Spawn'd sub-agent Executor otherwise inherits its parent's taskFn, whose
// depth bookkeeping belongs to the parent orchestrator, not the sub-agent
// itself; the owning Orchestrator calls this once it has built the child
// orchestrator that should receive further Task calls.
func (ex *Executor) RebindTaskRunner(fn TaskFunc) { ex.taskFn = fn }

func (ex *Executor) register(def message.ToolDefinition, schemaJSON string, handler Handler) {
	schema, err := jsonschema.CompileString(def.Name+".schema.json", schemaJSON)
	if err != nil {
		ex.logger.Error("tools: compiling schema failed", "tool", def.Name, "error", err)
		return
	}
	ex.registry[def.Name] = registration{def: def, schema: schema, handler: handler}
}

// Definitions returns every registered tool's ToolDefinition, for the
// Orchestrator to pass to ProviderAdapter.SendMessage/StreamMessage.
func (ex *Executor) Definitions() []message.ToolDefinition {
	out := make([]message.ToolDefinition, 0, len(ex.registry))
	for _, reg := range ex.registry {
		out = append(out, reg.def)
	}
	return out
}

// Execute normalizes call.Arguments, validates them against the tool's
// JSON schema, and dispatches to its Handler. An unknown tool name, a
// schema violation, or a handler error all surface as a failed Result
// rather than a Go error — per spec.md §4.9, every invocation still
// yields an observation for the conversation.
func (ex *Executor) Execute(ctx context.Context, call message.ToolCall) Result {
	reg, found := ex.registry[call.Name]
	if !found {
		return errResult("unknown tool %q", call.Name)
	}

	args := normalizeArguments(call.Name, call.Arguments)

	payload, err := json.Marshal(args)
	if err != nil {
		return errResult("encoding arguments: %v", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return errResult("decoding arguments: %v", err)
	}
	if err := reg.schema.Validate(decoded); err != nil {
		return errResult("invalid arguments for %s: %v", call.Name, err)
	}

	return reg.handler(ctx, ex, args)
}

