// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package provider defines the uniform ProviderAdapter contract the
// orchestrator drives, plus its concrete vendor adapters (Anthropic, OpenAI,
// Gemini, Ollama). Modeled as a capability interface (vtable-style), not
// inheritance, per the dynamic-dispatch design note: each vendor's wire
// format stays inside its own adapter and never leaks above this package.
package provider

import (
	"context"

	"github.com/AleutianAI/aleutian-core/internal/message"
)

// ToolCallReliability classifies how consistently a model emits native tool
// calls. Unreliable models are driven through the PromptFallbackParser.
type ToolCallReliability string

const (
	ReliabilityNative     ToolCallReliability = "native"
	ReliabilityUnreliable ToolCallReliability = "unreliable"
)

// FallbackMode is the default prompt-fallback posture an adapter suggests.
type FallbackMode string

const (
	FallbackOff  FallbackMode = "off"
	FallbackSoft FallbackMode = "soft"
	FallbackHard FallbackMode = "hard"
)

// StopReason is why a completion ended.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
	StopOther        StopReason = "other"
)

// CompletionResult is the uniform result of one round-trip, aggregated even
// when produced by StreamMessage.
type CompletionResult struct {
	Content    string
	Thinking   string
	ToolCalls  []message.ToolCall
	StopReason StopReason
	Usage      message.UsageStats
	Model      string
}

// Options carries provider-agnostic generation parameters for one call.
type Options struct {
	Temperature    *float64
	TopP           *float64
	TopK           *int
	MaxTokens      int
	Stop           []string
	EnableThinking bool
	ThinkingBudget int
}

// EventType discriminates StreamEvent variants.
type EventType string

const (
	EventTextDelta     EventType = "text_delta"
	EventThinkingDelta EventType = "thinking_delta"
	EventToolStart     EventType = "tool_start"
	EventToolDelta     EventType = "tool_delta"
	EventToolComplete  EventType = "tool_complete"
	EventUsage         EventType = "usage"
	EventComplete      EventType = "complete"
	EventError         EventType = "error"
)

// StreamEvent is one unit pushed to the event sink during StreamMessage.
type StreamEvent struct {
	Type       EventType
	Content    string // TextDelta/ThinkingDelta content
	ToolID     string
	ToolName   string
	ToolArgs   string // accumulated/partial JSON for ToolDelta/ToolComplete
	Usage      message.UsageStats
	StopReason StopReason
	Err        error
}

// EventSink receives StreamEvents in provider emission order. Implementations
// must not block indefinitely; the orchestrator feeds a bounded channel sink.
type EventSink func(context.Context, StreamEvent) error

// Adapter is the uniform contract every vendor backend implements.
//
// Thread Safety: implementations must be safe for concurrent use — a single
// Adapter instance is shared across sessions and sub-agents.
type Adapter interface {
	// SendMessage performs one non-streaming round trip.
	SendMessage(ctx context.Context, messages []message.Message, system string, tools []message.ToolDefinition, opts Options) (CompletionResult, error)

	// StreamMessage performs one round trip, emitting StreamEvents to sink as
	// they are produced, and returns the same aggregated CompletionResult
	// SendMessage would have returned.
	StreamMessage(ctx context.Context, messages []message.Message, system string, tools []message.ToolDefinition, opts Options, sink EventSink) (CompletionResult, error)

	// HealthCheck validates credentials and performs a minimal round trip.
	HealthCheck(ctx context.Context) error

	Name() string
	Model() string
	ContextWindow() int
	SupportsThinking() bool
	SupportsTools() bool
	ToolCallReliability() ToolCallReliability
	DefaultFallbackMode() FallbackMode
}
