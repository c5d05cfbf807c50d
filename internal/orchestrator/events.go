// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"

	"github.com/AleutianAI/aleutian-core/internal/message"
	"github.com/AleutianAI/aleutian-core/internal/provider"
)

// EventType discriminates the orchestrator-level event union spec.md
// §4.11 names: session/story bookkeeping alongside the provider-level
// streaming variants it forwards.
type EventType string

const (
	EventSessionProgress    EventType = "session_progress"
	EventStoryStart         EventType = "story_start"
	EventStoryComplete      EventType = "story_complete"
	EventQualityGatesResult EventType = "quality_gates_result"
	EventSessionComplete    EventType = "session_complete"
	EventTextDelta          EventType = "text_delta"
	EventThinkingDelta      EventType = "thinking_delta"
	EventToolStart          EventType = "tool_start"
	EventToolDelta          EventType = "tool_delta"
	EventToolComplete       EventType = "tool_complete"
	EventUsage              EventType = "usage"
	EventComplete           EventType = "complete"
	EventError              EventType = "error"
)

// Event is one unit pushed to an EventSink. Only the fields relevant to
// Type are populated.
type Event struct {
	Type      EventType
	SessionID string

	Content string // TextDelta/ThinkingDelta

	ToolID   string
	ToolName string
	ToolArgs string

	StoryIndex int
	StoryTitle string
	Success    bool // QualityGatesResult

	Usage        message.UsageStats
	StopReason   provider.StopReason
	ErrorMessage string
	ErrorCode    string
}

// EventSink receives Events in emission order. Implementations must not
// block indefinitely — NewChannelSink's callback instead honors ctx
// cancellation so a stalled consumer cannot wedge the orchestrator loop.
type EventSink func(context.Context, Event) error

// NewChannelSink returns a bounded event channel (capacity per spec.md
// §5's "event channel capacity 100" back-pressure note) and the EventSink
// callback that feeds it. The caller reads from the channel; closeFn must
// be invoked once the producing Run/RunSession call returns.
func NewChannelSink(capacity int) (<-chan Event, EventSink, func()) {
	if capacity <= 0 {
		capacity = 100
	}
	ch := make(chan Event, capacity)
	sink := func(ctx context.Context, ev Event) error {
		select {
		case ch <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ch, sink, func() { close(ch) }
}

// nopSink discards every event, for callers (sub-agent runs whose stream
// is not surfaced directly) that only care about the final return value.
func nopSink(context.Context, Event) error { return nil }

// translateProviderEvents adapts a provider.EventSink onto sink. Per
// spec.md §4.11, provider-level ToolStart/ToolComplete/Usage/Complete are
// suppressed here: the orchestrator re-derives its own ToolStart/
// ToolComplete around actual tool execution (not argument parsing) and its
// own Usage/Complete after accumulating the full turn, so forwarding the
// provider's copies would double-report the same information under a
// different event shape.
func (o *Orchestrator) translateProviderEvents(ctx context.Context, sink EventSink, sessionID string) provider.EventSink {
	return func(_ context.Context, ev provider.StreamEvent) error {
		switch ev.Type {
		case provider.EventTextDelta:
			return sink(ctx, Event{Type: EventTextDelta, SessionID: sessionID, Content: ev.Content})
		case provider.EventThinkingDelta:
			return sink(ctx, Event{Type: EventThinkingDelta, SessionID: sessionID, Content: ev.Content})
		case provider.EventToolDelta:
			return sink(ctx, Event{Type: EventToolDelta, SessionID: sessionID, ToolID: ev.ToolID, ToolName: ev.ToolName, ToolArgs: ev.ToolArgs})
		case provider.EventError:
			msg := ""
			if ev.Err != nil {
				msg = ev.Err.Error()
			}
			return sink(ctx, Event{Type: EventError, SessionID: sessionID, ErrorMessage: msg})
		default:
			return nil
		}
	}
}
