// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package message holds the provider-agnostic conversation data model shared
// by the ProviderAdapter, ToolExecutor, PromptFallbackParser and Orchestrator:
// messages, content parts, tool calls/results and accumulated usage stats.
package message

import "fmt"

// Role identifies who produced a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType discriminates the variants of Part.
type PartType string

const (
	PartText       PartType = "text"
	PartToolUse    PartType = "tool_use"
	PartToolResult PartType = "tool_result"
)

// Part is one heterogeneous piece of Message.Content. Exactly one of the
// Text/ToolUse/ToolResult-shaped field sets is meaningful, selected by Type.
type Part struct {
	Type PartType

	// Text is populated when Type == PartText.
	Text string

	// ToolUse fields, populated when Type == PartToolUse.
	ToolUseID        string
	ToolName         string
	ToolArguments    any // structured value: object/scalar/array, never a raw string
	ToolArgumentsRaw []byte

	// ToolResult fields, populated when Type == PartToolResult.
	ToolResultUseID string
	ToolResultText  string
	ToolResultIsErr bool
}

// TextPart constructs a text content part.
func TextPart(text string) Part { return Part{Type: PartText, Text: text} }

// ToolUsePart constructs a tool_use content part.
func ToolUsePart(id, name string, args any) Part {
	return Part{Type: PartToolUse, ToolUseID: id, ToolName: name, ToolArguments: args}
}

// ToolResultPart constructs a tool_result content part.
func ToolResultPart(useID, text string, isErr bool) Part {
	return Part{Type: PartToolResult, ToolResultUseID: useID, ToolResultText: text, ToolResultIsErr: isErr}
}

// Message is one turn in a conversation. Content is ordered; for assistant
// turns it interleaves Text and ToolUse parts in emission order.
type Message struct {
	Role    Role
	Content []Part
}

// ToolUses returns the ToolUse parts in this message, in order.
func (m Message) ToolUses() []Part {
	var out []Part
	for _, p := range m.Content {
		if p.Type == PartToolUse {
			out = append(out, p)
		}
	}
	return out
}

// ToolResults returns the ToolResult parts in this message, in order.
func (m Message) ToolResults() []Part {
	var out []Part
	for _, p := range m.Content {
		if p.Type == PartToolResult {
			out = append(out, p)
		}
	}
	return out
}

// Text concatenates every text part of the message.
func (m Message) Text() string {
	out := ""
	for _, p := range m.Content {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

// ValidatePairing checks the data-model invariant: every ToolUse with id x in
// this message history is followed (before the next assistant turn) by
// exactly one ToolResult{use_id=x}. It returns the first violation found.
func ValidatePairing(history []Message) error {
	pending := map[string]int{} // use_id -> count of uses seen, not yet resolved
	order := []string{}

	for i, msg := range history {
		switch msg.Role {
		case RoleAssistant:
			for _, id := range order {
				if pending[id] == 0 {
					return fmt.Errorf("message: tool_use %q unresolved before next assistant turn (message %d)", id, i)
				}
			}
			for _, p := range msg.ToolUses() {
				if _, ok := pending[p.ToolUseID]; ok {
					return fmt.Errorf("message: duplicate tool_use id %q at message %d", p.ToolUseID, i)
				}
				pending[p.ToolUseID] = 0
				order = append(order, p.ToolUseID)
			}
		default:
			for _, p := range msg.ToolResults() {
				n, ok := pending[p.ToolResultUseID]
				if !ok {
					return fmt.Errorf("message: tool_result for unknown use_id %q at message %d", p.ToolResultUseID, i)
				}
				if n > 0 {
					return fmt.Errorf("message: duplicate tool_result for use_id %q at message %d", p.ToolResultUseID, i)
				}
				pending[p.ToolResultUseID] = 1
			}
		}
	}

	for _, id := range order {
		if pending[id] == 0 {
			return fmt.Errorf("message: tool_use %q has no matching tool_result", id)
		}
	}
	return nil
}

// UsageStats tracks token consumption, monotonically accumulated per session.
type UsageStats struct {
	InputTokens         int
	OutputTokens        int
	ThinkingTokens       int
	CacheReadTokens      int
	CacheCreationTokens  int
}

// Add accumulates another UsageStats into the receiver in place.
func (u *UsageStats) Add(other UsageStats) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.ThinkingTokens += other.ThinkingTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheCreationTokens += other.CacheCreationTokens
}

// Total returns the sum of input and output tokens, the quantity orchestrator
// budgets are measured against.
func (u UsageStats) Total() int {
	return u.InputTokens + u.OutputTokens
}

// ToolDefinition describes one callable tool: name, description, and a
// JSON-schema-style parameter shape. Names must be globally unique within a
// single execution.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]ParamDef
	Required    []string
}

// ParamDef is one property of a ToolDefinition's parameter object.
type ParamDef struct {
	Type        string // "string", "integer", "boolean", "number", "array", "object"
	Description string
	Enum        []any
	Default     any
	Required    bool
	Items       *ParamDef // element schema when Type == "array"
}

// ToolCall is a requested invocation of a tool, decoded from either a native
// provider tool_use block or the PromptFallbackParser.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResult is the observation returned to the model for a ToolCall.
type ToolResult struct {
	ToolCallID string
	Output     string
	Error      string
	IsError    bool
}
