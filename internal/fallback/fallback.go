// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package fallback is the PromptFallbackParser: a text-encoded tool-call
// protocol for providers whose ProviderAdapter.tool_call_reliability is
// Unreliable or that lack native function-calling entirely (spec.md
// §4.10). No parsing-combinator or grammar library appears anywhere in
// the example pack suited to this, so decoding is stdlib regexp and
// encoding/json only — see DESIGN.md.
package fallback

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/AleutianAI/aleutian-core/internal/message"
)

// primaryParam maps a tool name to the single parameter its bracket-form
// bare value coerces into, per spec.md §4.10 pass 3 ("Read -> file_path").
var primaryParam = map[string]string{
	"Read":           "file_path",
	"Write":          "file_path",
	"Edit":           "file_path",
	"LS":             "path",
	"Glob":           "pattern",
	"Grep":           "pattern",
	"Bash":           "command",
	"CodebaseSearch": "query",
	"Task":           "prompt",
}

// DecodeResult is one Decode call's outcome: the tool calls recognized,
// in the order they appeared, and the residual user-visible text with all
// recognized tool-call syntax removed.
type DecodeResult struct {
	Calls []message.ToolCall
	Text  string
}

func newCallID() string { return uuid.NewString() }

// FormatToolResult renders a tool's response for injection as a user
// message on the next turn, per spec.md §4.10's "[Tool Result: <name>
// (id: <id>)]\n<body>".
func FormatToolResult(name, id, body string) string {
	return fmt.Sprintf("[Tool Result: %s (id: %s)]\n%s", name, id, body)
}
