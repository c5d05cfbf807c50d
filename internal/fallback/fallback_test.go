// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fallback

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/aleutian-core/internal/message"
)

func testToolNames() map[string]string {
	return ToolNameIndex([]message.ToolDefinition{
		{Name: "Read"}, {Name: "Write"}, {Name: "Bash"}, {Name: "CodebaseSearch"},
	})
}

func TestDecode_FencedToolCallBlock(t *testing.T) {
	text := "I'll check that file.\n\n```tool_call\n{\"tool\": \"Read\", \"arguments\": {\"file_path\": \"a.go\"}}\n```\n"
	res := Decode(text, testToolNames())
	require.Len(t, res.Calls, 1)
	require.Equal(t, "Read", res.Calls[0].Name)
	require.Equal(t, "a.go", res.Calls[0].Arguments["file_path"])
	require.NotContains(t, res.Text, "tool_call")
	require.Contains(t, res.Text, "I'll check that file.")
}

func TestDecode_XMLToolCallBlock(t *testing.T) {
	text := `<tool_call>{"tool": "Bash", "arguments": {"command": "ls"}}</tool_call>`
	res := Decode(text, testToolNames())
	require.Len(t, res.Calls, 1)
	require.Equal(t, "Bash", res.Calls[0].Name)
	require.Equal(t, "ls", res.Calls[0].Arguments["command"])
}

func TestDecode_BracketFormCoercesBareArgIntoPrimaryParam(t *testing.T) {
	text := "[TOOL] Read(a.go)"
	res := Decode(text, testToolNames())
	require.Len(t, res.Calls, 1)
	require.Equal(t, "Read", res.Calls[0].Name)
	require.Equal(t, "a.go", res.Calls[0].Arguments["file_path"])
}

func TestDecode_DirectXMLFormWithParamTags(t *testing.T) {
	text := "<Read><file_path>a.go</file_path></Read>"
	res := Decode(text, testToolNames())
	require.Len(t, res.Calls, 1)
	require.Equal(t, "Read", res.Calls[0].Name)
	require.Equal(t, "a.go", res.Calls[0].Arguments["file_path"])
}

func TestDecode_DirectXMLCaseInsensitiveTag(t *testing.T) {
	text := "<read><file_path>a.go</file_path></read>"
	res := Decode(text, testToolNames())
	require.Len(t, res.Calls, 1)
	require.Equal(t, "Read", res.Calls[0].Name)
}

func TestDecode_AdditiveAcrossConservativePasses(t *testing.T) {
	text := "```tool_call\n{\"tool\": \"Read\", \"arguments\": {\"file_path\": \"a.go\"}}\n```\n" +
		"<tool_call>{\"tool\": \"Bash\", \"arguments\": {\"command\": \"ls\"}}</tool_call>"
	res := Decode(text, testToolNames())
	require.Len(t, res.Calls, 2)
	require.Equal(t, "Read", res.Calls[0].Name)
	require.Equal(t, "Bash", res.Calls[1].Name)
}

func TestDecode_BareCallLineOnlyRunsAsLastResort(t *testing.T) {
	// No conservative-pass match exists, so the bare start-of-line form
	// should be picked up by the salvage passes.
	text := "Let me look at this.\nRead(a.go)\n"
	res := Decode(text, testToolNames())
	require.Len(t, res.Calls, 1)
	require.Equal(t, "Read", res.Calls[0].Name)
	require.Equal(t, "a.go", res.Calls[0].Arguments["file_path"])
}

func TestDecode_BareCallMidSentenceIsNotMatched(t *testing.T) {
	text := "I will call Read(a.go) to check the file."
	res := Decode(text, testToolNames())
	require.Empty(t, res.Calls, "a bare call embedded in prose must not match, to avoid re-execution loops")
}

func TestDecode_SalvagePassesSkippedWhenConservativePassesSucceed(t *testing.T) {
	text := "```tool_call\n{\"tool\": \"Read\", \"arguments\": {\"file_path\": \"a.go\"}}\n```\n" +
		"Bash(ls)\n"
	res := Decode(text, testToolNames())
	require.Len(t, res.Calls, 1, "salvage passes must not run once a conservative pass matched")
	require.Equal(t, "Read", res.Calls[0].Name)
}

func TestDecode_BareJSONWithToolCallLabel(t *testing.T) {
	text := "tool_call:\n{\"tool\": \"CodebaseSearch\", \"arguments\": {\"query\": \"parser\"}}"
	res := Decode(text, testToolNames())
	require.Len(t, res.Calls, 1)
	require.Equal(t, "CodebaseSearch", res.Calls[0].Name)
	require.Equal(t, "parser", res.Calls[0].Arguments["query"])
}

func TestDecode_UnknownToolNameIsIgnored(t *testing.T) {
	text := "```tool_call\n{\"tool\": \"NotARealTool\", \"arguments\": {}}\n```\n"
	res := Decode(text, testToolNames())
	require.Empty(t, res.Calls)
}

func TestCleanResidual_DedupsConsecutiveIdenticalParagraphs(t *testing.T) {
	text := "Checking the file now.\n\nChecking the file now.\n\nDone."
	require.Equal(t, "Checking the file now.\n\nDone.", cleanResidual(text))
}

func TestFormatToolResult_MatchesSpecifiedTemplate(t *testing.T) {
	got := FormatToolResult("Read", "abc123", "file contents here")
	require.Equal(t, "[Tool Result: Read (id: abc123)]\nfile contents here", got)
}

// TestDecode_RoundTripPreservesNameAndArguments is the fenced-form
// analogue of spec.md §8 property 12: encoding a ToolCall and decoding it
// back yields the same (name, arguments).
func TestDecode_RoundTripPreservesNameAndArguments(t *testing.T) {
	original := message.ToolCall{Name: "Read", Arguments: map[string]any{"file_path": "a.go", "offset": float64(10)}}
	encoded := fmt.Sprintf("```tool_call\n{\"tool\": %q, \"arguments\": {\"file_path\": %q, \"offset\": 10}}\n```",
		original.Name, original.Arguments["file_path"])

	res := Decode(encoded, testToolNames())
	require.Len(t, res.Calls, 1)
	require.Equal(t, original.Name, res.Calls[0].Name)
	require.Equal(t, original.Arguments["file_path"], res.Calls[0].Arguments["file_path"])
	require.Equal(t, original.Arguments["offset"], res.Calls[0].Arguments["offset"])
}

func TestDecode_StrippingTwoEncodedCallsLeavesOnlyProse(t *testing.T) {
	c1 := "```tool_call\n{\"tool\": \"Read\", \"arguments\": {\"file_path\": \"a.go\"}}\n```"
	c2 := "```tool_call\n{\"tool\": \"Bash\", \"arguments\": {\"command\": \"ls\"}}\n```"
	text := c1 + " prose " + c2
	res := Decode(text, testToolNames())
	require.Equal(t, "prose", res.Text)
}

func TestEncodeSystemPromptBlock_ListsToolsSortedWithParameters(t *testing.T) {
	defs := []message.ToolDefinition{
		{Name: "Write", Description: "writes files", Required: []string{"file_path", "content"}},
		{Name: "Read", Description: "reads files", Parameters: map[string]message.ParamDef{
			"file_path": {Type: "string", Description: "path"},
		}, Required: []string{"file_path"}},
	}
	block := EncodeSystemPromptBlock(defs)
	readIdx := indexOf(block, "Read: reads files")
	writeIdx := indexOf(block, "Write: writes files")
	require.GreaterOrEqual(t, readIdx, 0)
	require.GreaterOrEqual(t, writeIdx, 0)
	require.Less(t, readIdx, writeIdx, "tools should be listed in sorted order")
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
