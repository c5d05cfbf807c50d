// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePairing_OK(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: []Part{TextPart("read the file")}},
		{Role: RoleAssistant, Content: []Part{ToolUsePart("id1", "Read", map[string]any{"file_path": "a.go"})}},
		{Role: RoleUser, Content: []Part{ToolResultPart("id1", "package main", false)}},
		{Role: RoleAssistant, Content: []Part{TextPart("done")}},
	}
	require.NoError(t, ValidatePairing(history))
}

func TestValidatePairing_MissingResult(t *testing.T) {
	history := []Message{
		{Role: RoleAssistant, Content: []Part{ToolUsePart("id1", "Read", nil)}},
	}
	err := ValidatePairing(history)
	assert.Error(t, err)
}

func TestValidatePairing_UnresolvedBeforeNextTurn(t *testing.T) {
	history := []Message{
		{Role: RoleAssistant, Content: []Part{ToolUsePart("id1", "Read", nil)}},
		{Role: RoleAssistant, Content: []Part{TextPart("oops, forgot the result")}},
	}
	err := ValidatePairing(history)
	assert.Error(t, err)
}

func TestValidatePairing_UnknownResult(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: []Part{ToolResultPart("ghost", "x", false)}},
	}
	err := ValidatePairing(history)
	assert.Error(t, err)
}

func TestValidatePairing_DuplicateResult(t *testing.T) {
	history := []Message{
		{Role: RoleAssistant, Content: []Part{ToolUsePart("id1", "Read", nil)}},
		{Role: RoleUser, Content: []Part{ToolResultPart("id1", "ok", false)}},
		{Role: RoleUser, Content: []Part{ToolResultPart("id1", "ok again", false)}},
	}
	err := ValidatePairing(history)
	assert.Error(t, err)
}

func TestUsageStats_AddAndTotal(t *testing.T) {
	var u UsageStats
	u.Add(UsageStats{InputTokens: 10, OutputTokens: 5})
	u.Add(UsageStats{InputTokens: 3, OutputTokens: 1, CacheReadTokens: 2})
	assert.Equal(t, 13, u.InputTokens)
	assert.Equal(t, 6, u.OutputTokens)
	assert.Equal(t, 2, u.CacheReadTokens)
	assert.Equal(t, 19, u.Total())
}

func TestMessageText(t *testing.T) {
	m := Message{Role: RoleAssistant, Content: []Part{TextPart("hello "), TextPart("world"), ToolUsePart("1", "X", nil)}}
	assert.Equal(t, "hello world", m.Text())
	assert.Len(t, m.ToolUses(), 1)
}
