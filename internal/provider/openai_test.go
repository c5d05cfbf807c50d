// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/aleutian-core/internal/message"
)

func TestOpenAIAdapter_SendMessage_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{
					"message":       map[string]any{"content": "hello there"},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 3},
		})
	}))
	defer srv.Close()

	a := NewOpenAIAdapter("test-key", "gpt-4o", srv.URL, 0)
	msgs := []message.Message{{Role: message.RoleUser, Content: []message.Part{message.TextPart("hi")}}}

	result, err := a.SendMessage(context.Background(), msgs, "", nil, Options{})
	require.NoError(t, err)
	require.Equal(t, "hello there", result.Content)
	require.Equal(t, StopEndTurn, result.StopReason)
	require.Equal(t, 10, result.Usage.InputTokens)
	require.Equal(t, 3, result.Usage.OutputTokens)
}

func TestOpenAIAdapter_SendMessage_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewOpenAIAdapter("test-key", "gpt-4o", srv.URL, 0)
	_, err := a.SendMessage(context.Background(), nil, "", nil, Options{})
	require.Error(t, err)
	require.True(t, IsRetryable(err))
}

func TestOpenAIAdapter_SendMessage_ParsesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{
					"message": map[string]any{
						"content": "",
						"tool_calls": []map[string]any{
							{
								"id":   "call_1",
								"type": "function",
								"function": map[string]any{
									"name":      "Read",
									"arguments": `{"file_path":"a.go"}`,
								},
							},
						},
					},
					"finish_reason": "tool_calls",
				},
			},
		})
	}))
	defer srv.Close()

	a := NewOpenAIAdapter("test-key", "gpt-4o", srv.URL, 0)
	result, err := a.SendMessage(context.Background(), nil, "", nil, Options{})
	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 1)
	require.Equal(t, "Read", result.ToolCalls[0].Name)
	require.Equal(t, "a.go", result.ToolCalls[0].Arguments["file_path"])
	require.Equal(t, StopToolUse, result.StopReason)
}

func TestOpenAIAdapter_SendMessage_EmptyChoicesIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []map[string]any{}})
	}))
	defer srv.Close()

	a := NewOpenAIAdapter("test-key", "gpt-4o", srv.URL, 0)
	_, err := a.SendMessage(context.Background(), nil, "", nil, Options{})
	require.Error(t, err)
	require.False(t, IsRetryable(err))
}

func TestOpenAIAdapter_DefaultsContextWindowAndBaseURL(t *testing.T) {
	a := NewOpenAIAdapter("k", "gpt-4o", "", 0)
	require.Equal(t, 128_000, a.ContextWindow())
	require.Equal(t, "openai", a.Name())
}
