// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AleutianAI/aleutian-core/internal/message"
)

const openaiDefaultBaseURL = "https://api.openai.com/v1/chat/completions"

// OpenAIAdapter implements Adapter over the Chat Completions API, following
// the teacher's raw net/http client rather than the openai-go SDK. The
// teacher's ChatStream left streaming unimplemented; this adapter adds it,
// following the Chat Completions SSE delta shape.
type OpenAIAdapter struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
	ctxWindow  int
}

func NewOpenAIAdapter(apiKey, model, baseURL string, contextWindow int) *OpenAIAdapter {
	if baseURL == "" {
		baseURL = openaiDefaultBaseURL
	}
	if contextWindow == 0 {
		contextWindow = 128_000
	}
	return &OpenAIAdapter{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		ctxWindow:  contextWindow,
	}
}

func (o *OpenAIAdapter) Name() string                            { return "openai" }
func (o *OpenAIAdapter) Model() string                           { return o.model }
func (o *OpenAIAdapter) ContextWindow() int                       { return o.ctxWindow }
func (o *OpenAIAdapter) SupportsThinking() bool                   { return false }
func (o *OpenAIAdapter) SupportsTools() bool                      { return true }
func (o *OpenAIAdapter) ToolCallReliability() ToolCallReliability { return ReliabilityNative }
func (o *OpenAIAdapter) DefaultFallbackMode() FallbackMode        { return FallbackOff }

type openaiRequest struct {
	Model               string          `json:"model"`
	Messages            []openaiMessage `json:"messages"`
	Temperature         *float64        `json:"temperature,omitempty"`
	MaxCompletionTokens *int            `json:"max_completion_tokens,omitempty"`
	TopP                *float64        `json:"top_p,omitempty"`
	Stop                []string        `json:"stop,omitempty"`
	Tools               []openaiTool    `json:"tools,omitempty"`
	Stream              bool            `json:"stream,omitempty"`
	StreamOptions       *openaiStreamOpt `json:"stream_options,omitempty"`
}

type openaiStreamOpt struct {
	IncludeUsage bool `json:"include_usage"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiTool struct {
	Type     string         `json:"type"`
	Function openaiFunction `json:"function"`
}

type openaiFunction struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

type openaiToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openaiCallFunction `json:"function"`
}

type openaiCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
	Error   *openaiError   `json:"error,omitempty"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type openaiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (o *OpenAIAdapter) buildRequest(msgs []message.Message, system string, tools []message.ToolDefinition, opts Options, stream bool) openaiRequest {
	req := openaiRequest{Model: o.model, Stream: stream}
	if stream {
		req.StreamOptions = &openaiStreamOpt{IncludeUsage: true}
	}
	if opts.Temperature != nil {
		req.Temperature = opts.Temperature
	}
	if opts.TopP != nil {
		req.TopP = opts.TopP
	}
	if opts.MaxTokens > 0 {
		req.MaxCompletionTokens = &opts.MaxTokens
	}
	if len(opts.Stop) > 0 {
		req.Stop = opts.Stop
	}

	if system != "" {
		req.Messages = append(req.Messages, openaiMessage{Role: "system", Content: system})
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, o.convertMessage(m)...)
	}

	for _, t := range tools {
		req.Tools = append(req.Tools, openaiTool{
			Type: "function",
			Function: openaiFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toolInputSchema(t),
			},
		})
	}
	return req
}

// convertMessage splits a generic Message into zero or more OpenAI messages:
// assistant text + tool_calls become one "assistant" message, each
// tool_result becomes its own "tool" message keyed by tool_call_id.
func (o *OpenAIAdapter) convertMessage(m message.Message) []openaiMessage {
	switch m.Role {
	case message.RoleSystem:
		return []openaiMessage{{Role: "system", Content: m.Text()}}
	case message.RoleAssistant:
		msg := openaiMessage{Role: "assistant", Content: m.Text()}
		for _, p := range m.ToolUses() {
			args, _ := json.Marshal(p.ToolArguments)
			if len(args) == 0 {
				args = []byte("{}")
			}
			msg.ToolCalls = append(msg.ToolCalls, openaiToolCall{
				ID:   p.ToolUseID,
				Type: "function",
				Function: openaiCallFunction{
					Name:      p.ToolName,
					Arguments: string(args),
				},
			})
		}
		out := []openaiMessage{msg}
		return out
	default:
		var out []openaiMessage
		if text := m.Text(); text != "" {
			out = append(out, openaiMessage{Role: "user", Content: text})
		}
		for _, p := range m.ToolResults() {
			out = append(out, openaiMessage{Role: "tool", Content: p.ToolResultText, ToolCallID: p.ToolResultUseID})
		}
		return out
	}
}

func (o *OpenAIAdapter) doRequest(ctx context.Context, req openaiRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, NewInvalidRequestError("marshaling request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, NewNetworkError(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewNetworkError(err)
	}
	return resp, nil
}

func (o *OpenAIAdapter) SendMessage(ctx context.Context, msgs []message.Message, system string, tools []message.ToolDefinition, opts Options) (CompletionResult, error) {
	req := o.buildRequest(msgs, system, tools, opts, false)
	resp, err := o.doRequest(ctx, req)
	if err != nil {
		return CompletionResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResult{}, NewNetworkError(err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return CompletionResult{}, NewRateLimitedError(0)
	}
	if resp.StatusCode != http.StatusOK {
		return CompletionResult{}, NewProviderUnavailableError(fmt.Sprintf("status %d: %s", resp.StatusCode, safeLog(body)))
	}

	var apiResp openaiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return CompletionResult{}, NewParseError(err)
	}
	if apiResp.Error != nil {
		return CompletionResult{}, NewProviderUnavailableError(apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 {
		return CompletionResult{}, NewParseError(fmt.Errorf("openai: empty choices array"))
	}

	choice := apiResp.Choices[0]
	result := CompletionResult{
		Model:   o.model,
		Content: choice.Message.Content,
		Usage: message.UsageStats{
			InputTokens:  apiResp.Usage.PromptTokens,
			OutputTokens: apiResp.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		result.ToolCalls = append(result.ToolCalls, message.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	result.StopReason = mapOpenAIFinishReason(choice.FinishReason, len(result.ToolCalls) > 0)
	return result, nil
}

func mapOpenAIFinishReason(raw string, hasToolCalls bool) StopReason {
	switch raw {
	case "tool_calls":
		return StopToolUse
	case "length":
		return StopMaxTokens
	case "stop":
		if hasToolCalls {
			return StopToolUse
		}
		return StopEndTurn
	default:
		return StopOther
	}
}

type openaiStreamChunk struct {
	Choices []openaiStreamChoice `json:"choices"`
	Usage   *openaiUsage         `json:"usage"`
}

type openaiStreamChoice struct {
	Delta        openaiStreamDelta `json:"delta"`
	FinishReason string            `json:"finish_reason"`
}

type openaiStreamDelta struct {
	Content   string                 `json:"content"`
	ToolCalls []openaiStreamToolCall `json:"tool_calls"`
}

type openaiStreamToolCall struct {
	Index    int                `json:"index"`
	ID       string             `json:"id"`
	Function openaiCallFunction `json:"function"`
}

// StreamMessage follows the Chat Completions SSE convention: "data: {...}"
// lines terminated by a literal "data: [DONE]".
func (o *OpenAIAdapter) StreamMessage(ctx context.Context, msgs []message.Message, system string, tools []message.ToolDefinition, opts Options, sink EventSink) (CompletionResult, error) {
	req := o.buildRequest(msgs, system, tools, opts, true)
	resp, err := o.doRequest(ctx, req)
	if err != nil {
		return CompletionResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		err := NewProviderUnavailableError(fmt.Sprintf("status %d: %s", resp.StatusCode, safeLog(body)))
		_ = sink(ctx, StreamEvent{Type: EventError, Err: err})
		return CompletionResult{}, err
	}

	result := CompletionResult{Model: o.model}
	toolBuf := map[int]*strings.Builder{}
	toolMeta := map[int]message.ToolCall{}
	toolOrder := []int{}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}
		var chunk openaiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			result.Usage.InputTokens = chunk.Usage.PromptTokens
			result.Usage.OutputTokens = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			result.Content += choice.Delta.Content
			if err := sink(ctx, StreamEvent{Type: EventTextDelta, Content: choice.Delta.Content}); err != nil {
				return result, err
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			buf, ok := toolBuf[tc.Index]
			if !ok {
				buf = &strings.Builder{}
				toolBuf[tc.Index] = buf
				toolMeta[tc.Index] = message.ToolCall{ID: tc.ID, Name: tc.Function.Name}
				toolOrder = append(toolOrder, tc.Index)
				_ = sink(ctx, StreamEvent{Type: EventToolStart, ToolID: tc.ID, ToolName: tc.Function.Name})
			}
			buf.WriteString(tc.Function.Arguments)
			tm := toolMeta[tc.Index]
			_ = sink(ctx, StreamEvent{Type: EventToolDelta, ToolID: tm.ID, ToolName: tm.Name, ToolArgs: tc.Function.Arguments})
		}
		if choice.FinishReason != "" {
			result.StopReason = mapOpenAIFinishReason(choice.FinishReason, len(toolBuf) > 0)
		}
	}
	if err := scanner.Err(); err != nil {
		wrapped := NewNetworkError(err)
		_ = sink(ctx, StreamEvent{Type: EventError, Err: wrapped})
		return result, wrapped
	}

	for _, idx := range toolOrder {
		tm := toolMeta[idx]
		args := map[string]any{}
		if s := toolBuf[idx].String(); s != "" {
			_ = json.Unmarshal([]byte(s), &args)
		}
		tm.Arguments = args
		result.ToolCalls = append(result.ToolCalls, tm)
		_ = sink(ctx, StreamEvent{Type: EventToolComplete, ToolID: tm.ID, ToolName: tm.Name})
	}
	if result.StopReason == "" && len(result.ToolCalls) > 0 {
		result.StopReason = StopToolUse
	} else if result.StopReason == "" {
		result.StopReason = StopEndTurn
	}
	_ = sink(ctx, StreamEvent{Type: EventComplete, StopReason: result.StopReason})
	_ = sink(ctx, StreamEvent{Type: EventUsage, Usage: result.Usage})
	return result, nil
}

func (o *OpenAIAdapter) HealthCheck(ctx context.Context) error {
	if o.apiKey == "" {
		return NewAuthError("openai: missing API key")
	}
	_, err := o.SendMessage(ctx, []message.Message{{Role: message.RoleUser, Content: []message.Part{message.TextPart("ping")}}}, "", nil, Options{MaxTokens: 1})
	return err
}
