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
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AleutianAI/aleutian-core/internal/message"
)

const (
	anthropicAPIVersion   = "2023-06-01"
	anthropicDefaultURL   = "https://api.anthropic.com/v1/messages"
	anthropicCacheCutover = 1024 // system prompts longer than this get cache_control
)

// AnthropicAdapter implements Adapter over Anthropic's Messages API. It keeps
// the teacher's hand-rolled net/http + SSE-scanner style rather than
// introducing the anthropic-sdk-go client: the wire format stays entirely
// inside this file, never leaking above the Adapter interface.
type AnthropicAdapter struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
	ctxWindow  int
}

// NewAnthropicAdapter constructs an adapter with explicit configuration.
func NewAnthropicAdapter(apiKey, model, baseURL string, contextWindow int) *AnthropicAdapter {
	if baseURL == "" {
		baseURL = anthropicDefaultURL
	}
	if contextWindow == 0 {
		contextWindow = 200_000
	}
	return &AnthropicAdapter{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		ctxWindow:  contextWindow,
	}
}

func (a *AnthropicAdapter) Name() string                           { return "anthropic" }
func (a *AnthropicAdapter) Model() string                          { return a.model }
func (a *AnthropicAdapter) ContextWindow() int                      { return a.ctxWindow }
func (a *AnthropicAdapter) SupportsThinking() bool                  { return true }
func (a *AnthropicAdapter) SupportsTools() bool                     { return true }
func (a *AnthropicAdapter) ToolCallReliability() ToolCallReliability { return ReliabilityNative }
func (a *AnthropicAdapter) DefaultFallbackMode() FallbackMode        { return FallbackOff }

// --- wire types ---

type anthropicSystemBlock struct {
	Type         string               `json:"type"`
	Text         string               `json:"text"`
	CacheControl *anthropicCacheCtrl  `json:"cache_control,omitempty"`
}

type anthropicCacheCtrl struct {
	Type string `json:"type"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicToolDef struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"input_schema"`
}

type anthropicRequest struct {
	Model       string                  `json:"model"`
	Messages    []any                   `json:"messages"`
	System      []anthropicSystemBlock  `json:"system,omitempty"`
	MaxTokens   int                     `json:"max_tokens"`
	Thinking    *anthropicThinking      `json:"thinking,omitempty"`
	Tools       []anthropicToolDef      `json:"tools,omitempty"`
	Temperature *float64                `json:"temperature,omitempty"`
	TopP        *float64                `json:"top_p,omitempty"`
	TopK        *int                    `json:"top_k,omitempty"`
	StopSeqs    []string                `json:"stop_sequences,omitempty"`
	Stream      bool                    `json:"stream,omitempty"`
}

type anthropicPlainMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicBlockMessage struct {
	Role    string `json:"role"`
	Content []any  `json:"content"`
}

type anthropicTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicToolUseBlock struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type anthropicToolResultBlock struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicAPIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Content    []anthropicRespBlock    `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
	Error      *anthropicAPIError      `json:"error,omitempty"`
}

type anthropicRespBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Thinking string          `json:"thinking,omitempty"`
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
}

type anthropicUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

// buildRequest converts the generic Message history into Anthropic's wire
// format: tool_use/tool_result become structured content blocks, and the
// system prompt is cache-annotated when it exceeds the cutover length.
func (a *AnthropicAdapter) buildRequest(msgs []message.Message, system string, tools []message.ToolDefinition, opts Options, stream bool) (anthropicRequest, error) {
	req := anthropicRequest{
		Model:     a.model,
		MaxTokens: 4096,
		Stream:    stream,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature != nil {
		req.Temperature = opts.Temperature
	}
	if opts.TopP != nil {
		req.TopP = opts.TopP
	}
	if opts.TopK != nil {
		req.TopK = opts.TopK
	}
	if len(opts.Stop) > 0 {
		req.StopSeqs = opts.Stop
	}

	if system != "" {
		block := anthropicSystemBlock{Type: "text", Text: system}
		if len(system) > anthropicCacheCutover {
			block.CacheControl = &anthropicCacheCtrl{Type: "ephemeral"}
		}
		req.System = []anthropicSystemBlock{block}
	}

	for _, t := range tools {
		req.Tools = append(req.Tools, anthropicToolDef{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: toolInputSchema(t),
		})
	}

	for _, m := range msgs {
		converted, err := a.convertMessage(m)
		if err != nil {
			return anthropicRequest{}, err
		}
		req.Messages = append(req.Messages, converted...)
	}

	if opts.EnableThinking {
		req.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: opts.ThinkingBudget}
		minRequired := opts.ThinkingBudget + 2048
		if req.MaxTokens < minRequired {
			req.MaxTokens = minRequired
		}
	}

	return req, nil
}

// convertMessage may expand to more than one Anthropic message when a single
// generic Message mixes tool_use and tool_result content — Anthropic requires
// tool_result blocks on a "user" role message separate from assistant text.
func (a *AnthropicAdapter) convertMessage(m message.Message) ([]any, error) {
	switch m.Role {
	case message.RoleSystem:
		return nil, nil // folded into the top-level system field by the caller
	case message.RoleAssistant:
		var blocks []any
		for _, p := range m.Content {
			switch p.Type {
			case message.PartText:
				if p.Text != "" {
					blocks = append(blocks, anthropicTextBlock{Type: "text", Text: p.Text})
				}
			case message.PartToolUse:
				input, err := json.Marshal(p.ToolArguments)
				if err != nil {
					return nil, fmt.Errorf("anthropic: marshaling tool_use input: %w", err)
				}
				if len(input) == 0 {
					input = []byte("{}")
				}
				blocks = append(blocks, anthropicToolUseBlock{Type: "tool_use", ID: p.ToolUseID, Name: p.ToolName, Input: input})
			}
		}
		if len(blocks) == 0 {
			return nil, nil
		}
		return []any{anthropicBlockMessage{Role: "assistant", Content: blocks}}, nil
	default: // user
		var toolBlocks []any
		var text string
		for _, p := range m.Content {
			switch p.Type {
			case message.PartText:
				text += p.Text
			case message.PartToolResult:
				toolBlocks = append(toolBlocks, anthropicToolResultBlock{
					Type:      "tool_result",
					ToolUseID: p.ToolResultUseID,
					Content:   p.ToolResultText,
					IsError:   p.ToolResultIsErr,
				})
			}
		}
		if len(toolBlocks) > 0 {
			return []any{anthropicBlockMessage{Role: "user", Content: toolBlocks}}, nil
		}
		return []any{anthropicPlainMessage{Role: "user", Content: text}}, nil
	}
}

func toolInputSchema(t message.ToolDefinition) any {
	props := map[string]any{}
	for name, p := range t.Parameters {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[name] = prop
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   t.Required,
	}
}

func (a *AnthropicAdapter) doRequest(ctx context.Context, req anthropicRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, NewInvalidRequestError("marshaling request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, NewNetworkError(err)
	}
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	httpReq.Header.Set("content-type", "application/json")
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewNetworkError(err)
	}
	return resp, nil
}

// SendMessage performs one non-streaming round trip, with the teacher's
// strip-and-resubmit downshift: on HTTP 400 naming an unsupported field (e.g.
// "thinking" on a model that doesn't support it), retry once without it.
func (a *AnthropicAdapter) SendMessage(ctx context.Context, msgs []message.Message, system string, tools []message.ToolDefinition, opts Options) (CompletionResult, error) {
	req, err := a.buildRequest(msgs, system, tools, opts, false)
	if err != nil {
		return CompletionResult{}, err
	}

	result, status, bodyBytes, err := a.sendOnce(ctx, req)
	if err != nil {
		return CompletionResult{}, err
	}
	if status == http.StatusBadRequest && req.Thinking != nil {
		slog.Warn("anthropic: downshifting request (stripping thinking) after 400", "body", safeLog(bodyBytes))
		req.Thinking = nil
		result, status, bodyBytes, err = a.sendOnce(ctx, req)
		if err != nil {
			return CompletionResult{}, err
		}
	}
	if status == http.StatusTooManyRequests {
		return CompletionResult{}, NewRateLimitedError(0)
	}
	if status != http.StatusOK {
		return CompletionResult{}, NewProviderUnavailableError(fmt.Sprintf("status %d: %s", status, safeLog(bodyBytes)))
	}
	return result, nil
}

func (a *AnthropicAdapter) sendOnce(ctx context.Context, req anthropicRequest) (CompletionResult, int, []byte, error) {
	resp, err := a.doRequest(ctx, req)
	if err != nil {
		return CompletionResult{}, 0, nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResult{}, resp.StatusCode, nil, NewNetworkError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return CompletionResult{}, resp.StatusCode, bodyBytes, nil
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return CompletionResult{}, resp.StatusCode, bodyBytes, NewParseError(err)
	}
	if apiResp.Error != nil {
		return CompletionResult{}, resp.StatusCode, bodyBytes, NewProviderUnavailableError(apiResp.Error.Message)
	}

	result := CompletionResult{Model: a.model, Usage: message.UsageStats{
		InputTokens:         apiResp.Usage.InputTokens,
		OutputTokens:        apiResp.Usage.OutputTokens,
		CacheReadTokens:     apiResp.Usage.CacheReadInputTokens,
		CacheCreationTokens: apiResp.Usage.CacheCreationInputTokens,
	}}
	for _, b := range apiResp.Content {
		switch b.Type {
		case "text":
			result.Content += b.Text
		case "thinking":
			result.Thinking += b.Thinking
		case "tool_use":
			args := map[string]any{}
			if len(b.Input) > 0 {
				_ = json.Unmarshal(b.Input, &args)
			}
			result.ToolCalls = append(result.ToolCalls, message.ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}
	result.StopReason = mapStopReason(apiResp.StopReason, len(result.ToolCalls) > 0)
	return result, resp.StatusCode, bodyBytes, nil
}

func mapStopReason(raw string, hasToolCalls bool) StopReason {
	switch raw {
	case "tool_use":
		return StopToolUse
	case "max_tokens":
		return StopMaxTokens
	case "stop_sequence":
		return StopStopSequence
	case "end_turn":
		if hasToolCalls {
			return StopToolUse
		}
		return StopEndTurn
	default:
		return StopOther
	}
}

func safeLog(b []byte) string {
	s := string(b)
	if len(s) > 500 {
		return s[:500] + "...(truncated)"
	}
	return s
}

// --- streaming ---

type anthropicSSEDelta struct {
	Type     string `json:"type"`
	Index    int    `json:"index"`
	Delta    anthropicDeltaPayload `json:"delta"`
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
}

type anthropicDeltaPayload struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

type anthropicMessageDeltaUsage struct {
	Delta struct {
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage anthropicUsage `json:"usage"`
}

// StreamMessage reads the SSE event stream and forwards deltas to sink while
// aggregating the final CompletionResult, mirroring ChatStream's scanner
// loop in the teacher adapter.
func (a *AnthropicAdapter) StreamMessage(ctx context.Context, msgs []message.Message, system string, tools []message.ToolDefinition, opts Options, sink EventSink) (CompletionResult, error) {
	req, err := a.buildRequest(msgs, system, tools, opts, true)
	if err != nil {
		return CompletionResult{}, err
	}

	resp, err := a.doRequest(ctx, req)
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

	result := CompletionResult{Model: a.model}
	toolArgsBuf := map[int]*strings.Builder{}
	toolMeta := map[int]message.ToolCall{}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var eventType string
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			_ = sink(ctx, StreamEvent{Type: EventError, Err: ctx.Err()})
			return result, ctx.Err()
		default:
		}

		line := scanner.Text()
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			if err := a.handleStreamEvent(ctx, eventType, data, sink, &result, toolArgsBuf, toolMeta); err != nil {
				return result, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		wrapped := NewNetworkError(err)
		_ = sink(ctx, StreamEvent{Type: EventError, Err: wrapped})
		return result, wrapped
	}

	for idx, buf := range toolArgsBuf {
		tc := toolMeta[idx]
		args := map[string]any{}
		if buf.Len() > 0 {
			_ = json.Unmarshal([]byte(buf.String()), &args)
		}
		tc.Arguments = args
		result.ToolCalls = append(result.ToolCalls, tc)
	}
	if len(result.ToolCalls) > 0 && result.StopReason == "" {
		result.StopReason = StopToolUse
	}
	_ = sink(ctx, StreamEvent{Type: EventComplete, StopReason: result.StopReason})
	_ = sink(ctx, StreamEvent{Type: EventUsage, Usage: result.Usage})
	return result, nil
}

func (a *AnthropicAdapter) handleStreamEvent(ctx context.Context, eventType, data string, sink EventSink, result *CompletionResult, toolArgsBuf map[int]*strings.Builder, toolMeta map[int]message.ToolCall) error {
	switch eventType {
	case "content_block_start":
		var ev anthropicSSEDelta
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil
		}
		if ev.Delta.Type == "" {
			// content_block_start carries the block under a different shape;
			// re-parse loosely to detect a tool_use block starting.
			var raw struct {
				Index        int `json:"index"`
				ContentBlock struct {
					Type string `json:"type"`
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"content_block"`
			}
			if err := json.Unmarshal([]byte(data), &raw); err == nil && raw.ContentBlock.Type == "tool_use" {
				toolArgsBuf[raw.Index] = &strings.Builder{}
				toolMeta[raw.Index] = message.ToolCall{ID: raw.ContentBlock.ID, Name: raw.ContentBlock.Name}
				return sink(ctx, StreamEvent{Type: EventToolStart, ToolID: raw.ContentBlock.ID, ToolName: raw.ContentBlock.Name})
			}
		}
		return nil

	case "content_block_delta":
		var ev anthropicSSEDelta
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			slog.Warn("anthropic: malformed content_block_delta", "error", err)
			return nil
		}
		switch ev.Delta.Type {
		case "text_delta":
			if ev.Delta.Text != "" {
				result.Content += ev.Delta.Text
				return sink(ctx, StreamEvent{Type: EventTextDelta, Content: ev.Delta.Text})
			}
		case "thinking_delta":
			if ev.Delta.Thinking != "" {
				result.Thinking += ev.Delta.Thinking
				return sink(ctx, StreamEvent{Type: EventThinkingDelta, Content: ev.Delta.Thinking})
			}
		case "input_json_delta":
			if buf, ok := toolArgsBuf[ev.Index]; ok {
				buf.WriteString(ev.Delta.PartialJSON)
				tm := toolMeta[ev.Index]
				return sink(ctx, StreamEvent{Type: EventToolDelta, ToolID: tm.ID, ToolName: tm.Name, ToolArgs: ev.Delta.PartialJSON})
			}
		}
		return nil

	case "content_block_stop":
		var raw struct {
			Index int `json:"index"`
		}
		_ = json.Unmarshal([]byte(data), &raw)
		if tm, ok := toolMeta[raw.Index]; ok {
			return sink(ctx, StreamEvent{Type: EventToolComplete, ToolID: tm.ID, ToolName: tm.Name})
		}
		return nil

	case "message_delta":
		var ev anthropicMessageDeltaUsage
		if err := json.Unmarshal([]byte(data), &ev); err == nil {
			if ev.Delta.StopReason != "" {
				result.StopReason = mapStopReason(ev.Delta.StopReason, false)
			}
			result.Usage.OutputTokens += ev.Usage.OutputTokens
		}
		return nil

	case "error":
		var raw struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal([]byte(data), &raw)
		err := NewProviderUnavailableError(raw.Error.Message)
		_ = sink(ctx, StreamEvent{Type: EventError, Err: err})
		return err

	default:
		return nil
	}
}

// HealthCheck validates the API key with a minimal round trip.
func (a *AnthropicAdapter) HealthCheck(ctx context.Context) error {
	if a.apiKey == "" {
		return NewAuthError("anthropic: missing API key")
	}
	_, err := a.SendMessage(ctx, []message.Message{{Role: message.RoleUser, Content: []message.Part{message.TextPart("ping")}}}, "", nil, Options{MaxTokens: 1})
	return err
}
