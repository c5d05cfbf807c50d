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
	"time"

	"github.com/AleutianAI/aleutian-core/internal/message"
)

const ollamaDefaultBaseURL = "http://localhost:11434"

// ModelLifecycleManager lets a caller warm or unload a local model
// before/after a session, avoiding VRAM thrashing across concurrent sessions
// pinned to different models. Mirrors the teacher's OllamaLifecycleAdapter
// split of chat concerns from lifecycle concerns.
type ModelLifecycleManager interface {
	WarmModel(ctx context.Context, keepAlive time.Duration) error
	UnloadModel(ctx context.Context) error
	IsLocal() bool
}

// OllamaAdapter implements Adapter (and ModelLifecycleManager) against a
// local Ollama daemon's /api/chat endpoint. Tool calling reliability varies
// by underlying model, so this adapter reports ReliabilityUnreliable and a
// FallbackSoft default, pushing the orchestrator toward PromptFallbackParser.
type OllamaAdapter struct {
	httpClient *http.Client
	model      string
	baseURL    string
	ctxWindow  int
	keepAlive  time.Duration
}

func NewOllamaAdapter(model, baseURL string, contextWindow int) *OllamaAdapter {
	if baseURL == "" {
		baseURL = ollamaDefaultBaseURL
	}
	if contextWindow == 0 {
		contextWindow = 32_000
	}
	return &OllamaAdapter{
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		model:      model,
		baseURL:    baseURL,
		ctxWindow:  contextWindow,
		keepAlive:  5 * time.Minute,
	}
}

func (o *OllamaAdapter) Name() string                            { return "ollama" }
func (o *OllamaAdapter) Model() string                           { return o.model }
func (o *OllamaAdapter) ContextWindow() int                       { return o.ctxWindow }
func (o *OllamaAdapter) SupportsThinking() bool                   { return false }
func (o *OllamaAdapter) SupportsTools() bool                      { return true }
func (o *OllamaAdapter) ToolCallReliability() ToolCallReliability { return ReliabilityUnreliable }
func (o *OllamaAdapter) DefaultFallbackMode() FallbackMode        { return FallbackSoft }
func (o *OllamaAdapter) IsLocal() bool                            { return true }

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaCallFunction `json:"function"`
}

type ollamaCallFunction struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaFunctionSpec `json:"function"`
}

type ollamaFunctionSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	NumCtx      int     `json:"num_ctx,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaRequest struct {
	Model     string          `json:"model"`
	Messages  []ollamaMessage `json:"messages"`
	Tools     []ollamaTool    `json:"tools,omitempty"`
	Stream    bool            `json:"stream"`
	KeepAlive string          `json:"keep_alive,omitempty"`
	Options   *ollamaOptions  `json:"options,omitempty"`
}

type ollamaResponse struct {
	Model      string        `json:"model"`
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason"`
	PromptEvalCount int      `json:"prompt_eval_count"`
	EvalCount       int      `json:"eval_count"`
}

func (o *OllamaAdapter) convertMessages(msgs []message.Message, system string) []ollamaMessage {
	var out []ollamaMessage
	if system != "" {
		out = append(out, ollamaMessage{Role: "system", Content: system})
	}
	for _, m := range msgs {
		switch m.Role {
		case message.RoleSystem:
			out = append(out, ollamaMessage{Role: "system", Content: m.Text()})
		case message.RoleAssistant:
			om := ollamaMessage{Role: "assistant", Content: m.Text()}
			for _, p := range m.ToolUses() {
				args, _ := p.ToolArguments.(map[string]any)
				om.ToolCalls = append(om.ToolCalls, ollamaToolCall{Function: ollamaCallFunction{Name: p.ToolName, Arguments: args}})
			}
			out = append(out, om)
		default:
			if text := m.Text(); text != "" {
				out = append(out, ollamaMessage{Role: "user", Content: text})
			}
			for _, p := range m.ToolResults() {
				out = append(out, ollamaMessage{Role: "tool", Content: p.ToolResultText})
			}
		}
	}
	return out
}

func (o *OllamaAdapter) buildRequest(msgs []message.Message, system string, tools []message.ToolDefinition, opts Options, stream bool) ollamaRequest {
	req := ollamaRequest{
		Model:     o.model,
		Messages:  o.convertMessages(msgs, system),
		Stream:    stream,
		KeepAlive: o.keepAlive.String(),
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, ollamaTool{
			Type: "function",
			Function: ollamaFunctionSpec{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toolInputSchema(t),
			},
		})
	}
	ropts := &ollamaOptions{}
	if opts.Temperature != nil {
		ropts.Temperature = *opts.Temperature
	}
	if opts.TopP != nil {
		ropts.TopP = *opts.TopP
	}
	if opts.TopK != nil {
		ropts.TopK = *opts.TopK
	}
	if o.ctxWindow > 0 {
		ropts.NumCtx = o.ctxWindow
	}
	ropts.Stop = opts.Stop
	req.Options = ropts
	return req
}

func (o *OllamaAdapter) doRequest(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewInvalidRequestError("marshaling request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, NewNetworkError(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewNetworkError(err)
	}
	return resp, nil
}

func (o *OllamaAdapter) SendMessage(ctx context.Context, msgs []message.Message, system string, tools []message.ToolDefinition, opts Options) (CompletionResult, error) {
	req := o.buildRequest(msgs, system, tools, opts, false)
	resp, err := o.doRequest(ctx, "/api/chat", req)
	if err != nil {
		return CompletionResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResult{}, NewNetworkError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return CompletionResult{}, NewProviderUnavailableError(fmt.Sprintf("ollama status %d: %s", resp.StatusCode, safeLog(body)))
	}

	var apiResp ollamaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return CompletionResult{}, NewParseError(err)
	}

	result := CompletionResult{
		Model:   o.model,
		Content: apiResp.Message.Content,
		Usage: message.UsageStats{
			InputTokens:  apiResp.PromptEvalCount,
			OutputTokens: apiResp.EvalCount,
		},
	}
	for i, tc := range apiResp.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, message.ToolCall{
			ID:        fmt.Sprintf("ollama_call_%d", i),
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if len(result.ToolCalls) > 0 {
		result.StopReason = StopToolUse
	} else if apiResp.DoneReason == "length" {
		result.StopReason = StopMaxTokens
	} else {
		result.StopReason = StopEndTurn
	}
	return result, nil
}

// StreamMessage reads Ollama's newline-delimited JSON stream (NOT SSE: each
// line is a complete JSON object, with the final line carrying done=true and
// aggregate counts).
func (o *OllamaAdapter) StreamMessage(ctx context.Context, msgs []message.Message, system string, tools []message.ToolDefinition, opts Options, sink EventSink) (CompletionResult, error) {
	req := o.buildRequest(msgs, system, tools, opts, true)
	resp, err := o.doRequest(ctx, "/api/chat", req)
	if err != nil {
		return CompletionResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		err := NewProviderUnavailableError(fmt.Sprintf("ollama status %d: %s", resp.StatusCode, safeLog(body)))
		_ = sink(ctx, StreamEvent{Type: EventError, Err: err})
		return CompletionResult{}, err
	}

	result := CompletionResult{Model: o.model}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	toolIdx := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk ollamaResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Message.Content != "" {
			result.Content += chunk.Message.Content
			if err := sink(ctx, StreamEvent{Type: EventTextDelta, Content: chunk.Message.Content}); err != nil {
				return result, err
			}
		}
		for _, tc := range chunk.Message.ToolCalls {
			id := fmt.Sprintf("ollama_call_%d", toolIdx)
			toolIdx++
			result.ToolCalls = append(result.ToolCalls, message.ToolCall{ID: id, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
			_ = sink(ctx, StreamEvent{Type: EventToolStart, ToolID: id, ToolName: tc.Function.Name})
			_ = sink(ctx, StreamEvent{Type: EventToolComplete, ToolID: id, ToolName: tc.Function.Name})
		}
		if chunk.Done {
			result.Usage.InputTokens = chunk.PromptEvalCount
			result.Usage.OutputTokens = chunk.EvalCount
			if len(result.ToolCalls) > 0 {
				result.StopReason = StopToolUse
			} else if chunk.DoneReason == "length" {
				result.StopReason = StopMaxTokens
			} else {
				result.StopReason = StopEndTurn
			}
		}
	}
	if err := scanner.Err(); err != nil {
		wrapped := NewNetworkError(err)
		_ = sink(ctx, StreamEvent{Type: EventError, Err: wrapped})
		return result, wrapped
	}
	_ = sink(ctx, StreamEvent{Type: EventComplete, StopReason: result.StopReason})
	_ = sink(ctx, StreamEvent{Type: EventUsage, Usage: result.Usage})
	return result, nil
}

func (o *OllamaAdapter) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return NewNetworkError(err)
	}
	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return NewNetworkError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return NewProviderUnavailableError(fmt.Sprintf("ollama daemon status %d", resp.StatusCode))
	}
	return nil
}

// WarmModel issues a no-op generate call with the desired keep_alive so the
// daemon loads the model into VRAM ahead of the first real request.
func (o *OllamaAdapter) WarmModel(ctx context.Context, keepAlive time.Duration) error {
	o.keepAlive = keepAlive
	payload := map[string]any{"model": o.model, "keep_alive": keepAlive.String()}
	resp, err := o.doRequest(ctx, "/api/generate", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return NewProviderUnavailableError(fmt.Sprintf("warm model status %d", resp.StatusCode))
	}
	return nil
}

// UnloadModel evicts the model from VRAM by requesting keep_alive=0.
func (o *OllamaAdapter) UnloadModel(ctx context.Context) error {
	payload := map[string]any{"model": o.model, "keep_alive": "0s"}
	resp, err := o.doRequest(ctx, "/api/generate", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return NewProviderUnavailableError(fmt.Sprintf("unload model status %d", resp.StatusCode))
	}
	return nil
}
