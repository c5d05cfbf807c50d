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

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiAdapter implements Adapter over the generateContent REST API,
// following the teacher's raw net/http GeminiClient. The teacher's
// ChatStream was unimplemented; this adapter adds streaming via Gemini's
// streamGenerateContent?alt=sse endpoint, which emits the same JSON body
// shape as the non-streaming response, incrementally.
type GeminiAdapter struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
	ctxWindow  int
}

func NewGeminiAdapter(apiKey, model, baseURL string, contextWindow int) *GeminiAdapter {
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	if contextWindow == 0 {
		contextWindow = 1_000_000
	}
	return &GeminiAdapter{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		ctxWindow:  contextWindow,
	}
}

func (g *GeminiAdapter) Name() string                            { return "gemini" }
func (g *GeminiAdapter) Model() string                           { return g.model }
func (g *GeminiAdapter) ContextWindow() int                       { return g.ctxWindow }
func (g *GeminiAdapter) SupportsThinking() bool                   { return false }
func (g *GeminiAdapter) SupportsTools() bool                      { return true }
func (g *GeminiAdapter) ToolCallReliability() ToolCallReliability { return ReliabilityNative }
func (g *GeminiAdapter) DefaultFallbackMode() FallbackMode        { return FallbackOff }

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	Tools             []geminiToolDeclaration `json:"tools,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string              `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResp `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunctionResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiFunctionDeclaration struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

type geminiToolDeclaration struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata,omitempty"`
	Error         *geminiError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (g *GeminiAdapter) buildRequest(msgs []message.Message, system string, tools []message.ToolDefinition, opts Options) geminiRequest {
	req := geminiRequest{}

	if system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}

	if len(tools) > 0 {
		var decls []geminiFunctionDeclaration
		for _, t := range tools {
			decls = append(decls, geminiFunctionDeclaration{Name: t.Name, Description: t.Description, Parameters: toolInputSchema(t)})
		}
		req.Tools = []geminiToolDeclaration{{FunctionDeclarations: decls}}
	}

	for _, m := range msgs {
		req.Contents = append(req.Contents, g.convertMessage(m)...)
	}

	cfg := &geminiGenerationConfig{}
	hasCfg := false
	if opts.Temperature != nil {
		cfg.Temperature = opts.Temperature
		hasCfg = true
	}
	if opts.TopP != nil {
		cfg.TopP = opts.TopP
		hasCfg = true
	}
	if opts.TopK != nil {
		cfg.TopK = opts.TopK
		hasCfg = true
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = &opts.MaxTokens
		hasCfg = true
	}
	if len(opts.Stop) > 0 {
		cfg.StopSequences = opts.Stop
		hasCfg = true
	}
	if hasCfg {
		req.GenerationConfig = cfg
	}
	return req
}

func (g *GeminiAdapter) convertMessage(m message.Message) []geminiContent {
	switch m.Role {
	case message.RoleSystem:
		return nil // folded into SystemInstruction by the caller
	case message.RoleAssistant:
		var parts []geminiPart
		if text := m.Text(); text != "" {
			parts = append(parts, geminiPart{Text: text})
		}
		for _, p := range m.ToolUses() {
			args, _ := p.ToolArguments.(map[string]any)
			parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: p.ToolName, Args: args}})
		}
		if len(parts) == 0 {
			return nil
		}
		return []geminiContent{{Role: "model", Parts: parts}}
	default:
		var out []geminiContent
		if text := m.Text(); text != "" {
			out = append(out, geminiContent{Role: "user", Parts: []geminiPart{{Text: text}}})
		}
		for _, p := range m.ToolResults() {
			var respData map[string]any
			if err := json.Unmarshal([]byte(p.ToolResultText), &respData); err != nil {
				respData = map[string]any{"result": p.ToolResultText}
			}
			out = append(out, geminiContent{Role: "user", Parts: []geminiPart{{FunctionResponse: &geminiFunctionResp{
				Name:     p.ToolResultUseID,
				Response: respData,
			}}}})
		}
		return out
	}
}

func (g *GeminiAdapter) endpoint(stream bool) string {
	action := "generateContent"
	if stream {
		action = "streamGenerateContent?alt=sse"
	}
	return fmt.Sprintf("%s/models/%s:%s", g.baseURL, g.model, action)
}

func (g *GeminiAdapter) doRequest(ctx context.Context, url string, req geminiRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, NewInvalidRequestError("marshaling request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewNetworkError(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)
	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewNetworkError(err)
	}
	return resp, nil
}

func (g *GeminiAdapter) SendMessage(ctx context.Context, msgs []message.Message, system string, tools []message.ToolDefinition, opts Options) (CompletionResult, error) {
	req := g.buildRequest(msgs, system, tools, opts)
	resp, err := g.doRequest(ctx, g.endpoint(false), req)
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

	var apiResp geminiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return CompletionResult{}, NewParseError(err)
	}
	if apiResp.Error != nil {
		return CompletionResult{}, NewProviderUnavailableError(apiResp.Error.Message)
	}
	if len(apiResp.Candidates) == 0 {
		return CompletionResult{}, NewParseError(fmt.Errorf("gemini: no candidates returned"))
	}

	result := parseGeminiCandidate(apiResp.Candidates[0])
	result.Model = g.model
	if apiResp.UsageMetadata != nil {
		result.Usage = message.UsageStats{
			InputTokens:  apiResp.UsageMetadata.PromptTokenCount,
			OutputTokens: apiResp.UsageMetadata.CandidatesTokenCount,
		}
	}
	return result, nil
}

func parseGeminiCandidate(c geminiCandidate) CompletionResult {
	var result CompletionResult
	var textParts []string
	callIndex := 0
	for _, part := range c.Content.Parts {
		if part.Text != "" {
			textParts = append(textParts, part.Text)
		}
		if part.FunctionCall != nil {
			result.ToolCalls = append(result.ToolCalls, message.ToolCall{
				ID:        fmt.Sprintf("gemini_call_%d", callIndex),
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
			callIndex++
		}
	}
	result.Content = strings.Join(textParts, "")
	switch {
	case len(result.ToolCalls) > 0:
		result.StopReason = StopToolUse
	case c.FinishReason == "MAX_TOKENS":
		result.StopReason = StopMaxTokens
	case c.FinishReason == "STOP" || c.FinishReason == "":
		result.StopReason = StopEndTurn
	default:
		result.StopReason = StopOther
	}
	return result
}

// StreamMessage consumes Gemini's SSE stream of partial geminiResponse
// bodies. Every part of every event is treated as new: its text is
// appended to the result and forwarded to sink, and each function call is
// recorded as a further tool call and announced to sink once.
func (g *GeminiAdapter) StreamMessage(ctx context.Context, msgs []message.Message, system string, tools []message.ToolDefinition, opts Options, sink EventSink) (CompletionResult, error) {
	req := g.buildRequest(msgs, system, tools, opts)
	resp, err := g.doRequest(ctx, g.endpoint(true), req)
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

	result := CompletionResult{Model: g.model}
	emittedTools := map[int]bool{}

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
		var chunk geminiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			err := NewProviderUnavailableError(chunk.Error.Message)
			_ = sink(ctx, StreamEvent{Type: EventError, Err: err})
			return result, err
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		for _, part := range chunk.Candidates[0].Content.Parts {
			if part.Text != "" {
				result.Content += part.Text
				if err := sink(ctx, StreamEvent{Type: EventTextDelta, Content: part.Text}); err != nil {
					return result, err
				}
			}
			if part.FunctionCall != nil {
				idx := len(result.ToolCalls)
				id := fmt.Sprintf("gemini_call_%d", idx)
				result.ToolCalls = append(result.ToolCalls, message.ToolCall{ID: id, Name: part.FunctionCall.Name, Arguments: part.FunctionCall.Args})
				if !emittedTools[idx] {
					_ = sink(ctx, StreamEvent{Type: EventToolStart, ToolID: id, ToolName: part.FunctionCall.Name})
					_ = sink(ctx, StreamEvent{Type: EventToolComplete, ToolID: id, ToolName: part.FunctionCall.Name})
					emittedTools[idx] = true
				}
			}
		}
		if chunk.Candidates[0].FinishReason != "" {
			switch chunk.Candidates[0].FinishReason {
			case "MAX_TOKENS":
				result.StopReason = StopMaxTokens
			default:
				if len(result.ToolCalls) > 0 {
					result.StopReason = StopToolUse
				} else {
					result.StopReason = StopEndTurn
				}
			}
		}
		if chunk.UsageMetadata != nil {
			result.Usage = message.UsageStats{
				InputTokens:  chunk.UsageMetadata.PromptTokenCount,
				OutputTokens: chunk.UsageMetadata.CandidatesTokenCount,
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

func (g *GeminiAdapter) HealthCheck(ctx context.Context) error {
	if g.apiKey == "" {
		return NewAuthError("gemini: missing API key")
	}
	_, err := g.SendMessage(ctx, []message.Message{{Role: message.RoleUser, Content: []message.Part{message.TextPart("ping")}}}, "", nil, Options{MaxTokens: 1})
	return err
}
