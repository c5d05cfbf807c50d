// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	openaiDefaultEmbedURL = "https://api.openai.com/v1/embeddings"
	qwenDefaultEmbedURL   = "https://dashscope.aliyuncs.com/compatible-mode/v1/embeddings"
	glmDefaultEmbedURL    = "https://open.bigmodel.cn/api/paas/v4/embeddings"
)

// OpenAIProvider calls an OpenAI-compatible /v1/embeddings endpoint,
// following the same hand-rolled net/http idiom as
// services/llm/openai_llm.go. Qwen (DashScope) and GLM (Zhipu) both
// expose an OpenAI-compatible embeddings endpoint, so NewQwenProvider
// and NewGLMProvider reuse this same request/response shape with a
// different name, default URL, and default batch size rather than
// duplicating the request plumbing.
type OpenAIProvider struct {
	httpClient *http.Client
	name       string
	apiKey     string
	url        string
	model      string
	dimension  int
	maxBatch   int
}

func NewOpenAIProvider(apiKey, url, model string, dimension int) *OpenAIProvider {
	if url == "" {
		url = openaiDefaultEmbedURL
	}
	return &OpenAIProvider{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		name:       "openai",
		apiKey:     apiKey,
		url:        url,
		model:      model,
		dimension:  dimension,
		maxBatch:   2048,
	}
}

// NewQwenProvider calls Alibaba DashScope's OpenAI-compatible embeddings
// endpoint.
func NewQwenProvider(apiKey, url, model string, dimension int) *OpenAIProvider {
	if url == "" {
		url = qwenDefaultEmbedURL
	}
	return &OpenAIProvider{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		name:       "qwen",
		apiKey:     apiKey,
		url:        url,
		model:      model,
		dimension:  dimension,
		maxBatch:   25,
	}
}

// NewGLMProvider calls Zhipu GLM's OpenAI-compatible embeddings endpoint.
func NewGLMProvider(apiKey, url, model string, dimension int) *OpenAIProvider {
	if url == "" {
		url = glmDefaultEmbedURL
	}
	return &OpenAIProvider{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		name:       "glm",
		apiKey:     apiKey,
		url:        url,
		model:      model,
		dimension:  dimension,
		maxBatch:   64,
	}
}

func (p *OpenAIProvider) Name() string      { return p.name }
func (p *OpenAIProvider) Model() string     { return p.model }
func (p *OpenAIProvider) Dimension() int    { return p.dimension }
func (p *OpenAIProvider) MaxBatchSize() int { return p.maxBatch }

type openaiEmbedReq struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, NewInvalidInputError("embedding: no texts provided")
	}
	reqBody := openaiEmbedReq{Model: p.model, Input: texts}
	if p.dimension > 0 {
		reqBody.Dimensions = p.dimension
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, NewInvalidInputError(fmt.Sprintf("marshal request: %v", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, NewNetworkError(err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, NewNetworkError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewNetworkError(err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, NewAuthError(fmt.Sprintf("%s embeddings: invalid API key", p.name))
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, NewRateLimitedError(0)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewUnavailableError(fmt.Sprintf("%s embeddings returned %d: %s", p.name, resp.StatusCode, respBody))
	}

	var apiResp openaiEmbedResp
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, NewUnavailableError(fmt.Sprintf("parse embed response: %v", err))
	}
	if apiResp.Error != nil {
		return nil, NewUnavailableError(apiResp.Error.Message)
	}
	if len(apiResp.Data) != len(texts) {
		return nil, NewUnavailableError(fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(apiResp.Data)))
	}

	out := make([][]float32, len(texts))
	for _, d := range apiResp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		if p.dimension != 0 && len(d.Embedding) != p.dimension {
			return nil, NewDimensionMismatchError(p.dimension, len(d.Embedding))
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
