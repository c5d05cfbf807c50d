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

const ollamaDefaultEmbedURL = "http://localhost:11434/api/embed"

// OllamaProvider calls a local Ollama daemon's /api/embed endpoint,
// grounded directly on the teacher's ToolEmbeddingCache.embed — the same
// request/response shape, generalized from a single string to a batch.
type OllamaProvider struct {
	httpClient *http.Client
	url        string
	model      string
	dimension  int
	maxBatch   int
}

func NewOllamaProvider(url, model string, dimension int) *OllamaProvider {
	if url == "" {
		url = ollamaDefaultEmbedURL
	}
	return &OllamaProvider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		url:        url,
		model:      model,
		dimension:  dimension,
		maxBatch:   64,
	}
}

func (p *OllamaProvider) Name() string      { return "ollama" }
func (p *OllamaProvider) Model() string     { return p.model }
func (p *OllamaProvider) Dimension() int    { return p.dimension }
func (p *OllamaProvider) MaxBatchSize() int { return p.maxBatch }

type ollamaEmbedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResp struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, NewInvalidInputError("embedding: no texts provided")
	}
	body, err := json.Marshal(ollamaEmbedReq{Model: p.model, Input: texts})
	if err != nil {
		return nil, NewInvalidInputError(fmt.Sprintf("marshal request: %v", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, NewNetworkError(err)
	}
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
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, NewRateLimitedError(0)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewUnavailableError(fmt.Sprintf("ollama embed returned %d: %s", resp.StatusCode, respBody))
	}

	var apiResp ollamaEmbedResp
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, NewUnavailableError(fmt.Sprintf("parse embed response: %v", err))
	}
	if apiResp.Error != "" {
		return nil, NewUnavailableError(apiResp.Error)
	}
	if len(apiResp.Embeddings) != len(texts) {
		return nil, NewUnavailableError(fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(apiResp.Embeddings)))
	}
	for _, vec := range apiResp.Embeddings {
		if p.dimension != 0 && len(vec) != p.dimension {
			return nil, NewDimensionMismatchError(p.dimension, len(vec))
		}
	}
	return apiResp.Embeddings, nil
}
