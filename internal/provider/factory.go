// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provider

import (
	"context"
	"fmt"
	"time"
)

// Kind names a supported vendor backend.
type Kind string

const (
	KindAnthropic Kind = "anthropic"
	KindOpenAI    Kind = "openai"
	KindGemini    Kind = "gemini"
	KindOllama    Kind = "ollama"
)

// ValidKinds lists every Kind the Factory can construct, for error messages.
var ValidKinds = []Kind{KindAnthropic, KindOpenAI, KindGemini, KindOllama}

// Config describes one adapter to construct: which vendor, which model, and
// connection details. APIKey is read from Keyring by the caller and passed
// in already resolved; Factory never touches environment variables itself,
// unlike the teacher's per-client NewXClient() constructors.
type Config struct {
	Provider      Kind
	Model         string
	APIKey        string
	BaseURL       string // override; empty uses the vendor default
	ContextWindow int    // override; 0 uses the adapter's default
}

// Factory is the central construction point for Adapters, mirroring the
// teacher's ProviderFactory but collapsed onto the single Adapter interface
// (the teacher split ChatClient/agent-Client/ModelLifecycleManager across
// three factory methods because it had two different agent stacks; this
// module has one).
type Factory struct {
	rateLimiter *RateLimiter
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithRateLimiter attaches a shared RateLimiter, exposed through
// Factory.RateLimiter(); adapters created afterward are not wrapped, so
// requests are throttled only where a caller invokes RateLimiter.Wait
// around SendMessage/StreamMessage itself (the orchestrator does not),
// matching the teacher's practice of keeping egress concerns at the call
// site rather than inside the vendor client.
func WithRateLimiter(rl *RateLimiter) FactoryOption {
	return func(f *Factory) { f.rateLimiter = rl }
}

// NewFactory constructs a Factory.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// RateLimiter returns the attached RateLimiter, or nil if none was configured.
func (f *Factory) RateLimiter() *RateLimiter { return f.rateLimiter }

// Create builds an Adapter for cfg.Provider.
func (f *Factory) Create(cfg Config) (Adapter, error) {
	switch cfg.Provider {
	case KindAnthropic:
		if cfg.APIKey == "" {
			return nil, NewAuthError("anthropic: API key required")
		}
		return NewAnthropicAdapter(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.ContextWindow), nil

	case KindOpenAI:
		if cfg.APIKey == "" {
			return nil, NewAuthError("openai: API key required")
		}
		return NewOpenAIAdapter(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.ContextWindow), nil

	case KindGemini:
		if cfg.APIKey == "" {
			return nil, NewAuthError("gemini: API key required")
		}
		return NewGeminiAdapter(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.ContextWindow), nil

	case KindOllama:
		return NewOllamaAdapter(cfg.Model, cfg.BaseURL, cfg.ContextWindow), nil

	default:
		return nil, fmt.Errorf("provider: unsupported kind %q (valid: %v)", cfg.Provider, ValidKinds)
	}
}

// CreateLifecycleManager builds a ModelLifecycleManager for cfg, returning a
// no-op manager for cloud providers (nothing to warm/unload) and the real
// Ollama-backed one for local models.
func (f *Factory) CreateLifecycleManager(cfg Config) (ModelLifecycleManager, error) {
	switch cfg.Provider {
	case KindOllama:
		return NewOllamaAdapter(cfg.Model, cfg.BaseURL, cfg.ContextWindow), nil
	case KindAnthropic, KindOpenAI, KindGemini:
		return noopLifecycleManager{}, nil
	default:
		return nil, fmt.Errorf("provider: unsupported kind %q", cfg.Provider)
	}
}

// noopLifecycleManager serves cloud providers, which have no local VRAM
// lifecycle to manage.
type noopLifecycleManager struct{}

func (noopLifecycleManager) WarmModel(_ context.Context, _ time.Duration) error { return nil }
func (noopLifecycleManager) UnloadModel(_ context.Context) error               { return nil }
func (noopLifecycleManager) IsLocal() bool                                     { return false }
