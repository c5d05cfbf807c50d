// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config holds the persisted embedding configuration — one JSON
// row per project in the VectorStore settings table (spec.md §6) — and
// the CLI's optional YAML runtime-config file. Grounded on
// digitallysavvy-go-ai's `validate:"required"` struct-tag style — the
// teacher declares go-playground/validator/v10 in go.mod but the
// retrieved slice shows no call site for it, so this package gives it
// one.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/aleutian-core/internal/store"
)

// Provider enumerates the supported embedding providers, per spec.md §6's
// persisted config shape.
type Provider string

const (
	ProviderTFIDF  Provider = "tfidf"
	ProviderOllama Provider = "ollama"
	ProviderQwen   Provider = "qwen"
	ProviderGLM    Provider = "glm"
	ProviderOpenAI Provider = "openai"
)

// EmbeddingConfig is the persisted embedding configuration spec.md §6
// names: "one row in the VectorStore settings table, JSON".
type EmbeddingConfig struct {
	Provider Provider `json:"provider" validate:"required,oneof=tfidf ollama qwen glm openai"`
	Model    string   `json:"model" validate:"required"`

	// Dimension is required to be non-negative only; tfidf's dimension is
	// vocabulary-size-dependent and legitimately zero before any document
	// has been indexed, so a stricter gt=0 rule would reject the very
	// fallback config Default returns.
	Dimension int `json:"dimension" validate:"gte=0"`

	BatchSize        int      `json:"batch_size" validate:"required,gt=0"`
	BaseURL          string   `json:"base_url,omitempty" validate:"omitempty,url"`
	FallbackProvider Provider `json:"fallback_provider,omitempty" validate:"omitempty,oneof=tfidf ollama qwen glm openai"`
}

var validate = validator.New()

// Validate checks the struct tags above, returning every violation rather
// than failing fast on the first.
func (c EmbeddingConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: invalid embedding config: %w", err)
	}
	return nil
}

// Load restores a project's persisted embedding config. Returns (nil,
// nil) if the project has never persisted one — a fresh project falling
// back to the local TF-IDF provider is not an error condition (spec.md
// §4.8's construction policy).
func Load(ctx context.Context, vs store.VectorStore, projectPath string) (*EmbeddingConfig, error) {
	raw, err := vs.LoadEmbeddingConfig(ctx, projectPath)
	if err != nil {
		return nil, fmt.Errorf("config: loading: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	var cfg EmbeddingConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save persists cfg for projectPath after validating it.
func Save(ctx context.Context, vs store.VectorStore, projectPath string, cfg EmbeddingConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encoding: %w", err)
	}
	if err := vs.SaveEmbeddingConfig(ctx, projectPath, raw); err != nil {
		return fmt.Errorf("config: saving: %w", err)
	}
	return nil
}

// Default returns the zero-configuration fallback: the local TF-IDF
// provider, which needs no API key and never fails resolution.
func Default() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:  ProviderTFIDF,
		Model:     "tfidf-v1",
		Dimension: 0,
		BatchSize: 32,
	}
}

// RuntimeConfig selects and configures the completion provider cmd/agentd
// wires into internal/orchestrator — distinct from EmbeddingConfig, which
// governs the embedding dispatch layer instead. Unlike EmbeddingConfig this
// is never persisted to a project's VectorStore: spec.md's CLI/IPC
// Non-goal keeps provider selection a command-line/environment concern,
// resolved fresh on every process start rather than stored per project.
type RuntimeConfig struct {
	Provider Kind   `validate:"required,oneof=anthropic openai gemini ollama"`
	Model    string `validate:"required"`

	// KeyringAlias names the secret alias cmd/agentd resolves via
	// internal/keyring before calling provider.Factory.Create; empty for
	// ollama, which needs no credential.
	KeyringAlias string `validate:"omitempty"`

	BaseURL       string `validate:"omitempty,url"`
	ContextWindow int    `validate:"gte=0"`
}

// Kind mirrors internal/provider.Kind's string values without importing
// that package here, keeping internal/config free of a provider dependency
// (the teacher's own config packages never import the clients they
// configure); cmd/agentd converts RuntimeConfig.Provider to
// provider.Kind at the one call site that needs it.
type Kind string

const (
	KindAnthropic Kind = "anthropic"
	KindOpenAI    Kind = "openai"
	KindGemini    Kind = "gemini"
	KindOllama    Kind = "ollama"
)

// Validate checks the struct tags above.
func (c RuntimeConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: invalid runtime config: %w", err)
	}
	return nil
}

// RuntimeConfigFile is the on-disk YAML shape of a user's --config file,
// letting cmd/agentd spare repeating --provider/--model/etc. on every
// invocation. Field names are snake_case to match the teacher's own YAML
// documents rather than Go convention.
type RuntimeConfigFile struct {
	Provider      string `yaml:"provider"`
	Model         string `yaml:"model"`
	KeyringAlias  string `yaml:"key_alias"`
	BaseURL       string `yaml:"base_url"`
	ContextWindow int    `yaml:"context_window"`
}

// LoadRuntimeConfigFile reads and parses a YAML runtime-config file. An
// empty path or a missing file is not an error — cmd/agentd falls back
// entirely to flags/environment in that case, per spec.md §6's CLI/IPC
// Non-goal.
func LoadRuntimeConfigFile(path string) (*RuntimeConfigFile, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var file RuntimeConfigFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &file, nil
}
