// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/aleutian-core/internal/store"
)

func TestDefault_PassesValidationDespiteZeroDimension(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, ProviderTFIDF, cfg.Provider)
	require.Zero(t, cfg.Dimension)
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	cfg := Default()
	cfg.Provider = Provider("made-up")
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveBatchSize(t *testing.T) {
	cfg := Default()
	cfg.BatchSize = 0
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsMalformedBaseURL(t *testing.T) {
	cfg := Default()
	cfg.BaseURL = "not-a-url"
	require.Error(t, cfg.Validate())
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	got, err := Load(ctx, s, "/proj")
	require.NoError(t, err)
	require.Nil(t, got)

	cfg := EmbeddingConfig{
		Provider:  ProviderOllama,
		Model:     "nomic-embed-text",
		Dimension: 768,
		BatchSize: 16,
		BaseURL:   "http://localhost:11434",
	}
	require.NoError(t, Save(ctx, s, "/proj", cfg))

	got, err = Load(ctx, s, "/proj")
	require.NoError(t, err)
	require.Equal(t, cfg, *got)
}

func TestSave_RejectsInvalidConfig(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := Default()
	cfg.Model = ""
	require.Error(t, Save(ctx, s, "/proj", cfg))
}

func TestLoadRuntimeConfigFile_EmptyPathReturnsNil(t *testing.T) {
	file, err := LoadRuntimeConfigFile("")
	require.NoError(t, err)
	require.Nil(t, file)
}

func TestLoadRuntimeConfigFile_MissingFileReturnsNil(t *testing.T) {
	file, err := LoadRuntimeConfigFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Nil(t, file)
}

func TestLoadRuntimeConfigFile_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider: anthropic
model: claude-sonnet
key_alias: work
base_url: https://api.example.com
context_window: 200000
`), 0o600))

	file, err := LoadRuntimeConfigFile(path)
	require.NoError(t, err)
	require.NotNil(t, file)
	require.Equal(t, "anthropic", file.Provider)
	require.Equal(t, "claude-sonnet", file.Model)
	require.Equal(t, "work", file.KeyringAlias)
	require.Equal(t, "https://api.example.com", file.BaseURL)
	require.Equal(t, 200000, file.ContextWindow)
}

func TestLoadRuntimeConfigFile_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: [unterminated"), 0o600))

	_, err := LoadRuntimeConfigFile(path)
	require.Error(t, err)
}
