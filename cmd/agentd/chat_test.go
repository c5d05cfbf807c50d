// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/aleutian-core/internal/config"
	"github.com/AleutianAI/aleutian-core/internal/keyring"
	"github.com/AleutianAI/aleutian-core/internal/provider"
	"github.com/AleutianAI/aleutian-core/internal/store"
)

func TestBuildAdapter_OllamaNeedsNoKeyringAlias(t *testing.T) {
	core = &app{keys: keyring.New()}
	adapter, err := buildAdapter(config.RuntimeConfig{
		Provider: config.KindOllama,
		Model:    "llama3",
	})
	require.NoError(t, err)
	require.NotNil(t, adapter)
}

func TestBuildAdapter_CloudProviderWithoutResolvedKeyFails(t *testing.T) {
	core = &app{keys: keyring.New()}
	_, err := buildAdapter(config.RuntimeConfig{
		Provider:     config.KindAnthropic,
		Model:        "claude-sonnet",
		KeyringAlias: "anthropic-default",
	})
	require.Error(t, err)
}

func TestBuildAdapter_CloudProviderResolvesKeyringAlias(t *testing.T) {
	keys := keyring.New()
	require.NoError(t, keys.Set("anthropic-default", "sk-test-key"))
	core = &app{keys: keys}

	adapter, err := buildAdapter(config.RuntimeConfig{
		Provider:     config.KindAnthropic,
		Model:        "claude-sonnet",
		KeyringAlias: "anthropic-default",
	})
	require.NoError(t, err)
	require.NotNil(t, adapter)
	require.Implements(t, (*provider.Adapter)(nil), adapter)
}

func TestSummarizeProject_FormatsCounts(t *testing.T) {
	got := summarizeProject(store.ProjectIndexSummary{
		TotalFiles:      12,
		TotalSymbols:    340,
		EmbeddingChunks: 560,
		Languages:       []string{"go", "python"},
	})
	require.Contains(t, got, "12 files")
	require.Contains(t, got, "340 symbols")
	require.Contains(t, got, "560 embedded chunks")
	require.Contains(t, got, "go, python")
}
