// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBudget_ExceededReportsWhichLimit(t *testing.T) {
	b := Budget{MaxIterations: 3, MaxTotalTokens: 1000}

	reason, exceeded := b.exceeded(2, 500)
	require.False(t, exceeded)
	require.Empty(t, reason)

	reason, exceeded = b.exceeded(3, 500)
	require.True(t, exceeded)
	require.Equal(t, "max_iterations", reason)

	reason, exceeded = b.exceeded(0, 1000)
	require.True(t, exceeded)
	require.Equal(t, "max_total_tokens", reason)
}

func TestBudget_ZeroMaxTotalTokensIsUnbounded(t *testing.T) {
	b := Budget{MaxIterations: 5}
	_, exceeded := b.exceeded(1, 10_000_000)
	require.False(t, exceeded)
}

func TestComputeSubAgentBudget_ShrinksWithDepth(t *testing.T) {
	shallow := computeSubAgentBudget(100_000, "GeneralPurpose", 0)
	deep := computeSubAgentBudget(100_000, "GeneralPurpose", 2)
	require.Greater(t, shallow.MaxTotalTokens, deep.MaxTotalTokens)
	require.GreaterOrEqual(t, shallow.MaxIterations, deep.MaxIterations)
}

func TestComputeSubAgentBudget_NarrowsForExploreAndBash(t *testing.T) {
	general := computeSubAgentBudget(100_000, "GeneralPurpose", 0)
	explore := computeSubAgentBudget(100_000, "Explore", 0)
	bash := computeSubAgentBudget(100_000, "Bash", 0)
	require.Greater(t, general.MaxTotalTokens, explore.MaxTotalTokens)
	require.Greater(t, explore.MaxTotalTokens, bash.MaxTotalTokens)
}

func TestComputeSubAgentBudget_FloorsNeverGoBelowMinimums(t *testing.T) {
	b := computeSubAgentBudget(1000, "Bash", 3)
	require.GreaterOrEqual(t, b.MaxTotalTokens, 2048)
	require.GreaterOrEqual(t, b.MaxIterations, 3)
}
