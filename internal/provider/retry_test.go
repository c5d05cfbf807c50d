// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithRetry_SucceedsWithoutRetryingOnFirstSuccess(t *testing.T) {
	calls := 0
	result, err := WithRetry(context.Background(), DefaultRetryPolicy, func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.Equal(t, 1, calls)
}

func TestWithRetry_RetriesRetryableErrorUntilSuccess(t *testing.T) {
	calls := 0
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	result, err := WithRetry(context.Background(), policy, func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, NewRateLimitedError(time.Millisecond)
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, result)
	require.Equal(t, 2, calls)
}

func TestWithRetry_StopsImmediatelyOnNonRetryableError(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), DefaultRetryPolicy, func(ctx context.Context) (int, error) {
		calls++
		return 0, NewAuthError("bad key")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestWithRetry_ReturnsLastErrorAfterExhaustingAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	calls := 0
	_, err := WithRetry(context.Background(), policy, func(ctx context.Context) (int, error) {
		calls++
		return 0, NewProviderUnavailableError("down")
	})
	require.Error(t, err)
	require.Equal(t, 2, calls)
}

func TestWithRetry_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}

	calls := 0
	_, err := WithRetry(ctx, policy, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			cancel()
		}
		return 0, NewNetworkError(nil)
	})
	require.Error(t, err)
}

func TestRateLimiter_UnmeteredProviderNeverBlocks(t *testing.T) {
	rl := NewRateLimiter(map[string]int{"anthropic": 60})
	require.NoError(t, rl.Wait(context.Background(), "local-ollama"))
}

func TestRateLimiter_MeteredProviderEventuallyThrottles(t *testing.T) {
	rl := NewRateLimiter(map[string]int{"anthropic": 60})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	require.NoError(t, rl.Wait(context.Background(), "anthropic")) // consumes the initial burst token
	err := rl.Wait(ctx, "anthropic")
	require.Error(t, err, "a second immediate request against a 1rps-ish limit should be throttled past the deadline")
}
