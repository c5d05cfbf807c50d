// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provider

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RetryPolicy governs the capped exponential backoff the orchestrator applies
// around a single Adapter call, mirroring the embedding manager's retry
// policy shape (spec.md §4.3) but scoped to provider completions.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the embedding layer's R_MAX=3, 500ms base,
// 10s cap constants so the two retry surfaces behave identically to an
// operator watching logs.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}

// WithRetry runs fn up to policy.MaxAttempts times, retrying only errors for
// which IsRetryable reports true. It honors a provider-supplied RetryAfter
// over the computed backoff when present.
func WithRetry[T any](ctx context.Context, policy RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return zero, err
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}

		delay := policy.BaseDelay * time.Duration(1<<uint(attempt))
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
		if ra, ok := RetryAfter(err); ok && ra > 0 {
			delay = ra
		}
		slog.Warn("provider: retrying after error", "attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, lastErr
}

// RateLimiter throttles outbound requests per provider name using a
// token-bucket per provider, generalizing the teacher's hand-rolled
// sliding-window egress.RateLimiter onto the wired golang.org/x/time/rate
// dependency: an ecosystem limiter replaces the bespoke timestamp-pruning
// window, but the per-provider map and the "local providers are unmetered"
// rule carry over unchanged.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limits   map[string]int // requests per minute, by provider name
}

// NewRateLimiter builds a limiter with per-provider requests-per-minute caps.
// A provider absent from limitsPerMin is unmetered.
func NewRateLimiter(limitsPerMin map[string]int) *RateLimiter {
	limits := make(map[string]int, len(limitsPerMin))
	for k, v := range limitsPerMin {
		limits[k] = v
	}
	return &RateLimiter{limiters: make(map[string]*rate.Limiter), limits: limits}
}

// Wait blocks until provider may issue a request, or ctx is canceled.
func (r *RateLimiter) Wait(ctx context.Context, provider string) error {
	limit, exists := r.limits[provider]
	if !exists || limit == 0 {
		return nil
	}
	r.mu.Lock()
	lim, ok := r.limiters[provider]
	if !ok {
		perSecond := float64(limit) / 60.0
		lim = rate.NewLimiter(rate.Limit(perSecond), 1)
		r.limiters[provider] = lim
	}
	r.mu.Unlock()
	return lim.Wait(ctx)
}
