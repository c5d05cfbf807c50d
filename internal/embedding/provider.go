// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embedding provides the EmbeddingProvider contract, concrete
// vendor providers, and the EmbeddingManager that batches, caches, and
// retries requests against them (spec.md §4.2/§4.3).
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider embeds a batch of texts into fixed-dimension vectors.
type Provider interface {
	// Embed returns one vector per input text, in the same order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	Name() string
	Model() string
	Dimension() int
	MaxBatchSize() int
}

// ErrorKind enumerates the embedding provider error taxonomy (spec.md §7).
type ErrorKind string

const (
	ErrNetwork      ErrorKind = "network_error"
	ErrAuth         ErrorKind = "authentication_failed"
	ErrInvalidInput ErrorKind = "invalid_input"
	ErrRateLimited  ErrorKind = "rate_limited"
	ErrDimensionMismatch ErrorKind = "dimension_mismatch"
	ErrUnavailable  ErrorKind = "provider_unavailable"
)

// Error is the embedding-provider error type, with per-Kind retryability.
type Error struct {
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("embedding: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("embedding: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable reports whether the embedding manager's retry loop should
// retry this error. Dimension mismatches and invalid input never are —
// retrying would reproduce the same failure.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case ErrNetwork, ErrRateLimited, ErrUnavailable:
		return true
	default:
		return false
	}
}

func NewNetworkError(cause error) *Error { return &Error{Kind: ErrNetwork, Message: "network request failed", Cause: cause} }
func NewAuthError(msg string) *Error     { return &Error{Kind: ErrAuth, Message: msg} }
func NewInvalidInputError(msg string) *Error { return &Error{Kind: ErrInvalidInput, Message: msg} }
func NewRateLimitedError(retryAfter time.Duration) *Error {
	return &Error{Kind: ErrRateLimited, Message: "rate limited", RetryAfter: retryAfter}
}
func NewDimensionMismatchError(expected, got int) *Error {
	return &Error{Kind: ErrDimensionMismatch, Message: fmt.Sprintf("expected dimension %d, got %d", expected, got)}
}
func NewUnavailableError(msg string) *Error { return &Error{Kind: ErrUnavailable, Message: msg} }

// IsRetryable extracts retryability from any error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.IsRetryable()
	}
	return false
}

// RetryAfter extracts the advised backoff, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == ErrRateLimited {
		return e.RetryAfter, true
	}
	return 0, false
}
