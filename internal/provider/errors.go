// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provider

import (
	"errors"
	"fmt"
	"time"
)

// Error is the provider error taxonomy from spec.md §4.1/§7: each variant
// declares its own retryability, queried by the caller rather than inferred
// from a type switch on the error string.
type Error struct {
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration // only meaningful for ErrRateLimited
	Cause      error
}

// ErrorKind enumerates the provider-level error taxonomy.
type ErrorKind string

const (
	ErrNetwork             ErrorKind = "network_error"
	ErrAuthenticationFailed ErrorKind = "authentication_failed"
	ErrInvalidRequest      ErrorKind = "invalid_request"
	ErrRateLimited         ErrorKind = "rate_limited"
	ErrParse               ErrorKind = "parse_error"
	ErrProviderUnavailable ErrorKind = "provider_unavailable"
)

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("provider: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable reports whether the caller may retry this error. Retryability
// is a property of the Kind, per spec.md §4.1.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case ErrNetwork, ErrRateLimited, ErrProviderUnavailable:
		return true
	case ErrInvalidRequest:
		// Only retryable via the adapter's own downshift-and-resubmit path,
		// never by a generic caller loop.
		return false
	default:
		return false
	}
}

// NewNetworkError wraps a transport-level failure.
func NewNetworkError(cause error) *Error {
	return &Error{Kind: ErrNetwork, Message: "network request failed", Cause: cause}
}

// NewAuthError reports invalid or missing credentials.
func NewAuthError(msg string) *Error {
	return &Error{Kind: ErrAuthenticationFailed, Message: msg}
}

// NewInvalidRequestError reports a rejected request body/shape.
func NewInvalidRequestError(msg string, cause error) *Error {
	return &Error{Kind: ErrInvalidRequest, Message: msg, Cause: cause}
}

// NewRateLimitedError reports HTTP 429 or provider-specific throttling.
func NewRateLimitedError(retryAfter time.Duration) *Error {
	return &Error{Kind: ErrRateLimited, Message: "rate limited", RetryAfter: retryAfter}
}

// NewParseError reports a malformed response body.
func NewParseError(cause error) *Error {
	return &Error{Kind: ErrParse, Message: "failed to parse provider response", Cause: cause}
}

// NewProviderUnavailableError reports the vendor endpoint being down.
func NewProviderUnavailableError(msg string) *Error {
	return &Error{Kind: ErrProviderUnavailable, Message: msg}
}

// IsRetryable extracts retryability from any error, defaulting to false for
// errors outside this package's taxonomy.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.IsRetryable()
	}
	return false
}

// RetryAfter extracts the advised backoff, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var pe *Error
	if errors.As(err, &pe) && pe.Kind == ErrRateLimited {
		return pe.RetryAfter, true
	}
	return 0, false
}
