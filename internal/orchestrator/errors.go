// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import "errors"

// Kind classifies an orchestrator-level terminal error, per spec.md §7's
// error table rows owned by the Orchestrator itself (BudgetExceeded,
// Cancelled) rather than by Provider/Embedding/ToolExecutor.
type Kind string

const (
	KindBudgetExceeded Kind = "budget_exceeded"
	KindCancelled      Kind = "cancelled"
	KindDepthExceeded  Kind = "depth_exceeded"
)

// Error is the orchestrator's own error type. Both BudgetExceeded and
// Cancelled terminate the current session/story without rolling back
// already-applied history or persisted state, per spec.md §5's
// "cancellation is abort, not rollback" rule.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func newBudgetExceededError(msg string) *Error { return &Error{Kind: KindBudgetExceeded, Message: msg} }
func newCancelledError() *Error {
	return &Error{Kind: KindCancelled, Message: "session cancelled"}
}
func newDepthExceededError(msg string) *Error { return &Error{Kind: KindDepthExceeded, Message: msg} }

// IsCancelled reports whether err (or one it wraps) is a cancellation,
// distinguishing the "terminate as Cancelled" transition from "terminate
// as Failed" for every other error kind.
func IsCancelled(err error) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Kind == KindCancelled
}

// IsBudgetExceeded reports whether err is a budget-cap termination.
func IsBudgetExceeded(err error) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Kind == KindBudgetExceeded
}
