// Package apperr defines the error kinds surfaced by the scoring engine.
// Analyzers are fail-soft (neutral contribution); ingest and decision
// persistence are fail-loud. The HTTP layer maps kinds to status codes.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for recovery and HTTP mapping.
type Kind string

const (
	// KindValidationFailed is malformed input at the boundary. Never retried.
	KindValidationFailed Kind = "VALIDATION_FAILED"
	// KindSessionNotFound is a missing session reference.
	KindSessionNotFound Kind = "SESSION_NOT_FOUND"
	// KindHierarchyNotFound is a missing survey/platform/respondent slice.
	KindHierarchyNotFound Kind = "HIERARCHY_NOT_FOUND"
	// KindCapExceeded means the per-session event cap was reached.
	KindCapExceeded Kind = "CAP_EXCEEDED"
	// KindClassifierUnavailable means the text classifier failed after retries.
	KindClassifierUnavailable Kind = "CLASSIFIER_UNAVAILABLE"
	// KindFraudComponentUnavailable means a cross-session lookup failed.
	KindFraudComponentUnavailable Kind = "FRAUD_COMPONENT_UNAVAILABLE"
	// KindConflict is a duplicate write resolved by idempotent upsert.
	KindConflict Kind = "CONFLICT"
	// KindBusy means a bounded work queue rejected the request.
	KindBusy Kind = "BUSY"
	// KindInternal is an unexpected invariant violation.
	KindInternal Kind = "INTERNAL"
)

// Error carries a kind, a human-readable detail, and an optional cause.
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on kind so callers can use errors.Is with sentinel errors.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an error of the given kind.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Newf creates an error of the given kind with a formatted detail.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new error of the given kind.
func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

// KindOf extracts the kind from err, or KindInternal for unknown errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Sentinels for errors.Is checks.
var (
	ErrValidationFailed          = &Error{Kind: KindValidationFailed}
	ErrSessionNotFound           = &Error{Kind: KindSessionNotFound}
	ErrHierarchyNotFound         = &Error{Kind: KindHierarchyNotFound}
	ErrCapExceeded               = &Error{Kind: KindCapExceeded}
	ErrClassifierUnavailable     = &Error{Kind: KindClassifierUnavailable}
	ErrFraudComponentUnavailable = &Error{Kind: KindFraudComponentUnavailable}
	ErrConflict                  = &Error{Kind: KindConflict}
	ErrBusy                      = &Error{Kind: KindBusy}
	ErrInternal                  = &Error{Kind: KindInternal}
)
