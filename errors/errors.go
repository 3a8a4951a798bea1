package errors

import (
	"context"
	"errors"
	"fmt"
)

// Error is the unified error type surfaced by the orchestration core.
// Every public operation returns either a success value or exactly one
// Error from the fixed Kind taxonomy.
type Error struct {
	// Kind is the machine-readable classification.
	Kind Kind `json:"kind"`
	// Message is a human-readable description.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error, if any.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *Error) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates an Error of the given kind with automatic retryable
// classification.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Retryable: IsRetryableKind(kind)}
}

// --- Constructors, one per kind ---

// NotFound reports an unknown provider or capability.
func NotFound(resource, id string) *Error {
	e := New(KindNotFound, fmt.Sprintf("%s %q not found", resource, id))
	return e.WithDetail("resource", resource).WithDetail("id", id)
}

// Unhealthy reports a provider that is not eligible for activation.
func Unhealthy(provider string) *Error {
	e := New(KindUnhealthy, fmt.Sprintf("provider %q is unhealthy", provider))
	return e.WithDetail("provider", provider)
}

// MigrationInProgress reports that a capability already has a running
// migration.
func MigrationInProgress(capability string) *Error {
	e := New(KindMigrationInProgress, fmt.Sprintf("a migration is already in progress for %s", capability))
	return e.WithDetail("capability", capability)
}

// TargetUnavailable reports a migration target that cannot accept the job.
func TargetUnavailable(provider, reason string) *Error {
	e := New(KindTargetUnavailable, fmt.Sprintf("migration target %q unavailable: %s", provider, reason))
	return e.WithDetail("provider", provider)
}

// VerificationFailed reports an integrity check outside tolerance.
func VerificationFailed(reason string) *Error {
	return New(KindVerificationFailed, fmt.Sprintf("verification failed: %s", reason))
}

// Cancelled reports an operation cancelled before completion.
func Cancelled(operation string) *Error {
	e := New(KindCancelled, fmt.Sprintf("%s was cancelled", operation))
	return e.WithDetail("operation", operation)
}

// CircuitOpen reports a call short-circuited by an open circuit breaker.
func CircuitOpen(provider string) *Error {
	e := New(KindCircuitOpen, fmt.Sprintf("circuit breaker open for provider %q", provider))
	return e.WithDetail("provider", provider)
}

// Timeout reports an operation that exceeded its deadline.
func Timeout(operation string) *Error {
	e := New(KindTimeout, fmt.Sprintf("%s timed out", operation))
	return e.WithDetail("operation", operation)
}

// Adapter wraps an opaque underlying adapter failure.
func Adapter(provider string, cause error) *Error {
	e := New(KindAdapter, fmt.Sprintf("provider %q operation failed", provider))
	return e.WithDetail("provider", provider).WithCause(cause)
}

// --- Inspection helpers ---

// AsError extracts an *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of an error, or the empty string if the error
// is not from this taxonomy.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether an error may be retried. Errors outside the
// taxonomy are treated as retryable unless they are context errors.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Normalize maps any adapter-level failure to the taxonomy at the
// registry/facade boundary. Taxonomy errors pass through unchanged;
// context errors become Timeout/Cancelled; everything else is wrapped
// as an opaque adapter error.
func Normalize(provider string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout(fmt.Sprintf("provider %q call", provider)).WithCause(err)
	case errors.Is(err, context.Canceled):
		return Cancelled(fmt.Sprintf("provider %q call", provider)).WithCause(err)
	default:
		return Adapter(provider, err)
	}
}
