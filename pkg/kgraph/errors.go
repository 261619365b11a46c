package kgraph

import (
	"errors"
	"fmt"
)

// Kind classifies a kgraph error so callers can branch on recoverability
// without string matching.
type Kind int

// Recognised error kinds.
const (
	// KindInvalidArgument means the caller violated a documented
	// precondition (null name, bad pagination, missing relation endpoint,
	// vector dimension mismatch).
	KindInvalidArgument Kind = iota

	// KindNotFound means the requested entity or relation has no current
	// version.
	KindNotFound

	// KindConflict means a uniqueness or versioning conflict was detected
	// at commit time; the caller may retry.
	KindConflict

	// KindBackendUnavailable means the backend connection or protocol
	// failed; retriable.
	KindBackendUnavailable

	// KindValidation means a pre-flight query validation failure; the
	// query was never sent to the backend.
	KindValidation

	// KindRateLimited means the embedding rate limiter refused a slot.
	// Internal to the embedding job manager — surfaces as a delayed job,
	// never as a caller-visible error from the façade.
	KindRateLimited

	// KindExternalUnavailable means an embedding provider or enrichment
	// dependency failed; surfaced as a warning, the triggering mutation
	// still succeeds.
	KindExternalUnavailable

	// KindCancelled means the operation's deadline expired or it was
	// explicitly cancelled.
	KindCancelled
)

// String returns a lower-case identifier for k, suitable for log fields.
func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindBackendUnavailable:
		return "backend_unavailable"
	case KindValidation:
		return "validation_error"
	case KindRateLimited:
		return "rate_limited"
	case KindExternalUnavailable:
		return "external_unavailable"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the error type returned across kgraph's public API. It wraps an
// optional underlying cause and attaches a [Kind] for programmatic handling.
type Error struct {
	Kind Kind
	Op   string
	Name string // entity/relation name involved, when applicable
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("kgraph: %s: %s", e.Op, e.Kind)
	if e.Name != "" {
		msg += fmt.Sprintf(" (name=%q)", e.Name)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// newErr constructs an [*Error] for op/kind, optionally wrapping cause.
func newErr(op string, kind Kind, name string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Name: name, Err: cause}
}

// NewError constructs an [*Error] for op/kind, optionally wrapping cause.
// Exported for use by backend implementations (e.g.
// [github.com/anthropic-labs/kgmemory/pkg/kgraph/postgres]) outside this
// package.
func NewError(op string, kind Kind, name string, cause error) *Error {
	return newErr(op, kind, name, cause)
}

// IsKind reports whether err (or any error in its chain) is a [*Error] of
// the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsRetriable reports whether err represents a condition the caller may
// reasonably retry (backend outage, conflict, rate limiting).
func IsRetriable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindConflict, KindBackendUnavailable, KindRateLimited:
		return true
	default:
		return false
	}
}
