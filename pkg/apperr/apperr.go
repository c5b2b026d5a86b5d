// Package apperr defines the error kinds shared across the orchestration
// core (spec §7), following the teacher's sentinel-error style
// (pkg/queue/types.go: ErrNoSessionsAvailable, ErrAtCapacity) generalized
// into a typed, structured error that still satisfies errors.Is/errors.As.
package apperr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error categories a caller may need to branch on.
type Kind string

const (
	KindValidation             Kind = "validation"
	KindAuthMissing            Kind = "auth_missing"
	KindAuthInvalid            Kind = "auth_invalid"
	KindNotFound               Kind = "not_found"
	KindInvalidStateTransition Kind = "invalid_state_transition"
	KindTokensExhausted        Kind = "tokens_exhausted"
	KindRateLimited            Kind = "rate_limited"
	KindProviderTransport      Kind = "provider_transport"
	KindTimeout                Kind = "timeout"
	KindResourcesExhausted     Kind = "resources_exhausted"
	KindStoreUnavailable       Kind = "store_unavailable"
	KindScorerIndeterminate    Kind = "scorer_indeterminate"
	KindAlreadyExecuted        Kind = "already_executed"
	KindConflict               Kind = "conflict"
	KindInternal               Kind = "internal"
)

// Error is a structured application error carrying a Kind, a message, and
// the correlation id it occurred under (spec §7: "Logs always include agent
// kind, cycle id, and correlation id").
type Error struct {
	Kind          Kind
	Message       string
	CorrelationID string
	Err           error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithCorrelation returns a copy of e stamped with a correlation id.
func (e *Error) WithCorrelation(id string) *Error {
	cp := *e
	cp.CorrelationID = id
	return &cp
}

// Is allows errors.Is(err, apperr.New(KindNotFound, "")) style comparisons
// by Kind alone — callers typically compare against the sentinels below.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind
	}
	return false
}

// KindOf extracts the Kind of err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Sentinel instances usable with errors.Is for quick kind checks.
var (
	ErrValidation             = &Error{Kind: KindValidation}
	ErrAuthMissing            = &Error{Kind: KindAuthMissing}
	ErrAuthInvalid            = &Error{Kind: KindAuthInvalid}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrInvalidStateTransition = &Error{Kind: KindInvalidStateTransition}
	ErrTokensExhausted        = &Error{Kind: KindTokensExhausted}
	ErrRateLimited            = &Error{Kind: KindRateLimited}
	ErrProviderTransport      = &Error{Kind: KindProviderTransport}
	ErrTimeout                = &Error{Kind: KindTimeout}
	ErrResourcesExhausted     = &Error{Kind: KindResourcesExhausted}
	ErrStoreUnavailable       = &Error{Kind: KindStoreUnavailable}
	ErrScorerIndeterminate    = &Error{Kind: KindScorerIndeterminate}
	ErrAlreadyExecuted        = &Error{Kind: KindAlreadyExecuted}
	ErrConflict               = &Error{Kind: KindConflict}
)
