package store

import "errors"

// Sentinel errors returned by Store implementations. Callers typically wrap
// these into an *apperr.Error at the component boundary that owns HTTP/WS
// surfacing (spec §7).
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateFingerprint indicates a scenario insert collided with an
	// existing fingerprint within the non-repetition window.
	ErrDuplicateFingerprint = errors.New("store: duplicate scenario fingerprint")
	// ErrInvalidStateTransition indicates a proposal transition's `from`
	// state no longer holds (spec §4.2).
	ErrInvalidStateTransition = errors.New("store: invalid state transition")
	// ErrAlreadyExecuted indicates a second execute attempt on an executed
	// proposal (spec §8 testable property 9).
	ErrAlreadyExecuted = errors.New("store: proposal already executed")
	// ErrUnavailable wraps every storage failure other than a missing row.
	// No caller in this module retries an operation that fails with it.
	ErrUnavailable = errors.New("store: unavailable")
)
