// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios without
// string matching. For example, ErrSnapshotLocked indicates that a
// month-close mutation hit a finalized period and must be rejected,
// while ErrTokenExpired maps to a 410 for a claim link that outlived
// its window.
package repository

import "errors"

// ErrNotFound is returned when a requested row does not exist. Handlers
// should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrTokenInvalid is returned when a claim token does not match any
// waitlist request. Handlers should translate this into an HTTP 404.
var ErrTokenInvalid = errors.New("claim token invalid")

// ErrTokenExpired is returned when a claim token exists but its invite
// window has passed. Handlers should translate this into an HTTP 410.
var ErrTokenExpired = errors.New("claim token expired")

// ErrTokenAlreadyClaimed is returned when a claim token was already
// consumed. Handlers should translate this into an HTTP 409.
var ErrTokenAlreadyClaimed = errors.New("claim token already claimed")

// ErrInvalidTransition is returned when a waitlist status change does not
// follow the state machine. Handlers should translate this into an HTTP 409.
var ErrInvalidTransition = errors.New("invalid waitlist transition")

// ErrSnapshotLocked is returned when a mutation targets a locked billing
// period. Locking is a hard boundary: callers receive an HTTP 409, never
// a silent no-op.
var ErrSnapshotLocked = errors.New("snapshot locked")

// ErrSnapshotState is returned when a settlement step is attempted out of
// order, such as generating payouts before invoices exist.
var ErrSnapshotState = errors.New("snapshot in wrong state for operation")

// ErrCapacityLost is returned when a claim confirmation re-check finds the
// required capacity gone. This is an expected outcome of contention, not
// a failure; the request reverts to WAITING.
var ErrCapacityLost = errors.New("capacity no longer available")
