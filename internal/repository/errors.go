// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers and the booking core to distinguish between different failure
// scenarios. For example, ErrForbidden indicates that the current user is
// not authorized to touch a resource owned by someone else, while
// ErrConflict signals that an operation cannot proceed due to dependent
// state (e.g. shrinking a lot below an occupied spot).
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a delete or update cannot be
// performed because of conflicting state, such as removing a spot that
// is occupied or still carries a live booking. Handlers should
// translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// Query-builder failures are wrapped so callers can tell them apart from
// driver errors.
var (
	ErrBuildQuery = errors.New("build query")
	ErrScanRow    = errors.New("scan row")
)
