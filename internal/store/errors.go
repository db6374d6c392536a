package store

import "errors"

// Sentinel errors shared by all store implementations. Handlers map these
// to HTTP status codes with errors.Is.
var (
	// ErrNotFound indicates an unknown node or job id.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates an invalid state transition, such as
	// cancelling a job that already reached a terminal status.
	ErrConflict = errors.New("conflict")
)
