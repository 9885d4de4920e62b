package integration

import "errors"

var (
	// ErrNotStarted is returned by operations that need Start to have run.
	ErrNotStarted = errors.New("integration: not started")

	// ErrUnexpected wraps a panic recovered at the boundary.
	ErrUnexpected = errors.New("integration: unexpected error")
)
