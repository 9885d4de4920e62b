package services

import "errors"

var (
	// ErrUnknownService is returned for calls to an unregistered service.
	ErrUnknownService = errors.New("services: unknown service")

	// ErrInvalidCall is returned when a call payload cannot be decoded or
	// misses a required field.
	ErrInvalidCall = errors.New("services: invalid call")

	// ErrEntryNotActive is returned when the target entry is not active.
	ErrEntryNotActive = errors.New("services: entry not active")

	// ErrNotSupported is returned when the entry's coordinator lacks the
	// capability a service needs.
	ErrNotSupported = errors.New("services: not supported by coordinator")

	// ErrClosed is returned by the reload service after Drain.
	ErrClosed = errors.New("services: registrar closed")
)
