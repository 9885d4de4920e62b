package automation

import "errors"

var (
	// ErrNoEntryID is returned when binding an entry without an id.
	ErrNoEntryID = errors.New("automation: entry has no id")

	// ErrNoCycles is returned when the coordinator does not count cycles.
	ErrNoCycles = errors.New("automation: coordinator has no cycling counters")

	// ErrNotActive is returned when the entry has no active coordinator.
	ErrNotActive = errors.New("automation: entry not active")
)
