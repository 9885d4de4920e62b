package lifecycle

import "errors"

var (
	// ErrAlreadyActive is returned by Setup for an entry that is registered.
	ErrAlreadyActive = errors.New("lifecycle: entry already active")

	// ErrNoData is returned by Setup when the first refresh produced no data.
	ErrNoData = errors.New("lifecycle: coordinator returned no data")

	// ErrPlatformUnload is returned by Unload when the platforms could not
	// be detached.
	ErrPlatformUnload = errors.New("lifecycle: platform unload failed")

	// ErrPanic wraps a panic recovered during Setup.
	ErrPanic = errors.New("lifecycle: unexpected panic")

	// ErrNoFactory is returned by Setup when no coordinator factory is set.
	ErrNoFactory = errors.New("lifecycle: no coordinator factory")
)
