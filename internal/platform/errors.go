package platform

import "errors"

var (
	// ErrUnknownPlatform is returned for platforms other than sensor and
	// climate.
	ErrUnknownPlatform = errors.New("platform: unknown platform")

	// ErrNoBroker is returned when no MQTT broker is configured.
	ErrNoBroker = errors.New("platform: no broker configured")
)
