package provision

import "errors"

var (
	// ErrNoConfigDir is returned when the provisioner has no directory.
	ErrNoConfigDir = errors.New("provision: config directory not set")

	// ErrInvalidConfig is returned when lambda_wp_config.yaml cannot be parsed.
	ErrInvalidConfig = errors.New("provision: invalid lambda_wp_config.yaml")
)
