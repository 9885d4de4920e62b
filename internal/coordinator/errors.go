package coordinator

import "errors"

var (
	// ErrNoHost is returned when the entry has no Modbus host configured.
	ErrNoHost = errors.New("coordinator: entry has no host")

	// ErrNoData is returned when a poll read no register at all.
	ErrNoData = errors.New("coordinator: no data received")

	// ErrNotInitialised is returned by Refresh before Init.
	ErrNotInitialised = errors.New("coordinator: not initialised")

	// ErrShutdown is returned by Refresh after Shutdown.
	ErrShutdown = errors.New("coordinator: shut down")

	// ErrRegisterDisabled is returned by ReadRegister for a disabled register.
	ErrRegisterDisabled = errors.New("coordinator: register disabled")
)
