package gpu

import "errors"

var (
	// ErrUnavailable is returned when no GPU device can be opened.
	ErrUnavailable = errors.New("gpu: compute device not available")

	// ErrNotInitialized is returned when rendering before Init succeeded.
	ErrNotInitialized = errors.New("gpu: dispatcher not initialized")

	// ErrImageTooLarge is returned when a buffer exceeds the storage binding limit.
	ErrImageTooLarge = errors.New("gpu: image exceeds storage buffer limit")

	// ErrTimeout is returned when the device does not finish in time.
	ErrTimeout = errors.New("gpu: timed out waiting for device")

	// ErrProvider is returned when a device provider does not expose HAL types.
	ErrProvider = errors.New("gpu: provider does not expose HAL device")
)
