package texture

import "errors"

// Sentinel errors.
var (
	// ErrInvalidConfig is returned before any iteration runs when the
	// configuration or the input shapes cannot be used.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNonFinite is returned when the loss or its gradient stops being finite.
	ErrNonFinite = errors.New("non-finite loss or gradient")
)
