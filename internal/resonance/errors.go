package resonance

import "errors"

// All field errors are caller-input errors: they surface synchronously,
// abort the single operation that raised them, and leave the anchor and
// pattern registries untouched. None are transient.
var (
	// ErrInvalidPrime means a supplied anchor value failed primality testing.
	ErrInvalidPrime = errors.New("invalid prime")

	// ErrAlreadyInitialized means Initialize was called twice on one field.
	ErrAlreadyInitialized = errors.New("field already initialized")

	// ErrNotInitialized means the operation requires an initialized field.
	ErrNotInitialized = errors.New("field not initialized")

	// ErrUnknownAnchor means a referenced anchor name does not exist.
	ErrUnknownAnchor = errors.New("unknown anchor")
)
