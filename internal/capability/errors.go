package capability

import "errors"

// Capability registry errors.
var (
	// ErrNotFound is returned when no capability file exists for a name.
	ErrNotFound = errors.New("capability not found")

	// ErrAlreadyExists is returned when a name has already been claimed.
	ErrAlreadyExists = errors.New("capability already exists")

	// ErrInvalidName is returned for names outside [a-z0-9_].
	ErrInvalidName = errors.New("invalid capability name")

	// ErrContract is returned when a source does not expose the fixed
	// description, parameters and entry-point symbols.
	ErrContract = errors.New("capability contract not satisfied")

	// ErrLoad is returned when a source cannot be parsed or executed.
	ErrLoad = errors.New("failed to load capability")

	// ErrUnknownBackend is returned by NewBackend.
	ErrUnknownBackend = errors.New("unknown capability backend")
)
