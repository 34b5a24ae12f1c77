package domain

import "github.com/pkg/errors"

var (
	// ErrInvalidTimestamp is returned for timestamp strings that do not
	// match the canonical snapshot layout. Not recoverable.
	ErrInvalidTimestamp = errors.New("invalid snapshot timestamp")

	// ErrStorageUnavailable is returned when the snapshot store cannot be
	// reached or a write fails mid-flight. Callers must not retry here.
	ErrStorageUnavailable = errors.New("snapshot storage unavailable")
)
