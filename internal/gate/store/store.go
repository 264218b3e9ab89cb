package store

import "errors"

var (
	// ErrNotFound is returned by lookups by key when no row matches.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a uniqueness constraint would be violated.
	ErrConflict = errors.New("store: conflict")
)
