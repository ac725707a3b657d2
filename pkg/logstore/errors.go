package logstore

import "errors"

var (
	// ErrNotFound is returned when an id does not resolve to a stored entry. Not an error condition
	// worth logging.
	ErrNotFound = errors.New("log entry not found")
	// ErrPartialIndexFailure means the primary record was written but at least one index key was not.
	// The entry stays reachable through a full scan. It is logged, never returned to clients.
	ErrPartialIndexFailure = errors.New("partial index failure")
)
