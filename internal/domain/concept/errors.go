package concept

import "errors"

var (
	// ErrNotFound is returned when a concept, description or relationship
	// does not exist in the store.
	ErrNotFound = errors.New("not found")

	// ErrNoDescriptions signals a concept with zero descriptions. This is a
	// data corruption condition, not a soft miss: callers must not
	// substitute an empty term.
	ErrNoDescriptions = errors.New("concept has no descriptions")

	// ErrRebuildInProgress is returned when a full closure rebuild is
	// already running.
	ErrRebuildInProgress = errors.New("closure rebuild already in progress")
)
