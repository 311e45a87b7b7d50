package search

import "errors"

var (
	// ErrIndexUnavailable means the search index has never been published or
	// could not be read. Callers must not treat it as an empty result.
	ErrIndexUnavailable = errors.New("search index unavailable")

	// ErrBadQuery means the request carries no usable text or filters.
	ErrBadQuery = errors.New("malformed search query")

	// ErrNoMatch is returned by single-best-match lookups that found nothing.
	ErrNoMatch = errors.New("no matching description")

	// ErrReindexInProgress rejects a rebuild request while one is running.
	ErrReindexInProgress = errors.New("index rebuild already in progress")
)
