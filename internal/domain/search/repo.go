package search

import "context"

// IndexRepository is the generation-addressed document store backing the
// search service. Writers build a fresh generation, then Publish swaps it in
// and retires everything else in one transaction.
type IndexRepository interface {
	// ActiveGeneration returns the published generation, 0 if none ever was.
	ActiveGeneration(ctx context.Context) (int64, error)

	// InsertDocuments bulk-writes documents under an unpublished generation.
	InsertDocuments(ctx context.Context, generation int64, docs []*Document) error

	// Publish makes generation the readable one and deletes all other
	// generations' documents atomically.
	Publish(ctx context.Context, generation int64) error

	// DropGeneration discards an abandoned build.
	DropGeneration(ctx context.Context, generation int64) error

	// Count returns the number of documents in a generation.
	Count(ctx context.Context, generation int64) (int, error)

	// Query runs default-AND full-text matching over the request, ordered by
	// rank. An empty request query matches every document passing the filters.
	Query(ctx context.Context, generation int64, req Request) ([]*Result, error)

	// QueryPrefix matches each query token as a prefix, ordered by ascending
	// term length then rank. Used as the single-best-match fallback.
	QueryPrefix(ctx context.Context, generation int64, req Request) ([]*Result, error)

	// QueryExact matches the whole query string against terms, ignoring case.
	QueryExact(ctx context.Context, generation int64, req Request) ([]*Result, error)
}
