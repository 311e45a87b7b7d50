package concept

import "context"

// ConceptRepository defines the persistence interface for concepts.
type ConceptRepository interface {
	Create(ctx context.Context, c *Concept) error
	GetByID(ctx context.Context, id int64) (*Concept, error)
	List(ctx context.Context, limit, offset int) ([]*Concept, int, error)
	Count(ctx context.Context) (int, error)
	// IDsAfter returns up to limit concept ids greater than afterID in
	// ascending order, giving a stable batch iteration over the corpus.
	IDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error)
	Exists(ctx context.Context, id int64) (bool, error)
}

// DescriptionRepository defines the persistence interface for descriptions.
type DescriptionRepository interface {
	Create(ctx context.Context, d *Description) error
	GetByID(ctx context.Context, id int64) (*Description, error)
	ListByConcept(ctx context.Context, conceptID int64) ([]*Description, error)
	Count(ctx context.Context) (int, error)
	// After returns up to limit descriptions with ids greater than afterID
	// in ascending id order.
	After(ctx context.Context, afterID int64, limit int) ([]*Description, error)
}

// RelationshipRepository defines the persistence interface for relationships.
type RelationshipRepository interface {
	Create(ctx context.Context, r *Relationship) error
	GetByID(ctx context.Context, id int64) (*Relationship, error)
	// ListBySource returns relationships whose source is conceptID (the
	// concept's parent relationships).
	ListBySource(ctx context.Context, conceptID int64) ([]*Relationship, error)
	// ListByTarget returns relationships whose target is conceptID (the
	// concept's child relationships).
	ListByTarget(ctx context.Context, conceptID int64) ([]*Relationship, error)
}

// ClosureRepository persists the materialised IS-A transitive closure.
type ClosureRepository interface {
	AncestorIDs(ctx context.Context, conceptID int64) ([]int64, error)
	Contains(ctx context.Context, conceptID, ancestorID int64) (bool, error)
	ContainsAny(ctx context.Context, conceptID int64, ancestorIDs []int64) (bool, error)
	// Replace atomically swaps all closure rows for conceptID with the
	// given ancestor set (delete-then-insert in one transaction).
	Replace(ctx context.Context, conceptID int64, ancestorIDs []int64) error
}
