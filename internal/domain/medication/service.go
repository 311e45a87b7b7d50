package medication

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/clinterm/clinterm/internal/domain/search"
)

// PharmaceuticalProduct is the category concept medication names resolve
// under.
const PharmaceuticalProduct int64 = 373873005

// Resolver is the slice of the search service used to map a drug name to a
// concept.
type Resolver interface {
	SearchSingle(ctx context.Context, req search.Request) (*search.Result, error)
}

// Service parses prescribing instructions and resolves drug names against
// the terminology.
type Service struct {
	resolver Resolver
	logger   zerolog.Logger
}

func NewService(resolver Resolver, logger zerolog.Logger) *Service {
	return &Service{resolver: resolver, logger: logger}
}

// Parse parses the instruction and, when no concept id was supplied, looks
// the drug name up among descendants of the pharmaceutical product category.
// A name that resolves nowhere is not an error: the record is returned with
// the concept fields absent. A prefix of a real drug name resolves to the
// full concept.
func (s *Service) Parse(ctx context.Context, text string) (ParsedMedication, error) {
	m := Parse(text)
	if m.DrugName == "" {
		return m, nil
	}

	req := search.NewRequest(m.DrugName).
		WithRecursiveParents(PharmaceuticalProduct).
		OnlyActive().
		WithLimit(1)
	result, err := s.resolver.SearchSingle(ctx, req)
	if errors.Is(err, search.ErrNoMatch) || errors.Is(err, search.ErrBadQuery) {
		return m, nil
	}
	if err != nil {
		return m, err
	}

	m.ConceptID = result.ConceptID
	m.MappedName = result.PreferredTerm
	return m, nil
}
