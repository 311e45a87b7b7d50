package dmd

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/clinterm/clinterm/internal/domain/concept"
)

// Graph is the slice of the concept service the lattice reads: direct edges
// by relationship type and closure membership.
type Graph interface {
	DirectParents(ctx context.Context, conceptID, typeID int64) ([]int64, error)
	DirectChildren(ctx context.Context, conceptID, typeID int64) ([]int64, error)
	IsDescendantOf(ctx context.Context, conceptID, ancestorID int64) (bool, error)
}

// Service answers read-only queries over the product lattice. It holds no
// state of its own; everything derives from the concept graph and closure.
type Service struct {
	graph  Graph
	logger zerolog.Logger
}

func NewService(graph Graph, logger zerolog.Logger) *Service {
	return &Service{graph: graph, logger: logger}
}

// Valid reports whether the product's concept really belongs to its tier,
// i.e. descends from the tier's base concept.
func (s *Service) Valid(ctx context.Context, p Product) (bool, error) {
	base := p.Tier.Base()
	if base == 0 {
		return false, ErrUnknownTier
	}
	return s.graph.IsDescendantOf(ctx, p.ConceptID, base)
}

// TierOf finds which lattice tier a concept belongs to. The base concepts
// themselves belong to their own tier.
func (s *Service) TierOf(ctx context.Context, conceptID int64) (Tier, error) {
	for _, tier := range Tiers {
		ok, err := s.graph.IsDescendantOf(ctx, conceptID, tier.Base())
		if err != nil {
			return TierUnknown, err
		}
		if ok {
			return tier, nil
		}
	}
	return TierUnknown, ErrUnknownTier
}

// navStep is one direct hop between tiers: follow edges of one relationship
// type in one direction, optionally keeping only concepts valid at the
// destination tier. The tier-filter matters for IS-A hops, where siblings of
// other tiers share the same edge type.
type navStep struct {
	typeID     int64
	toParents  bool
	filterTier bool
}

var navSteps = map[Tier]map[Tier]navStep{
	VTM: {
		VMP: {typeID: HasVTM, toParents: false},
	},
	VMP: {
		VTM:  {typeID: HasVTM, toParents: true},
		AMP:  {typeID: concept.IsA, toParents: false, filterTier: true},
		VMPP: {typeID: HasVMP, toParents: false},
	},
	VMPP: {
		VMP:  {typeID: HasVMP, toParents: true},
		AMPP: {typeID: concept.IsA, toParents: false, filterTier: true},
	},
	AMP: {
		VMP:  {typeID: concept.IsA, toParents: true, filterTier: true},
		TF:   {typeID: concept.IsA, toParents: true, filterTier: true},
		AMPP: {typeID: HasAMP, toParents: false},
	},
	AMPP: {
		AMP:  {typeID: HasAMP, toParents: true},
		VMPP: {typeID: concept.IsA, toParents: true, filterTier: true},
	},
	TF: {
		AMP: {typeID: concept.IsA, toParents: false, filterTier: true},
	},
}

// Navigate returns the products one hop away from p at the target tier.
// Unsupported tier pairs return ErrNoPath.
func (s *Service) Navigate(ctx context.Context, p Product, target Tier) ([]Product, error) {
	step, ok := navSteps[p.Tier][target]
	if !ok {
		return nil, ErrNoPath
	}

	var ids []int64
	var err error
	if step.toParents {
		ids, err = s.graph.DirectParents(ctx, p.ConceptID, step.typeID)
	} else {
		ids, err = s.graph.DirectChildren(ctx, p.ConceptID, step.typeID)
	}
	if err != nil {
		return nil, err
	}

	products := make([]Product, 0, len(ids))
	for _, id := range ids {
		if step.filterTier {
			ok, err := s.graph.IsDescendantOf(ctx, id, target.Base())
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		products = append(products, Product{Tier: target, ConceptID: id})
	}
	return products, nil
}
