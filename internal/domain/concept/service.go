package concept

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
)

// Service answers hierarchy queries over the concept graph and keeps the
// materialised IS-A closure consistent with the live relationship edges.
type Service struct {
	concepts      ConceptRepository
	descriptions  DescriptionRepository
	relationships RelationshipRepository
	closure       ClosureRepository
	logger        zerolog.Logger

	cache      *ancestorCache
	rebuildSF  singleflight.Group
	rebuilding atomic.Bool
	progress   atomic.Pointer[RebuildProgress]
}

// RebuildProgress reports the state of a running (or finished) full closure
// rebuild.
type RebuildProgress struct {
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Total     int           `json:"total"`
	Elapsed   time.Duration `json:"elapsed"`
	Remaining time.Duration `json:"remaining"`
}

func NewService(concepts ConceptRepository, descriptions DescriptionRepository, relationships RelationshipRepository, closure ClosureRepository, logger zerolog.Logger) *Service {
	return &Service{
		concepts:      concepts,
		descriptions:  descriptions,
		relationships: relationships,
		closure:       closure,
		logger:        logger,
		cache:         newAncestorCache(),
	}
}

// GetConcept returns the concept with the given id.
func (s *Service) GetConcept(ctx context.Context, id int64) (*Concept, error) {
	return s.concepts.GetByID(ctx, id)
}

// ListConcepts pages through all concepts.
func (s *Service) ListConcepts(ctx context.Context, limit, offset int) ([]*Concept, int, error) {
	return s.concepts.List(ctx, limit, offset)
}

// GetDescription returns the description with the given id.
func (s *Service) GetDescription(ctx context.Context, id int64) (*Description, error) {
	return s.descriptions.GetByID(ctx, id)
}

// Descriptions returns all descriptions of a concept.
func (s *Service) Descriptions(ctx context.Context, conceptID int64) ([]*Description, error) {
	return s.descriptions.ListByConcept(ctx, conceptID)
}

// PreferredDescription resolves the preferred description of a concept for
// the requested languages. A concept with zero descriptions is a data error.
func (s *Service) PreferredDescription(ctx context.Context, conceptID int64, tags []language.Tag) (*Description, error) {
	descs, err := s.descriptions.ListByConcept(ctx, conceptID)
	if err != nil {
		return nil, err
	}
	return PreferredDescription(descs, tags)
}

// ParentRelationships returns relationships where the concept is the source.
func (s *Service) ParentRelationships(ctx context.Context, conceptID int64) ([]*Relationship, error) {
	return s.relationships.ListBySource(ctx, conceptID)
}

// ChildRelationships returns relationships where the concept is the target.
func (s *Service) ChildRelationships(ctx context.Context, conceptID int64) ([]*Relationship, error) {
	return s.relationships.ListByTarget(ctx, conceptID)
}

// DirectParents returns the distinct targets of the concept's relationships
// of the given type.
func (s *Service) DirectParents(ctx context.Context, conceptID, typeID int64) ([]int64, error) {
	rels, err := s.relationships.ListBySource(ctx, conceptID)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{})
	var parents []int64
	for _, rel := range rels {
		if rel.TypeID != typeID {
			continue
		}
		if _, ok := seen[rel.TargetID]; ok {
			continue
		}
		seen[rel.TargetID] = struct{}{}
		parents = append(parents, rel.TargetID)
	}
	return parents, nil
}

// DirectChildren returns the distinct sources of the concept's inbound
// relationships of the given type.
func (s *Service) DirectChildren(ctx context.Context, conceptID, typeID int64) ([]int64, error) {
	rels, err := s.relationships.ListByTarget(ctx, conceptID)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{})
	var children []int64
	for _, rel := range rels {
		if rel.TypeID != typeID {
			continue
		}
		if _, ok := seen[rel.SourceID]; ok {
			continue
		}
		seen[rel.SourceID] = struct{}{}
		children = append(children, rel.SourceID)
	}
	return children, nil
}

// ComputeAncestors walks the live IS-A edges outward from the concept's
// direct parents and returns the de-duplicated transitive set. A visited set
// guards against malformed cyclic data: an already-visited node stops that
// branch rather than failing the traversal. Relationships pointing at
// concepts absent from the store are skipped with a warning.
func (s *Service) ComputeAncestors(ctx context.Context, conceptID int64) ([]int64, error) {
	visited := map[int64]struct{}{conceptID: {}}
	queue := []int64{conceptID}
	var ancestors []int64

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		parents, err := s.DirectParents(ctx, current, IsA)
		if err != nil {
			return nil, err
		}
		for _, parent := range parents {
			if _, ok := visited[parent]; ok {
				continue
			}
			visited[parent] = struct{}{}

			exists, err := s.concepts.Exists(ctx, parent)
			if err != nil {
				return nil, err
			}
			if !exists {
				s.logger.Warn().
					Int64("concept_id", current).
					Int64("target_id", parent).
					Msg("relationship references missing concept, skipping")
				continue
			}

			ancestors = append(ancestors, parent)
			queue = append(queue, parent)
		}
	}
	return ancestors, nil
}

// Ancestors returns the concept's ancestor set from the persisted closure,
// memoised in memory after the first read.
func (s *Service) Ancestors(ctx context.Context, conceptID int64) (map[int64]struct{}, error) {
	return s.cache.forConcept(conceptID).GetOrCompute(func() (map[int64]struct{}, error) {
		ids, err := s.closure.AncestorIDs(ctx, conceptID)
		if err != nil {
			return nil, err
		}
		set := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		return set, nil
	})
}

// InvalidateAncestors discards the in-memory ancestor set for a concept.
func (s *Service) InvalidateAncestors(conceptID int64) {
	s.cache.invalidate(conceptID)
}

// IsDescendantOf reports whether conceptID is ancestorID or one of its
// descendants. A memoised ancestor set answers from memory; otherwise the
// check is a single closure-row lookup, never a full set read.
func (s *Service) IsDescendantOf(ctx context.Context, conceptID, ancestorID int64) (bool, error) {
	if conceptID == ancestorID {
		return true, nil
	}
	if set, ok := s.cache.forConcept(conceptID).Cached(); ok {
		_, found := set[ancestorID]
		return found, nil
	}
	return s.closure.Contains(ctx, conceptID, ancestorID)
}

// IsDescendantOfAny reports whether conceptID equals or descends from at
// least one of ancestorIDs.
func (s *Service) IsDescendantOfAny(ctx context.Context, conceptID int64, ancestorIDs []int64) (bool, error) {
	for _, ancestor := range ancestorIDs {
		if conceptID == ancestor {
			return true, nil
		}
	}
	if set, ok := s.cache.forConcept(conceptID).Cached(); ok {
		for _, ancestor := range ancestorIDs {
			if _, found := set[ancestor]; found {
				return true, nil
			}
		}
		return false, nil
	}
	return s.closure.ContainsAny(ctx, conceptID, ancestorIDs)
}

// RebuildClosure recomputes a single concept's ancestor set from the live
// graph and atomically replaces its persisted closure rows.
func (s *Service) RebuildClosure(ctx context.Context, conceptID int64) error {
	ancestors, err := s.ComputeAncestors(ctx, conceptID)
	if err != nil {
		return err
	}
	if err := s.closure.Replace(ctx, conceptID, ancestors); err != nil {
		return err
	}
	s.cache.invalidate(conceptID)
	return nil
}

// Rebuilding reports whether a full closure rebuild is currently running.
func (s *Service) Rebuilding() bool { return s.rebuilding.Load() }

// Progress returns the most recent full-rebuild progress snapshot, or nil if
// no rebuild has run.
func (s *Service) Progress() *RebuildProgress { return s.progress.Load() }

// RebuildAll recomputes the closure for every concept in stable id-ordered
// batches. Per-concept failures are logged and skipped; the pass never
// aborts on one concept. Concurrent callers share a single running rebuild.
func (s *Service) RebuildAll(ctx context.Context, batchSize int) (*RebuildProgress, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	result, err, _ := s.rebuildSF.Do("rebuild-all", func() (interface{}, error) {
		s.rebuilding.Store(true)
		defer s.rebuilding.Store(false)
		return s.rebuildAll(ctx, batchSize)
	})
	if err != nil {
		return nil, err
	}
	return result.(*RebuildProgress), nil
}

func (s *Service) rebuildAll(ctx context.Context, batchSize int) (*RebuildProgress, error) {
	total, err := s.concepts.Count(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	progress := &RebuildProgress{Total: total}
	var afterID int64

	for {
		if err := ctx.Err(); err != nil {
			return progress, err
		}

		ids, err := s.concepts.IDsAfter(ctx, afterID, batchSize)
		if err != nil {
			return progress, err
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			if err := s.RebuildClosure(ctx, id); err != nil {
				progress.Failed++
				s.logger.Error().Err(err).Int64("concept_id", id).Msg("closure rebuild failed, continuing")
			}
			progress.Processed++
		}
		afterID = ids[len(ids)-1]

		elapsed := time.Since(start)
		progress.Elapsed = elapsed
		if progress.Processed > 0 && progress.Processed < total {
			perItem := elapsed / time.Duration(progress.Processed)
			progress.Remaining = perItem * time.Duration(total-progress.Processed)
		} else {
			progress.Remaining = 0
		}
		snapshot := *progress
		s.progress.Store(&snapshot)

		s.logger.Info().
			Int("processed", progress.Processed).
			Int("failed", progress.Failed).
			Int("total", total).
			Dur("elapsed", progress.Elapsed).
			Dur("remaining", progress.Remaining).
			Msg("closure rebuild progress")
	}

	progress.Elapsed = time.Since(start)
	progress.Remaining = 0
	snapshot := *progress
	s.progress.Store(&snapshot)

	s.logger.Info().
		Int("processed", progress.Processed).
		Int("failed", progress.Failed).
		Dur("elapsed", progress.Elapsed).
		Msg("closure rebuild complete")
	return progress, nil
}
