package search

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"

	"github.com/clinterm/clinterm/internal/domain/concept"
)

// ConceptGraph is the slice of the concept service the indexer needs: concept
// lookup, the ancestor closure, direct parents, and preferred terms. The
// closure must be up to date before a reindex; rebuild order is relationships,
// then closure, then index.
type ConceptGraph interface {
	GetConcept(ctx context.Context, id int64) (*concept.Concept, error)
	Ancestors(ctx context.Context, conceptID int64) (map[int64]struct{}, error)
	DirectParents(ctx context.Context, conceptID, typeID int64) ([]int64, error)
	PreferredDescription(ctx context.Context, conceptID int64, tags []language.Tag) (*concept.Description, error)
}

// Service answers search queries against the published index generation and
// rebuilds the index from the live descriptions.
type Service struct {
	index        IndexRepository
	descriptions concept.DescriptionRepository
	graph        ConceptGraph
	logger       zerolog.Logger
	maxHits      int

	generation atomic.Int64
	reindexSF  singleflight.Group
	reindexing atomic.Bool
	progress   atomic.Pointer[ReindexProgress]
	filters    filterCache
}

// ReindexProgress reports the state of a running (or finished) full reindex.
type ReindexProgress struct {
	Generation int64         `json:"generation"`
	Processed  int           `json:"processed"`
	Skipped    int           `json:"skipped"`
	Total      int           `json:"total"`
	Elapsed    time.Duration `json:"elapsed"`
	Remaining  time.Duration `json:"remaining"`
}

func NewService(index IndexRepository, descriptions concept.DescriptionRepository, graph ConceptGraph, maxHits int, logger zerolog.Logger) *Service {
	if maxHits <= 0 {
		maxHits = 200
	}
	return &Service{
		index:        index,
		descriptions: descriptions,
		graph:        graph,
		logger:       logger,
		maxHits:      maxHits,
	}
}

// readyGeneration returns the generation queries should run against, loading
// it from the store on first use. Zero means the index was never published.
func (s *Service) readyGeneration(ctx context.Context) (int64, error) {
	if gen := s.generation.Load(); gen != 0 {
		return gen, nil
	}
	gen, err := s.index.ActiveGeneration(ctx)
	if err != nil {
		return 0, err
	}
	if gen != 0 {
		s.generation.Store(gen)
	}
	return gen, nil
}

// refreshGeneration re-reads the published generation from the store.
// Another process (the CLI rebuild, a second replica) can publish a fresh
// generation and retire ours at any moment; an empty result is the cheap
// point to notice. Reports whether the generation moved away from cached.
func (s *Service) refreshGeneration(ctx context.Context, cached int64) (int64, bool, error) {
	gen, err := s.index.ActiveGeneration(ctx)
	if err != nil {
		return 0, false, err
	}
	s.generation.Store(gen)
	if gen == 0 {
		return 0, false, ErrIndexUnavailable
	}
	return gen, gen != cached, nil
}

// PublishedGeneration reports the generation queries run against. Zero with
// a nil error means the index was never published.
func (s *Service) PublishedGeneration(ctx context.Context) (int64, error) {
	return s.readyGeneration(ctx)
}

// IndexSize reports how many documents the published generation holds, zero
// when the index was never published.
func (s *Service) IndexSize(ctx context.Context) (int, error) {
	gen, err := s.readyGeneration(ctx)
	if err != nil || gen == 0 {
		return 0, err
	}
	return s.index.Count(ctx, gen)
}

func (s *Service) prepare(ctx context.Context, req Request) (int64, Request, error) {
	if req.Empty() {
		return 0, req, ErrBadQuery
	}
	gen, err := s.readyGeneration(ctx)
	if err != nil {
		return 0, req, err
	}
	if gen == 0 {
		return 0, req, ErrIndexUnavailable
	}
	if req.Limit <= 0 || req.Limit > s.maxHits {
		req.Limit = s.maxHits
	}
	req.RecursiveParents = s.filters.normalize(req.RecursiveParents)
	req.DirectParents = s.filters.normalize(req.DirectParents)
	return gen, req, nil
}

// Search runs the request against the published index. A query with no
// matches returns an empty list, not an error. An empty result against a
// generation that was retired underneath us triggers one retry on the
// fresh one, so an external publish never disguises itself as no matches.
func (s *Service) Search(ctx context.Context, req Request) ([]*Result, error) {
	gen, req, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	results, err := s.index.Query(ctx, gen, req)
	if err != nil || len(results) > 0 {
		return results, err
	}

	fresh, moved, err := s.refreshGeneration(ctx, gen)
	if err != nil {
		return nil, err
	}
	if !moved {
		return results, nil
	}
	return s.index.Query(ctx, fresh, req)
}

// SearchSingle resolves free text to its single best description: an exact
// term match first, then a prefix match taking the hit with the shortest
// term. The shortest-term rule is a heuristic, not a ranking guarantee. Like
// Search, a miss re-checks the published generation once before reporting
// ErrNoMatch.
func (s *Service) SearchSingle(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrBadQuery
	}
	gen, req, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	req.Limit = 1
	res, err := s.singleOn(ctx, gen, req)
	if !errors.Is(err, ErrNoMatch) {
		return res, err
	}

	fresh, moved, ferr := s.refreshGeneration(ctx, gen)
	if ferr != nil {
		return nil, ferr
	}
	if !moved {
		return nil, err
	}
	return s.singleOn(ctx, fresh, req)
}

func (s *Service) singleOn(ctx context.Context, gen int64, req Request) (*Result, error) {
	exact, err := s.index.QueryExact(ctx, gen, req)
	if err != nil {
		return nil, err
	}
	if len(exact) > 0 {
		return exact[0], nil
	}

	prefix, err := s.index.QueryPrefix(ctx, gen, req)
	if err != nil {
		return nil, err
	}
	if len(prefix) == 0 {
		return nil, ErrNoMatch
	}
	return prefix[0], nil
}

// Reindexing reports whether a full reindex is currently running.
func (s *Service) Reindexing() bool { return s.reindexing.Load() }

// Progress returns the most recent reindex progress snapshot, or nil if no
// reindex has run.
func (s *Service) Progress() *ReindexProgress { return s.progress.Load() }

// ReindexAll rebuilds the whole index under a fresh generation and publishes
// it atomically once the pass completes; readers on the old generation are
// unaffected until the swap. Descriptions whose concept is missing are
// skipped with a warning. Concurrent callers share one running reindex.
func (s *Service) ReindexAll(ctx context.Context, batchSize int) (*ReindexProgress, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	result, err, _ := s.reindexSF.Do("reindex-all", func() (interface{}, error) {
		s.reindexing.Store(true)
		defer s.reindexing.Store(false)
		return s.reindexAll(ctx, batchSize)
	})
	if err != nil {
		return nil, err
	}
	return result.(*ReindexProgress), nil
}

func (s *Service) reindexAll(ctx context.Context, batchSize int) (*ReindexProgress, error) {
	active, err := s.index.ActiveGeneration(ctx)
	if err != nil {
		return nil, err
	}
	gen := active + 1

	total, err := s.descriptions.Count(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	progress := &ReindexProgress{Generation: gen, Total: total}
	var afterID int64

	fail := func(err error) (*ReindexProgress, error) {
		if dropErr := s.index.DropGeneration(context.WithoutCancel(ctx), gen); dropErr != nil {
			s.logger.Error().Err(dropErr).Int64("generation", gen).Msg("dropping abandoned index generation failed")
		}
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		descs, err := s.descriptions.After(ctx, afterID, batchSize)
		if err != nil {
			return fail(err)
		}
		if len(descs) == 0 {
			break
		}

		docs := make([]*Document, 0, len(descs))
		for _, d := range descs {
			doc, err := s.buildDocument(ctx, d)
			if errors.Is(err, concept.ErrNotFound) {
				progress.Skipped++
				s.logger.Warn().
					Int64("description_id", d.ID).
					Int64("concept_id", d.ConceptID).
					Msg("description references missing concept, skipping")
				continue
			}
			if err != nil {
				return fail(err)
			}
			docs = append(docs, doc)
		}
		if err := s.index.InsertDocuments(ctx, gen, docs); err != nil {
			return fail(err)
		}

		progress.Processed += len(descs)
		afterID = descs[len(descs)-1].ID

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
			Int64("generation", gen).
			Int("processed", progress.Processed).
			Int("skipped", progress.Skipped).
			Int("total", total).
			Dur("elapsed", progress.Elapsed).
			Dur("remaining", progress.Remaining).
			Msg("reindex progress")
	}

	if err := s.index.Publish(ctx, gen); err != nil {
		return fail(err)
	}
	s.generation.Store(gen)

	progress.Elapsed = time.Since(start)
	progress.Remaining = 0
	snapshot := *progress
	s.progress.Store(&snapshot)

	s.logger.Info().
		Int64("generation", gen).
		Int("processed", progress.Processed).
		Int("skipped", progress.Skipped).
		Dur("elapsed", progress.Elapsed).
		Msg("reindex complete, generation published")
	return progress, nil
}

func (s *Service) buildDocument(ctx context.Context, d *concept.Description) (*Document, error) {
	c, err := s.graph.GetConcept(ctx, d.ConceptID)
	if err != nil {
		return nil, err
	}

	ancestors, err := s.graph.Ancestors(ctx, d.ConceptID)
	if err != nil {
		return nil, err
	}
	ancestorIDs := make([]int64, 0, len(ancestors)+1)
	ancestorIDs = append(ancestorIDs, d.ConceptID)
	for id := range ancestors {
		if id != d.ConceptID {
			ancestorIDs = append(ancestorIDs, id)
		}
	}

	parents, err := s.graph.DirectParents(ctx, d.ConceptID, concept.IsA)
	if err != nil {
		return nil, err
	}

	preferredTerm := ""
	preferred, err := s.graph.PreferredDescription(ctx, d.ConceptID, nil)
	if err != nil && !errors.Is(err, concept.ErrNoDescriptions) {
		return nil, err
	}
	if preferred != nil {
		preferredTerm = preferred.Term
	}

	return &Document{
		DescriptionID:   d.ID,
		ConceptID:       d.ConceptID,
		Term:            d.Term,
		PreferredTerm:   preferredTerm,
		AncestorIDs:     ancestorIDs,
		DirectParentIDs: parents,
		LanguageCode:    d.LanguageCode,
		Status:          d.Status.String(),
		Active:          d.IsActive() && c.IsActive(),
		FSN:             d.IsFullySpecifiedName(),
	}, nil
}

// filterCache canonicalises concept-id filter sets so repeated queries over
// the same set reuse one sorted, de-duplicated slice.
type filterCache struct {
	mu   sync.Mutex
	sets map[string][]int64
}

func (fc *filterCache) normalize(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}

	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	deduped := sorted[:0]
	for i, id := range sorted {
		if i == 0 || id != sorted[i-1] {
			deduped = append(deduped, id)
		}
	}

	var key strings.Builder
	for i, id := range deduped {
		if i > 0 {
			key.WriteByte(',')
		}
		key.WriteString(strconv.FormatInt(id, 10))
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.sets == nil {
		fc.sets = make(map[string][]int64)
	}
	if cached, ok := fc.sets[key.String()]; ok {
		return cached
	}
	fc.sets[key.String()] = deduped
	return deduped
}
