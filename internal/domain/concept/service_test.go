package concept

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/rs/zerolog"
)

var errTest = errors.New("boom")

// Test hierarchy, using real identifiers:
//
//	138875005 root
//	  404684003 clinical finding
//	    64572001 disease
//	      49601007 disorder of cardiovascular system
//	        22298006 myocardial infarction
//	        38341003 hypertension
//	  24700007 multiple sclerosis (unrelated branch for negative tests)
const (
	rootID    = int64(138875005)
	findingID = int64(404684003)
	diseaseID = int64(64572001)
	cvsID     = int64(49601007)
	miID      = int64(22298006)
	htnID     = int64(38341003)
	msID      = int64(24700007)
)

// -- Mock Repositories --

type mockConceptRepo struct {
	concepts map[int64]*Concept
}

func newMockConceptRepo(ids ...int64) *mockConceptRepo {
	m := &mockConceptRepo{concepts: make(map[int64]*Concept)}
	for _, id := range ids {
		m.concepts[id] = &Concept{ID: id, FullySpecifiedName: "Concept", Status: StatusCurrent}
	}
	return m
}

func (m *mockConceptRepo) Create(_ context.Context, c *Concept) error {
	m.concepts[c.ID] = c
	return nil
}

func (m *mockConceptRepo) GetByID(_ context.Context, id int64) (*Concept, error) {
	c, ok := m.concepts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *mockConceptRepo) List(_ context.Context, limit, offset int) ([]*Concept, int, error) {
	ids := m.sortedIDs()
	var result []*Concept
	for i := offset; i < len(ids) && len(result) < limit; i++ {
		result = append(result, m.concepts[ids[i]])
	}
	return result, len(ids), nil
}

func (m *mockConceptRepo) Count(_ context.Context) (int, error) {
	return len(m.concepts), nil
}

func (m *mockConceptRepo) IDsAfter(_ context.Context, afterID int64, limit int) ([]int64, error) {
	var ids []int64
	for _, id := range m.sortedIDs() {
		if id > afterID {
			ids = append(ids, id)
		}
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (m *mockConceptRepo) Exists(_ context.Context, id int64) (bool, error) {
	_, ok := m.concepts[id]
	return ok, nil
}

func (m *mockConceptRepo) sortedIDs() []int64 {
	ids := make([]int64, 0, len(m.concepts))
	for id := range m.concepts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type mockDescriptionRepo struct {
	descriptions map[int64]*Description
}

func newMockDescriptionRepo() *mockDescriptionRepo {
	return &mockDescriptionRepo{descriptions: make(map[int64]*Description)}
}

func (m *mockDescriptionRepo) Create(_ context.Context, d *Description) error {
	m.descriptions[d.ID] = d
	return nil
}

func (m *mockDescriptionRepo) GetByID(_ context.Context, id int64) (*Description, error) {
	d, ok := m.descriptions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (m *mockDescriptionRepo) ListByConcept(_ context.Context, conceptID int64) ([]*Description, error) {
	var result []*Description
	for _, d := range m.descriptions {
		if d.ConceptID == conceptID {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *mockDescriptionRepo) Count(_ context.Context) (int, error) {
	return len(m.descriptions), nil
}

func (m *mockDescriptionRepo) After(_ context.Context, afterID int64, limit int) ([]*Description, error) {
	ids := make([]int64, 0, len(m.descriptions))
	for id := range m.descriptions {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var result []*Description
	for _, id := range ids {
		result = append(result, m.descriptions[id])
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

type mockRelationshipRepo struct {
	relationships []*Relationship
}

func (m *mockRelationshipRepo) add(id, source, typeID, target int64) {
	m.relationships = append(m.relationships, &Relationship{ID: id, SourceID: source, TypeID: typeID, TargetID: target})
}

func (m *mockRelationshipRepo) Create(_ context.Context, r *Relationship) error {
	m.relationships = append(m.relationships, r)
	return nil
}

func (m *mockRelationshipRepo) GetByID(_ context.Context, id int64) (*Relationship, error) {
	for _, r := range m.relationships {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRelationshipRepo) ListBySource(_ context.Context, conceptID int64) ([]*Relationship, error) {
	var result []*Relationship
	for _, r := range m.relationships {
		if r.SourceID == conceptID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *mockRelationshipRepo) ListByTarget(_ context.Context, conceptID int64) ([]*Relationship, error) {
	var result []*Relationship
	for _, r := range m.relationships {
		if r.TargetID == conceptID {
			result = append(result, r)
		}
	}
	return result, nil
}

type mockClosureRepo struct {
	closure       map[int64]map[int64]struct{}
	readCalls     int
	containsCalls int
	failConcepts  map[int64]bool
}

func newMockClosureRepo() *mockClosureRepo {
	return &mockClosureRepo{
		closure:      make(map[int64]map[int64]struct{}),
		failConcepts: make(map[int64]bool),
	}
}

func (m *mockClosureRepo) AncestorIDs(_ context.Context, conceptID int64) ([]int64, error) {
	m.readCalls++
	var ids []int64
	for id := range m.closure[conceptID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *mockClosureRepo) Contains(_ context.Context, conceptID, ancestorID int64) (bool, error) {
	m.containsCalls++
	_, ok := m.closure[conceptID][ancestorID]
	return ok, nil
}

func (m *mockClosureRepo) ContainsAny(_ context.Context, conceptID int64, ancestorIDs []int64) (bool, error) {
	m.containsCalls++
	for _, ancestor := range ancestorIDs {
		if _, ok := m.closure[conceptID][ancestor]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockClosureRepo) Replace(_ context.Context, conceptID int64, ancestorIDs []int64) error {
	if m.failConcepts[conceptID] {
		return errTest
	}
	set := make(map[int64]struct{}, len(ancestorIDs))
	for _, id := range ancestorIDs {
		set[id] = struct{}{}
	}
	m.closure[conceptID] = set
	return nil
}

// -- Fixtures --

func newTestGraph() (*Service, *mockConceptRepo, *mockRelationshipRepo, *mockClosureRepo) {
	concepts := newMockConceptRepo(rootID, findingID, diseaseID, cvsID, miID, htnID, msID)
	rels := &mockRelationshipRepo{}
	rels.add(100022, findingID, IsA, rootID)
	rels.add(1000027, diseaseID, IsA, findingID)
	rels.add(2000029, cvsID, IsA, diseaseID)
	rels.add(3000022, miID, IsA, cvsID)
	rels.add(1234567021, htnID, IsA, cvsID)
	closure := newMockClosureRepo()
	svc := NewService(concepts, newMockDescriptionRepo(), rels, closure, zerolog.Nop())
	return svc, concepts, rels, closure
}

func sortedInt64(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// -- Tests --

func TestComputeAncestors(t *testing.T) {
	svc, _, _, _ := newTestGraph()

	got, err := svc.ComputeAncestors(context.Background(), miID)
	if err != nil {
		t.Fatalf("ComputeAncestors: %v", err)
	}

	want := []int64{diseaseID, cvsID, rootID, findingID}
	if len(got) != len(want) {
		t.Fatalf("got %d ancestors %v, want %d", len(got), got, len(want))
	}
	gotSorted := sortedInt64(got)
	wantSorted := sortedInt64(want)
	for i := range wantSorted {
		if gotSorted[i] != wantSorted[i] {
			t.Errorf("ancestors = %v, want %v", gotSorted, wantSorted)
			break
		}
	}
}

func TestComputeAncestors_CyclicDataTerminates(t *testing.T) {
	concepts := newMockConceptRepo(miID, htnID)
	rels := &mockRelationshipRepo{}
	// Malformed: mutual IS-A cycle.
	rels.add(100022, miID, IsA, htnID)
	rels.add(1000027, htnID, IsA, miID)
	svc := NewService(concepts, newMockDescriptionRepo(), rels, newMockClosureRepo(), zerolog.Nop())

	got, err := svc.ComputeAncestors(context.Background(), miID)
	if err != nil {
		t.Fatalf("ComputeAncestors on cyclic data: %v", err)
	}
	if len(got) != 1 || got[0] != htnID {
		t.Errorf("ancestors = %v, want just [%d]", got, htnID)
	}
}

func TestComputeAncestors_SkipsDanglingReference(t *testing.T) {
	concepts := newMockConceptRepo(miID, cvsID)
	rels := &mockRelationshipRepo{}
	rels.add(100022, miID, IsA, cvsID)
	rels.add(1000027, miID, IsA, 999999999) // target absent from store
	svc := NewService(concepts, newMockDescriptionRepo(), rels, newMockClosureRepo(), zerolog.Nop())

	got, err := svc.ComputeAncestors(context.Background(), miID)
	if err != nil {
		t.Fatalf("ComputeAncestors: %v", err)
	}
	if len(got) != 1 || got[0] != cvsID {
		t.Errorf("ancestors = %v, want just [%d]", got, cvsID)
	}
}

func TestDirectParents_FiltersByType(t *testing.T) {
	svc, _, rels, _ := newTestGraph()
	// A non-IS-A relationship must not appear among IS-A parents.
	rels.add(2000029, miID, 363698007, 80891009) // finding site

	parents, err := svc.DirectParents(context.Background(), miID, IsA)
	if err != nil {
		t.Fatalf("DirectParents: %v", err)
	}
	if len(parents) != 1 || parents[0] != cvsID {
		t.Errorf("parents = %v, want [%d]", parents, cvsID)
	}
}

func TestDirectChildren(t *testing.T) {
	svc, _, _, _ := newTestGraph()

	children, err := svc.DirectChildren(context.Background(), cvsID, IsA)
	if err != nil {
		t.Fatalf("DirectChildren: %v", err)
	}
	got := sortedInt64(children)
	want := sortedInt64([]int64{miID, htnID})
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("children = %v, want %v", got, want)
	}
}

func TestRebuildClosure_ThenIsDescendantOf(t *testing.T) {
	svc, _, _, _ := newTestGraph()
	ctx := context.Background()

	if err := svc.RebuildClosure(ctx, miID); err != nil {
		t.Fatalf("RebuildClosure: %v", err)
	}

	for _, ancestor := range []int64{cvsID, diseaseID, findingID, rootID} {
		ok, err := svc.IsDescendantOf(ctx, miID, ancestor)
		if err != nil {
			t.Fatalf("IsDescendantOf: %v", err)
		}
		if !ok {
			t.Errorf("IsDescendantOf(%d, %d) = false, want true", miID, ancestor)
		}
	}

	ok, err := svc.IsDescendantOf(ctx, miID, msID)
	if err != nil {
		t.Fatalf("IsDescendantOf: %v", err)
	}
	if ok {
		t.Errorf("IsDescendantOf(%d, %d) = true, want false for unrelated concept", miID, msID)
	}

	// Identity is always a descendant of itself.
	ok, err = svc.IsDescendantOf(ctx, miID, miID)
	if err != nil {
		t.Fatalf("IsDescendantOf: %v", err)
	}
	if !ok {
		t.Error("IsDescendantOf(x, x) = false, want true")
	}
}

func TestRebuildClosure_PicksUpNewEdge(t *testing.T) {
	svc, _, rels, _ := newTestGraph()
	ctx := context.Background()

	if err := svc.RebuildClosure(ctx, msID); err != nil {
		t.Fatalf("RebuildClosure: %v", err)
	}
	ok, _ := svc.IsDescendantOf(ctx, msID, findingID)
	if ok {
		t.Fatal("MS should not descend from clinical finding before the edge exists")
	}

	rels.add(2000029, msID, IsA, findingID)
	if err := svc.RebuildClosure(ctx, msID); err != nil {
		t.Fatalf("RebuildClosure: %v", err)
	}

	ok, err := svc.IsDescendantOf(ctx, msID, findingID)
	if err != nil {
		t.Fatalf("IsDescendantOf: %v", err)
	}
	if !ok {
		t.Error("new ancestor not reported after rebuild")
	}
	ok, _ = svc.IsDescendantOf(ctx, msID, rootID)
	if !ok {
		t.Error("transitive ancestor through new edge not reported after rebuild")
	}
}

func TestIsDescendantOfAny(t *testing.T) {
	svc, _, _, _ := newTestGraph()
	ctx := context.Background()

	if err := svc.RebuildClosure(ctx, miID); err != nil {
		t.Fatalf("RebuildClosure: %v", err)
	}

	ok, err := svc.IsDescendantOfAny(ctx, miID, []int64{msID, diseaseID})
	if err != nil {
		t.Fatalf("IsDescendantOfAny: %v", err)
	}
	if !ok {
		t.Error("expected true when one of the ancestors matches")
	}

	ok, err = svc.IsDescendantOfAny(ctx, miID, []int64{msID})
	if err != nil {
		t.Fatalf("IsDescendantOfAny: %v", err)
	}
	if ok {
		t.Error("expected false when no ancestor matches")
	}

	// Identity short-circuit.
	ok, _ = svc.IsDescendantOfAny(ctx, miID, []int64{miID})
	if !ok {
		t.Error("expected true when the set contains the concept itself")
	}
}

func TestIsDescendantOf_SingleLookupWithoutFullSet(t *testing.T) {
	svc, _, _, closure := newTestGraph()
	ctx := context.Background()

	if err := svc.RebuildClosure(ctx, miID); err != nil {
		t.Fatalf("RebuildClosure: %v", err)
	}

	// Nothing memoised yet: the check goes to the closure store as one
	// membership lookup, not a full ancestor-set read.
	ok, err := svc.IsDescendantOf(ctx, miID, cvsID)
	if err != nil {
		t.Fatalf("IsDescendantOf: %v", err)
	}
	if !ok {
		t.Fatalf("IsDescendantOf(%d, %d) = false, want true", miID, cvsID)
	}
	if closure.readCalls != 0 {
		t.Errorf("full ancestor set read %d times for a one-shot check, want 0", closure.readCalls)
	}
	if closure.containsCalls != 1 {
		t.Errorf("closure queried %d times, want 1", closure.containsCalls)
	}

	ok, err = svc.IsDescendantOfAny(ctx, miID, []int64{msID, diseaseID})
	if err != nil {
		t.Fatalf("IsDescendantOfAny: %v", err)
	}
	if !ok {
		t.Fatal("expected true when one of the ancestors matches")
	}
	if closure.readCalls != 0 {
		t.Errorf("full ancestor set read %d times, want 0", closure.readCalls)
	}

	// Once the set is memoised the checks answer from memory.
	if _, err := svc.Ancestors(ctx, miID); err != nil {
		t.Fatalf("Ancestors: %v", err)
	}
	closure.containsCalls = 0
	ok, err = svc.IsDescendantOf(ctx, miID, diseaseID)
	if err != nil {
		t.Fatalf("IsDescendantOf: %v", err)
	}
	if !ok {
		t.Errorf("IsDescendantOf(%d, %d) = false, want true", miID, diseaseID)
	}
	if closure.containsCalls != 0 {
		t.Errorf("closure queried %d times despite memoised set, want 0", closure.containsCalls)
	}
}

func TestAncestors_MemoisedSingleRead(t *testing.T) {
	svc, _, _, closure := newTestGraph()
	ctx := context.Background()

	if err := svc.RebuildClosure(ctx, miID); err != nil {
		t.Fatalf("RebuildClosure: %v", err)
	}
	closure.readCalls = 0

	if _, err := svc.Ancestors(ctx, miID); err != nil {
		t.Fatalf("Ancestors: %v", err)
	}
	if _, err := svc.Ancestors(ctx, miID); err != nil {
		t.Fatalf("Ancestors: %v", err)
	}
	if closure.readCalls != 1 {
		t.Errorf("closure read %d times, want 1 (memoised)", closure.readCalls)
	}

	svc.InvalidateAncestors(miID)
	if _, err := svc.Ancestors(ctx, miID); err != nil {
		t.Fatalf("Ancestors: %v", err)
	}
	if closure.readCalls != 2 {
		t.Errorf("closure read %d times after invalidate, want 2", closure.readCalls)
	}
}

func TestRebuildAll_SkipsFailures(t *testing.T) {
	svc, concepts, _, closure := newTestGraph()
	closure.failConcepts[htnID] = true

	progress, err := svc.RebuildAll(context.Background(), 2)
	if err != nil {
		t.Fatalf("RebuildAll: %v", err)
	}

	total := len(concepts.concepts)
	if progress.Processed != total {
		t.Errorf("Processed = %d, want %d", progress.Processed, total)
	}
	if progress.Failed != 1 {
		t.Errorf("Failed = %d, want 1", progress.Failed)
	}

	// The failing concept must not have stopped the rest of the corpus.
	if _, ok := closure.closure[miID]; !ok {
		t.Error("closure missing for concept after rebuild-all")
	}
	if _, ok := closure.closure[msID]; !ok {
		t.Error("closure missing for concept after rebuild-all")
	}
}

func TestRebuildAll_ReportsProgress(t *testing.T) {
	svc, _, _, _ := newTestGraph()

	if svc.Progress() != nil {
		t.Fatal("expected nil progress before any rebuild")
	}

	progress, err := svc.RebuildAll(context.Background(), 3)
	if err != nil {
		t.Fatalf("RebuildAll: %v", err)
	}
	if progress.Total != progress.Processed {
		t.Errorf("Total = %d, Processed = %d, want equal after completion", progress.Total, progress.Processed)
	}
	if progress.Remaining != 0 {
		t.Errorf("Remaining = %v after completion, want 0", progress.Remaining)
	}

	snapshot := svc.Progress()
	if snapshot == nil || snapshot.Processed != progress.Processed {
		t.Error("Progress() snapshot not updated after rebuild")
	}
}
