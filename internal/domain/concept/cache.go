package concept

import "sync"

// AncestorSet memoises a concept's ancestor closure in memory. The zero
// value is ready to use. Concurrent first readers trigger the compute
// function at most once; Invalidate discards the value so the next read
// recomputes.
type AncestorSet struct {
	mu       sync.Mutex
	computed bool
	ids      map[int64]struct{}
}

// GetOrCompute returns the memoised ancestor set, computing it with fn on
// first access. The returned map must be treated as read-only.
func (a *AncestorSet) GetOrCompute(fn func() (map[int64]struct{}, error)) (map[int64]struct{}, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.computed {
		return a.ids, nil
	}
	ids, err := fn()
	if err != nil {
		return nil, err
	}
	a.ids = ids
	a.computed = true
	return ids, nil
}

// Cached returns the memoised set without computing, and whether one is
// held.
func (a *AncestorSet) Cached() (map[int64]struct{}, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ids, a.computed
}

// Invalidate discards the memoised value.
func (a *AncestorSet) Invalidate() {
	a.mu.Lock()
	a.computed = false
	a.ids = nil
	a.mu.Unlock()
}

// ancestorCache owns one AncestorSet per concept id.
type ancestorCache struct {
	mu   sync.Mutex
	sets map[int64]*AncestorSet
}

func newAncestorCache() *ancestorCache {
	return &ancestorCache{sets: make(map[int64]*AncestorSet)}
}

func (c *ancestorCache) forConcept(id int64) *AncestorSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.sets[id]
	if !ok {
		set = &AncestorSet{}
		c.sets[id] = set
	}
	return set
}

func (c *ancestorCache) invalidate(id int64) {
	c.mu.Lock()
	set, ok := c.sets[id]
	c.mu.Unlock()
	if ok {
		set.Invalidate()
	}
}

func (c *ancestorCache) invalidateAll() {
	c.mu.Lock()
	c.sets = make(map[int64]*AncestorSet)
	c.mu.Unlock()
}
