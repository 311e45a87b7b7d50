// Package search provides hierarchical full-text retrieval over concept
// descriptions. Documents are written under a generation number; only the
// published generation is visible to readers, and a reindex swaps the
// published generation atomically.
package search

// Document is one indexed description. AncestorIDs holds the owning concept's
// transitive IS-A closure plus the concept's own id, so a descendant-of filter
// matches the ancestor concept itself as well.
type Document struct {
	DescriptionID   int64   `db:"description_id" json:"description_id"`
	ConceptID       int64   `db:"concept_id" json:"concept_id"`
	Term            string  `db:"term" json:"term"`
	PreferredTerm   string  `db:"preferred_term" json:"preferred_term"`
	AncestorIDs     []int64 `db:"ancestor_ids" json:"ancestor_ids"`
	DirectParentIDs []int64 `db:"direct_parent_ids" json:"direct_parent_ids"`
	LanguageCode    string  `db:"language_code" json:"language_code"`
	Status          string  `db:"status" json:"status"`
	Active          bool    `db:"active" json:"active"`
	FSN             bool    `db:"fsn" json:"fsn"`
}

// Result is one search hit. PreferredTerm falls back to the matched term when
// the owning concept had no preferred description at index time.
type Result struct {
	Term          string `json:"term"`
	ConceptID     int64  `json:"concept_id"`
	PreferredTerm string `json:"preferred_term"`
}

// Request accumulates search constraints. All constraints present are ANDed
// together. The zero value is a browse query matching every document; methods
// return a modified copy, so a Request can be shared and extended freely.
type Request struct {
	Query            string  `json:"query"`
	RecursiveParents []int64 `json:"recursive_parents,omitempty"`
	DirectParents    []int64 `json:"direct_parents,omitempty"`
	ActiveOnly       bool    `json:"active_only"`
	ExcludeFSN       bool    `json:"exclude_fsn"`
	Limit            int     `json:"limit"`
}

// NewRequest starts a request for the given free-text query. An empty query
// degenerates to a pure filter query with constant score.
func NewRequest(query string) Request {
	return Request{Query: query}
}

// WithRecursiveParents restricts hits to concepts that are one of the given
// ids or a descendant of at least one of them.
func (r Request) WithRecursiveParents(ids ...int64) Request {
	r.RecursiveParents = append(r.RecursiveParents[:len(r.RecursiveParents):len(r.RecursiveParents)], ids...)
	return r
}

// WithDirectParents restricts hits to concepts with at least one of the given
// ids as a direct IS-A parent.
func (r Request) WithDirectParents(ids ...int64) Request {
	r.DirectParents = append(r.DirectParents[:len(r.DirectParents):len(r.DirectParents)], ids...)
	return r
}

// OnlyActive restricts hits to descriptions with an active status.
func (r Request) OnlyActive() Request {
	r.ActiveOnly = true
	return r
}

// WithoutFullySpecifiedNames excludes fully-specified-name descriptions.
func (r Request) WithoutFullySpecifiedNames() Request {
	r.ExcludeFSN = true
	return r
}

// WithLimit caps the number of hits returned.
func (r Request) WithLimit(n int) Request {
	r.Limit = n
	return r
}

// Empty reports whether the request constrains nothing at all.
func (r Request) Empty() bool {
	return r.Query == "" && len(r.RecursiveParents) == 0 && len(r.DirectParents) == 0
}
