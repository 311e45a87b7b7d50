// Package concept holds the terminology concept graph: concepts, their
// descriptions, typed relationships between them, and the materialised IS-A
// ancestor closure.
package concept

import (
	"golang.org/x/text/language"

	"github.com/clinterm/clinterm/internal/domain/identifier"
)

// IsA is the distinguished relationship type used for the hierarchy.
const IsA int64 = 116680003

// RootConcept is the top of the hierarchy.
const RootConcept int64 = 138875005

// Status is the lifecycle status of a concept or description.
type Status int

const (
	StatusCurrent Status = iota
	StatusRetired
	StatusDuplicate
	StatusOutdated
	StatusAmbiguous
	StatusErroneous
	StatusLimited
	StatusMovedElsewhere
	StatusPendingMove
)

// IsActive reports whether the status counts as in active use.
func (s Status) IsActive() bool {
	switch s {
	case StatusCurrent, StatusLimited, StatusPendingMove:
		return true
	}
	return false
}

func (s Status) String() string {
	switch s {
	case StatusCurrent:
		return "Current"
	case StatusRetired:
		return "Retired"
	case StatusDuplicate:
		return "Duplicate"
	case StatusOutdated:
		return "Outdated"
	case StatusAmbiguous:
		return "Ambiguous"
	case StatusErroneous:
		return "Erroneous"
	case StatusLimited:
		return "Limited"
	case StatusMovedElsewhere:
		return "Moved elsewhere"
	case StatusPendingMove:
		return "Pending move"
	}
	return "Unknown"
}

// DescriptionType classifies a description's role for its concept.
type DescriptionType int

const (
	DescriptionUnspecified DescriptionType = iota
	DescriptionPreferred
	DescriptionSynonym
	DescriptionFullySpecifiedName
)

// Concept is a coded clinical meaning.
type Concept struct {
	ID                 int64  `db:"concept_id" json:"concept_id"`
	FullySpecifiedName string `db:"fully_specified_name" json:"fully_specified_name"`
	Status             Status `db:"status_code" json:"status_code"`
	Primitive          bool   `db:"is_primitive" json:"is_primitive"`
	CTV3ID             string `db:"ctv3_id" json:"ctv3_id,omitempty"`
	SnomedID           string `db:"snomed_id" json:"snomed_id,omitempty"`
}

// IsActive reports whether the concept is in active use.
func (c *Concept) IsActive() bool { return c.Status.IsActive() }

// ValidateID checks the concept id's checksum and partition.
func (c *Concept) ValidateID() error {
	return identifier.ValidateAs(c.ID, identifier.TypeConcept)
}

// Description is a human-readable term naming a concept.
type Description struct {
	ID           int64           `db:"description_id" json:"description_id"`
	ConceptID    int64           `db:"concept_id" json:"concept_id"`
	Term         string          `db:"term" json:"term"`
	LanguageCode string          `db:"language_code" json:"language_code"`
	Type         DescriptionType `db:"description_type" json:"description_type"`
	Status       Status          `db:"status_code" json:"status_code"`
}

// IsActive reports whether the description is in active use.
func (d *Description) IsActive() bool { return d.Status.IsActive() }

// IsFullySpecifiedName reports whether the description is an FSN.
func (d *Description) IsFullySpecifiedName() bool {
	return d.Type == DescriptionFullySpecifiedName
}

// ValidateID checks the description id's checksum and partition.
func (d *Description) ValidateID() error {
	return identifier.ValidateAs(d.ID, identifier.TypeDescription)
}

// LanguageTag parses the description's language code, defaulting to English
// when the code is absent or malformed.
func (d *Description) LanguageTag() language.Tag {
	tag, err := language.Parse(d.LanguageCode)
	if err != nil {
		return language.English
	}
	return tag
}

// Relationship is a typed, directed edge between two concepts.
type Relationship struct {
	ID                 int64 `db:"relationship_id" json:"relationship_id"`
	SourceID           int64 `db:"source_concept_id" json:"source_concept_id"`
	TypeID             int64 `db:"relationship_type_id" json:"relationship_type_id"`
	TargetID           int64 `db:"target_concept_id" json:"target_concept_id"`
	CharacteristicType int   `db:"characteristic_type" json:"characteristic_type"`
	Refinability       int   `db:"refinability" json:"refinability"`
	Group              int   `db:"relationship_group" json:"relationship_group"`
}

// ValidateID checks the relationship id's checksum and partition.
func (r *Relationship) ValidateID() error {
	return identifier.ValidateAs(r.ID, identifier.TypeRelationship)
}

// PreferredDescription picks the best description for a concept: an active
// preferred term in a matching language, falling back through synonym, then
// fully specified name, then any description at all. The caller supplies
// descriptions belonging to one concept; an empty slice is a data error.
func PreferredDescription(descs []*Description, tags []language.Tag) (*Description, error) {
	if len(descs) == 0 {
		return nil, ErrNoDescriptions
	}
	if len(tags) == 0 {
		tags = []language.Tag{language.English}
	}
	matcher := language.NewMatcher(tags)

	byType := func(dt DescriptionType) *Description {
		var fallback *Description
		for _, d := range descs {
			if d.Type != dt || !d.IsActive() {
				continue
			}
			if fallback == nil {
				fallback = d
			}
			if _, _, conf := matcher.Match(d.LanguageTag()); conf >= language.High {
				return d
			}
		}
		return fallback
	}

	for _, dt := range []DescriptionType{DescriptionPreferred, DescriptionSynonym, DescriptionFullySpecifiedName} {
		if d := byType(dt); d != nil {
			return d, nil
		}
	}
	return descs[0], nil
}
