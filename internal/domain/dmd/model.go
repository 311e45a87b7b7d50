// Package dmd navigates the drug product lattice: the six layered product
// tiers (trade family, actual/virtual products and packs, virtual therapeutic
// moiety) connected over the concept graph by IS-A and the dm+d attribute
// relationships.
package dmd

import (
	"errors"
	"strings"
)

// Tier is a product abstraction level in the dm+d lattice.
type Tier int

const (
	TierUnknown Tier = iota
	VTM              // virtual therapeutic moiety
	VMP              // virtual medicinal product
	VMPP             // virtual medicinal product pack
	AMP              // actual medicinal product
	AMPP             // actual medicinal product pack
	TF               // trade family
)

// Base concepts for each tier: a product belongs to a tier iff it descends
// from the tier's base concept.
const (
	BaseVTM  int64 = 10363701000001104
	BaseVMP  int64 = 10363801000001108
	BaseVMPP int64 = 8653601000001108
	BaseAMP  int64 = 10363901000001102
	BaseAMPP int64 = 10364001000001104
	BaseTF   int64 = 9191801000001103
)

// dm+d attribute relationship types.
const (
	HasVMP int64 = 10362601000001103
	HasAMP int64 = 10362701000001108
	HasVTM int64 = 10362801000001104
)

var tierBases = map[Tier]int64{
	VTM:  BaseVTM,
	VMP:  BaseVMP,
	VMPP: BaseVMPP,
	AMP:  BaseAMP,
	AMPP: BaseAMPP,
	TF:   BaseTF,
}

// Tiers lists the lattice tiers most specific first. An actual product is
// transitively a descendant of the virtual bases too, so classification must
// test the actual tiers before the virtual ones.
var Tiers = []Tier{AMPP, AMP, VMPP, VMP, TF, VTM}

// Base is the tier's base concept id, 0 for TierUnknown.
func (t Tier) Base() int64 { return tierBases[t] }

func (t Tier) String() string {
	switch t {
	case VTM:
		return "VTM"
	case VMP:
		return "VMP"
	case VMPP:
		return "VMPP"
	case AMP:
		return "AMP"
	case AMPP:
		return "AMPP"
	case TF:
		return "TF"
	}
	return "unknown"
}

// ErrUnknownTier means a tier name did not parse or a concept matched no tier.
var ErrUnknownTier = errors.New("unknown product tier")

// ErrNoPath means the lattice has no direct navigation between two tiers.
var ErrNoPath = errors.New("no navigation between tiers")

// ParseTier reads a tier name, case-insensitively.
func ParseTier(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "VTM":
		return VTM, nil
	case "VMP":
		return VMP, nil
	case "VMPP":
		return VMPP, nil
	case "AMP":
		return AMP, nil
	case "AMPP":
		return AMPP, nil
	case "TF":
		return TF, nil
	}
	return TierUnknown, ErrUnknownTier
}

// Product is one concept tagged with its lattice tier. All six tiers share
// this one shape; tier-specific behaviour dispatches on the tag.
type Product struct {
	Tier      Tier  `json:"tier"`
	ConceptID int64 `json:"concept_id"`
}

// Equal reports whether two products name the same concept at the same tier.
func (p Product) Equal(o Product) bool {
	return p.Tier == o.Tier && p.ConceptID == o.ConceptID
}
