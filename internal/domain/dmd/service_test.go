package dmd

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clinterm/clinterm/internal/domain/concept"
)

// Small amlodipine-shaped lattice: one product at each tier, plus a second
// virtual product under the same moiety.
const (
	vtmID      = int64(108537001)
	vmpID      = int64(322236009)
	otherVMPID = int64(90332006)
	ampID      = int64(38341003)
	vmppID     = int64(387517004)
	amppID     = int64(386864001)
	tfID       = int64(84114007)
)

type edge struct {
	source, typeID, target int64
}

type mockGraph struct {
	edges     []edge
	ancestors map[int64][]int64
}

func (m *mockGraph) DirectParents(_ context.Context, conceptID, typeID int64) ([]int64, error) {
	var out []int64
	for _, e := range m.edges {
		if e.source == conceptID && e.typeID == typeID {
			out = append(out, e.target)
		}
	}
	return out, nil
}

func (m *mockGraph) DirectChildren(_ context.Context, conceptID, typeID int64) ([]int64, error) {
	var out []int64
	for _, e := range m.edges {
		if e.target == conceptID && e.typeID == typeID {
			out = append(out, e.source)
		}
	}
	return out, nil
}

func (m *mockGraph) IsDescendantOf(_ context.Context, conceptID, ancestorID int64) (bool, error) {
	if conceptID == ancestorID {
		return true, nil
	}
	for _, id := range m.ancestors[conceptID] {
		if id == ancestorID {
			return true, nil
		}
	}
	return false, nil
}

func newTestLattice() *Service {
	graph := &mockGraph{
		edges: []edge{
			{vmpID, HasVTM, vtmID},
			{otherVMPID, HasVTM, vtmID},
			{otherVMPID, concept.IsA, vmpID}, // sibling tier under IS-A, must be filtered
			{ampID, concept.IsA, vmpID},
			{ampID, concept.IsA, tfID},
			{vmppID, HasVMP, vmpID},
			{amppID, HasAMP, ampID},
			{amppID, concept.IsA, vmppID},
		},
		ancestors: map[int64][]int64{
			vtmID:      {BaseVTM},
			vmpID:      {BaseVMP, vtmID, BaseVTM},
			otherVMPID: {BaseVMP, vtmID, BaseVTM},
			ampID:      {BaseAMP, vmpID, tfID, BaseVMP, BaseTF, BaseVTM},
			vmppID:     {BaseVMPP, vmpID, BaseVMP},
			amppID:     {BaseAMPP, vmppID, ampID, BaseVMPP, BaseAMP},
			tfID:       {BaseTF},
		},
	}
	return NewService(graph, zerolog.Nop())
}

func conceptIDs(products []Product) []int64 {
	ids := make([]int64, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ConceptID)
	}
	return ids
}

func TestValid(t *testing.T) {
	svc := newTestLattice()
	ctx := context.Background()

	ok, err := svc.Valid(ctx, Product{Tier: VMP, ConceptID: vmpID})
	if err != nil || !ok {
		t.Errorf("Valid(VMP, vmp) = %v, %v, want true", ok, err)
	}

	ok, err = svc.Valid(ctx, Product{Tier: AMP, ConceptID: vmpID})
	if err != nil || ok {
		t.Errorf("Valid(AMP, vmp) = %v, %v, want false for the wrong tier", ok, err)
	}

	if _, err := svc.Valid(ctx, Product{Tier: TierUnknown, ConceptID: vmpID}); !errors.Is(err, ErrUnknownTier) {
		t.Errorf("err = %v, want ErrUnknownTier", err)
	}
}

func TestTierOf(t *testing.T) {
	svc := newTestLattice()
	ctx := context.Background()

	tests := map[int64]Tier{
		vtmID:  VTM,
		vmpID:  VMP,
		ampID:  AMP,
		vmppID: VMPP,
		amppID: AMPP,
		tfID:   TF,
	}
	for id, want := range tests {
		tier, err := svc.TierOf(ctx, id)
		if err != nil {
			t.Errorf("TierOf(%d): %v", id, err)
			continue
		}
		if tier != want {
			t.Errorf("TierOf(%d) = %v, want %v", id, tier, want)
		}
	}

	if _, err := svc.TierOf(ctx, 24700007); !errors.Is(err, ErrUnknownTier) {
		t.Errorf("TierOf on a non-product concept = %v, want ErrUnknownTier", err)
	}
}

func TestNavigate_AttributeHops(t *testing.T) {
	svc := newTestLattice()
	ctx := context.Background()

	vmps, err := svc.Navigate(ctx, Product{Tier: VTM, ConceptID: vtmID}, VMP)
	if err != nil {
		t.Fatalf("Navigate VTM->VMP: %v", err)
	}
	if len(vmps) != 2 {
		t.Errorf("VTM has %d VMPs %v, want 2", len(vmps), conceptIDs(vmps))
	}

	vtms, err := svc.Navigate(ctx, Product{Tier: VMP, ConceptID: vmpID}, VTM)
	if err != nil {
		t.Fatalf("Navigate VMP->VTM: %v", err)
	}
	if len(vtms) != 1 || vtms[0].ConceptID != vtmID {
		t.Errorf("VMP's VTMs = %v, want [%d]", conceptIDs(vtms), vtmID)
	}

	packs, err := svc.Navigate(ctx, Product{Tier: VMP, ConceptID: vmpID}, VMPP)
	if err != nil {
		t.Fatalf("Navigate VMP->VMPP: %v", err)
	}
	if len(packs) != 1 || packs[0].ConceptID != vmppID {
		t.Errorf("VMP's packs = %v, want [%d]", conceptIDs(packs), vmppID)
	}

	amps, err := svc.Navigate(ctx, Product{Tier: AMPP, ConceptID: amppID}, AMP)
	if err != nil {
		t.Fatalf("Navigate AMPP->AMP: %v", err)
	}
	if len(amps) != 1 || amps[0].ConceptID != ampID {
		t.Errorf("AMPP's AMPs = %v, want [%d]", conceptIDs(amps), ampID)
	}
}

func TestNavigate_ISAHopsFilterByTier(t *testing.T) {
	svc := newTestLattice()
	ctx := context.Background()

	// The VMP's IS-A children include another VMP; only the AMP qualifies.
	amps, err := svc.Navigate(ctx, Product{Tier: VMP, ConceptID: vmpID}, AMP)
	if err != nil {
		t.Fatalf("Navigate VMP->AMP: %v", err)
	}
	if len(amps) != 1 || amps[0].ConceptID != ampID {
		t.Errorf("VMP's AMPs = %v, want just [%d]", conceptIDs(amps), ampID)
	}

	// The AMP's IS-A parents are a VMP and a TF; each hop picks its own.
	vmps, err := svc.Navigate(ctx, Product{Tier: AMP, ConceptID: ampID}, VMP)
	if err != nil {
		t.Fatalf("Navigate AMP->VMP: %v", err)
	}
	if len(vmps) != 1 || vmps[0].ConceptID != vmpID {
		t.Errorf("AMP's VMPs = %v, want [%d]", conceptIDs(vmps), vmpID)
	}

	tfs, err := svc.Navigate(ctx, Product{Tier: AMP, ConceptID: ampID}, TF)
	if err != nil {
		t.Fatalf("Navigate AMP->TF: %v", err)
	}
	if len(tfs) != 1 || tfs[0].ConceptID != tfID {
		t.Errorf("AMP's TFs = %v, want [%d]", conceptIDs(tfs), tfID)
	}
}

func TestNavigate_NoPath(t *testing.T) {
	svc := newTestLattice()

	_, err := svc.Navigate(context.Background(), Product{Tier: VTM, ConceptID: vtmID}, AMPP)
	if !errors.Is(err, ErrNoPath) {
		t.Errorf("err = %v, want ErrNoPath for VTM->AMPP", err)
	}
}

func TestParseTier(t *testing.T) {
	for _, name := range []string{"vmp", "VMP", " Vmp "} {
		tier, err := ParseTier(name)
		if err != nil || tier != VMP {
			t.Errorf("ParseTier(%q) = %v, %v, want VMP", name, tier, err)
		}
	}
	if _, err := ParseTier("nope"); !errors.Is(err, ErrUnknownTier) {
		t.Errorf("err = %v, want ErrUnknownTier", err)
	}
}
