// Package medication parses free-text prescribing instructions into
// structured, clinically comparable records.
package medication

import (
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// doseScale is the fixed precision for equivalent-daily-dose arithmetic.
const doseScale = 4

// ParsedMedication is the structured reading of one prescribing instruction.
// It is a value: construct it through Parse (or a Service) and never mutate
// it afterwards. Unrecognised fields stay absent; only DrugName is always
// populated (possibly empty).
type ParsedMedication struct {
	DrugName   string          `json:"drug_name"`
	ConceptID  int64           `json:"concept_id,omitempty"`
	MappedName string          `json:"mapped_name,omitempty"`
	Dose       decimal.Decimal `json:"dose,omitempty"`
	HasDose    bool            `json:"has_dose"`
	Units      Unit            `json:"units,omitempty"`
	Frequency  Frequency       `json:"frequency,omitempty"`
	HasFreq    bool            `json:"has_frequency"`
	Route      Route           `json:"route"`
	HasRoute   bool            `json:"has_route"`
	AsRequired bool            `json:"as_required"`
	Notes      string          `json:"notes,omitempty"`
}

// EffectiveRoute is the parsed route, defaulting to oral when no route token
// was present.
func (m ParsedMedication) EffectiveRoute() Route {
	if !m.HasRoute {
		return RouteOral
	}
	return m.Route
}

// EquivalentDailyDose normalises the dose to a canonical per-day quantity:
// dose, times the unit's conversion factor, times the frequency's daily
// ratio, ceiling-rounded at four decimal places. The second return is false
// when either the dose or the frequency is absent.
func (m ParsedMedication) EquivalentDailyDose() (decimal.Decimal, bool) {
	if !m.HasDose || !m.HasFreq {
		return decimal.Decimal{}, false
	}
	return m.Frequency.DailyMultiplier(m.Dose.Mul(m.Units.ConversionFactor())), true
}

// Equal is the clinical-equivalence contract: same drug (resolved concept id,
// or failing that the case-insensitive name), same as-required flag, same
// frequency, same route, and equivalent doses. Doses compare by equivalent
// daily dose when both sides can compute one; otherwise the raw dose and unit
// must match exactly, with an absent dose equal only to an absent dose.
func (m ParsedMedication) Equal(o ParsedMedication) bool {
	sameDrug := m.ConceptID != 0 && m.ConceptID == o.ConceptID ||
		strings.EqualFold(m.DrugName, o.DrugName)
	if !sameDrug {
		return false
	}
	if m.AsRequired != o.AsRequired {
		return false
	}
	if m.HasFreq != o.HasFreq || m.Frequency != o.Frequency {
		return false
	}
	if m.EffectiveRoute() != o.EffectiveRoute() {
		return false
	}

	mDaily, mOK := m.EquivalentDailyDose()
	oDaily, oOK := o.EquivalentDailyDose()
	if mOK && oOK {
		return mDaily.Equal(oDaily)
	}
	if m.HasDose != o.HasDose {
		return false
	}
	if !m.HasDose {
		return true
	}
	return m.Dose.Equal(o.Dose) && m.Units == o.Units
}

// Hash folds the fields Equal compares. Records equal under Equal hash equal
// when both carry a mapped name or neither does; a resolved record can still
// compare equal to an unresolved one whose raw name case-folds to the same
// string, and those two may hash apart. The result is never zero for
// ordinary input.
func (m ParsedMedication) Hash() uint64 {
	h := fnv.New64a()
	name := m.MappedName
	if name == "" {
		name = m.DrugName
	}
	h.Write([]byte(strings.ToLower(name)))
	if m.AsRequired {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	h.Write([]byte(strconv.Itoa(int(m.Frequency))))
	h.Write([]byte(strconv.Itoa(int(m.EffectiveRoute()))))

	if daily, ok := m.EquivalentDailyDose(); ok {
		h.Write([]byte(daily.StringFixed(doseScale)))
	} else if m.HasDose {
		h.Write([]byte(m.Dose.StringFixed(doseScale)))
		h.Write([]byte(strconv.Itoa(int(m.Units))))
	}

	sum := h.Sum64()
	if sum == 0 {
		return 1
	}
	return sum
}

// String is the canonical rendering: resolved name (or the raw name), dose
// and unit, frequency title, route abbreviation, and "PRN", space-joined.
// Re-parsing the rendering yields a record Equal to the original.
func (m ParsedMedication) String() string {
	var parts []string

	name := m.MappedName
	if name == "" {
		name = m.DrugName
	}
	if name != "" {
		parts = append(parts, name)
	}
	if m.HasDose && m.Units != UnitNone {
		parts = append(parts, trimZeros(m.Dose)+m.Units.Abbreviation())
	}
	if m.HasFreq {
		parts = append(parts, m.Frequency.Title())
	}
	if m.HasRoute {
		parts = append(parts, m.Route.Abbreviation())
	}
	if m.AsRequired {
		parts = append(parts, "PRN")
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// trimZeros renders a decimal with trailing fractional zeros stripped.
func trimZeros(d decimal.Decimal) string {
	s := d.String()
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
