package medication

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// dosePattern is digits with an optional decimal fraction, optional
// whitespace, then a unit abbreviation. A bare number is not a dose.
var dosePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([a-z]+)$`)

// ParseDose extracts a dose and unit from a fragment like "5mg", "2.5 mg" or
// "10mcg". It reports false when the fragment is not a dose+unit pair, a
// bare number included.
func ParseDose(fragment string) (decimal.Decimal, Unit, bool) {
	match := dosePattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(fragment)))
	if match == nil {
		return decimal.Decimal{}, UnitNone, false
	}
	unit, ok := ParseUnit(match[2])
	if !ok {
		return decimal.Decimal{}, UnitNone, false
	}
	dose, err := decimal.NewFromString(match[1])
	if err != nil {
		return decimal.Decimal{}, UnitNone, false
	}
	return dose, unit, true
}

// tokenize case-folds the whole instruction and splits it on whitespace. A
// single- or double-quoted run is one token with the quotes stripped.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	var tokens []string
	var current strings.Builder
	var quote rune

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				flush()
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			flush()
			quote = r
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// Parse turns a free-text prescribing instruction into a ParsedMedication.
// Tokens are classified in fixed priority order (prn, frequency, dose+unit,
// route); unclassified tokens accumulate into the drug name until the first
// recognised attribute, and into free-text notes afterwards. Once notes have
// begun every remaining token goes to notes verbatim. Parsing never fails:
// unrecognisable input yields a record holding just the raw drug name.
// Concept resolution is a separate step, see Service.Parse.
func Parse(text string) ParsedMedication {
	var m ParsedMedication
	var nameParts, noteParts []string
	buildingName := true

	for _, token := range tokenize(text) {
		if len(noteParts) > 0 {
			noteParts = append(noteParts, token)
			continue
		}

		classified := true
		switch {
		case token == "prn":
			m.AsRequired = true
		case classifyFrequency(token, &m):
		case classifyDose(token, &m):
		case classifyRoute(token, &m):
		default:
			classified = false
		}

		if classified {
			buildingName = false
			continue
		}
		if buildingName {
			nameParts = append(nameParts, token)
		} else {
			noteParts = append(noteParts, token)
		}
	}

	m.DrugName = strings.Join(nameParts, " ")
	m.Notes = strings.Join(noteParts, " ")
	return m
}

func classifyFrequency(token string, m *ParsedMedication) bool {
	f, ok := ParseFrequency(token)
	if !ok {
		return false
	}
	m.Frequency = f
	m.HasFreq = true
	return true
}

func classifyDose(token string, m *ParsedMedication) bool {
	dose, unit, ok := ParseDose(token)
	if !ok {
		return false
	}
	m.Dose = dose
	m.Units = unit
	m.HasDose = true
	return true
}

func classifyRoute(token string, m *ParsedMedication) bool {
	r, ok := ParseRoute(token)
	if !ok {
		return false
	}
	m.Route = r
	m.HasRoute = true
	return true
}
