// Package identifier validates and decodes SNOMED CT style component
// identifiers (SCTIDs). An SCTID carries a Verhoeff check digit, a partition
// digit naming the component type, and, for extension releases, a 7-digit
// namespace block.
package identifier

import (
	"fmt"
	"strconv"
)

// Type is the component type encoded in an identifier's partition digit.
type Type int

const (
	TypeConcept Type = iota
	TypeDescription
	TypeRelationship
	TypeUnknown
)

func (t Type) String() string {
	switch t {
	case TypeConcept:
		return "concept"
	case TypeDescription:
		return "description"
	case TypeRelationship:
		return "relationship"
	}
	return "unknown"
}

// Release is the release flavour encoded in an identifier's third-from-last
// digit.
type Release int

const (
	ReleaseInternational Release = 0
	ReleaseExtension     Release = 1
)

// Verhoeff dihedral group tables.
var (
	verhoeffD = [10][10]int{
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		{1, 2, 3, 4, 0, 6, 7, 8, 9, 5},
		{2, 3, 4, 0, 1, 7, 8, 9, 5, 6},
		{3, 4, 0, 1, 2, 8, 9, 5, 6, 7},
		{4, 0, 1, 2, 3, 9, 5, 6, 7, 8},
		{5, 9, 8, 7, 6, 0, 4, 3, 2, 1},
		{6, 5, 9, 8, 7, 1, 0, 4, 3, 2},
		{7, 6, 5, 9, 8, 2, 1, 0, 4, 3},
		{8, 7, 6, 5, 9, 3, 2, 1, 0, 4},
		{9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
	}
	verhoeffP = [8][10]int{
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		{1, 5, 7, 6, 2, 8, 3, 0, 9, 4},
		{5, 8, 0, 3, 7, 9, 6, 1, 4, 2},
		{8, 9, 1, 6, 0, 4, 3, 5, 2, 7},
		{9, 4, 5, 3, 1, 2, 6, 8, 7, 0},
		{4, 2, 8, 6, 5, 7, 3, 9, 0, 1},
		{2, 7, 9, 3, 8, 0, 6, 4, 1, 5},
		{7, 0, 4, 6, 9, 1, 3, 2, 5, 8},
	}
	verhoeffInv = [10]int{0, 4, 3, 2, 1, 5, 6, 7, 8, 9}
)

// Validate reports whether id carries a correct Verhoeff check digit. The
// digits are folded in reverse order, so the most significant digit is
// processed last; a valid identifier folds to zero.
func Validate(id int64) bool {
	if id <= 0 {
		return false
	}
	s := strconv.FormatInt(id, 10)
	c := 0
	for i := 0; i < len(s); i++ {
		digit := int(s[len(s)-1-i] - '0')
		c = verhoeffD[c][verhoeffP[i%8][digit]]
	}
	return c == 0
}

// CheckDigit computes the Verhoeff check digit for the given digit string.
func CheckDigit(digits string) (int, error) {
	c := 0
	for i := 0; i < len(digits); i++ {
		ch := digits[len(digits)-1-i]
		if ch < '0' || ch > '9' {
			return 0, fmt.Errorf("non-digit character %q in %q", ch, digits)
		}
		c = verhoeffD[c][verhoeffP[(i+1)%8][int(ch-'0')]]
	}
	return verhoeffInv[c], nil
}

// ParseType decodes the partition digit (second-to-last) of id. Only
// meaningful for identifiers that pass Validate.
func ParseType(id int64) Type {
	s := strconv.FormatInt(id, 10)
	if len(s) < 2 {
		return TypeUnknown
	}
	switch s[len(s)-2] {
	case '0':
		return TypeConcept
	case '1':
		return TypeDescription
	case '2':
		return TypeRelationship
	}
	return TypeUnknown
}

// ParseRelease decodes the release digit (third-from-last) of id.
func ParseRelease(id int64) Release {
	s := strconv.FormatInt(id, 10)
	if len(s) >= 3 && s[len(s)-3] == '1' {
		return ReleaseExtension
	}
	return ReleaseInternational
}

// ParseNamespace returns the 7-digit namespace block of an extension-release
// identifier, or 0 for international-release identifiers.
func ParseNamespace(id int64) int {
	if ParseRelease(id) != ReleaseExtension {
		return 0
	}
	s := strconv.FormatInt(id, 10)
	if len(s) < 10 {
		return 0
	}
	ns, err := strconv.Atoi(s[len(s)-10 : len(s)-3])
	if err != nil {
		return 0
	}
	return ns
}

// IsValidConcept reports whether id has a valid checksum and decodes to the
// concept partition.
func IsValidConcept(id int64) bool {
	return Validate(id) && ParseType(id) == TypeConcept
}

// IsValidDescription reports whether id has a valid checksum and decodes to
// the description partition.
func IsValidDescription(id int64) bool {
	return Validate(id) && ParseType(id) == TypeDescription
}

// IsValidRelationship reports whether id has a valid checksum and decodes to
// the relationship partition.
func IsValidRelationship(id int64) bool {
	return Validate(id) && ParseType(id) == TypeRelationship
}

// ValidateAs returns nil when id passes the checksum and decodes to want.
func ValidateAs(id int64, want Type) error {
	if !Validate(id) {
		return fmt.Errorf("identifier %d: checksum failed", id)
	}
	if got := ParseType(id); got != want {
		return fmt.Errorf("identifier %d: partition is %s, expected %s", id, got, want)
	}
	return nil
}
