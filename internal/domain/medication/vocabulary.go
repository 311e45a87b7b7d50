package medication

import "github.com/shopspring/decimal"

// Frequency is how often a dose is taken. The zero value means no frequency
// was recognised.
type Frequency int

const (
	FrequencyNone Frequency = iota
	OnceDaily
	TwiceDaily
	ThreeTimesDaily
	FourTimesDaily
	AlternateDays
	OnceWeekly
	TwiceWeekly
	OnceMonthly
	OnceYearly
)

// frequencySpec carries a frequency's primary display title and its
// dose-per-day ratio. N-times-daily frequencies multiply the dose by N;
// longer intervals divide by the interval in days.
type frequencySpec struct {
	title   string
	aliases []string
	num     int64
	den     int64
}

var frequencies = map[Frequency]frequencySpec{
	OnceDaily:       {title: "od", aliases: []string{"od", "qd", "daily", "once-daily", "1/day"}, num: 1, den: 1},
	TwiceDaily:      {title: "bd", aliases: []string{"bd", "bid", "twice-daily", "2/day"}, num: 2, den: 1},
	ThreeTimesDaily: {title: "tds", aliases: []string{"tds", "tid", "three-times-daily", "3/day"}, num: 3, den: 1},
	FourTimesDaily:  {title: "qds", aliases: []string{"qds", "qid", "four-times-daily", "4/day"}, num: 4, den: 1},
	AlternateDays:   {title: "alt-days", aliases: []string{"alt-days", "altdays", "alternate-days", "1/2days"}, num: 1, den: 2},
	OnceWeekly:      {title: "1/week", aliases: []string{"1/week", "ow", "once-weekly", "1/w"}, num: 1, den: 7},
	TwiceWeekly:     {title: "2/week", aliases: []string{"2/week", "tw", "twice-weekly", "2/w"}, num: 2, den: 7},
	OnceMonthly:     {title: "1/month", aliases: []string{"1/month", "om", "once-monthly", "1/m"}, num: 1, den: 30},
	OnceYearly:      {title: "1/year", aliases: []string{"1/year", "oy", "once-yearly", "1/y"}, num: 1, den: 365},
}

var frequencyAliases = func() map[string]Frequency {
	m := make(map[string]Frequency)
	for f, spec := range frequencies {
		for _, alias := range spec.aliases {
			m[alias] = f
		}
	}
	return m
}()

// ParseFrequency looks a lowercase token up in the frequency synonym table.
func ParseFrequency(token string) (Frequency, bool) {
	f, ok := frequencyAliases[token]
	return f, ok
}

// Title is the frequency's primary display form, used in canonical rendering.
func (f Frequency) Title() string { return frequencies[f].title }

// DailyMultiplier applies the frequency's dose-per-day ratio with ceiling
// rounding at four decimal places.
func (f Frequency) DailyMultiplier(dose decimal.Decimal) decimal.Decimal {
	spec, ok := frequencies[f]
	if !ok {
		return dose
	}
	return dose.Mul(decimal.NewFromInt(spec.num)).Div(decimal.NewFromInt(spec.den)).RoundCeil(doseScale)
}

// Unit is a dose unit. The zero value means no unit was recognised.
// Dose-based units carry a conversion factor to a canonical scale;
// product-based units (tablets, puffs, units) count discrete items and
// convert 1:1.
type Unit int

const (
	UnitNone Unit = iota
	Milligram
	Microgram
	Gram
	Millilitre
	Tablet
	Puff
	UnitDose
)

type unitSpec struct {
	abbrev       string
	aliases      []string
	factor       decimal.Decimal
	productBased bool
}

var units = map[Unit]unitSpec{
	Milligram:  {abbrev: "mg", aliases: []string{"mg"}, factor: decimal.RequireFromString("0.001")},
	Microgram:  {abbrev: "mcg", aliases: []string{"mcg", "ug"}, factor: decimal.RequireFromString("0.00001")},
	Gram:       {abbrev: "g", aliases: []string{"g"}, factor: decimal.NewFromInt(1)},
	Millilitre: {abbrev: "ml", aliases: []string{"ml"}, factor: decimal.RequireFromString("0.001")},
	Tablet:     {abbrev: "tab", aliases: []string{"tab", "tabs"}, factor: decimal.NewFromInt(1), productBased: true},
	Puff:       {abbrev: "puff", aliases: []string{"puff", "puffs"}, factor: decimal.NewFromInt(1), productBased: true},
	UnitDose:   {abbrev: "u", aliases: []string{"u", "unit", "units"}, factor: decimal.NewFromInt(1), productBased: true},
}

var unitAliases = func() map[string]Unit {
	m := make(map[string]Unit)
	for u, spec := range units {
		for _, alias := range spec.aliases {
			m[alias] = u
		}
	}
	return m
}()

// ParseUnit looks a lowercase token up in the unit table.
func ParseUnit(token string) (Unit, bool) {
	u, ok := unitAliases[token]
	return u, ok
}

// Abbreviation is the unit's primary abbreviation, used in canonical rendering.
func (u Unit) Abbreviation() string { return units[u].abbrev }

// ConversionFactor converts a dose in this unit to the canonical dose scale.
func (u Unit) ConversionFactor() decimal.Decimal {
	spec, ok := units[u]
	if !ok {
		return decimal.NewFromInt(1)
	}
	return spec.factor
}

// ProductBased reports whether the unit counts discrete items rather than a
// measured quantity.
func (u Unit) ProductBased() bool { return units[u].productBased }

// Route is how a medication is given. Oral is the default when no route
// token is present.
type Route int

const (
	RouteOral Route = iota
	RouteIntravenous
	RouteIntramuscular
	RouteSubcutaneous
	RouteInhaled
	RouteNebulised
	RouteTopical
	RouteRectal
	RouteSublingual
)

var routeAbbrevs = map[Route]string{
	RouteOral:          "po",
	RouteIntravenous:   "iv",
	RouteIntramuscular: "im",
	RouteSubcutaneous:  "sc",
	RouteInhaled:       "inh",
	RouteNebulised:     "neb",
	RouteTopical:       "top",
	RouteRectal:        "pr",
	RouteSublingual:    "sl",
}

var routeAliases = func() map[string]Route {
	m := make(map[string]Route, len(routeAbbrevs))
	for r, abbrev := range routeAbbrevs {
		m[abbrev] = r
	}
	return m
}()

// ParseRoute looks a lowercase token up in the route table.
func ParseRoute(token string) (Route, bool) {
	r, ok := routeAliases[token]
	return r, ok
}

// Abbreviation is the route's display abbreviation.
func (r Route) Abbreviation() string { return routeAbbrevs[r] }
