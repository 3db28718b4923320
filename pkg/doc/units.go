package doc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Quantity is a numeric value carrying a unit. Quantities are produced by
// fields declared with a @unit(...) attribute; the value is always stored
// already converted into the declared unit.
type Quantity struct {
	// Value is the numeric magnitude expressed in Unit.
	Value float64 `json:"value"`

	// Unit is the unit symbol (e.g. "cm", "kg", "ms").
	Unit string `json:"unit"`
}

// unitDef describes a unit as a scale factor relative to its category base.
type unitDef struct {
	category string
	factor   float64
}

// unitTable maps unit symbols to their category and base factor.
// Bases: length=m, mass=g, time=s, angle=rad, data=byte.
var unitTable = map[string]unitDef{
	// length (base: meter)
	"m":  {"length", 1},
	"km": {"length", 1000},
	"cm": {"length", 0.01},
	"mm": {"length", 0.001},
	"um": {"length", 1e-6},
	"in": {"length", 0.0254},
	"ft": {"length", 0.3048},
	"yd": {"length", 0.9144},
	"mi": {"length", 1609.344},

	// mass (base: gram)
	"g":  {"mass", 1},
	"kg": {"mass", 1000},
	"mg": {"mass", 0.001},
	"lb": {"mass", 453.59237},
	"oz": {"mass", 28.349523125},

	// time (base: second)
	"ns":   {"time", 1e-9},
	"us":   {"time", 1e-6},
	"ms":   {"time", 0.001},
	"s":    {"time", 1},
	"min":  {"time", 60},
	"hr":   {"time", 3600},
	"hrs":  {"time", 3600},
	"day":  {"time", 86400},
	"days": {"time", 86400},

	// angle (base: radian)
	"rad": {"angle", 1},
	"deg": {"angle", math.Pi / 180},

	// data (base: byte)
	"B":  {"data", 1},
	"KB": {"data", 1e3},
	"MB": {"data", 1e6},
	"GB": {"data", 1e9},
}

// KnownUnit reports whether the given symbol is a recognized unit.
func KnownUnit(symbol string) bool {
	_, ok := unitTable[symbol]
	return ok
}

// ConvertUnit converts a magnitude between two units of the same category.
func ConvertUnit(value float64, from, to string) (float64, error) {
	fd, ok := unitTable[from]
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", from)
	}
	td, ok := unitTable[to]
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", to)
	}
	if fd.category != td.category {
		return 0, fmt.Errorf("cannot convert %s (%s) to %s (%s)", from, fd.category, to, td.category)
	}
	return roundUnitNoise(value * fd.factor / td.factor), nil
}

// EvalUnitExpr evaluates a unit expression such as "6ft + 1in" into the
// target unit. Terms are numbers with an optional unit suffix, joined by
// + or -; bare numbers are taken to already be in the target unit.
func EvalUnitExpr(expr, target string) (float64, error) {
	if _, ok := unitTable[target]; !ok {
		return 0, fmt.Errorf("unknown target unit %q", target)
	}

	total := 0.0
	sign := 1.0
	rest := strings.TrimSpace(expr)
	if rest == "" {
		return 0, fmt.Errorf("empty unit expression")
	}

	for len(rest) > 0 {
		switch rest[0] {
		case '+':
			sign = 1.0
			rest = strings.TrimSpace(rest[1:])
			continue
		case '-':
			sign = -1.0
			rest = strings.TrimSpace(rest[1:])
			continue
		}

		num, unit, tail, err := scanUnitTerm(rest)
		if err != nil {
			return 0, fmt.Errorf("invalid unit expression %q: %w", expr, err)
		}
		if unit == "" {
			unit = target
		}
		converted, err := ConvertUnit(num, unit, target)
		if err != nil {
			return 0, fmt.Errorf("invalid unit expression %q: %w", expr, err)
		}
		total += sign * converted
		sign = 1.0
		rest = strings.TrimSpace(tail)
	}

	return roundUnitNoise(total), nil
}

// scanUnitTerm scans one "<number><unit>" term off the front of s.
func scanUnitTerm(s string) (num float64, unit, rest string, err error) {
	i := 0
	for i < len(s) && (unicode.IsDigit(rune(s[i])) || s[i] == '.') {
		i++
	}
	if i == 0 {
		return 0, "", "", fmt.Errorf("expected number at %q", s)
	}
	num, err = strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0, "", "", fmt.Errorf("bad number %q", s[:i])
	}

	j := i
	for j < len(s) && unicode.IsSpace(rune(s[j])) {
		j++
	}
	k := j
	for k < len(s) && unicode.IsLetter(rune(s[k])) {
		k++
	}
	unit = s[j:k]
	j = k
	if unit != "" {
		if _, ok := unitTable[unit]; !ok {
			return 0, "", "", fmt.Errorf("unknown unit %q", unit)
		}
	}
	return num, unit, s[j:], nil
}

// roundUnitNoise trims the binary representation noise that accumulates when
// chaining conversion factors, so that e.g. 6ft + 1in folds to exactly
// 185.42 cm rather than 185.42000000000002.
func roundUnitNoise(v float64) float64 {
	if v == 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	scale := math.Pow(10, 10-math.Ceil(math.Log10(math.Abs(v))))
	return math.Round(v*scale) / scale
}
