// Package rate turns normalized tariff rows and a parcel description into
// priced, ranked quotes. It performs no I/O.
package rate

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidPackage is returned when a package lacks what an operation needs.
var ErrInvalidPackage = errors.New("invalid package")

const (
	// OpenBracketMaxKg stands in for a missing upper bound.
	OpenBracketMaxKg = 999
	// UnknownTimeDays sorts channels without a parsable transit time last.
	UnknownTimeDays = 999
)

// Bracket is a half-open weight interval (Min, Max].
type Bracket struct {
	Min float64
	Max float64
	// Parsed is false when the text held no recognizable bound and the
	// bracket fell back to the catch-all 0..999.
	Parsed bool
}

func (b Bracket) Contains(weight float64) bool {
	return weight > b.Min && weight <= b.Max
}

var (
	numberToken = regexp.MustCompile(`\d+(?:\.\d+)?`)
	dashRange   = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*[-~～]\s*(\d+(?:\.\d+)?)\s*$`)
	firstInt    = regexp.MustCompile(`\d+`)
)

// ParseBracket reads forms like "0<W≤30", "0.5＜W<=2", "W≤30", "30<W" and
// "0-30". The bound left of W is the minimum, the first number right of it
// the maximum. Anything else yields the catch-all 0..999 with Parsed unset.
func ParseBracket(text string) Bracket {
	s := strings.TrimSpace(text)
	if m := dashRange.FindStringSubmatch(s); m != nil {
		return Bracket{Min: parseNumber(m[1]), Max: parseNumber(m[2]), Parsed: true}
	}
	i := strings.IndexAny(s, "Ww")
	if i < 0 {
		return Bracket{Min: 0, Max: OpenBracketMaxKg}
	}
	b := Bracket{Min: 0, Max: OpenBracketMaxKg}
	if toks := numberToken.FindAllString(s[:i], -1); len(toks) > 0 {
		b.Min = parseNumber(toks[len(toks)-1])
		b.Parsed = true
	}
	if tok := numberToken.FindString(s[i+1:]); tok != "" {
		b.Max = parseNumber(tok)
		b.Parsed = true
	}
	return b
}

// InBracket reports whether weight falls in the bracket described by text.
func InBracket(weight float64, text string) bool {
	return ParseBracket(text).Contains(weight)
}

func parseNumber(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// VolumetricWeight is l×w×h/divisor in kg for centimetre dimensions.
// A non-positive divisor uses 6000.
func VolumetricWeight(length, width, height, divisor float64) float64 {
	if divisor <= 0 {
		divisor = Formula6000.Divisor()
	}
	return length * width * height / divisor
}

// ChargeableWeight takes the larger of actual and volumetric weight, lifts it
// to the minimum when one is set, then rounds up to a multiple of increment.
// Non-positive minimum or increment disable that step.
func ChargeableWeight(actual, volumetric, minimum, increment float64) float64 {
	w := math.Max(actual, volumetric)
	if minimum > 0 {
		w = math.Max(w, minimum)
	}
	if increment <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return w
	}
	inc := decimal.NewFromFloat(increment)
	return decimal.NewFromFloat(w).Div(inc).Ceil().Mul(inc).InexactFloat64()
}

// TimeDays is the leading day count of a transit-time text such as "5-7" or
// "7-10工作日"; UnknownTimeDays when there is none.
func TimeDays(text string) int {
	tok := firstInt.FindString(text)
	if tok == "" {
		return UnknownTimeDays
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return UnknownTimeDays
	}
	return n
}

// Round2 rounds half away from zero to two decimals. NaN and ±Inf are
// returned unchanged.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
