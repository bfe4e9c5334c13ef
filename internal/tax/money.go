package tax

import (
	"fmt"
	"strconv"
	"strings"
)

// Money is int64 cents and rates are int64 micros (six fractional
// digits). Summing rates is exact integer addition; the only rounding in
// the whole computation is the single round-half-even in Compute.
// Binary floating point never touches a monetary value.

// RateScale converts a rate fraction to micros: 0.0825 -> 82500.
const RateScale = 1_000_000

// ParseCents parses a decimal money amount ("100.00") into cents.
// Digits beyond two decimal places are rounded half-even.
func ParseCents(s string) (int64, error) {
	return parseFixed(s, 2)
}

// ParseRateMicros parses a decimal rate fraction ("0.0825") into micros.
// Digits beyond six decimal places are rounded half-even.
func ParseRateMicros(s string) (int64, error) {
	return parseFixed(s, 6)
}

// FormatCents renders cents as a decimal string with two places.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// FormatRateMicros renders a micros rate as a decimal fraction with six
// places, e.g. 70000 -> "0.070000".
func FormatRateMicros(micros int64) string {
	sign := ""
	if micros < 0 {
		sign = "-"
		micros = -micros
	}
	return fmt.Sprintf("%s%d.%06d", sign, micros/RateScale, micros%RateScale)
}

// parseFixed parses a decimal string into an integer scaled by 10^scale,
// rounding half-even past the scale. Exact integer arithmetic only.
func parseFixed(s string, scale int) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty decimal value")
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" && fracPart == "" {
		return 0, fmt.Errorf("malformed decimal value %q", s)
	}
	if intPart == "" {
		intPart = "0"
	}
	if !isDigits(intPart) || (fracPart != "" && !isDigits(fracPart)) {
		return 0, fmt.Errorf("malformed decimal value %q", s)
	}
	if len(intPart) > 15 {
		return 0, fmt.Errorf("decimal value %q out of range", s)
	}
	units, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed decimal value %q", s)
	}

	// scale the fractional digits, keeping the tail for rounding
	kept := fracPart
	tail := ""
	if len(fracPart) > scale {
		kept, tail = fracPart[:scale], fracPart[scale:]
	}
	for len(kept) < scale {
		kept += "0"
	}
	var frac int64
	if kept != "" {
		frac, err = strconv.ParseInt(kept, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed decimal value %q", s)
		}
	}

	pow := int64(1)
	for i := 0; i < scale; i++ {
		pow *= 10
	}
	value := units*pow + frac

	switch compareTailToHalf(tail) {
	case +1:
		value++
	case 0:
		if value%2 != 0 {
			value++
		}
	}

	if neg {
		value = -value
	}
	return value, nil
}

// compareTailToHalf compares dropped fractional digits against one half
// of a unit in the last kept place: -1 below, 0 exactly half, +1 above.
func compareTailToHalf(tail string) int {
	if tail == "" {
		return -1
	}
	if tail[0] > '5' {
		return +1
	}
	if tail[0] < '5' {
		return -1
	}
	for i := 1; i < len(tail); i++ {
		if tail[i] != '0' {
			return +1
		}
	}
	return 0
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

// roundHalfEvenDiv divides n by d (both non-negative, d > 0) rounding
// half-even.
func roundHalfEvenDiv(n, d int64) int64 {
	q := n / d
	r := n % d
	switch {
	case 2*r > d:
		q++
	case 2*r == d && q%2 != 0:
		q++
	}
	return q
}
