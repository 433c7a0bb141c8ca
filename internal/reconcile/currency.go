package reconcile

import (
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

var currencyReplacer = strings.NewReplacer("$", "", ",", "")

// ParsePrice returns the numeric value of a price like "$42,499". Currency
// signs and thousands separators are ignored. ok is false for anything
// that is not a number afterwards.
func ParsePrice(s string) (v float64, ok bool) {
	s = strings.TrimSpace(currencyReplacer.Replace(s))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FormatDifference renders d as whole dollars with thousands separators.
// The sign goes before the currency symbol: -$1,234.
func FormatDifference(d float64) string {
	r := math.RoundToEven(d)
	if r == 0 {
		return "$0"
	}
	if r < 0 {
		return "-$" + humanize.Commaf(-r)
	}
	return "$" + humanize.Commaf(r)
}
