package reconcile

import (
	"sort"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/dealerdiff/dealerdiff/internal/types"
	"github.com/dealerdiff/dealerdiff/internal/utils"
)

// Suggest looks for labels that only one site lists and returns, for each
// of them, the most similar label only the other site lists. Usually this
// is the same trim spelled differently, e.g. "XLT" and "XLT®".
func Suggest(mfr, dealer []types.PricedItem) map[string]string {
	mfrOnly, dealerOnly := oneSided(mfr, dealer)
	result := map[string]string{}
	for _, l := range mfrOnly {
		if s, ok := closest(l, dealerOnly); ok {
			result[l] = s
		}
	}
	for _, l := range dealerOnly {
		if s, ok := closest(l, mfrOnly); ok {
			result[l] = s
		}
	}
	return result
}

func labelSet(items []types.PricedItem) map[string]bool {
	s := map[string]bool{}
	for _, it := range items {
		s[it.Label] = true
	}
	return s
}

func oneSided(mfr, dealer []types.PricedItem) ([]string, []string) {
	m, d := labelSet(mfr), labelSet(dealer)
	mfrOnly, dealerOnly := []string{}, []string{}
	for l := range m {
		if !d[l] {
			mfrOnly = append(mfrOnly, l)
		}
	}
	for l := range d {
		if !m[l] {
			dealerOnly = append(dealerOnly, l)
		}
	}
	sort.Strings(mfrOnly)
	sort.Strings(dealerOnly)
	return mfrOnly, dealerOnly
}

func closest(label string, candidates []string) (string, bool) {
	norm := utils.NormalizeLabel(label)
	limit := max(2, utf8.RuneCountInString(norm)/4)
	best, bestDist := "", limit+1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(norm, utils.NormalizeLabel(c))
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, best != ""
}
