// Package reconcile turns the extracted data of both websites into
// comparison rows.
package reconcile

import (
	"math"
	"sort"

	"github.com/dealerdiff/dealerdiff/internal/extract"
	"github.com/dealerdiff/dealerdiff/internal/types"
)

const (
	// AbsentPrice stands in for a price that one of the sites does not
	// list. It takes part in the string comparison like any other price.
	AbsentPrice = "$0"
	// NoDifference is shown when no numeric difference can be computed.
	NoDifference = "-"
)

// Row is one line of a price comparison table.
type Row struct {
	Model             string           `json:"model"`
	ManufacturerPrice string           `json:"manufacturer_price"`
	DealerPrice       string           `json:"dealer_price"`
	PriceDifference   string           `json:"price_difference"`
	Comparison        types.Comparison `json:"comparison"`
}

type price struct {
	text    string
	present bool
}

func (p price) String() string {
	if !p.present {
		return AbsentPrice
	}
	return p.text
}

func (p price) value() (float64, bool) {
	if !p.present {
		return 0, false
	}
	return ParsePrice(p.text)
}

func groupByLabel(items []types.PricedItem) (map[string][]price, []string) {
	groups := map[string][]price{}
	labels := []string{}
	for _, it := range items {
		if _, found := groups[it.Label]; !found {
			labels = append(labels, it.Label)
		}
		groups[it.Label] = append(groups[it.Label], price{text: it.Price, present: true})
	}
	return groups, labels
}

// Prices joins both lists on the label. Every label of either side gets at
// least one row; a label listed several times on one side yields one row
// per combination of prices. Rows are sorted by the manufacturer price,
// rows without a numeric manufacturer price come last.
func Prices(mfr, dealer []types.PricedItem) []Row {
	mfrGroups, mfrLabels := groupByLabel(mfr)
	dealerGroups, dealerLabels := groupByLabel(dealer)

	seen := map[string]bool{}
	labels := []string{}
	for _, l := range append(mfrLabels, dealerLabels...) {
		if !seen[l] {
			seen[l] = true
			labels = append(labels, l)
		}
	}
	sort.Strings(labels)

	absent := []price{{}}
	type sortedRow struct {
		row Row
		key float64
	}
	rows := []sortedRow{}
	for _, l := range labels {
		mps, found := mfrGroups[l]
		if !found {
			mps = absent
		}
		dps, found := dealerGroups[l]
		if !found {
			dps = absent
		}
		for _, mp := range mps {
			for _, dp := range dps {
				key, ok := mp.value()
				if !ok {
					key = math.NaN()
				}
				rows = append(rows, sortedRow{row: newRow(l, mp, dp), key: key})
			}
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].key, rows[j].key
		if math.IsNaN(a) {
			return false
		}
		if math.IsNaN(b) {
			return true
		}
		return a < b
	})

	result := make([]Row, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.row)
	}
	return result
}

func newRow(label string, mfr, dealer price) Row {
	r := Row{
		Model:             label,
		ManufacturerPrice: mfr.String(),
		DealerPrice:       dealer.String(),
		PriceDifference:   NoDifference,
		Comparison:        types.Mismatch,
	}
	mv, mok := mfr.value()
	dv, dok := dealer.value()
	if mok && dok {
		r.PriceDifference = FormatDifference(mv - dv)
	}
	if r.ManufacturerPrice == r.DealerPrice {
		r.Comparison = types.Match
	}
	return r
}

// Items returns the items of r. A failed extraction becomes a single
// "<source> Error" item carrying the error message, so the failure shows
// up as a row of its own.
func Items(r extract.Result) []types.PricedItem {
	if r.OK() {
		return r.Items
	}
	return []types.PricedItem{{Label: r.SourceName + " Error", Price: r.Err.Error()}}
}

// FromResults reconciles two extraction results.
func FromResults(mfr, dealer extract.Result) []Row {
	return Prices(Items(mfr), Items(dealer))
}

// Summary returns types.AllMatch if every row matches.
func Summary(rows []Row) string {
	for _, r := range rows {
		if r.Comparison != types.Match {
			return types.SomeMismatch
		}
	}
	return types.AllMatch
}
