// Package types defines shared types used across the application.
package types

// PricedItem is a (label, price) pair as extracted from a page. Both sides
// are raw text and have not been normalized in any way.
type PricedItem struct {
	Label string `json:"label"`
	Price string `json:"price"`
}

// Comparison is the outcome of reconciling one row.
type Comparison string

// Source identifies which of the two websites data was extracted from.
type Source string

const (
	Match    Comparison = "Match"
	Mismatch Comparison = "Mismatch"
)

const (
	SourceManufacturer Source = "manufacturer"
	SourceDealer       Source = "dealer"
)

// AllMatch and SomeMismatch are the section level results shown in the summary.
const (
	AllMatch     = "All Match"
	SomeMismatch = "Mismatch"
)
