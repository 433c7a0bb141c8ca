// Package report assembles the reconciled tables into a report and renders
// it as html, markdown or plain text tables.
package report

import (
	"time"

	"github.com/dealerdiff/dealerdiff/internal/reconcile"
	"github.com/dealerdiff/dealerdiff/internal/types"
	"github.com/dealerdiff/dealerdiff/internal/utils"
)

const (
	NavigationSectionName = "NAVIGATION MENU PRICES"
	NavigationAnchor      = "nav_prices"
	ImagesSectionName     = "MODEL HERO IMAGES"
	ImagesAnchor          = "hero_images"

	// MismatchSubjectPrefix is put in front of the subject of a report
	// containing at least one mismatch.
	MismatchSubjectPrefix = "[Mismatch Found] - "
)

// PriceSection is one price comparison table.
type PriceSection struct {
	Name            string            `json:"name"`
	ManufacturerURL string            `json:"manufacturer_url"`
	DealerURL       string            `json:"dealer_url"`
	Rows            []reconcile.Row   `json:"rows"`
	Suggestions     map[string]string `json:"suggestions,omitempty"`
}

// NewVehicleSection returns the section of model.
func NewVehicleSection(model, mfrURL, dealerURL string, rows []reconcile.Row) PriceSection {
	return PriceSection{
		Name:            model,
		ManufacturerURL: mfrURL,
		DealerURL:       dealerURL,
		Rows:            rows,
	}
}

// Heading is the section title shown above the table.
func (s PriceSection) Heading() string {
	if s.Name == NavigationSectionName {
		return s.Name
	}
	return s.Name + " PRICES"
}

func (s PriceSection) Anchor() string {
	if s.Name == NavigationSectionName {
		return NavigationAnchor
	}
	return utils.Anchor(s.Name)
}

// Result is types.AllMatch if every row of the section matches.
func (s PriceSection) Result() string {
	return reconcile.Summary(s.Rows)
}

// SummaryLine is one line of the report summary.
type SummaryLine struct {
	Section string `json:"section"`
	Anchor  string `json:"anchor"`
	Result  string `json:"result"`
}

// Report is everything a run produced.
type Report struct {
	Title            string                  `json:"title"`
	GeneratedAt      time.Time               `json:"generated_at"`
	ManufacturerName string                  `json:"manufacturer_name"`
	DealerName       string                  `json:"dealer_name"`
	Navigation       *PriceSection           `json:"navigation,omitempty"`
	Vehicles         []PriceSection          `json:"vehicles"`
	Images           []reconcile.ImageRecord `json:"images,omitempty"`
	ImagesEnabled    bool                    `json:"images_enabled"`
}

// Summary returns one line per section in report order. The images line is
// only present if images were compared.
func (r *Report) Summary() []SummaryLine {
	lines := []SummaryLine{}
	if r.Navigation != nil {
		lines = append(lines, SummaryLine{Section: NavigationSectionName, Anchor: NavigationAnchor, Result: r.Navigation.Result()})
	}
	for _, v := range r.Vehicles {
		lines = append(lines, SummaryLine{Section: v.Name, Anchor: v.Anchor(), Result: v.Result()})
	}
	if len(r.Images) > 0 {
		result := types.AllMatch
		for _, img := range r.Images {
			if img.Comparison != types.Match {
				result = types.SomeMismatch
				break
			}
		}
		lines = append(lines, SummaryLine{Section: ImagesSectionName, Anchor: ImagesAnchor, Result: result})
	}
	return lines
}

// HasMismatch reports whether any section contains a mismatch.
func (r *Report) HasMismatch() bool {
	for _, l := range r.Summary() {
		if l.Result != types.AllMatch {
			return true
		}
	}
	return false
}

// Subject returns base, prefixed with MismatchSubjectPrefix if needed.
func (r *Report) Subject(base string) string {
	if r.HasMismatch() {
		return MismatchSubjectPrefix + base
	}
	return base
}

// Sections returns the navigation section followed by the vehicle sections.
func (r *Report) Sections() []PriceSection {
	sections := []PriceSection{}
	if r.Navigation != nil {
		sections = append(sections, *r.Navigation)
	}
	return append(sections, r.Vehicles...)
}

// Mismatches counts the mismatching rows per section kind.
func (r *Report) Mismatches() map[string]int {
	counts := map[string]int{"navigation": 0, "vehicle": 0, "image": 0}
	if r.Navigation != nil {
		counts["navigation"] = countMismatches(r.Navigation.Rows)
	}
	for _, v := range r.Vehicles {
		counts["vehicle"] += countMismatches(v.Rows)
	}
	for _, img := range r.Images {
		if img.Comparison == types.Mismatch {
			counts["image"]++
		}
	}
	return counts
}

func countMismatches(rows []reconcile.Row) int {
	n := 0
	for _, row := range rows {
		if row.Comparison == types.Mismatch {
			n++
		}
	}
	return n
}

// FilenameStem is a filesystem friendly name for the report, based on the
// generation time.
func (r *Report) FilenameStem() string {
	return "dealerdiff-" + r.GeneratedAt.Format("20060102-150405")
}
