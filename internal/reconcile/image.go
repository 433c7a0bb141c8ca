package reconcile

import (
	"strings"

	"github.com/dealerdiff/dealerdiff/internal/extract"
	"github.com/dealerdiff/dealerdiff/internal/types"
)

// ImageRecord compares the hero images of one model. Only the filenames are
// compared, never the image content.
type ImageRecord struct {
	Model                string           `json:"model"`
	ManufacturerURL      string           `json:"manufacturer_url"`
	ManufacturerFilename string           `json:"manufacturer_filename"`
	DealerURL            string           `json:"dealer_url"`
	DealerFilename       string           `json:"dealer_filename"`
	Comparison           types.Comparison `json:"comparison"`
}

func stem(filename string) string {
	before, _, _ := strings.Cut(filename, ".")
	return before
}

// Image compares two filenames up to their first '.', so the same image in
// another format still matches.
func Image(model, mfrURL, mfrFilename, dealerURL, dealerFilename string) ImageRecord {
	r := ImageRecord{
		Model:                model,
		ManufacturerURL:      mfrURL,
		ManufacturerFilename: mfrFilename,
		DealerURL:            dealerURL,
		DealerFilename:       dealerFilename,
		Comparison:           types.Mismatch,
	}
	if stem(mfrFilename) == stem(dealerFilename) {
		r.Comparison = types.Match
	}
	return r
}

// ImageFromResults compares two hero image extractions. Failed extractions
// take part with their error message.
func ImageFromResults(model string, mfr, dealer extract.ImageResult) ImageRecord {
	return Image(model, mfr.URL, mfr.Text(), dealer.URL, dealer.Text())
}
