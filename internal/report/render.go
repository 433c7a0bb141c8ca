package report

import (
	"bytes"
	"cmp"
	"fmt"
	"html/template"
	"io"
	"slices"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/dealerdiff/dealerdiff/internal/types"
	"github.com/dealerdiff/dealerdiff/internal/utils"
	"github.com/olekukonko/tablewriter"
)

// ImageDisclaimer is shown above the image table.
const ImageDisclaimer = "The comparisons are done based on the base filename (ignoring file extensions) and not the actual image presented."

// maxCellLen caps plain text table cells. Extraction errors end up in the
// price columns and can be very long.
const maxCellLen = 80

const mismatchStyle = "background-color: red; color: white; padding: 2px 5px; border-radius: 3px;"

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"isMismatch":  func(s string) bool { return s != types.AllMatch && s != string(types.Match) },
	"sortedHints": sortedHints,
	"mismatchCSS": func() template.CSS { return mismatchStyle },
}).Parse(`<html>
<head>
<style>
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 8px; border: 1px solid #dddddd; }
th { background-color: #f2f2f2; }
</style>
</head>
<body>
<p>Please review the most recent price {{if .ImagesEnabled}}and image {{end}}comparisons between {{.ManufacturerName}} and {{.DealerName}}. This report serves as an informational audit and requires verification by the recipient prior to any pricing updates.</p>
<h2><a id="summary" name="summary">COMPARISON SUMMARY</a></h2>
<table>
<thead><tr><th>Section</th><th>Comparison Result</th></tr></thead>
<tbody>
{{- range .Summary}}
<tr><td><a href="#{{.Anchor}}">{{.Section}}</a></td><td>{{if isMismatch .Result}}<span style="{{mismatchCSS}}">{{.Result}}</span>{{else}}{{.Result}}{{end}}</td></tr>
{{- end}}
</tbody>
</table>
{{- $r := .}}
{{- range .Sections}}
<h2><a id="{{.Anchor}}" name="{{.Anchor}}">{{.Heading}}</a></h2>
Data Source URLs:
<ul>
<li>Manufacturer: <a href="{{.ManufacturerURL}}" target="_blank">{{.ManufacturerURL}}</a></li>
<li>Dealer: <a href="{{.DealerURL}}" target="_blank">{{.DealerURL}}</a></li>
</ul>
<table>
<thead><tr><th>Car Model</th><th>{{$r.ManufacturerName}} Price</th><th>{{$r.DealerName}} Price</th><th>Price Difference</th><th>Price Comparison</th></tr></thead>
<tbody>
{{- range .Rows}}
<tr><td>{{.Model}}</td><td>{{.ManufacturerPrice}}</td><td>{{.DealerPrice}}</td><td>{{.PriceDifference}}</td><td>{{if eq .Comparison "Mismatch"}}<span style="{{mismatchCSS}}">{{.Comparison}}</span>{{else}}{{.Comparison}}{{end}}</td></tr>
{{- end}}
</tbody>
</table>
{{- with sortedHints .Suggestions}}
<p>Similar labels:</p>
<ul>
{{- range .}}
<li>{{index . 0}} / {{index . 1}}</li>
{{- end}}
</ul>
{{- end}}
<div style="text-align: right;"><a href="#summary">Back to Summary</a></div>
{{- end}}
{{- if .Images}}
<hr>
<h2><a id="hero_images" name="hero_images">MODEL HERO IMAGES</a></h2>
<p>` + ImageDisclaimer + `</p>
<table>
<thead><tr><th>Model Hero Image</th><th>{{.ManufacturerName}} Image URL</th><th>{{.ManufacturerName}} Image Filename</th><th>{{.DealerName}} Image URL</th><th>{{.DealerName}} Image Filename</th><th>Image Comparison</th></tr></thead>
<tbody>
{{- range .Images}}
<tr><td>{{.Model}}</td><td><a href="{{.ManufacturerURL}}">{{.ManufacturerURL}}</a></td><td>{{.ManufacturerFilename}}</td><td><a href="{{.DealerURL}}">{{.DealerURL}}</a></td><td>{{.DealerFilename}}</td><td>{{if eq .Comparison "Mismatch"}}<span style="{{mismatchCSS}}">{{.Comparison}}</span>{{else}}{{.Comparison}}{{end}}</td></tr>
{{- end}}
</tbody>
</table>
<div style="text-align: right;"><a href="#summary">Back to Summary</a></div>
{{- end}}
</body>
</html>
`))

// sortedHints returns the suggestions as ordered [label, suggestion] pairs,
// each pair only once.
func sortedHints(hints map[string]string) [][2]string {
	pairs := [][2]string{}
	seen := map[[2]string]bool{}
	for k, v := range hints {
		p := [2]string{k, v}
		if v < k {
			p = [2]string{v, k}
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		pairs = append(pairs, p)
	}
	slices.SortFunc(pairs, func(a, b [2]string) int {
		return cmp.Or(cmp.Compare(a[0], b[0]), cmp.Compare(a[1], b[1]))
	})
	return pairs
}

// HTML renders the report as an html document.
func (r *Report) HTML() (string, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("error while rendering html report: %w", err)
	}
	return buf.String(), nil
}

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// Markdown renders the report as markdown.
func (r *Report) Markdown() (string, error) {
	html, err := r.HTML()
	if err != nil {
		return "", err
	}
	md, err := mdConverter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("error while converting report to markdown: %w", err)
	}
	return md, nil
}

// WriteTable writes the summary and every section as plain text tables.
func (r *Report) WriteTable(w io.Writer) error {
	fmt.Fprintf(w, "%s (%s)\n\n", r.Title, r.GeneratedAt.Format("2006-01-02 15:04:05"))
	summary := tablewriter.NewWriter(w)
	summary.Header("Section", "Comparison Result")
	for _, l := range r.Summary() {
		if err := summary.Append([]string{l.Section, l.Result}); err != nil {
			return err
		}
	}
	if err := summary.Render(); err != nil {
		return err
	}

	for _, s := range r.Sections() {
		fmt.Fprintf(w, "\n%s\n", s.Heading())
		t := tablewriter.NewWriter(w)
		t.Header("Car Model", r.ManufacturerName+" Price", r.DealerName+" Price", "Price Difference", "Price Comparison")
		for _, row := range s.Rows {
			if err := t.Append([]string{
				row.Model,
				utils.ShortenString(row.ManufacturerPrice, maxCellLen),
				utils.ShortenString(row.DealerPrice, maxCellLen),
				row.PriceDifference,
				string(row.Comparison),
			}); err != nil {
				return err
			}
		}
		if err := t.Render(); err != nil {
			return err
		}
		for _, h := range sortedHints(s.Suggestions) {
			fmt.Fprintf(w, "similar labels: %s / %s\n", h[0], h[1])
		}
	}

	if len(r.Images) > 0 {
		fmt.Fprintf(w, "\n%s\n%s\n", ImagesSectionName, ImageDisclaimer)
		t := tablewriter.NewWriter(w)
		t.Header("Model", r.ManufacturerName+" Image Filename", r.DealerName+" Image Filename", "Image Comparison")
		for _, img := range r.Images {
			if err := t.Append([]string{img.Model, img.ManufacturerFilename, img.DealerFilename, string(img.Comparison)}); err != nil {
				return err
			}
		}
		if err := t.Render(); err != nil {
			return err
		}
	}
	return nil
}
