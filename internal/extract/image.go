package extract

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/dealerdiff/dealerdiff/internal/config"
	"github.com/dealerdiff/dealerdiff/internal/log"
	"github.com/dealerdiff/dealerdiff/internal/types"
)

// NoImageFilename is the filename reported when the image source does not
// contain a known media file.
const NoImageFilename = "No image filename found"

var imageFilenameRegex = regexp.MustCompile(`/([^/]+\.(jpe?g|png|mp4|tif|webp))`)

// ImageResult is the outcome of reading a hero image.
type ImageResult struct {
	Source     types.Source
	SourceName string
	URL        string
	Filename   string
	Err        error
}

// Text returns the filename, or the error message if the extraction failed.
func (r ImageResult) Text() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return r.Filename
}

// ParseImageFilename returns the first media filename in src, e.g.
// "bronco-hero.jpg" for a src attribute or a css background url.
func ParseImageFilename(src string) string {
	m := imageFilenameRegex.FindStringSubmatch(src)
	if m == nil {
		return NoImageFilename
	}
	return m[1]
}

// HeroImage reads the hero image filename of site.
func (e *Extractor) HeroImage(ctx context.Context, page Page, src types.Source, sourceName string, site config.Site) ImageResult {
	logger := log.LoggerFromContext(ctx).With(slog.String("source", sourceName))
	ctx = log.ContextWithLogger(ctx, logger)
	res := ImageResult{Source: src, SourceName: sourceName, URL: site.HeroImageURL}
	filename, err := e.heroImage(ctx, page, site)
	if err != nil {
		logger.Warn(fmt.Sprintf("hero image extraction from %s failed: %v", site.HeroImageURL, err))
		res.Err = extractionError(err)
		return res
	}
	res.Filename = filename
	return res
}

func (e *Extractor) heroImage(ctx context.Context, page Page, site config.Site) (string, error) {
	if err := e.open(ctx, page, site.HeroImageURL, site.HeroImageLocator); err != nil {
		return "", err
	}
	doc, err := snapshot(ctx, page)
	if err != nil {
		return "", err
	}
	attr := site.HeroImageAttr
	if attr == "" {
		attr = "src"
	}
	values, err := doc.Attrs(site.HeroImageLocator, attr)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", types.ExtractionError{Err: fmt.Errorf("%s of %s: %w", attr, site.HeroImageLocator, types.ErrElementsNotFound)}
	}
	return ParseImageFilename(values[0]), nil
}
