// Package extract reads (label, price) pairs and hero images from rendered
// pages. Every failure is returned inside the result, nothing propagates to
// the caller.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dealerdiff/dealerdiff/internal/config"
	"github.com/dealerdiff/dealerdiff/internal/dom"
	"github.com/dealerdiff/dealerdiff/internal/log"
	"github.com/dealerdiff/dealerdiff/internal/types"
	"github.com/dealerdiff/dealerdiff/internal/utils"
	"golang.org/x/time/rate"
)

// Page is the part of a browser session the extractor needs.
type Page interface {
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	Click(ctx context.Context, locator string, index int) error
}

// Result is the outcome of one extraction. Either Items or Err is set.
type Result struct {
	Source     types.Source
	SourceName string
	Items      []types.PricedItem
	Err        error
}

// OK reports whether the extraction succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Extractor runs the extraction protocol against a page.
type Extractor struct {
	Wait       WaitPolicy
	ClickDelay time.Duration
	// Limiter throttles navigations. nil means no limit.
	Limiter *rate.Limiter
}

// NewExtractor returns an Extractor configured from g.
func NewExtractor(g config.GlobalConfig) *Extractor {
	e := &Extractor{
		Wait:       FixedDelay{D: g.SettleDuration()},
		ClickDelay: g.ClickDelay(),
	}
	if g.WaitStrategy == config.WaitStrategyPoll {
		e.Wait = PollCount{Timeout: g.WaitTimeout()}
	}
	if iv := g.NavigationInterval(); iv > 0 {
		e.Limiter = rate.NewLimiter(rate.Every(iv), 1)
	}
	return e
}

type locators struct {
	name          string
	price         string
	firstLineOnly bool
}

// Prices extracts the priced items of site. When site has a buttons
// locator, every carousel control is clicked and each panel is read.
func (e *Extractor) Prices(ctx context.Context, page Page, src types.Source, sourceName string, site config.Site) Result {
	logger := log.LoggerFromContext(ctx).With(slog.String("source", sourceName))
	ctx = log.ContextWithLogger(ctx, logger)
	res := Result{Source: src, SourceName: sourceName}
	items, err := e.prices(ctx, page, site)
	if err != nil {
		logger.Warn(fmt.Sprintf("price extraction from %s failed: %v", site.URL, err))
		res.Err = extractionError(err)
		return res
	}
	logger.Debug(fmt.Sprintf("extracted %d items from %s", len(items), site.URL))
	res.Items = items
	return res
}

func (e *Extractor) prices(ctx context.Context, page Page, site config.Site) ([]types.PricedItem, error) {
	l := locators{name: site.NameLocator, price: site.PriceLocator, firstLineOnly: site.FirstLineOnly}
	if err := e.open(ctx, page, site.URL, site.NameLocator); err != nil {
		return nil, err
	}
	if site.ButtonsLocator == "" {
		items, err := e.singlePage(ctx, page, l)
		if err != nil {
			return nil, err
		}
		return Dedup(items), nil
	}

	doc, err := snapshot(ctx, page)
	if err != nil {
		return nil, err
	}
	n, err := doc.Count(site.ButtonsLocator)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, types.ExtractionError{Err: fmt.Errorf("carousel controls %s: %w", site.ButtonsLocator, types.ErrElementsNotFound)}
	}
	all := []types.PricedItem{}
	for i := 0; i < n; i++ {
		if err := page.Click(ctx, site.ButtonsLocator, i); err != nil {
			return nil, err
		}
		if err := sleep(ctx, e.ClickDelay); err != nil {
			return nil, err
		}
		items, err := e.singlePage(ctx, page, l)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	return Dedup(all), nil
}

// open navigates to url and waits for the page to settle.
func (e *Extractor) open(ctx context.Context, page Page, url, ready string) error {
	if e.Limiter != nil {
		if err := e.Limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if err := page.Navigate(ctx, url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if e.Wait == nil {
		return nil
	}
	return e.Wait.Wait(ctx, page, ready)
}

func (e *Extractor) singlePage(ctx context.Context, page Page, l locators) ([]types.PricedItem, error) {
	doc, err := snapshot(ctx, page)
	if err != nil {
		return nil, err
	}
	labels, err := doc.Texts(l.name)
	if err != nil {
		return nil, err
	}
	values, err := doc.Texts(l.price)
	if err != nil {
		return nil, err
	}
	if len(labels) == 0 || len(values) == 0 {
		return nil, types.ExtractionError{Err: types.ErrElementsNotFound}
	}
	if l.firstLineOnly {
		for i := range labels {
			labels[i] = utils.FirstLine(labels[i])
		}
	}
	return Pair(labels, values), nil
}

func snapshot(ctx context.Context, page Page) (*dom.Document, error) {
	body, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return dom.Parse(body)
}

// Pair zips labels and values by position. The result is as long as the
// shorter list, surplus elements are dropped. Pairs with a blank side are
// skipped.
func Pair(labels, values []string) []types.PricedItem {
	n := min(len(labels), len(values))
	items := make([]types.PricedItem, 0, n)
	for i := 0; i < n; i++ {
		label := strings.TrimSpace(labels[i])
		price := strings.TrimSpace(values[i])
		if label == "" || price == "" {
			continue
		}
		items = append(items, types.PricedItem{Label: label, Price: price})
	}
	return items
}

// Dedup removes repeated (label, price) pairs. The first occurrence wins
// and the order is kept.
func Dedup(items []types.PricedItem) []types.PricedItem {
	seen := map[types.PricedItem]bool{}
	result := make([]types.PricedItem, 0, len(items))
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		result = append(result, it)
	}
	return result
}

func extractionError(err error) error {
	var ee types.ExtractionError
	if errors.As(err, &ee) {
		return err
	}
	return types.ExtractionError{Err: err}
}
