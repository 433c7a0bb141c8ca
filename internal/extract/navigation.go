package extract

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dealerdiff/dealerdiff/internal/config"
	"github.com/dealerdiff/dealerdiff/internal/log"
	"github.com/dealerdiff/dealerdiff/internal/types"
	"github.com/dealerdiff/dealerdiff/internal/utils"
)

// Navigation opens the main menu of nav.URL and reads the prices shown for
// every sub menu entry whose name is in wanted.
func (e *Extractor) Navigation(ctx context.Context, page Page, src types.Source, sourceName string, nav config.NavSite, wanted []string) Result {
	logger := log.LoggerFromContext(ctx).With(slog.String("source", sourceName))
	ctx = log.ContextWithLogger(ctx, logger)
	res := Result{Source: src, SourceName: sourceName}
	items, err := e.navigation(ctx, page, nav, wanted)
	if err != nil {
		logger.Warn(fmt.Sprintf("navigation extraction from %s failed: %v", nav.URL, err))
		res.Err = extractionError(err)
		return res
	}
	res.Items = items
	return res
}

func (e *Extractor) navigation(ctx context.Context, page Page, nav config.NavSite, wanted []string) ([]types.PricedItem, error) {
	logger := log.LoggerFromContext(ctx)
	want := map[string]bool{}
	for _, w := range wanted {
		want[utils.NormalizeLabel(w)] = true
	}

	if err := e.open(ctx, page, nav.URL, nav.MainMenuLocator); err != nil {
		return nil, err
	}
	if err := page.Click(ctx, nav.MainMenuLocator, 0); err != nil {
		return nil, err
	}
	if err := sleep(ctx, e.ClickDelay); err != nil {
		return nil, err
	}
	doc, err := snapshot(ctx, page)
	if err != nil {
		return nil, err
	}
	entries, err := doc.Texts(nav.SubMenuLocator)
	if err != nil {
		return nil, err
	}

	l := locators{name: nav.NameLocator, price: nav.PriceLocator}
	all := []types.PricedItem{}
	matched := 0
	for i, entry := range entries {
		if !want[utils.NormalizeLabel(entry)] {
			continue
		}
		matched++
		logger.Debug(fmt.Sprintf("opening menu entry %q", entry))
		if err := page.Click(ctx, nav.SubMenuLocator, i); err != nil {
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
	if matched == 0 {
		return nil, types.ExtractionError{Err: fmt.Errorf("menu entries %s: %w", nav.SubMenuLocator, types.ErrElementsNotFound)}
	}
	return Dedup(all), nil
}
