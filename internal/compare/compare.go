// Package compare runs a complete comparison: the navigation menu, every
// vehicle and optionally the hero images, one page at a time on a single
// browser session.
package compare

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dealerdiff/dealerdiff/internal/config"
	"github.com/dealerdiff/dealerdiff/internal/extract"
	"github.com/dealerdiff/dealerdiff/internal/log"
	"github.com/dealerdiff/dealerdiff/internal/metrics"
	"github.com/dealerdiff/dealerdiff/internal/reconcile"
	"github.com/dealerdiff/dealerdiff/internal/report"
	"github.com/dealerdiff/dealerdiff/internal/session"
	"github.com/dealerdiff/dealerdiff/internal/types"
	lru "github.com/hashicorp/golang-lru/v2"
)

const imageCacheSize = 128

// Sessions hands out the browser session used for every page.
type Sessions interface {
	Acquire(ctx context.Context) (*session.Session, error)
}

// Runner compares the manufacturer and the dealer website.
type Runner struct {
	cfg       *config.Config
	sessions  Sessions
	extractor *extract.Extractor
	metrics   *metrics.Metrics
	images    *lru.Cache[string, extract.ImageResult]
	now       func() time.Time
}

// NewRunner returns a Runner for cfg. m may be nil.
func NewRunner(cfg *config.Config, sessions Sessions, m *metrics.Metrics) (*Runner, error) {
	cache, err := lru.New[string, extract.ImageResult](imageCacheSize)
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:       cfg,
		sessions:  sessions,
		extractor: extract.NewExtractor(cfg.Global),
		metrics:   m,
		images:    cache,
		now:       time.Now,
	}, nil
}

// Run compares the navigation menu (unless skipped) and the given vehicles.
// Page level failures end up as rows of the report. The only errors
// returned are session failures, after which no report can be produced.
func (r *Runner) Run(ctx context.Context, vehicles []config.Vehicle) (rep *report.Report, err error) {
	start := r.now()
	defer func() {
		r.metrics.ObserveRun(start, err)
	}()
	logger := log.LoggerFromContext(ctx)

	rep = &report.Report{
		Title:            r.cfg.Report.Title,
		GeneratedAt:      start,
		ManufacturerName: r.cfg.Sources.Manufacturer,
		DealerName:       r.cfg.Sources.Dealer,
		Vehicles:         []report.PriceSection{},
		ImagesEnabled:    r.cfg.Report.ImageComparison,
	}

	if !r.cfg.Navigation.Skip {
		logger.Info("comparing navigation menu prices")
		section, err := r.navigation(ctx)
		if err != nil {
			return nil, err
		}
		rep.Navigation = &section
	}

	for _, v := range vehicles {
		vctx := log.ContextWithLogger(ctx, logger.With(slog.String("vehicle", v.Model)))
		logger.Info(fmt.Sprintf("comparing prices of %s", v.Model))
		section, err := r.vehicle(vctx, v)
		if err != nil {
			return nil, err
		}
		rep.Vehicles = append(rep.Vehicles, section)
	}

	if r.cfg.Report.ImageComparison {
		for _, v := range vehicles {
			vctx := log.ContextWithLogger(ctx, logger.With(slog.String("vehicle", v.Model)))
			record, err := r.image(vctx, v)
			if err != nil {
				return nil, err
			}
			rep.Images = append(rep.Images, record)
		}
	}

	for kind, n := range rep.Mismatches() {
		r.metrics.AddMismatches(kind, n)
	}
	logger.Info(fmt.Sprintf("comparison finished in %v", r.now().Sub(start).Round(time.Second)))
	return rep, nil
}

func (r *Runner) navigation(ctx context.Context) (report.PriceSection, error) {
	nav := r.cfg.Navigation
	wanted := append(append([]string{}, nav.Models...), nav.Categories...)
	extractFn := func(ctx context.Context, page extract.Page, src types.Source, name string) extract.Result {
		site := nav.Manufacturer
		if src == types.SourceDealer {
			site = nav.Dealer
		}
		return r.extractor.Navigation(ctx, page, src, name, site, wanted)
	}
	mfr, dealer, err := r.both(ctx, extractFn)
	if err != nil {
		return report.PriceSection{}, err
	}
	return report.PriceSection{
		Name:            report.NavigationSectionName,
		ManufacturerURL: nav.Manufacturer.URL,
		DealerURL:       nav.Dealer.URL,
		Rows:            reconcile.FromResults(mfr, dealer),
		Suggestions:     reconcile.Suggest(reconcile.Items(mfr), reconcile.Items(dealer)),
	}, nil
}

func (r *Runner) vehicle(ctx context.Context, v config.Vehicle) (report.PriceSection, error) {
	extractFn := func(ctx context.Context, page extract.Page, src types.Source, name string) extract.Result {
		site := v.Manufacturer
		if src == types.SourceDealer {
			site = v.Dealer
		}
		return r.extractor.Prices(ctx, page, src, name, site)
	}
	mfr, dealer, err := r.both(ctx, extractFn)
	if err != nil {
		return report.PriceSection{}, err
	}
	section := report.NewVehicleSection(v.Model, v.Manufacturer.URL, v.Dealer.URL, reconcile.FromResults(mfr, dealer))
	section.Suggestions = reconcile.Suggest(reconcile.Items(mfr), reconcile.Items(dealer))
	return section, nil
}

type extractFunc func(ctx context.Context, page extract.Page, src types.Source, sourceName string) extract.Result

// both runs fn for the manufacturer and then for the dealer, acquiring the
// session before each of them.
func (r *Runner) both(ctx context.Context, fn extractFunc) (extract.Result, extract.Result, error) {
	results := [2]extract.Result{}
	for i, src := range []types.Source{types.SourceManufacturer, types.SourceDealer} {
		s, err := r.sessions.Acquire(ctx)
		if err != nil {
			return extract.Result{}, extract.Result{}, err
		}
		res := fn(ctx, s, src, r.cfg.SourceName(src))
		r.metrics.IncExtraction(res.SourceName, res.OK())
		results[i] = res
	}
	return results[0], results[1], nil
}

func (r *Runner) image(ctx context.Context, v config.Vehicle) (reconcile.ImageRecord, error) {
	mfr, err := r.heroImage(ctx, types.SourceManufacturer, v.Manufacturer)
	if err != nil {
		return reconcile.ImageRecord{}, err
	}
	dealer, err := r.heroImage(ctx, types.SourceDealer, v.Dealer)
	if err != nil {
		return reconcile.ImageRecord{}, err
	}
	return reconcile.ImageFromResults(v.Model, mfr, dealer), nil
}

// heroImage reads a hero image, reusing earlier reads of the same page and
// locator. Failed reads are not cached.
func (r *Runner) heroImage(ctx context.Context, src types.Source, site config.Site) (extract.ImageResult, error) {
	key := site.HeroImageURL + "|" + site.HeroImageLocator + "|" + site.HeroImageAttr
	if res, found := r.images.Get(key); found {
		log.LoggerFromContext(ctx).Debug(fmt.Sprintf("reusing hero image of %s", site.HeroImageURL))
		return res, nil
	}
	s, err := r.sessions.Acquire(ctx)
	if err != nil {
		return extract.ImageResult{}, err
	}
	name := r.cfg.SourceName(src)
	res := r.extractor.HeroImage(ctx, s, src, name, site)
	r.metrics.IncExtraction(name, res.Err == nil)
	if res.Err == nil {
		r.images.Add(key, res)
	}
	return res, nil
}
