package compare

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/dealerdiff/dealerdiff/internal/config"
	"github.com/dealerdiff/dealerdiff/internal/metrics"
	"github.com/dealerdiff/dealerdiff/internal/reconcile"
	"github.com/dealerdiff/dealerdiff/internal/report"
	"github.com/dealerdiff/dealerdiff/internal/session"
	"github.com/dealerdiff/dealerdiff/internal/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const (
	mfrEscapeURL    = "https://www.ford.ca/suvs/escape/"
	mfrBroncoURL    = "https://www.ford.ca/suvs/bronco-sport/"
	dealerEscapeURL = "https://fordtodealers.ca/ford-escape/"
	dealerBroncoURL = "https://fordtodealers.ca/ford-bronco-sport/"
	dealerHomeURL   = "https://fordtodealers.ca/"
	mfrHomeURL      = "https://www.ford.ca/"
)

var pages = map[string]string{
	mfrEscapeURL: `<html><body>
<div class="trim"><h3 class="name">Active</h3><span class="price">$35,000</span></div>
<div class="trim"><h3 class="name">ST-Line</h3><span class="price">$38,500</span></div>
<img class="hero" src="https://cdn.ford.ca/escape/escape-hero.jpg">
</body></html>`,
	mfrBroncoURL: `<html><body>
<div class="trim"><h3 class="name">Big Bend</h3><span class="price">$37,000</span></div>
<img class="hero" src="https://cdn.ford.ca/bronco/bronco-hero.jpg">
</body></html>`,
	dealerEscapeURL: `<html><body>
<li><span class="model">Active</span><span class="amount">$35,000</span></li>
<li><span class="model">ST-Line</span><span class="amount">$39,000</span></li>
</body></html>`,
	dealerBroncoURL: `<html><body>
<li><span class="model">Big Bend</span><span class="amount">$37,000</span></li>
</body></html>`,
	dealerHomeURL: `<html><body>
<button class="menu">Vehicles</button>
<div class="banner"><img src="https://fordtodealers.ca/media/escape-hero.webp"></div>
</body></html>`,
	mfrHomeURL: `<html><body><button class="nav">Vehicles</button></body></html>`,
}

var clicks = map[string]string{
	".nav#0":     `<html><body><a class="flyout">Escape</a><a class="flyout">Mustang®</a></body></html>`,
	".flyout#0":  `<html><body><span class="nav-name">Escape</span><span class="nav-price">$35,000</span></body></html>`,
	".menu#0":    `<html><body><a class="sub">ESCAPE</a><a class="sub">Bronco Sport</a></body></html>`,
	".sub#0":     `<html><body><span class="nav-name">Escape</span><span class="nav-price">$35,500</span></body></html>`,
	".missing#0": ``,
}

type fakeBrowser struct {
	html      string
	navigated map[string]int
	// dieAfter kills the browser after that many navigations, 0 means never.
	dieAfter int
	dead     bool
}

func (b *fakeBrowser) Navigate(ctx context.Context, url string) error {
	b.navigated[url]++
	total := 0
	for _, n := range b.navigated {
		total += n
	}
	if b.dieAfter > 0 && total >= b.dieAfter {
		b.dead = true
	}
	html, found := pages[url]
	if !found {
		return errors.New("net::ERR_NAME_NOT_RESOLVED")
	}
	b.html = html
	return nil
}

func (b *fakeBrowser) HTML(ctx context.Context) (string, error) {
	return b.html, nil
}

func (b *fakeBrowser) Click(ctx context.Context, locator string, index int) error {
	next, found := clicks[fmt.Sprintf("%s#%d", locator, index)]
	if !found {
		return fmt.Errorf("no element at index %d for locator %s", index, locator)
	}
	b.html = next
	return nil
}

func (b *fakeBrowser) Probe(ctx context.Context) error {
	if b.dead {
		return errors.New("no such window")
	}
	return nil
}

func (b *fakeBrowser) Close() error { return nil }

type fakeDriver struct {
	launched  []*fakeBrowser
	navigated map[string]int
	dieAfter  int
	err       error
}

func (d *fakeDriver) Launch(ctx context.Context, opts session.Options) (session.Browser, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.navigated == nil {
		d.navigated = map[string]int{}
	}
	b := &fakeBrowser{navigated: d.navigated}
	// only the first browser dies
	if len(d.launched) == 0 {
		b.dieAfter = d.dieAfter
	}
	d.launched = append(d.launched, b)
	return b, nil
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Global.SettleSeconds = 0
	cfg.Global.ClickDelayMS = 0
	cfg.Sources = config.SourcesConfig{Manufacturer: "Ford.ca", Dealer: "Fordtodealers.ca"}
	cfg.Report.ImageComparison = true
	cfg.Vehicles = []config.Vehicle{
		{
			Model: "ESCAPE",
			Manufacturer: config.Site{
				URL: mfrEscapeURL, NameLocator: ".trim .name", PriceLocator: ".trim .price",
				HeroImageURL: mfrEscapeURL, HeroImageLocator: "img.hero",
			},
			Dealer: config.Site{
				URL: dealerEscapeURL, NameLocator: ".model", PriceLocator: ".amount",
				HeroImageURL: dealerHomeURL, HeroImageLocator: ".banner img",
			},
		},
		{
			Model: "BRONCO® SPORT",
			Manufacturer: config.Site{
				URL: mfrBroncoURL, NameLocator: ".trim .name", PriceLocator: ".trim .price",
				HeroImageURL: mfrBroncoURL, HeroImageLocator: "img.hero",
			},
			Dealer: config.Site{
				URL: dealerBroncoURL, NameLocator: ".model", PriceLocator: ".amount",
				HeroImageURL: dealerHomeURL, HeroImageLocator: ".banner img",
			},
		},
	}
	return cfg
}

func newRunner(t *testing.T, cfg *config.Config, d *fakeDriver, m *metrics.Metrics) *Runner {
	t.Helper()
	mgr := session.NewManager(session.DefaultOptions(session.Chrome), d)
	mgr.OnInvalidate = func(error) { m.IncRecreation() }
	r, err := NewRunner(cfg, mgr, m)
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	return r
}

func TestRun(t *testing.T) {
	cfg := testConfig()
	d := &fakeDriver{}
	m := metrics.New()
	r := newRunner(t, cfg, d, m)

	rep, err := r.Run(context.Background(), cfg.EnabledVehicles())
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if len(d.launched) != 1 {
		t.Fatalf("expected a single browser session but got %d", len(d.launched))
	}
	if rep.Navigation != nil {
		t.Fatalf("navigation is skipped by default")
	}
	if len(rep.Vehicles) != 2 {
		t.Fatalf("expected 2 vehicle sections but got %d", len(rep.Vehicles))
	}
	expected := []reconcile.Row{
		{Model: "Active", ManufacturerPrice: "$35,000", DealerPrice: "$35,000", PriceDifference: "$0", Comparison: types.Match},
		{Model: "ST-Line", ManufacturerPrice: "$38,500", DealerPrice: "$39,000", PriceDifference: "-$500", Comparison: types.Mismatch},
	}
	if !reflect.DeepEqual(rep.Vehicles[0].Rows, expected) {
		t.Fatalf("expected %+v but got %+v", expected, rep.Vehicles[0].Rows)
	}
	if rep.Vehicles[1].Result() != types.AllMatch {
		t.Fatalf("expected the bronco section to match")
	}

	if len(rep.Images) != 2 {
		t.Fatalf("expected 2 image records but got %d", len(rep.Images))
	}
	if rep.Images[0].Comparison != types.Match || rep.Images[0].DealerFilename != "escape-hero.webp" {
		t.Fatalf("unexpected escape image record %+v", rep.Images[0])
	}
	if rep.Images[1].Comparison != types.Mismatch {
		t.Fatalf("expected the bronco image to mismatch, got %+v", rep.Images[1])
	}
	if n := d.navigated[dealerHomeURL]; n != 1 {
		t.Fatalf("expected the shared dealer hero page to be loaded once but got %d", n)
	}

	if got := testutil.ToFloat64(m.MismatchesTotal.WithLabelValues("vehicle")); got != 1 {
		t.Fatalf("expected 1 vehicle mismatch but got %v", got)
	}
	if got := testutil.ToFloat64(m.ExtractionsTotal.WithLabelValues("Ford.ca", "ok")); got != 4 {
		t.Fatalf("expected 4 manufacturer extractions but got %v", got)
	}
}

func TestRunExtractionErrorBecomesRow(t *testing.T) {
	cfg := testConfig()
	cfg.Report.ImageComparison = false
	cfg.Vehicles[0].Dealer.URL = "https://fordtodealers.ca/gone/"
	r := newRunner(t, cfg, &fakeDriver{}, nil)

	rep, err := r.Run(context.Background(), cfg.Vehicles[:1])
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	rows := rep.Vehicles[0].Rows
	last := rows[len(rows)-1]
	if last.Model != "Fordtodealers.ca Error" || last.ManufacturerPrice != reconcile.AbsentPrice {
		t.Fatalf("expected an error row for the dealer but got %+v", rows)
	}
	if rep.Images != nil {
		t.Fatalf("expected no image records when image comparison is disabled")
	}
}

func TestRunNavigation(t *testing.T) {
	cfg := testConfig()
	cfg.Report.ImageComparison = false
	cfg.Navigation = config.NavigationConfig{
		Models: []string{"Escape"},
		Manufacturer: config.NavSite{
			URL: mfrHomeURL, MainMenuLocator: ".nav", SubMenuLocator: ".flyout",
			NameLocator: ".nav-name", PriceLocator: ".nav-price",
		},
		Dealer: config.NavSite{
			URL: dealerHomeURL, MainMenuLocator: ".menu", SubMenuLocator: ".sub",
			NameLocator: ".nav-name", PriceLocator: ".nav-price",
		},
	}
	r := newRunner(t, cfg, &fakeDriver{}, nil)

	rep, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if rep.Navigation == nil {
		t.Fatalf("expected a navigation section")
	}
	expected := []reconcile.Row{
		{Model: "Escape", ManufacturerPrice: "$35,000", DealerPrice: "$35,500", PriceDifference: "-$500", Comparison: types.Mismatch},
	}
	if !reflect.DeepEqual(rep.Navigation.Rows, expected) {
		t.Fatalf("expected %+v but got %+v", expected, rep.Navigation.Rows)
	}
	if rep.Navigation.Name != report.NavigationSectionName {
		t.Fatalf("unexpected section name %q", rep.Navigation.Name)
	}
}

func TestRunRecreatesDeadSession(t *testing.T) {
	cfg := testConfig()
	cfg.Report.ImageComparison = false
	d := &fakeDriver{dieAfter: 1}
	m := metrics.New()
	r := newRunner(t, cfg, d, m)

	rep, err := r.Run(context.Background(), cfg.Vehicles[:1])
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if len(d.launched) != 2 {
		t.Fatalf("expected the session to be recreated once but got %d launches", len(d.launched))
	}
	if rep.Vehicles[0].Result() != types.SomeMismatch {
		t.Fatalf("expected the escape section to be complete")
	}
	if got := testutil.ToFloat64(m.SessionRecreations); got != 1 {
		t.Fatalf("expected 1 recreation but got %v", got)
	}
}

func TestRunSessionFailure(t *testing.T) {
	cfg := testConfig()
	r := newRunner(t, cfg, &fakeDriver{err: errors.New("chrome not found")}, nil)

	rep, err := r.Run(context.Background(), cfg.Vehicles)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if rep != nil {
		t.Fatalf("expected no report on session failure")
	}
	var dErr types.DriverInitializationError
	if !errors.As(err, &dErr) || !types.IsFatal(err) {
		t.Fatalf("expected a fatal driver initialization error but got %v", err)
	}
}
