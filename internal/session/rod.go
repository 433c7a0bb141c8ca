package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dealerdiff/dealerdiff/internal/dom"
	"github.com/dealerdiff/dealerdiff/internal/log"
	"github.com/dealerdiff/dealerdiff/internal/types"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

var firefoxPaths = []string{
	"firefox",
	"firefox-esr",
	"/Applications/Firefox.app/Contents/MacOS/firefox",
	`C:\Program Files\Mozilla Firefox\firefox.exe`,
}

// RodDriver launches firefox through go-rod, talking to the browser's
// remote agent. The page is wrapped with go-rod/stealth.
type RodDriver struct{}

func (d *RodDriver) Launch(ctx context.Context, o Options) (Browser, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("engine", "rod"))
	bin := o.ExecPath
	if bin == "" {
		p, err := lookPath(firefoxPaths)
		if err != nil {
			return nil, err
		}
		bin = p
	}

	l := launcher.New().
		Bin(bin).
		Headless(o.Headless).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("disable-extensions").
		Set("window-size", fmt.Sprintf("%d,%d", o.WindowWidth, o.WindowHeight))
	if o.UserAgent != "" {
		l = l.Set("user-agent", o.UserAgent)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect: %w", err)
	}
	page, err := stealth.Page(b)
	if err != nil {
		b.Close()
		l.Kill()
		return nil, fmt.Errorf("create page: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  o.WindowWidth,
		Height: o.WindowHeight,
	}); err != nil {
		logger.Debug(fmt.Sprintf("failed to set viewport: %v", err))
	}
	logger.Debug(fmt.Sprintf("launched %s (headless=%t, bin=%q)", o.Kind, o.Headless, bin))
	return &rodBrowser{
		opts:     o,
		browser:  b,
		page:     page,
		launcher: l,
	}, nil
}

type rodBrowser struct {
	opts     Options
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
}

func (b *rodBrowser) Navigate(ctx context.Context, url string) error {
	tctx, cancel := withTimeout(context.Background(), ctx, b.opts.PageLoadTimeout)
	defer cancel()
	p := b.page.Context(tctx)
	if err := p.Navigate(url); err != nil {
		return timeoutError("page load", b.opts.PageLoadTimeout, err)
	}
	return timeoutError("page load", b.opts.PageLoadTimeout, p.WaitLoad())
}

func (b *rodBrowser) HTML(ctx context.Context) (string, error) {
	tctx, cancel := withTimeout(context.Background(), ctx, b.opts.ScriptTimeout)
	defer cancel()
	body, err := b.page.Context(tctx).HTML()
	return body, timeoutError("reading document", b.opts.ScriptTimeout, err)
}

func (b *rodBrowser) Click(ctx context.Context, locator string, index int) error {
	tctx, cancel := withTimeout(context.Background(), ctx, b.opts.ScriptTimeout)
	defer cancel()
	res, err := b.page.Context(tctx).Eval(dom.ClickScript(locator, index))
	if err != nil {
		return timeoutError("click", b.opts.ScriptTimeout, err)
	}
	if !res.Value.Bool() {
		return types.ExtractionError{Err: fmt.Errorf("no element at index %d for locator %s", index, locator)}
	}
	return nil
}

func (b *rodBrowser) Probe(ctx context.Context) error {
	pctx, cancel := withTimeout(context.Background(), ctx, b.opts.ProbeTimeout)
	defer cancel()
	_, err := b.browser.Context(pctx).Pages()
	return err
}

func (b *rodBrowser) Close() error {
	err := b.browser.Close()
	b.launcher.Kill()
	b.launcher.Cleanup()
	return err
}
