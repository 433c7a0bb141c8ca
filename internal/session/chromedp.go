package session

import (
	"context"
	"fmt"
	"log/slog"

	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/dealerdiff/dealerdiff/internal/dom"
	"github.com/dealerdiff/dealerdiff/internal/log"
	"github.com/dealerdiff/dealerdiff/internal/types"
)

var edgePaths = []string{
	"microsoft-edge",
	"microsoft-edge-stable",
	"msedge",
	"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
	`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
	`C:\Program Files\Microsoft\Edge\Application\msedge.exe`,
}

// ChromedpDriver launches chromium based browsers (chrome, edge) through
// chromedp.
type ChromedpDriver struct{}

func (d *ChromedpDriver) Launch(ctx context.Context, o Options) (Browser, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("engine", "chromedp"))
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(o.WindowWidth, o.WindowHeight), // init with a desktop view (sometimes pages look different on mobile, eg buttons are missing)
		chromedp.Flag("headless", o.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	execPath := o.ExecPath
	if execPath == "" && o.Kind == Edge {
		p, err := lookPath(edgePaths)
		if err != nil {
			return nil, err
		}
		execPath = p
	}
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	if o.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(o.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	// The first Run starts the browser. It must not get a timeout context,
	// cancelling that context would kill the browser again.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, err
	}
	logger.Debug(fmt.Sprintf("launched %s (headless=%t, exec path=%q)", o.Kind, o.Headless, execPath))
	return &chromedpBrowser{
		opts:        o,
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}, nil
}

type chromedpBrowser struct {
	opts        Options
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

func (b *chromedpBrowser) Navigate(ctx context.Context, url string) error {
	tctx, cancel := withTimeout(b.ctx, ctx, b.opts.PageLoadTimeout)
	defer cancel()
	err := chromedp.Run(tctx, chromedp.Navigate(url))
	return timeoutError("page load", b.opts.PageLoadTimeout, err)
}

func (b *chromedpBrowser) HTML(ctx context.Context) (string, error) {
	tctx, cancel := withTimeout(b.ctx, ctx, b.opts.ScriptTimeout)
	defer cancel()
	var body string
	err := chromedp.Run(tctx, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := cdpdom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		body, err = cdpdom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))
	return body, timeoutError("reading document", b.opts.ScriptTimeout, err)
}

func (b *chromedpBrowser) Click(ctx context.Context, locator string, index int) error {
	tctx, cancel := withTimeout(b.ctx, ctx, b.opts.ScriptTimeout)
	defer cancel()
	var found bool
	script := fmt.Sprintf("(%s)()", dom.ClickScript(locator, index))
	if err := chromedp.Run(tctx, chromedp.Evaluate(script, &found)); err != nil {
		return timeoutError("click", b.opts.ScriptTimeout, err)
	}
	if !found {
		return types.ExtractionError{Err: fmt.Errorf("no element at index %d for locator %s", index, locator)}
	}
	return nil
}

// Probe lists the open targets of the browser, the cdp equivalent of
// enumerating window handles.
func (b *chromedpBrowser) Probe(ctx context.Context) error {
	pctx, cancel := withTimeout(b.ctx, ctx, b.opts.ProbeTimeout)
	defer cancel()
	_, err := chromedp.Targets(pctx)
	return err
}

func (b *chromedpBrowser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancelTab()
	b.cancelAlloc()
	return err
}
