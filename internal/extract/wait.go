package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/dealerdiff/dealerdiff/internal/dom"
	"github.com/dealerdiff/dealerdiff/internal/log"
)

// A WaitPolicy decides how long to wait after a navigation before the page
// is read.
type WaitPolicy interface {
	// Wait blocks until the page is considered settled. ready is the
	// locator whose presence indicates that the content has rendered.
	Wait(ctx context.Context, page Page, ready string) error
}

// FixedDelay waits for a fixed duration regardless of the page. Slow pages
// can still be read too early.
type FixedDelay struct {
	D time.Duration
}

func (f FixedDelay) Wait(ctx context.Context, page Page, ready string) error {
	return sleep(ctx, f.D)
}

// PollCount polls the rendered document until ready matches at least one
// element. Hitting the timeout is not an error, the extraction that
// follows reports missing elements itself.
type PollCount struct {
	Interval time.Duration
	Timeout  time.Duration
}

func (p PollCount) Wait(ctx context.Context, page Page, ready string) error {
	interval := p.Interval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	deadline := time.Now().Add(p.Timeout)
	for {
		body, err := page.HTML(ctx)
		if err == nil {
			if doc, err := dom.Parse(body); err == nil {
				if n, _ := doc.Count(ready); n > 0 {
					return nil
				}
			}
		}
		if !time.Now().Before(deadline) {
			log.LoggerFromContext(ctx).Debug(fmt.Sprintf("no match for %s after %v, continuing", ready, p.Timeout))
			return nil
		}
		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
