package session

import (
	"context"
	"errors"
	"testing"

	"github.com/dealerdiff/dealerdiff/internal/types"
)

type fakeBrowser struct {
	dead   bool
	closed bool
	probes int
}

func (b *fakeBrowser) Navigate(ctx context.Context, url string) error { return nil }
func (b *fakeBrowser) HTML(ctx context.Context) (string, error)      { return "<html></html>", nil }
func (b *fakeBrowser) Click(ctx context.Context, locator string, index int) error {
	return nil
}

func (b *fakeBrowser) Probe(ctx context.Context) error {
	b.probes++
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.dead {
		return errors.New("no such window")
	}
	return nil
}

func (b *fakeBrowser) Close() error {
	b.closed = true
	return nil
}

type fakeDriver struct {
	launched []*fakeBrowser
	err      error
}

func (d *fakeDriver) Launch(ctx context.Context, opts Options) (Browser, error) {
	if d.err != nil {
		return nil, d.err
	}
	b := &fakeBrowser{}
	d.launched = append(d.launched, b)
	return b, nil
}

// kill invalidates the most recently launched browser.
func (d *fakeDriver) kill() {
	d.launched[len(d.launched)-1].dead = true
}

func TestAcquireReturnsSameSession(t *testing.T) {
	d := &fakeDriver{}
	m := NewManager(DefaultOptions(Chrome), d)
	if m.State() != Absent {
		t.Fatalf("expected state absent but got %s", m.State())
	}
	s1, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	s2, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if s1 != s2 {
		t.Fatalf("expected the same session but got %d and %d", s1.ID, s2.ID)
	}
	if len(d.launched) != 1 {
		t.Fatalf("expected one launch but got %d", len(d.launched))
	}
	if m.State() != Live {
		t.Fatalf("expected state live but got %s", m.State())
	}
}

func TestAcquireRecreatesInvalidSession(t *testing.T) {
	d := &fakeDriver{}
	m := NewManager(DefaultOptions(Firefox), d)
	invalidated := 0
	m.OnInvalidate = func(err error) { invalidated++ }

	s1, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	d.kill()
	s2, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if s1 == s2 || s2.ID != 2 {
		t.Fatalf("expected a new session")
	}
	if !d.launched[0].closed {
		t.Fatalf("expected the dead browser to be closed")
	}
	if m.Recreations() != 1 || invalidated != 1 {
		t.Fatalf("expected one recreation but got %d (hook %d)", m.Recreations(), invalidated)
	}
}

func TestAcquireGivesUpAfterMaxRetries(t *testing.T) {
	d := &fakeDriver{}
	m := NewManager(DefaultOptions(Chrome), d)
	invalidated := 0
	m.OnInvalidate = func(err error) { invalidated++ }
	if _, err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	for i := 1; i < 3; i++ {
		d.kill()
		if _, err := m.Acquire(context.Background()); err != nil {
			t.Fatalf("invalidation %d: got unexpected error: %v", i, err)
		}
	}
	d.kill()
	_, err := m.Acquire(context.Background())
	var initErr types.DriverInitializationError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected a DriverInitializationError but got %v", err)
	}
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted but got %v", err)
	}
	if m.State() != Dead {
		t.Fatalf("expected state dead but got %s", m.State())
	}
	// dead is terminal
	if _, err := m.Acquire(context.Background()); !errors.As(err, &initErr) {
		t.Fatalf("expected a DriverInitializationError but got %v", err)
	}
	if len(d.launched) != 3 {
		t.Fatalf("expected 3 launches but got %d", len(d.launched))
	}
	// the last invalidation is not followed by a new session
	if invalidated != 2 || m.Recreations() != 2 {
		t.Fatalf("expected 2 recreations but got %d (hook %d)", m.Recreations(), invalidated)
	}
}

func TestAcquireCancelledContext(t *testing.T) {
	d := &fakeDriver{}
	m := NewManager(DefaultOptions(Chrome), d)
	invalidated := 0
	m.OnInvalidate = func(err error) { invalidated++ }
	s1, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		if _, err := m.Acquire(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("acquire %d: expected context.Canceled but got %v", i, err)
		}
	}
	if len(d.launched) != 1 || d.launched[0].closed {
		t.Fatalf("expected the healthy browser to be kept, got %d launches", len(d.launched))
	}
	if m.State() != Live || m.Recreations() != 0 || invalidated != 0 {
		t.Fatalf("expected a live session without recreations but got %s, %d (hook %d)", m.State(), m.Recreations(), invalidated)
	}

	s2, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if s1 != s2 {
		t.Fatalf("expected the same session after cancellation")
	}
}

func TestAcquireContextCancelledDuringProbe(t *testing.T) {
	d := &fakeDriver{}
	m := NewManager(DefaultOptions(Chrome), d)
	if _, err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := d.launched[0]
	// cancel between the entry check and the probe
	m.current.Browser = &cancellingBrowser{fakeBrowser: b, cancel: cancel}
	if _, err := m.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled but got %v", err)
	}
	if b.closed || len(d.launched) != 1 || m.State() != Live {
		t.Fatalf("expected the session to survive a cancelled probe")
	}
}

type cancellingBrowser struct {
	*fakeBrowser
	cancel context.CancelFunc
}

func (b *cancellingBrowser) Probe(ctx context.Context) error {
	b.cancel()
	return b.fakeBrowser.Probe(ctx)
}

func TestAcquireResetsRetriesOnHealthyProbe(t *testing.T) {
	d := &fakeDriver{}
	m := NewManager(DefaultOptions(Edge), d)
	if _, err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	for i := 0; i < 6; i++ {
		d.kill()
		if _, err := m.Acquire(context.Background()); err != nil {
			t.Fatalf("invalidation %d: got unexpected error: %v", i, err)
		}
		// healthy probe in between
		if _, err := m.Acquire(context.Background()); err != nil {
			t.Fatalf("got unexpected error: %v", err)
		}
	}
	if m.State() != Live {
		t.Fatalf("expected state live but got %s", m.State())
	}
}

func TestAcquireLaunchFailure(t *testing.T) {
	d := &fakeDriver{err: errors.New("executable not found")}
	m := NewManager(DefaultOptions(Chrome), d)
	_, err := m.Acquire(context.Background())
	var initErr types.DriverInitializationError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected a DriverInitializationError but got %v", err)
	}
	if !types.IsFatal(err) {
		t.Fatalf("expected a fatal error")
	}
	if m.State() != Absent {
		t.Fatalf("expected state absent but got %s", m.State())
	}
}

func TestManagerClose(t *testing.T) {
	d := &fakeDriver{}
	m := NewManager(DefaultOptions(Chrome), d)
	if err := m.Close(); err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if _, err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if !d.launched[0].closed || m.State() != Absent {
		t.Fatalf("expected a closed browser and state absent")
	}
}

func TestParseDriverKind(t *testing.T) {
	tests := []struct {
		in      string
		want    DriverKind
		wantErr bool
	}{
		{"chrome", Chrome, false},
		{"Firefox", Firefox, false},
		{" edge ", Edge, false},
		{"safari", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDriverKind(tt.in)
		if tt.wantErr {
			var cfgErr types.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Errorf("%q: expected a ConfigurationError but got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: got unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("%q: expected %s but got %s", tt.in, tt.want, got)
		}
	}
}

func TestDriverFor(t *testing.T) {
	if d, _ := DriverFor(Edge); d == nil {
		t.Fatalf("expected a driver for edge")
	}
	if _, ok := mustDriver(t, Firefox).(*RodDriver); !ok {
		t.Fatalf("expected the rod driver for firefox")
	}
	if _, ok := mustDriver(t, Chrome).(*ChromedpDriver); !ok {
		t.Fatalf("expected the chromedp driver for chrome")
	}
	if _, err := New(Options{Kind: "opera"}); err == nil {
		t.Fatalf("expected an error for opera")
	}
}

func mustDriver(t *testing.T, k DriverKind) Driver {
	t.Helper()
	d, err := DriverFor(k)
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	return d
}
