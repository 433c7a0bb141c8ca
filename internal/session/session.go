// Package session owns the single long lived browser automation session.
//
// The Manager creates the session lazily, probes it before every use and
// recreates it when the browser died, up to a fixed number of consecutive
// failures.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dealerdiff/dealerdiff/internal/log"
	"github.com/dealerdiff/dealerdiff/internal/types"
)

// DriverKind is the browser family used for the whole process.
type DriverKind string

const (
	Chrome  DriverKind = "chrome"
	Firefox DriverKind = "firefox"
	Edge    DriverKind = "edge"
)

var driverKinds = []DriverKind{Chrome, Firefox, Edge}

// ParseDriverKind returns the DriverKind for s. Unsupported kinds result in
// a ConfigurationError.
func ParseDriverKind(s string) (DriverKind, error) {
	k := DriverKind(strings.ToLower(strings.TrimSpace(s)))
	for _, dk := range driverKinds {
		if k == dk {
			return k, nil
		}
	}
	return "", types.ConfigurationError{Err: fmt.Errorf("invalid driver kind %q, use 'chrome', 'firefox' or 'edge'", s)}
}

// Browser is one live browser automation connection.
type Browser interface {
	// Navigate loads url, bounded by the page load timeout.
	Navigate(ctx context.Context, url string) error
	// HTML returns a snapshot of the rendered document.
	HTML(ctx context.Context) (string, error)
	// Click dispatches a synthetic click on the index-th element matching locator.
	Click(ctx context.Context, locator string, index int) error
	// Probe is a cheap no-op used to check that the session is still alive.
	Probe(ctx context.Context) error
	Close() error
}

// Options are the startup options applied when a browser is launched. They
// are fixed for the process and not tunable per call.
type Options struct {
	Kind            DriverKind
	Headless        bool
	ExecPath        string
	UserAgent       string
	WindowWidth     int
	WindowHeight    int
	PageLoadTimeout time.Duration
	ScriptTimeout   time.Duration
	ProbeTimeout    time.Duration
	MaxRetries      int
}

// DefaultOptions returns the engineering defaults for kind.
func DefaultOptions(kind DriverKind) Options {
	return Options{
		Kind:            kind,
		Headless:        true,
		WindowWidth:     1920,
		WindowHeight:    1080,
		PageLoadTimeout: 60 * time.Second,
		ScriptTimeout:   30 * time.Second,
		ProbeTimeout:    5 * time.Second,
		MaxRetries:      3,
	}
}

// Driver launches browsers of one kind.
type Driver interface {
	Launch(ctx context.Context, opts Options) (Browser, error)
}

// DriverFunc adapts a function to the Driver interface.
type DriverFunc func(ctx context.Context, opts Options) (Browser, error)

func (f DriverFunc) Launch(ctx context.Context, opts Options) (Browser, error) {
	return f(ctx, opts)
}

// DriverFor returns the automation engine for kind.
func DriverFor(kind DriverKind) (Driver, error) {
	switch kind {
	case Chrome, Edge:
		return &ChromedpDriver{}, nil
	case Firefox:
		return &RodDriver{}, nil
	default:
		return nil, types.ConfigurationError{Err: fmt.Errorf("invalid driver kind %q", kind)}
	}
}

// Session is a live browser handed out by the Manager. Callers borrow it for
// the duration of one extraction and must not keep it.
type Session struct {
	Browser
	ID   int
	Kind DriverKind
}

// State is the lifecycle state of the managed session.
type State int

const (
	Absent State = iota
	Creating
	Live
	Invalid
	Dead
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Creating:
		return "creating"
	case Live:
		return "live"
	case Invalid:
		return "invalid"
	case Dead:
		return "dead"
	}
	return "unknown"
}

// ErrRetriesExhausted is returned once the session died too often.
var ErrRetriesExhausted = errors.New("browser session kept dying, giving up")

// Manager hands out the single browser session of the process.
type Manager struct {
	opts   Options
	driver Driver

	// OnInvalidate is called whenever a dead session is discarded and a
	// new one is about to be launched.
	OnInvalidate func(err error)

	mu          sync.Mutex
	current     *Session
	state       State
	retries     int
	recreations int
	nextID      int
}

// NewManager returns a Manager launching sessions through driver.
func NewManager(opts Options, driver Driver) *Manager {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	return &Manager{
		opts:   opts,
		driver: driver,
	}
}

// New returns a Manager for the engine matching opts.Kind.
func New(opts Options) (*Manager, error) {
	kind, err := ParseDriverKind(string(opts.Kind))
	if err != nil {
		return nil, err
	}
	opts.Kind = kind
	d, err := DriverFor(kind)
	if err != nil {
		return nil, err
	}
	return NewManager(opts, d), nil
}

// Acquire returns a live session, creating or recreating it if needed.
// Calling Acquire twice without the session dying in between returns the
// same *Session.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	logger := log.LoggerFromContext(ctx).With(slog.String("driver", string(m.opts.Kind)))

	if m.state == Dead {
		return nil, types.DriverInitializationError{Err: ErrRetriesExhausted}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if m.current != nil {
		probeCtx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
		err := m.current.Probe(probeCtx)
		cancel()
		if err == nil {
			m.retries = 0
			return m.current, nil
		}
		// a cancelled caller says nothing about the browser
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn(fmt.Sprintf("browser session is no longer valid: %v", err))
		m.state = Invalid
		if cerr := m.current.Close(); cerr != nil {
			logger.Debug(fmt.Sprintf("error while closing dead session: %v", cerr))
		}
		m.current = nil
		m.retries++
		if m.retries >= m.opts.MaxRetries {
			m.state = Dead
			logger.Error(fmt.Sprintf("browser session died %d times in a row", m.retries))
			return nil, types.DriverInitializationError{Err: ErrRetriesExhausted}
		}
		if m.OnInvalidate != nil {
			m.OnInvalidate(err)
		}
		logger.Info("recreating browser session")
		m.recreations++
	}

	m.state = Creating
	b, err := m.driver.Launch(ctx, m.opts)
	if err != nil {
		m.state = Absent
		return nil, types.DriverInitializationError{Err: fmt.Errorf("failed to launch %s: %w", m.opts.Kind, err)}
	}
	m.nextID++
	m.current = &Session{
		Browser: b,
		ID:      m.nextID,
		Kind:    m.opts.Kind,
	}
	m.state = Live
	logger.Debug(fmt.Sprintf("started browser session %d", m.nextID))
	return m.current, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Recreations returns how many times a dead session has been replaced.
func (m *Manager) Recreations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recreations
}

// Close tears down the live session, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	err := m.current.Close()
	m.current = nil
	if m.state != Dead {
		m.state = Absent
	}
	return err
}

// withTimeout derives a context bounded by d that is also cancelled when
// parent is. Engines run their commands on their own long lived context,
// so the caller's cancellation has to be forwarded explicitly.
func withTimeout(engineCtx, parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(engineCtx, d)
	stop := context.AfterFunc(parent, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// timeoutError turns deadline errors into extraction errors so that callers
// can tell a slow page apart from a broken session.
func timeoutError(op string, d time.Duration, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.ExtractionError{Err: fmt.Errorf("%s timed out after %v: %w", op, d, err)}
	}
	return err
}
