// Package window sequences a window's backend readiness before its UI
// surface becomes visible.
package window

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/musher-dev/idehost/internal/backend"
	"github.com/musher-dev/idehost/internal/observability"
)

const tracerName = "github.com/musher-dev/idehost/internal/window"

// ErrDisposed is returned by Start on a disposed controller, and by a Start
// that was overtaken by Dispose or a newer Start.
var ErrDisposed = errors.New("window disposed")

// Backend is the supervised process a window depends on.
type Backend interface {
	Start(ctx context.Context) error
	Dispose()
}

// OpenAction is a surface's answer to a new-window request.
type OpenAction int

const (
	OpenAllow OpenAction = iota
	OpenDeny
)

// Surface is the UI surface owned by a window.
type Surface interface {
	Load(address string) error
	Show()
	Close()
	Visible() bool

	// OnClosed registers fn to run when the surface closes.
	OnClosed(fn func())

	// SetWindowOpenHandler installs the policy for new-window requests.
	SetWindowOpenHandler(fn func(target string) OpenAction)
}

// Opener hands a location to the system's default handler.
type Opener interface {
	OpenExternal(target string) error
}

// State is the lifecycle state of a Controller.
type State int

const (
	StateHidden State = iota
	StateStarting
	StateVisible
	StateFailed
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateHidden:
		return "hidden"
	case StateStarting:
		return "starting"
	case StateVisible:
		return "visible"
	case StateFailed:
		return "failed"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Config configures a Controller.
type Config struct {
	Address     string
	WorkspaceID string

	// NewBackend constructs a fresh backend for every Start.
	NewBackend func() Backend

	Surface Surface
	Opener  Opener
	Logger  *slog.Logger
}

// Controller owns one backend and one surface. The surface is shown only
// after the backend reports ready.
type Controller struct {
	cfg    Config
	id     string
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	backend Backend
	lastErr error

	done     chan struct{}
	doneOnce sync.Once
}

// New returns a hidden Controller and subscribes it to the surface's close
// event.
func New(cfg Config) *Controller {
	id := uuid.NewString()

	c := &Controller{
		cfg: cfg,
		id:  id,
		logger: observability.Component(cfg.Logger, "window").With(
			slog.String("window.id", id),
			slog.String("window.workspace", cfg.WorkspaceID),
		),
		done: make(chan struct{}),
	}

	cfg.Surface.OnClosed(c.Dispose)

	return c
}

// Start disposes any previous backend, starts a fresh one, and shows the
// surface once it is ready. On failure the surface stays hidden, the error
// is logged and recorded, and it is returned.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateDisposed {
		c.mu.Unlock()
		return ErrDisposed
	}

	previous := c.backend
	b := c.cfg.NewBackend()
	c.backend = b
	c.state = StateStarting
	c.lastErr = nil
	c.mu.Unlock()

	if previous != nil {
		previous.Dispose()
	}

	ctx, span := observability.StartSpan(ctx, tracerName, "window.start",
		attribute.String("window.id", c.id),
		attribute.String("window.workspace", c.cfg.WorkspaceID),
	)

	err := b.Start(ctx)
	if err == nil {
		err = c.show(b)
	}

	if err != nil {
		c.recordFailure(b, err)
	}

	observability.EndSpan(span, err)

	return err
}

func (c *Controller) show(b Backend) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateStarting || c.backend != b {
		return ErrDisposed
	}

	if err := c.cfg.Surface.Load(c.cfg.Address); err != nil {
		return err
	}

	c.cfg.Surface.SetWindowOpenHandler(c.handleWindowOpen)
	c.cfg.Surface.Show()
	c.state = StateVisible

	c.logger.Info(
		"window visible",
		slog.String("event.type", "window.visible"),
		slog.String("window.address", c.cfg.Address),
	)

	return nil
}

func (c *Controller) recordFailure(b Backend, err error) {
	c.mu.Lock()
	current := c.state == StateStarting && c.backend == b
	if current {
		c.state = StateFailed
		c.lastErr = err
		c.backend = nil
	}
	c.mu.Unlock()

	if !current {
		c.logger.Debug("superseded window start ended", slog.String("error", err.Error()))
		return
	}

	// The backend may have reached ready before the surface failed to load.
	b.Dispose()

	c.logger.Error(
		"window failed to start",
		slog.String("event.type", "window.start.error"),
		slog.String("error.kind", errorKind(err)),
		slog.String("error", err.Error()),
	)
}

// handleWindowOpen prevents every new window. Web locations are handed to
// the system opener instead.
func (c *Controller) handleWindowOpen(target string) OpenAction {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		c.logger.Debug("blocked new window", slog.String("window.target", target))
		return OpenDeny
	}

	if c.cfg.Opener == nil {
		c.logger.Warn("no external opener configured", slog.String("window.target", target))
		return OpenDeny
	}

	if err := c.cfg.Opener.OpenExternal(target); err != nil {
		c.logger.Warn(
			"open external location failed",
			slog.String("window.target", target),
			slog.String("error", err.Error()),
		)
	}

	return OpenDeny
}

// Dispose disposes the backend and closes the surface. It is idempotent and
// also runs when the surface reports it closed.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.state == StateDisposed {
		c.mu.Unlock()
		return
	}

	c.state = StateDisposed
	b := c.backend
	c.backend = nil
	c.mu.Unlock()

	c.logger.Info("disposing window", slog.String("event.type", "window.dispose"))

	if b != nil {
		b.Dispose()
	}

	c.cfg.Surface.Close()
	c.doneOnce.Do(func() { close(c.done) })
}

// Done is closed once the controller is disposed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Err returns the error of the last failed Start, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastErr
}

// ID returns the controller's log correlation id.
func (c *Controller) ID() string {
	return c.id
}

// WorkspaceID returns the configured workspace id.
func (c *Controller) WorkspaceID() string {
	return c.cfg.WorkspaceID
}

func errorKind(err error) string {
	var (
		spawnErr   *backend.SpawnError
		timeoutErr *backend.ReadinessTimeoutError
	)

	switch {
	case errors.As(err, &timeoutErr):
		return "readiness_timeout"
	case errors.As(err, &spawnErr):
		return "spawn"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
