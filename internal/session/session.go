// Package session bridges one pty-backed child process to at most one
// remote consumer.
package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/musher-dev/idehost/internal/observability"
)

const (
	maxDimension  = 65535
	readChunkSize = 16 * 1024
)

// DefaultKillGrace is how long a hung-up child may keep running before its
// process group is killed.
const DefaultKillGrace = 3 * time.Second

// ErrAlreadyInitialized is returned by Init while a session is live.
var ErrAlreadyInitialized = errors.New("session already initialized")

// ValidationError reports terminal geometry outside 1..65535.
type ValidationError struct {
	Field string
	Value int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %d: must be between 1 and %d", e.Field, e.Value, maxDimension)
}

// Consumer receives pty output, one call per chunk in arrival order.
type Consumer interface {
	OnMessage(data []byte)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(data []byte)

func (f ConsumerFunc) OnMessage(data []byte) { f(data) }

// PTY is a pseudo-terminal attached to a running child.
type PTY interface {
	io.ReadWriteCloser
	Resize(rows, cols uint16) error

	// Wait blocks until the child exits.
	Wait() error
}

// SpawnRequest describes the child to start on a new pty.
type SpawnRequest struct {
	Shell string
	Args  []string
	Env   []string
	Dir   string
	Rows  uint16
	Cols  uint16

	// KillGrace bounds the wait between hangup and SIGKILL on Close.
	KillGrace time.Duration
}

// SpawnFunc starts a pty-backed child.
type SpawnFunc func(req SpawnRequest) (PTY, error)

// Config configures a Bridge.
type Config struct {
	// Spawn defaults to StartPTY.
	Spawn SpawnFunc
	Shell string
	Args  []string
	Env   []string

	// KillGrace defaults to DefaultKillGrace.
	KillGrace time.Duration

	Logger *slog.Logger

	// OnExit is called when the child exits on its own.
	OnExit func(error)
}

type liveSession struct {
	pty  PTY
	cwd  string
	rows uint16
	cols uint16

	done      chan struct{}
	closeOnce sync.Once
}

func (s *liveSession) close() {
	s.closeOnce.Do(func() {
		_ = s.pty.Close()
		close(s.done)
	})
}

// Bridge owns at most one live session. Output is delivered to the bound
// consumer only; with no consumer bound it is dropped and counted.
type Bridge struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	sess     *liveSession
	last     *liveSession
	consumer Consumer

	writeMu sync.Mutex
	dropped atomic.Int64
}

// NewBridge returns an uninitialized Bridge.
func NewBridge(cfg Config) *Bridge {
	if cfg.Spawn == nil {
		cfg.Spawn = StartPTY
	}

	if cfg.Shell == "" {
		cfg.Shell = defaultShell()
	}

	return &Bridge{
		cfg:    cfg,
		logger: observability.Component(cfg.Logger, "session"),
	}
}

// Init starts the pty-backed child with the given geometry and working
// directory.
func (b *Bridge) Init(rows, cols int, cwd string) error {
	if err := validateGeometry(rows, cols); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sess != nil {
		return ErrAlreadyInitialized
	}

	p, err := b.cfg.Spawn(SpawnRequest{
		Shell: b.cfg.Shell,
		Args:  b.cfg.Args,
		Env:   b.cfg.Env,
		Dir:   cwd,
		Rows:  uint16(rows),
		Cols:  uint16(cols),

		KillGrace: b.cfg.KillGrace,
	})
	if err != nil {
		return fmt.Errorf("start pty: %w", err)
	}

	s := &liveSession{
		pty:  p,
		cwd:  cwd,
		rows: uint16(rows),
		cols: uint16(cols),
		done: make(chan struct{}),
	}
	b.sess = s
	b.last = s

	b.logger.Info(
		"session started",
		slog.String("event.type", "session.start"),
		slog.String("session.shell", b.cfg.Shell),
		slog.String("session.cwd", cwd),
		slog.Int("session.rows", rows),
		slog.Int("session.cols", cols),
	)

	go b.readLoop(s)

	return nil
}

// OnMessage writes data verbatim to the pty. Writes are serialized. Without
// a live session the call is logged and ignored.
func (b *Bridge) OnMessage(data []byte) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	s := b.current()
	if s == nil {
		b.logger.Debug("input without session", slog.Int("bytes", len(data)))
		return
	}

	for len(data) > 0 {
		n, err := s.pty.Write(data)
		if err != nil {
			b.logger.Debug("pty write failed", slog.String("error", err.Error()))
			return
		}

		data = data[n:]
	}
}

// Resize validates the geometry, then resizes the live pty. Without a live
// session it is a logged no-op.
func (b *Bridge) Resize(rows, cols int) error {
	if err := validateGeometry(rows, cols); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.sess
	if s == nil {
		b.logger.Debug("resize without session", slog.Int("session.rows", rows), slog.Int("session.cols", cols))
		return nil
	}

	if err := s.pty.Resize(uint16(rows), uint16(cols)); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}

	s.rows, s.cols = uint16(rows), uint16(cols)

	return nil
}

// Size returns the live session's geometry.
func (b *Bridge) Size() (rows, cols int, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sess == nil {
		return 0, 0, false
	}

	return int(b.sess.rows), int(b.sess.cols), true
}

// Bind makes c the single output consumer, replacing any previous one.
func (b *Bridge) Bind(c Consumer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consumer = c
}

// Unbind clears the consumer slot.
func (b *Bridge) Unbind() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consumer = nil
}

// Dispose tears down the live session, if any. It is idempotent.
func (b *Bridge) Dispose() {
	b.mu.Lock()
	s := b.sess
	b.sess = nil
	b.mu.Unlock()

	if s == nil {
		return
	}

	b.logger.Info("session disposed", slog.String("event.type", "session.dispose"))
	s.close()
}

// Done is closed when the most recent session ends, by Dispose or child
// exit. It is nil before the first Init.
func (b *Bridge) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.last == nil {
		return nil
	}

	return b.last.done
}

// Dropped returns the number of output chunks discarded with no consumer bound.
func (b *Bridge) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bridge) current() *liveSession {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.sess
}

func (b *Bridge) readLoop(s *liveSession) {
	buf := make([]byte, readChunkSize)

	for {
		n, err := s.pty.Read(buf)
		if n > 0 {
			b.deliver(append([]byte(nil), buf[:n]...))
		}

		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				b.logger.Debug("pty read ended", slog.String("error", err.Error()))
			}

			break
		}
	}

	waitErr := s.pty.Wait()

	b.mu.Lock()
	exited := b.sess == s
	if exited {
		b.sess = nil
	}
	b.mu.Unlock()

	s.close()

	if !exited {
		return
	}

	attrs := []any{slog.String("event.type", "session.exit")}
	if waitErr != nil {
		attrs = append(attrs, slog.String("error", waitErr.Error()))
	}

	b.logger.Info("session exited", attrs...)

	if b.cfg.OnExit != nil {
		b.cfg.OnExit(waitErr)
	}
}

func (b *Bridge) deliver(chunk []byte) {
	b.mu.Lock()
	c := b.consumer
	b.mu.Unlock()

	if c == nil {
		total := b.dropped.Add(1)
		b.logger.Debug("dropped output without consumer", slog.Int("bytes", len(chunk)), slog.Int64("session.dropped", total))

		return
	}

	c.OnMessage(chunk)
}

func validateGeometry(rows, cols int) error {
	if rows < 1 || rows > maxDimension {
		return &ValidationError{Field: "rows", Value: rows}
	}

	if cols < 1 || cols > maxDimension {
		return &ValidationError{Field: "cols", Value: cols}
	}

	return nil
}

func defaultShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}

	return "/bin/sh"
}
