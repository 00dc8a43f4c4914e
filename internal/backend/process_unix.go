//go:build unix

package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/musher-dev/idehost/internal/observability"
)

const tracerName = "github.com/musher-dev/idehost/internal/backend"

// controlCloseGrace is how long a control-channel hangup waits for the
// process exit to be observed, so a dying child reports ErrExitedBeforeReady.
const controlCloseGrace = 250 * time.Millisecond

// Process supervises at most one backend OS process at a time.
type Process struct {
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	state State
	gen   uint64
	h     *handle
	ready *readiness

	// Process control hooks (injectable for tests).
	startCmd    func(*exec.Cmd) error
	killProcess func(pid int, sig syscall.Signal) error
}

// handle owns one spawned OS process and its channels.
type handle struct {
	gen     uint64
	cmd     *exec.Cmd
	pid     int
	tag     string
	control net.Conn
	stdin   io.WriteCloser

	controlMu sync.Mutex
	stdinMu   sync.Mutex

	stdout *chunkWriter
	stderr *chunkWriter

	// exited is closed by the wait goroutine once cmd.Wait returns.
	exited chan struct{}

	timer      *time.Timer
	stopCancel func() bool
}

// New returns an Idle Process.
func New(opts Options) *Process {
	opts = opts.withDefaults()

	return &Process{
		opts:        opts,
		logger:      observability.Component(opts.Logger, "backend").With(slog.String("backend.entry", opts.EntryPath)),
		startCmd:    (*exec.Cmd).Start,
		killProcess: syscall.Kill,
	}
}

// Start spawns the backend and blocks until it is ready. Concurrent callers
// during Starting, and callers after Ready, join the current attempt without
// spawning. From Idle, Failed or Disposed a fresh process is spawned.
//
// Canceling the initiating ctx before readiness fails the attempt and
// releases the process. A joining caller's ctx only bounds its own wait.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateStarting || p.state == StateReady {
		r := p.ready
		p.mu.Unlock()

		return r.wait(ctx)
	}

	stale := p.h
	p.h = nil
	p.gen++
	gen := p.gen
	r := newReadiness()
	p.ready = r
	p.state = StateStarting
	p.mu.Unlock()

	if stale != nil {
		p.release(stale)
	}

	ctx, span := observability.StartSpan(ctx, tracerName, "backend.start",
		attribute.String("backend.entry", p.opts.EntryPath),
	)

	if err := p.spawn(ctx, gen); err != nil {
		p.fail(gen, err)
	}

	// Resolution is guaranteed by the readiness timer, the ctx watcher,
	// the exit watcher, or Dispose.
	<-r.done
	observability.EndSpan(span, r.err)

	return r.err
}

func (p *Process) spawn(ctx context.Context, gen uint64) error {
	entry := p.opts.EntryPath
	if entry == "" {
		return &SpawnError{Path: entry, Err: errors.New("entry path is empty")}
	}

	control, childEnd, err := controlPair()
	if err != nil {
		return &SpawnError{Path: entry, Err: err}
	}

	cmd := exec.Command(entry, p.opts.Args...) //nolint:gosec // entry comes from operator configuration
	cmd.Dir = p.opts.Dir
	cmd.Env = append(os.Environ(), p.opts.Env...)
	cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%d", ControlFDEnv, controlFD))
	cmd.ExtraFiles = []*os.File{childEnd}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = p.opts.KillGrace

	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = control.Close()
		_ = childEnd.Close()

		return &SpawnError{Path: entry, Err: err}
	}

	stdout := newChunkWriter(p.opts.OutputBuffer)
	stderr := newChunkWriter(p.opts.OutputBuffer)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	startErr := p.startCmd(cmd)
	_ = childEnd.Close()

	if startErr != nil {
		_ = control.Close()
		stdout.close()
		stderr.close()

		return &SpawnError{Path: entry, Err: startErr}
	}

	pid := cmd.Process.Pid
	h := &handle{
		gen:     gen,
		cmd:     cmd,
		pid:     pid,
		tag:     fmt.Sprintf("%s:%d", filepath.Base(entry), pid),
		control: control,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
		exited:  make(chan struct{}),
	}

	go p.forward(stdout, func(text string) { p.opts.Sink.Log(h.tag, text) })
	go p.forward(stderr, func(text string) { p.opts.Sink.Error(fmt.Sprintf("[%s] %s", h.tag, text)) })

	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		go p.wait(h)
		p.release(h)

		return ErrDisposed
	}

	p.h = h
	h.timer = time.AfterFunc(p.opts.ReadyTimeout, func() {
		p.fail(gen, &ReadinessTimeoutError{Path: entry, Timeout: p.opts.ReadyTimeout})
	})
	h.stopCancel = context.AfterFunc(ctx, func() {
		p.fail(gen, context.Cause(ctx))
	})
	p.mu.Unlock()

	p.logger.Info(
		"backend spawned",
		slog.String("event.type", "backend.spawn"),
		slog.Int("backend.pid", pid),
	)

	go p.readControl(h)
	go p.wait(h)

	return nil
}

// Dispose terminates the process group (SIGTERM, then SIGKILL after
// KillGrace) and rejects pending waiters with ErrDisposed. It is a no-op on
// a never-started or already disposed Process.
func (p *Process) Dispose() {
	p.mu.Lock()
	if p.state == StateIdle || p.state == StateDisposed {
		p.mu.Unlock()
		return
	}

	h := p.h
	p.h = nil
	p.gen++
	p.state = StateDisposed
	r := p.ready
	p.mu.Unlock()

	if h != nil {
		p.logger.Info(
			"disposing backend",
			slog.String("event.type", "backend.dispose"),
			slog.Int("backend.pid", h.pid),
		)
		p.release(h)
	}

	if r != nil {
		r.resolve(ErrDisposed)
	}
}

// Send writes a structured envelope to the backend's control channel.
func (p *Process) Send(msg Message) error {
	h := p.live()
	if h == nil {
		return ErrNotRunning
	}

	data, err := encodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode control message: %w", err)
	}

	h.controlMu.Lock()
	defer h.controlMu.Unlock()

	if _, err := h.control.Write(data); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrNotRunning
		}

		return fmt.Errorf("write control channel: %w", err)
	}

	return nil
}

// WriteStdin writes p to the backend's standard input.
func (p *Process) WriteStdin(b []byte) (int, error) {
	h := p.live()
	if h == nil {
		return 0, ErrNotRunning
	}

	h.stdinMu.Lock()
	defer h.stdinMu.Unlock()

	n, err := h.stdin.Write(b)
	if err != nil {
		if errors.Is(err, os.ErrClosed) {
			return n, ErrNotRunning
		}

		return n, fmt.Errorf("write backend stdin: %w", err)
	}

	return n, nil
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// PID returns the live process id, or 0.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.h == nil {
		return 0
	}

	return p.h.pid
}

func (p *Process) live() *handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateStarting && p.state != StateReady {
		return nil
	}

	return p.h
}

func (p *Process) markReady(h *handle) {
	p.mu.Lock()
	if p.h != h || p.state != StateStarting {
		p.mu.Unlock()
		return
	}

	p.state = StateReady
	h.stopTimers()
	r := p.ready
	p.mu.Unlock()

	p.logger.Info(
		"backend ready",
		slog.String("event.type", "backend.ready"),
		slog.Int("backend.pid", h.pid),
	)

	r.resolve(nil)
}

// fail resolves attempt gen with err and releases its process. Stale
// generations and non-starting states are ignored.
func (p *Process) fail(gen uint64, err error) {
	p.mu.Lock()
	if p.gen != gen || p.state != StateStarting {
		p.mu.Unlock()
		return
	}

	p.state = StateFailed
	h := p.h
	p.h = nil
	r := p.ready
	p.mu.Unlock()

	p.logger.Warn(
		"backend start failed",
		slog.String("event.type", "backend.start.error"),
		slog.String("error", err.Error()),
	)

	if h != nil {
		p.release(h)
	}

	r.resolve(err)
}

func (p *Process) handleExit(h *handle, waitErr error) {
	p.mu.Lock()
	if p.h != h {
		p.mu.Unlock()
		return
	}

	switch p.state {
	case StateStarting:
		p.mu.Unlock()

		cause := ErrExitedBeforeReady
		if waitErr != nil {
			cause = fmt.Errorf("%w: %w", ErrExitedBeforeReady, waitErr)
		}

		p.fail(h.gen, &SpawnError{Path: p.opts.EntryPath, Err: cause})
	case StateReady:
		p.state = StateFailed
		p.h = nil
		p.mu.Unlock()

		p.release(h)

		attrs := []any{
			slog.String("event.type", "backend.exit"),
			slog.Int("backend.pid", h.pid),
		}
		if waitErr != nil {
			attrs = append(attrs, slog.String("error", waitErr.Error()))
		}

		p.logger.Warn("backend exited", attrs...)

		if p.opts.OnExit != nil {
			p.opts.OnExit(waitErr)
		}
	default:
		p.mu.Unlock()
	}
}

// wait is the only caller of cmd.Wait.
func (p *Process) wait(h *handle) {
	err := h.cmd.Wait()

	h.stdout.close()
	h.stderr.close()
	close(h.exited)

	p.handleExit(h, err)
}

func (p *Process) readControl(h *handle) {
	scanner := newControlScanner(h.control)
	for scanner.Scan() {
		kind, msg := parseControlLine(scanner.Bytes())

		switch kind {
		case lineReady:
			p.markReady(h)
		case lineMessage:
			if p.opts.OnMessage != nil {
				p.opts.OnMessage(msg)
			} else {
				p.logger.Debug("unhandled control message", slog.String("message.type", msg.Type))
			}
		case lineOpaque:
			p.opts.Sink.Log(h.tag, scanner.Text())
		case lineEmpty:
		}
	}

	if !p.starting(h) {
		return
	}

	select {
	case <-h.exited:
		return
	case <-time.After(controlCloseGrace):
	}

	cause := ErrControlClosed
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		cause = fmt.Errorf("%w: %w", ErrControlClosed, err)
	}

	p.fail(h.gen, &SpawnError{Path: p.opts.EntryPath, Err: cause})
}

func (p *Process) starting(h *handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.h == h && p.state == StateStarting
}

func (p *Process) forward(w *chunkWriter, emit func(string)) {
	for chunk := range w.ch {
		emit(string(chunk))
	}
}

// release terminates h's process group and closes its channels. It blocks
// until the process is reaped or the kill grace runs out twice.
func (p *Process) release(h *handle) {
	h.stopTimers()

	defer func() {
		_ = h.control.Close()
		_ = h.stdin.Close()
	}()

	select {
	case <-h.exited:
		return
	default:
	}

	p.signal(h, syscall.SIGTERM)

	select {
	case <-h.exited:
		return
	case <-time.After(p.opts.KillGrace):
	}

	p.logger.Warn(
		"backend ignored SIGTERM, killing",
		slog.String("event.type", "backend.kill"),
		slog.Int("backend.pid", h.pid),
	)
	p.signal(h, syscall.SIGKILL)

	select {
	case <-h.exited:
	case <-time.After(p.opts.KillGrace):
		p.logger.Error(
			"backend did not exit after SIGKILL",
			slog.String("event.type", "backend.kill.error"),
			slog.Int("backend.pid", h.pid),
		)
	}
}

// signal targets the process group first and falls back to the pid.
func (p *Process) signal(h *handle, sig syscall.Signal) {
	err := p.killProcess(-h.pid, sig)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return
	}

	if err = p.killProcess(h.pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Warn(
			"signal backend failed",
			slog.String("event.type", "backend.signal.error"),
			slog.Int("backend.pid", h.pid),
			slog.String("signal", sig.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (h *handle) stopTimers() {
	if h.timer != nil {
		h.timer.Stop()
	}

	if h.stopCancel != nil {
		h.stopCancel()
	}
}
