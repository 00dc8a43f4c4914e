package backend

import (
	"log/slog"
	"time"

	"github.com/musher-dev/idehost/internal/observability"
)

const (
	defaultReadyTimeout = 30 * time.Second
	defaultKillGrace    = 3 * time.Second
	defaultOutputBuffer = 64
)

// Options configures a Process.
type Options struct {
	// EntryPath is the executable to spawn. Required.
	EntryPath string
	Args      []string

	// Env is appended to the inherited environment.
	Env []string
	Dir string

	ReadyTimeout time.Duration
	KillGrace    time.Duration

	// OutputBuffer is the number of queued output chunks per stream before
	// the child is back-pressured.
	OutputBuffer int

	Sink   observability.Sink
	Logger *slog.Logger

	// OnExit is called when a ready process exits on its own.
	OnExit func(error)

	// OnMessage receives structured envelopes from the backend.
	OnMessage func(Message)
}

func (o Options) withDefaults() Options {
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = defaultReadyTimeout
	}

	if o.KillGrace <= 0 {
		o.KillGrace = defaultKillGrace
	}

	if o.OutputBuffer <= 0 {
		o.OutputBuffer = defaultOutputBuffer
	}

	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	if o.Sink == nil {
		o.Sink = observability.NewSlogSink(o.Logger)
	}

	return o
}
