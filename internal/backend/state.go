package backend

import (
	"context"
	"sync"
)

// State is the lifecycle state of a Process.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateReady
	StateFailed
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// readiness is the single-shot result of one start attempt. Every caller
// joining the attempt waits on the same value.
type readiness struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newReadiness() *readiness {
	return &readiness{done: make(chan struct{})}
}

func (r *readiness) resolve(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// wait blocks until the attempt resolves or ctx is done.
func (r *readiness) wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
