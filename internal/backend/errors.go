package backend

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDisposed rejects readiness waiters when the process is disposed mid-start.
	ErrDisposed = errors.New("backend disposed")

	// ErrNotRunning is returned by I/O on a process without a live handle.
	ErrNotRunning = errors.New("backend not running")

	// ErrControlClosed reports the control channel closing before readiness.
	ErrControlClosed = errors.New("control channel closed before ready")

	// ErrExitedBeforeReady reports the process exiting before readiness.
	ErrExitedBeforeReady = errors.New("backend exited before ready")

	// ErrNoControlChannel is returned on the child side when IDEHOST_CONTROL_FD is absent.
	ErrNoControlChannel = errors.New("no control channel: " + ControlFDEnv + " not set")
)

// SpawnError reports that the backend could not be brought up: the OS
// refused to create the process, or the process died or hung up before it
// signaled readiness.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn backend %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ReadinessTimeoutError reports that no readiness sentinel arrived in time.
type ReadinessTimeoutError struct {
	Path    string
	Timeout time.Duration
}

func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("backend %s not ready after %s", e.Path, e.Timeout)
}
