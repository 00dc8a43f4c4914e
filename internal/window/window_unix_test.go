//go:build unix

package window

import (
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/musher-dev/idehost/internal/backend"
)

func TestStart_RealBackendTimeoutStaysHidden(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}

	surface := NewHeadlessSurface()
	ctrl := New(Config{
		Address: "http://127.0.0.1:8000/",
		NewBackend: func() Backend {
			return backend.New(backend.Options{
				EntryPath:    sleep,
				Args:         []string{"30"},
				ReadyTimeout: 200 * time.Millisecond,
				KillGrace:    time.Second,
			})
		},
		Surface: surface,
	})
	t.Cleanup(ctrl.Dispose)

	err = ctrl.Start(t.Context())

	var timeoutErr *backend.ReadinessTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Start() error = %v, want *ReadinessTimeoutError", err)
	}

	if surface.Visible() {
		t.Fatal("surface visible without a ready backend")
	}
}

func TestStart_RealBackendMissingEntry(t *testing.T) {
	surface := NewHeadlessSurface()
	ctrl := New(Config{
		NewBackend: func() Backend {
			return backend.New(backend.Options{EntryPath: "/nonexistent/idehost-backend"})
		},
		Surface: surface,
	})
	t.Cleanup(ctrl.Dispose)

	var spawnErr *backend.SpawnError
	if err := ctrl.Start(t.Context()); !errors.As(err, &spawnErr) {
		t.Fatalf("Start() error = %v, want *SpawnError", err)
	}

	if surface.Visible() {
		t.Fatal("surface visible after spawn failure")
	}
}
