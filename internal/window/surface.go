package window

import (
	"errors"
	"os/exec"
	"runtime"
	"sync"
)

// ErrSurfaceClosed is returned by Load on a closed surface.
var ErrSurfaceClosed = errors.New("surface closed")

// HeadlessSurface is an in-memory Surface. It records what a real toolkit
// window would display.
type HeadlessSurface struct {
	mu          sync.Mutex
	address     string
	visible     bool
	closed      bool
	onClosed    []func()
	openHandler func(string) OpenAction
}

// NewHeadlessSurface returns a hidden surface.
func NewHeadlessSurface() *HeadlessSurface {
	return &HeadlessSurface{}
}

func (s *HeadlessSurface) Load(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSurfaceClosed
	}

	s.address = address

	return nil
}

func (s *HeadlessSurface) Show() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.visible = true
	}
}

func (s *HeadlessSurface) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.visible
}

// Address returns the last loaded address.
func (s *HeadlessSurface) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.address
}

// Closed reports whether Close has run.
func (s *HeadlessSurface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

// Close hides the surface and runs the close callbacks once.
func (s *HeadlessSurface) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	s.closed = true
	s.visible = false
	callbacks := s.onClosed
	s.onClosed = nil
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

func (s *HeadlessSurface) OnClosed(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onClosed = append(s.onClosed, fn)
}

func (s *HeadlessSurface) SetWindowOpenHandler(fn func(string) OpenAction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.openHandler = fn
}

// RequestWindowOpen simulates page content asking for a new window. Without
// a handler the request is allowed, as a bare toolkit window would.
func (s *HeadlessSurface) RequestWindowOpen(target string) OpenAction {
	s.mu.Lock()
	handler := s.openHandler
	s.mu.Unlock()

	if handler == nil {
		return OpenAllow
	}

	return handler(target)
}

// SystemOpener opens locations with the platform's default handler.
type SystemOpener struct{}

func (SystemOpener) OpenExternal(target string) error {
	name, args := openCommand(runtime.GOOS, target)

	cmd := exec.Command(name, args...) //nolint:gosec // target is an http(s) URL vetted by the navigation policy
	if err := cmd.Start(); err != nil {
		return err
	}

	go func() { _ = cmd.Wait() }()

	return nil
}

func openCommand(goos, target string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{target}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}
	default:
		return "xdg-open", []string{target}
	}
}

var (
	_ Surface = (*HeadlessSurface)(nil)
	_ Opener  = SystemOpener{}
)
