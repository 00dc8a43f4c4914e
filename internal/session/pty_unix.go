//go:build unix

package session

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

type creackPTY struct {
	ptmx  *os.File
	cmd   *exec.Cmd
	grace time.Duration

	exited   chan struct{}
	waitOnce sync.Once
	waitErr  error

	closeOnce sync.Once
	closeErr  error
}

// StartPTY starts req.Shell on a new pseudo-terminal.
func StartPTY(req SpawnRequest) (PTY, error) {
	cmd := exec.Command(req.Shell, req.Args...) //nolint:gosec // shell comes from operator configuration
	cmd.Dir = req.Dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.Env = append(cmd.Env, req.Env...)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: req.Rows, Cols: req.Cols})
	if err != nil {
		return nil, annotateStartPTYError(err, cmd.Path)
	}

	grace := req.KillGrace
	if grace <= 0 {
		grace = DefaultKillGrace
	}

	return &creackPTY{ptmx: ptmx, cmd: cmd, grace: grace, exited: make(chan struct{})}, nil
}

func (p *creackPTY) Read(b []byte) (int, error) {
	n, err := p.ptmx.Read(b)
	if errors.Is(err, syscall.EIO) {
		// Linux reports EIO once the child side hangs up.
		return n, os.ErrClosed
	}

	return n, err
}

func (p *creackPTY) Write(b []byte) (int, error) {
	return p.ptmx.Write(b)
}

func (p *creackPTY) Resize(rows, cols uint16) error {
	return pty.Setsize(p.ptmx, &pty.Winsize{Rows: rows, Cols: cols})
}

func (p *creackPTY) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		close(p.exited)
	})

	return p.waitErr
}

// Close closes the master side and hangs up the child's process group. A
// group still running after the grace period is killed. Close does not wait.
func (p *creackPTY) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.ptmx.Close()

		if p.cmd.Process == nil {
			return
		}

		p.signal(syscall.SIGHUP)

		time.AfterFunc(p.grace, func() {
			select {
			case <-p.exited:
			default:
				p.signal(syscall.SIGKILL)
			}
		})
	})

	return p.closeErr
}

// signal targets the child's session process group, falling back to the pid.
func (p *creackPTY) signal(sig syscall.Signal) {
	pid := p.cmd.Process.Pid
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		_ = p.cmd.Process.Signal(sig)
	}
}

func annotateStartPTYError(err error, binaryPath string) error {
	if !errors.Is(err, syscall.EPERM) {
		return err
	}

	return fmt.Errorf(
		"%w (EPERM during PTY start for %q; check executable permissions and filesystem noexec)",
		err,
		binaryPath,
	)
}
