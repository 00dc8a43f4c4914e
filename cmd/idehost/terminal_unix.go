//go:build unix

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/musher-dev/idehost/internal/session"
)

// watchResize keeps the session geometry in step with the terminal on fd.
func watchResize(ctx context.Context, fd int, bridge *session.Bridge, logger *slog.Logger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGWINCH)

	go func() {
		defer signal.Stop(sigs)

		followResize(ctx, sigs, func() (int, int, error) { return term.GetSize(fd) }, bridge.Resize, logger)
	}()
}
