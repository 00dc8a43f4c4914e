//go:build !unix

package main

import (
	"context"
	"log/slog"

	"github.com/musher-dev/idehost/internal/session"
)

// watchResize is a no-op without SIGWINCH.
func watchResize(context.Context, int, *session.Bridge, *slog.Logger) {}
