//go:build unix

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/musher-dev/idehost/internal/backend"
	"github.com/musher-dev/idehost/internal/config"
	clierrors "github.com/musher-dev/idehost/internal/errors"
	"github.com/musher-dev/idehost/internal/history"
	"github.com/musher-dev/idehost/internal/observability"
	"github.com/musher-dev/idehost/internal/output"
	"github.com/musher-dev/idehost/internal/window"
)

// openWindowMessage is sent by a backend that wants a new window for url.
const openWindowMessage = "window.open"

type openWindowPayload struct {
	URL string `json:"url"`
}

func newWindowOpenCmd() *cobra.Command {
	var (
		profileName  string
		entry        string
		address      string
		workspace    string
		readyTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "open",
		Short: "Start a backend and show its window",
		Long: `Spawn the backend selected by --entry, --profile, or configuration and
wait for it to signal readiness on its control channel. The window is shown
only after the backend is ready; a readiness timeout or early exit leaves it
hidden. The window and its backend stay up until interrupted or until the
backend exits.`,
		Example: `  idehost window open
  idehost window open --profile language-services --workspace ws-1
  idehost window open --entry ./bin/extension-host --ready-timeout 10s`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			logger := observability.FromContext(cmd.Context())
			cfg := config.Load()

			reg, err := loadProfiles()
			if err != nil {
				return err
			}

			launch, err := resolveLaunch(cfg, reg, profileName, entry)
			if err != nil {
				return err
			}

			if address == "" {
				address = cfg.WindowAddress()
			}

			if workspace == "" {
				workspace = cfg.WorkspaceID()
			}

			timeout := readyTimeout
			if timeout <= 0 {
				timeout = launch.ReadyTimeout
			}

			if timeout <= 0 {
				timeout = cfg.ReadyTimeout()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			surface := window.NewHeadlessSurface()

			var (
				exitMu  sync.Mutex
				exited  bool
				exitErr error
				current *backend.Process
			)

			opts := backend.Options{
				EntryPath:    launch.Path,
				Args:         launch.Args,
				Env:          launch.Env,
				ReadyTimeout: timeout,
				KillGrace:    cfg.KillGrace(),
				OutputBuffer: cfg.OutputBuffer(),
				Logger:       logger,
				OnExit: func(err error) {
					exitMu.Lock()
					exited, exitErr = true, err
					exitMu.Unlock()

					surface.Close()
				},
				OnMessage: func(msg backend.Message) {
					handleBackendMessage(surface, logger, msg)
				},
			}

			ctrl := window.New(window.Config{
				Address:     address,
				WorkspaceID: workspace,
				NewBackend: func() window.Backend {
					exitMu.Lock()
					defer exitMu.Unlock()

					current = backend.New(opts)

					return current
				},
				Surface: surface,
				Opener:  window.SystemOpener{},
				Logger:  logger,
			})
			defer ctrl.Dispose()

			rec := newRunRecorder(logger, history.Run{
				ID:        ctrl.ID(),
				Workspace: workspace,
				Entry:     launch.Path,
				Source:    launch.Source,
				Address:   address,
			})
			defer rec.close()

			sp := out.Spinner(fmt.Sprintf("Starting backend %s", launch.Path))
			sp.Start()

			if err := ctrl.Start(ctx); err != nil {
				sp.Fail("")
				rec.ended(history.StateFailed, err)

				return windowError(err)
			}

			exitMu.Lock()
			if current != nil {
				rec.visible(current.PID())
			}
			exitMu.Unlock()

			sp.Succeed(fmt.Sprintf("Window visible at %s", surface.Address()))
			out.Muted("Press Ctrl+C to close")

			select {
			case <-ctx.Done():
			case <-ctrl.Done():
			}

			ctrl.Dispose()

			exitMu.Lock()
			defer exitMu.Unlock()

			switch {
			case exitErr != nil:
				rec.ended(history.StateExited, exitErr)

				return clierrors.Wrap(clierrors.ExitBackend, "Backend exited unexpectedly", exitErr).
					WithHint("Rerun with --log-level=debug to see the backend output")
			case exited:
				rec.ended(history.StateExited, nil)
				out.Warning("Backend exited; window closed")
				return nil
			}

			rec.ended(history.StateClosed, nil)
			out.Success("Window closed")

			return nil
		},
	}

	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "Backend profile (default from backend.profile)")
	cmd.Flags().StringVarP(&entry, "entry", "e", "", "Backend executable, overriding the profile")
	cmd.Flags().StringVar(&address, "address", "", "Address loaded into the window")
	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace identifier")
	cmd.Flags().DurationVar(&readyTimeout, "ready-timeout", 0, "Backend readiness timeout")

	return cmd
}

// handleBackendMessage routes backend envelopes. Window requests go through
// the surface's navigation policy like any other new-window request.
func handleBackendMessage(surface *window.HeadlessSurface, logger *slog.Logger, msg backend.Message) {
	switch msg.Type {
	case openWindowMessage:
		var payload openWindowPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.URL == "" {
			logger.Warn("malformed window.open message", slog.String("payload", string(msg.Payload)))
			return
		}

		surface.RequestWindowOpen(payload.URL)
	default:
		logger.Debug("backend message", slog.String("message.type", msg.Type))
	}
}
