package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/musher-dev/idehost/internal/config"
	clierrors "github.com/musher-dev/idehost/internal/errors"
	"github.com/musher-dev/idehost/internal/observability"
	"github.com/musher-dev/idehost/internal/output"
	"github.com/musher-dev/idehost/internal/rpc"
	"github.com/musher-dev/idehost/internal/session"
)

func newTerminalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "terminal",
		Short: "Run interactive terminal sessions",
		Long:  `Serve pseudo-terminal sessions to remote clients, or attach one locally.`,
	}

	cmd.AddCommand(newTerminalServeCmd())
	cmd.AddCommand(newTerminalRunCmd())

	return cmd
}

func newTerminalServeCmd() *cobra.Command {
	var (
		addr    string
		origins []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve terminal sessions over WebSocket",
		Long: `Listen for WebSocket clients on /terminal. Each connection owns one
pseudo-terminal session driven by init, onMessage, and resize requests.
The server stops on interrupt and tears down every live session.`,
		Example: `  idehost terminal serve
  idehost terminal serve --addr 127.0.0.1:9000 --origin "localhost:*"`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			logger := observability.FromContext(cmd.Context())
			cfg := config.Load()

			if addr == "" {
				addr = cfg.TerminalAddr()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := rpc.NewServer(rpc.Config{
				Addr: addr,
				Session: session.Config{
					Shell:     cfg.TerminalShell(),
					KillGrace: cfg.KillGrace(),
				},
				OriginPatterns: origins,
				Logger:         logger,
			})

			out.Info("Terminal endpoint listening on %s%s", addr, rpc.TerminalPath)
			out.Muted("Press Ctrl+C to stop")

			if err := srv.ListenAndServe(ctx); err != nil {
				return clierrors.TerminalServeFailed(addr, err)
			}

			out.Success("Terminal endpoint stopped")

			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from terminal.addr)")
	cmd.Flags().StringSliceVar(&origins, "origin", nil, "Allowed WebSocket origin pattern (repeatable)")

	return cmd
}

func newTerminalRunCmd() *cobra.Command {
	var rows, cols int

	cmd := &cobra.Command{
		Use:   "run [-- command [args...]]",
		Short: "Attach a local terminal session",
		Long: `Start a pseudo-terminal session and attach it to this terminal. Bytes
typed here are forwarded to the session and its output is written to
stdout. Without a command the configured terminal shell is started.
Without --rows and --cols the session follows this terminal's size.`,
		Example: `  idehost terminal run
  idehost terminal run --rows 40 --cols 120 -- htop`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.FromContext(cmd.Context())
			cfg := config.Load()

			sessCfg := session.Config{Shell: cfg.TerminalShell(), KillGrace: cfg.KillGrace(), Logger: logger}
			if len(args) > 0 {
				sessCfg.Shell, sessCfg.Args = args[0], args[1:]
			}

			fd := int(os.Stdin.Fd())

			// Explicit geometry stays fixed; otherwise track the terminal.
			followSize := rows == 0 || cols == 0
			if followSize {
				if w, h, err := term.GetSize(fd); err == nil {
					rows, cols = h, w
				} else {
					rows, cols = 24, 80
				}
			}

			bridge := session.NewBridge(sessCfg)
			bridge.Bind(session.ConsumerFunc(func(data []byte) {
				_, _ = os.Stdout.Write(data)
			}))

			cwd, _ := os.Getwd()
			if err := bridge.Init(rows, cols, cwd); err != nil {
				return sessionError(err, rows, cols)
			}
			defer bridge.Dispose()

			if term.IsTerminal(fd) {
				state, err := term.MakeRaw(fd)
				if err == nil {
					defer func() { _ = term.Restore(fd, state) }()
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()

			if followSize && term.IsTerminal(fd) {
				watchResize(ctx, fd, bridge, logger)
			}

			go pumpStdin(ctx, os.Stdin, bridge, logger)

			select {
			case <-bridge.Done():
			case <-ctx.Done():
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&rows, "rows", 0, "Terminal rows (default: current terminal)")
	cmd.Flags().IntVar(&cols, "cols", 0, "Terminal columns (default: current terminal)")

	return cmd
}

// pumpStdin forwards local input to the session until stdin closes.
func pumpStdin(ctx context.Context, in io.Reader, bridge *session.Bridge, logger *slog.Logger) {
	buf := make([]byte, 4096)

	for ctx.Err() == nil {
		n, err := in.Read(buf)
		if n > 0 {
			bridge.OnMessage(buf[:n])
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("stdin read failed", slog.String("error", err.Error()))
			}

			return
		}
	}
}

// followResize resizes the session to the local terminal on every signal
// until ctx ends. Sizes that cannot be read or applied are logged.
func followResize(
	ctx context.Context,
	sigs <-chan os.Signal,
	size func() (cols, rows int, err error),
	resize func(rows, cols int) error,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			cols, rows, err := size()
			if err != nil {
				logger.Debug("terminal size unavailable", slog.String("error", err.Error()))
				continue
			}

			if err := resize(rows, cols); err != nil {
				logger.Debug("session resize failed", slog.String("error", err.Error()))
			}
		}
	}
}
