//go:build unix

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/musher-dev/idehost/internal/backend"
	clierrors "github.com/musher-dev/idehost/internal/errors"
)

func newBackendStubCmd() *cobra.Command {
	var (
		role  string
		delay time.Duration
	)

	cmd := &cobra.Command{
		Use:    "stub",
		Short:  "Run the built-in stub backend",
		Hidden: true,
		Long: `Act as a minimal backend: open the inherited control channel, optionally
wait, signal readiness, then echo every envelope back until the supervisor
closes the channel or sends SIGTERM. The builtin profiles launch this.`,
		Example: `  idehost backend stub --role extension-host`,
		Args:    noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			child, err := backend.OpenChild()
			if err != nil {
				return clierrors.Wrap(clierrors.ExitBackend, "No control channel", err).
					WithHint("The stub backend must be started by 'idehost window open'")
			}
			defer child.Close()

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGTERM, os.Interrupt)
			defer signal.Stop(sigs)

			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-sigs:
					return nil
				}
			}

			if err := child.NotifyReady(); err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "stub backend ready role=%s pid=%d\n", role, os.Getpid())

			hello, _ := json.Marshal(map[string]any{"role": role, "pid": os.Getpid()})
			if err := child.Send(backend.Message{Type: "hello", Payload: hello}); err != nil {
				return err
			}

			done := make(chan error, 1)
			go func() {
				done <- child.Receive(func(msg backend.Message) {
					_ = child.Send(backend.Message{Type: "echo", Payload: mustJSON(msg)})
				})
			}()

			select {
			case err := <-done:
				return err
			case sig := <-sigs:
				fmt.Fprintf(os.Stderr, "stub backend stopping on %s\n", sig)
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&role, "role", "stub", "Role reported in the hello message")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Wait before signaling readiness")

	return cmd
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}

	return data
}
