package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	clierrors "github.com/musher-dev/idehost/internal/errors"
	"github.com/musher-dev/idehost/internal/history"
	"github.com/musher-dev/idehost/internal/output"
	"github.com/musher-dev/idehost/internal/paths"
)

// openHistory opens the window history database at its default path.
func openHistory() (*history.Store, error) {
	path, err := paths.HistoryDB()
	if err != nil {
		return nil, err
	}

	return history.Open(path)
}

// runRecorder writes one window's lifecycle to history. A nil store makes
// every method a no-op, so recording never blocks a window from opening.
type runRecorder struct {
	store  *history.Store
	id     string
	logger *slog.Logger
}

func newRunRecorder(logger *slog.Logger, run history.Run) *runRecorder {
	store, err := openHistory()
	if err != nil {
		logger.Warn("window history disabled", slog.String("error", err.Error()))
		return &runRecorder{logger: logger}
	}

	r := &runRecorder{store: store, id: run.ID, logger: logger}
	r.check("begin", store.Begin(context.Background(), run))

	return r
}

func (r *runRecorder) visible(pid int) {
	if r.store == nil {
		return
	}

	r.check("visible", r.store.MarkVisible(context.Background(), r.id, pid, time.Now()))
}

func (r *runRecorder) ended(state string, cause error) {
	if r.store == nil {
		return
	}

	reason := ""
	if cause != nil {
		reason = cause.Error()
	}

	r.check("end", r.store.MarkEnded(context.Background(), r.id, state, reason, time.Now()))
}

func (r *runRecorder) close() {
	if r.store != nil {
		_ = r.store.Close()
	}
}

func (r *runRecorder) check(step string, err error) {
	if err != nil {
		r.logger.Warn("window history write failed",
			slog.String("window.id", r.id),
			slog.String("step", step),
			slog.String("error", err.Error()),
		)
	}
}

func newWindowListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent windows",
		Long: `Show recently opened windows, newest first, with the backend entry that
served each one and how it ended. Windows still open show no end time.`,
		Example: `  idehost window list
  idehost window list --limit 5 --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			store, err := openHistory()
			if err != nil {
				return clierrors.HistoryUnavailable(err)
			}
			defer store.Close()

			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return clierrors.HistoryUnavailable(err)
			}

			if runs == nil {
				runs = []history.Run{}
			}

			if out.JSON {
				return out.PrintJSON(runs)
			}

			if len(runs) == 0 {
				out.Info("No windows recorded")
				return nil
			}

			for _, run := range runs {
				out.Print("%-36s %-8s %s\n", run.ID, run.State, run.StartedAt.Local().Format(time.DateTime))
				out.Muted("  %s -> %s", run.Entry, run.Address)

				if run.EndReason != "" {
					out.Muted("  %s", run.EndReason)
				}
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of windows to show")

	return cmd
}

func newWindowPruneCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old window history",
		Long: `Remove closed windows that started longer ago than --older-than. Windows
that have not ended are kept.`,
		Example: `  idehost window prune
  idehost window prune --older-than 24h`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			store, err := openHistory()
			if err != nil {
				return clierrors.HistoryUnavailable(err)
			}
			defer store.Close()

			n, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return clierrors.HistoryUnavailable(err)
			}

			if out.JSON {
				return out.PrintJSON(map[string]int{"removed": n})
			}

			out.Success("Removed %d window(s)", n)

			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "Minimum age of removed entries")

	return cmd
}
