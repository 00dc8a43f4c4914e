//go:build !unix

package main

import (
	"github.com/spf13/cobra"

	clierrors "github.com/musher-dev/idehost/internal/errors"
)

func newWindowOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "open",
		Short:   "Start a backend and show its window",
		Long:    `Spawn a backend and show its window once ready. Requires a unix host.`,
		Example: `  idehost window open`,
		Args:    noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return clierrors.New(clierrors.ExitExecution, "Backend supervision requires a unix host")
		},
	}
}
