//go:build !unix

package main

import (
	"github.com/spf13/cobra"

	clierrors "github.com/musher-dev/idehost/internal/errors"
)

func newBackendStubCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "stub",
		Short:   "Run the built-in stub backend",
		Hidden:  true,
		Long:    `Act as a minimal backend. Requires a unix host.`,
		Example: `  idehost backend stub`,
		Args:    noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return clierrors.New(clierrors.ExitExecution, "The stub backend requires a unix host")
		},
	}
}
