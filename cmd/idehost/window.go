package main

import "github.com/spf13/cobra"

func newWindowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "window",
		Short: "Manage IDE windows",
		Long:  `Open IDE windows, each backed by its own backend process, and review
the windows opened before.`,
	}

	cmd.AddCommand(newWindowOpenCmd())
	cmd.AddCommand(newWindowListCmd())
	cmd.AddCommand(newWindowPruneCmd())

	return cmd
}
