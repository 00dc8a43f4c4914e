package main

import (
	"github.com/spf13/cobra"

	"github.com/musher-dev/idehost/internal/output"
)

func newBackendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Inspect backend profiles",
		Long:  `List backend profiles and run the built-in stub backend.`,
	}

	cmd.AddCommand(newBackendListCmd())
	cmd.AddCommand(newBackendStubCmd())

	return cmd
}

// ProfileInfo is the JSON shape of one backend profile.
type ProfileInfo struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Entry        string   `json:"entry"`
	Args         []string `json:"args,omitempty"`
	ReadyTimeout string   `json:"readyTimeout,omitempty"`
	Source       string   `json:"source"`
}

func newBackendListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backend profiles",
		Long: `Show the builtin backend profiles together with any defined in the
profiles directory under the idehost config root. User profiles override
builtin ones with the same name.`,
		Example: `  idehost backend list
  idehost backend list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			reg, err := loadProfiles()
			if err != nil {
				return err
			}

			infos := make([]ProfileInfo, 0, len(reg.Names()))
			for _, name := range reg.Names() {
				p, _ := reg.Get(name)
				infos = append(infos, ProfileInfo{
					Name:         p.Name,
					Description:  p.Description,
					Entry:        p.Entry,
					Args:         p.Args,
					ReadyTimeout: p.ReadyTimeout,
					Source:       p.Source,
				})
			}

			if out.JSON {
				return out.PrintJSON(infos)
			}

			for _, info := range infos {
				out.Print("%-20s %s\n", info.Name, info.Description)
				out.Muted("  %s (%s)", info.Entry, info.Source)
			}

			return nil
		},
	}
}
