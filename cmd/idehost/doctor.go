package main

import (
	"github.com/spf13/cobra"

	"github.com/musher-dev/idehost/internal/config"
	"github.com/musher-dev/idehost/internal/doctor"
	clierrors "github.com/musher-dev/idehost/internal/errors"
	"github.com/musher-dev/idehost/internal/output"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose common issues",
		Long: `Run diagnostic checks that catch problems before a window or terminal
fails to start: the config file, the backend entry, the terminal shell,
pseudo-terminal allocation, and the terminal endpoint address.`,
		Example: `  idehost doctor
  idehost doctor --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			reg, err := loadProfiles()
			if err != nil {
				return err
			}

			runner := doctor.New(doctor.Options{
				Config:   config.Load(),
				Profiles: reg,
				Self:     selfPath(),
			})
			results := runner.Run(cmd.Context())
			passed, failed, warnings := doctor.Summary(results)

			if out.JSON {
				if err := out.PrintJSON(results); err != nil {
					return err
				}
			} else {
				renderDoctor(out, results, passed, failed, warnings)
			}

			if failed > 0 {
				return &clierrors.CLIError{
					Message: "Some checks failed",
					Hint:    "Fix the failed checks above and rerun 'idehost doctor'",
					Code:    clierrors.ExitGeneral,
				}
			}

			return nil
		},
	}
}

func renderDoctor(out *output.Writer, results []doctor.Result, passed, failed, warnings int) {
	out.Println("idehost doctor")
	out.Println("==============")
	out.Println()

	doctor.RenderResults(results, out.Print, out.Success, out.Warning, out.Failure, out.Muted)

	out.Println()
	out.Print("%d passed", passed)

	if failed > 0 {
		out.Print(", %d failed", failed)
	}

	if warnings > 0 {
		out.Print(", %d warning(s)", warnings)
	}

	out.Println()
}
