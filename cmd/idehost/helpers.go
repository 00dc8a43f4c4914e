package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/musher-dev/idehost/internal/backend"
	"github.com/musher-dev/idehost/internal/config"
	clierrors "github.com/musher-dev/idehost/internal/errors"
	"github.com/musher-dev/idehost/internal/output"
	"github.com/musher-dev/idehost/internal/paths"
	"github.com/musher-dev/idehost/internal/profile"
	"github.com/musher-dev/idehost/internal/session"
)

// VersionInfo represents version information for JSON output.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// noArgs returns a Cobra positional-arg validator that rejects any arguments
// with a clear, user-friendly message (unlike cobra.NoArgs which says "unknown command").
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return &clierrors.CLIError{
			Message: fmt.Sprintf("'%s' accepts no arguments", cmd.CommandPath()),
			Hint:    fmt.Sprintf("Run '%s --help' for usage", cmd.CommandPath()),
			Code:    clierrors.ExitUsage,
		}
	}

	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show version information",
		Long:    `Display the idehost binary version, git commit, and build date.`,
		Example: `  idehost version`,
		Args:    noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			if out.JSON {
				return out.PrintJSON(VersionInfo{
					Version: version,
					Commit:  commit,
					Date:    date,
				})
			}

			out.Print("idehost %s\n", version)
			out.Print("  commit: %s\n", commit)
			out.Print("  built:  %s\n", date)

			return nil
		},
	}
}

func defaultLogFile() string {
	path, err := paths.DefaultLogFile()
	if err != nil {
		return ""
	}

	return path
}

// selfPath returns the running executable, used for profiles with entry "self".
func selfPath() string {
	self, err := os.Executable()
	if err != nil {
		return ""
	}

	return self
}

// loadProfiles returns the builtin profiles overlaid with the user's
// <config root>/profiles directory.
func loadProfiles() (*profile.Registry, error) {
	dir, err := paths.ProfilesDir()
	if err != nil {
		dir = ""
	}

	reg, err := profile.Load(dir)
	if err != nil {
		return nil, clierrors.Wrap(clierrors.ExitConfig, "Failed to load backend profiles", err).
			WithHint(fmt.Sprintf("Check the YAML files in %s", dir))
	}

	return reg, nil
}

// resolveLaunch applies flag overrides to the configured backend selection
// and resolves it against the profile registry.
func resolveLaunch(cfg *config.Config, reg *profile.Registry, profileName, entry string) (*profile.Launch, error) {
	sel := profile.Selection{
		Profile: cfg.BackendProfile(),
		Entry:   cfg.BackendEntry(),
		Args:    cfg.BackendArgs(),
	}

	if profileName != "" {
		sel.Profile = profileName
		sel.Entry = ""
		sel.Args = nil
	}

	if entry != "" {
		sel.Entry = entry
	}

	if sel.Entry == "" && sel.Profile == "" {
		return nil, clierrors.EntryRequired()
	}

	launch, err := reg.Resolve(sel, selfPath())
	if err != nil {
		var unknown *profile.UnknownProfileError
		if errors.As(err, &unknown) {
			return nil, clierrors.ProfileNotFound(unknown.Name, unknown.Known)
		}

		return nil, clierrors.BackendSpawnFailed(sel.Entry+sel.Profile, err)
	}

	return launch, nil
}

// windowError maps a window start failure to a CLIError with an exit code.
func windowError(err error) error {
	var (
		spawnErr   *backend.SpawnError
		timeoutErr *backend.ReadinessTimeoutError
	)

	switch {
	case errors.As(err, &spawnErr):
		return clierrors.BackendSpawnFailed(spawnErr.Path, err)
	case errors.As(err, &timeoutErr):
		return clierrors.BackendNotReady(timeoutErr.Timeout.String(), err)
	default:
		return clierrors.WindowStartFailed(err)
	}
}

// sessionError maps terminal session errors raised outside the RPC loop.
func sessionError(err error, rows, cols int) error {
	var invalid *session.ValidationError
	if errors.As(err, &invalid) {
		return clierrors.InvalidGeometry(rows, cols)
	}

	return clierrors.Wrap(clierrors.ExitExecution, "Terminal session failed to start", err)
}
