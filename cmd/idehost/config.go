package main

import (
	"slices"

	"github.com/spf13/cobra"

	"github.com/musher-dev/idehost/internal/config"
	clierrors "github.com/musher-dev/idehost/internal/errors"
	"github.com/musher-dev/idehost/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `View and modify idehost configuration settings.`,
	}

	cmd.AddCommand(newConfigListCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		Long: `Display every recognized configuration key with its effective value,
after defaults, the config file, and IDEHOST_* environment variables are applied.`,
		Example: `  idehost config list
  idehost config list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			return out.KeyValues(effectiveSettings(config.Load()))
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <key>",
		Short:   "Get a configuration value",
		Long:    `Retrieve and display the current value of a single configuration key.`,
		Example: `  idehost config get backend.ready_timeout`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key := args[0]

			if !slices.Contains(config.Keys, key) {
				return clierrors.UnknownConfigKey(key, config.Keys)
			}

			value := config.Load().Get(key)
			if value == nil {
				out.Muted("%s is not set", key)
				return nil
			}

			out.Print("%s = %v\n", key, value)

			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  `Set a configuration key to the given value. The value is persisted to the config file.`,
		Example: `  idehost config set backend.profile language-services
  idehost config set terminal.addr 127.0.0.1:9000`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key, value := args[0], args[1]

			if !slices.Contains(config.Keys, key) {
				return clierrors.UnknownConfigKey(key, config.Keys)
			}

			if err := config.Load().Set(key, value); err != nil {
				return clierrors.ConfigFailed("set config", err)
			}

			out.Success("Set %s = %s", key, value)

			return nil
		},
	}
}

// effectiveSettings returns every known key, including unset ones as "".
func effectiveSettings(cfg *config.Config) map[string]any {
	settings := make(map[string]any, len(config.Keys))

	for _, key := range config.Keys {
		value := cfg.Get(key)
		if value == nil {
			value = ""
		}

		settings[key] = value
	}

	return settings
}
