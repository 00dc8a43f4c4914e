package main

import (
	"fmt"
	"regexp"
	"strings"
	"testing"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// commandRule reports a convention violation for cmd, or "" when it complies.
type commandRule func(cmd *cobra.Command) string

var kebabFlag = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`)

// TestCommandConventions walks the whole command tree so new commands cannot
// ship without help text, examples, or argument validation.
func TestCommandConventions(t *testing.T) {
	rules := []struct {
		name string
		rule commandRule
	}{
		{"runnable commands have Example", func(cmd *cobra.Command) string {
			if cmd.Runnable() && strings.TrimSpace(cmd.Example) == "" {
				return "missing Example"
			}
			return ""
		}},
		{"runnable commands have Long", func(cmd *cobra.Command) string {
			if cmd.Runnable() && strings.TrimSpace(cmd.Long) == "" {
				return "missing Long"
			}
			return ""
		}},
		{"runnable commands have Args", func(cmd *cobra.Command) string {
			if cmd.Runnable() && cmd.Args == nil {
				return "missing Args validator"
			}
			return ""
		}},
		{"Long has no embedded examples", func(cmd *cobra.Command) string {
			if strings.Contains(cmd.Long, "Example:") || strings.Contains(cmd.Long, "```") {
				return "example embedded in Long"
			}
			return ""
		}},
		{"Short is concise", func(cmd *cobra.Command) string {
			if len(cmd.Short) > 60 {
				return fmt.Sprintf("Short is %d chars", len(cmd.Short))
			}
			return ""
		}},
		{"Short style", func(cmd *cobra.Command) string {
			if cmd.Short == "" {
				return ""
			}
			if !unicode.IsUpper([]rune(cmd.Short)[0]) {
				return fmt.Sprintf("Short starts lowercase: %q", cmd.Short)
			}
			if strings.HasSuffix(cmd.Short, ".") {
				return fmt.Sprintf("Short ends with period: %q", cmd.Short)
			}
			return ""
		}},
		{"flags are kebab-case", func(cmd *cobra.Command) string {
			var bad []string
			cmd.Flags().VisitAll(func(f *pflag.Flag) {
				if !kebabFlag.MatchString(f.Name) {
					bad = append(bad, "--"+f.Name)
				}
			})
			return strings.Join(bad, ", ")
		}},
		{"no shorthand collisions", func(cmd *cobra.Command) string {
			seen := map[string]string{}
			var bad []string
			cmd.Flags().VisitAll(func(f *pflag.Flag) {
				if f.Shorthand == "" {
					return
				}
				if prev, ok := seen[f.Shorthand]; ok {
					bad = append(bad, fmt.Sprintf("-%s on --%s and --%s", f.Shorthand, prev, f.Name))
				}
				seen[f.Shorthand] = f.Name
			})
			return strings.Join(bad, ", ")
		}},
	}

	commands := collectAllCommands(newRootCmd())

	for _, tt := range rules {
		t.Run(tt.name, func(t *testing.T) {
			for _, cmd := range commands {
				if msg := tt.rule(cmd); msg != "" {
					t.Errorf("%s: %s", cmd.CommandPath(), msg)
				}
			}
		})
	}
}

// TestDataCommandsSupportJSON forces a decision about --json for every
// command whose verb produces data.
func TestDataCommandsSupportJSON(t *testing.T) {
	jsonSupported := map[string]bool{
		"idehost config list":  true,
		"idehost backend list": true,
		"idehost window list":  true,
	}

	// Deferred: single scalar output.
	jsonDeferred := map[string]bool{
		"idehost config get": true,
	}

	dataVerbs := map[string]bool{"list": true, "info": true, "status": true, "get": true}

	for _, cmd := range collectAllCommands(newRootCmd()) {
		if !cmd.Runnable() || !dataVerbs[cmd.Name()] {
			continue
		}

		path := cmd.CommandPath()
		if !jsonSupported[path] && !jsonDeferred[path] {
			t.Errorf("%s is not registered in jsonSupported or jsonDeferred", path)
		}
	}
}

// collectAllCommands returns every command in the tree (including root).
func collectAllCommands(root *cobra.Command) []*cobra.Command {
	all := []*cobra.Command{root}
	for _, child := range root.Commands() {
		all = append(all, collectAllCommands(child)...)
	}

	return all
}
