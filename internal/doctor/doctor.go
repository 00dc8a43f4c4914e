// Package doctor provides diagnostic checks for idehost.
//
// The default checks validate that the configured backend can be launched,
// that terminal sessions can allocate a PTY and find a shell, and that the
// terminal endpoint address is free.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"

	"github.com/musher-dev/idehost/internal/buildinfo"
	"github.com/musher-dev/idehost/internal/config"
	"github.com/musher-dev/idehost/internal/history"
	"github.com/musher-dev/idehost/internal/paths"
	"github.com/musher-dev/idehost/internal/profile"
)

// Status represents the result of a diagnostic check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical issue.
	StatusWarn
	// StatusFail indicates a critical failure.
	StatusFail
)

// Result holds the outcome of a single check.
type Result struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"` // Optional additional detail
}

// Check is a diagnostic check function.
type Check func(ctx context.Context) Result

// Options carries the environment the default checks inspect.
type Options struct {
	Config   *config.Config
	Profiles *profile.Registry
	// Self is the running executable, used for profiles with entry "self".
	Self string
}

// Runner executes diagnostic checks.
type Runner struct {
	checks []namedCheck
}

type namedCheck struct {
	name  string
	check Check
}

// New creates a runner with the default checks registered.
func New(opts Options) *Runner {
	r := &Runner{}

	r.AddCheck("Config File", checkConfigFile)
	r.AddCheck("Backend Entry", func(context.Context) Result { return checkBackendEntry(opts) })
	r.AddCheck("Terminal Shell", func(context.Context) Result { return checkShell(opts.Config.TerminalShell()) })
	r.AddCheck("PTY", func(context.Context) Result { return checkPTY() })
	r.AddCheck("Terminal Address", func(ctx context.Context) Result { return checkListen(ctx, opts.Config.TerminalAddr()) })
	r.AddCheck("Window History", checkHistory)
	r.AddCheck("CLI Version", func(context.Context) Result { return checkCLIVersion() })

	return r
}

// AddCheck registers a diagnostic check.
func (r *Runner) AddCheck(name string, check Check) {
	r.checks = append(r.checks, namedCheck{name: name, check: check})
}

// Run executes all registered checks and returns the results.
func (r *Runner) Run(ctx context.Context) []Result {
	results := make([]Result, 0, len(r.checks))

	for _, nc := range r.checks {
		result := nc.check(ctx)
		result.Name = nc.name
		results = append(results, result)
	}

	return results
}

// Summary returns counts of passed, failed, and warning checks.
func Summary(results []Result) (passed, failed, warnings int) {
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			passed++
		case StatusFail:
			failed++
		case StatusWarn:
			warnings++
		}
	}

	return passed, failed, warnings
}

func checkConfigFile(context.Context) Result {
	path, err := paths.ConfigFile()
	if err != nil {
		return Result{Status: StatusWarn, Message: "Config directory unknown", Detail: err.Error()}
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{Status: StatusPass, Message: "Using defaults (no config file)"}
		}

		return Result{Status: StatusWarn, Message: path, Detail: err.Error()}
	}

	return Result{Status: StatusPass, Message: path}
}

// checkHistory only warns: windows still open when history is unavailable.
func checkHistory(ctx context.Context) Result {
	path, err := paths.HistoryDB()
	if err != nil {
		return Result{Status: StatusWarn, Message: "State directory unknown", Detail: err.Error()}
	}

	store, err := history.Open(path)
	if err != nil {
		return Result{Status: StatusWarn, Message: "Cannot open " + path, Detail: err.Error()}
	}
	defer store.Close()

	if _, err := store.Recent(ctx, 1); err != nil {
		return Result{Status: StatusWarn, Message: "Cannot read " + path, Detail: err.Error()}
	}

	return Result{Status: StatusPass, Message: path}
}

func checkBackendEntry(opts Options) Result {
	cfg := opts.Config
	sel := profile.Selection{
		Profile: cfg.BackendProfile(),
		Entry:   cfg.BackendEntry(),
		Args:    cfg.BackendArgs(),
	}

	launch, err := opts.Profiles.Resolve(sel, opts.Self)
	if err != nil {
		var unknown *profile.UnknownProfileError
		if errors.As(err, &unknown) {
			return Result{
				Status:  StatusFail,
				Message: fmt.Sprintf("Unknown profile %q", unknown.Name),
				Detail:  fmt.Sprintf("Known profiles: %v", unknown.Known),
			}
		}

		return Result{Status: StatusFail, Message: "Entry not resolvable", Detail: err.Error()}
	}

	info, err := os.Stat(launch.Path)
	if err != nil {
		return Result{Status: StatusFail, Message: launch.Path, Detail: err.Error()}
	}

	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return Result{
			Status:  StatusFail,
			Message: launch.Path,
			Detail:  "Entry is not an executable file",
		}
	}

	return Result{Status: StatusPass, Message: fmt.Sprintf("%s (%s)", launch.Path, launch.Source)}
}

func checkShell(shell string) Result {
	info, err := os.Stat(shell)
	if err != nil {
		return Result{
			Status:  StatusFail,
			Message: shell,
			Detail:  "Set terminal.shell or $SHELL to an installed shell",
		}
	}

	if info.Mode().Perm()&0o111 == 0 {
		return Result{Status: StatusFail, Message: shell, Detail: "Shell is not executable"}
	}

	return Result{Status: StatusPass, Message: shell}
}

func checkListen(ctx context.Context, addr string) Result {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return Result{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s unavailable", addr),
			Detail:  err.Error(),
		}
	}

	_ = ln.Close()

	return Result{Status: StatusPass, Message: fmt.Sprintf("%s available", addr)}
}

func checkCLIVersion() Result {
	if buildinfo.IsDev() {
		return Result{Status: StatusWarn, Message: "Development build"}
	}

	return Result{Status: StatusPass, Message: fmt.Sprintf("v%s (%s)", buildinfo.Version, buildinfo.Commit)}
}

// RenderResults formats diagnostic results through the given output functions.
func RenderResults(results []Result, printFn, successFn, warningFn, failureFn, mutedFn func(format string, args ...any)) {
	maxNameLen := 0
	for _, r := range results {
		maxNameLen = max(maxNameLen, len(r.Name))
	}

	for _, r := range results {
		width := maxNameLen + 4

		switch r.Status {
		case StatusPass:
			successFn("%-*s%s", width, r.Name, r.Message)
		case StatusWarn:
			warningFn("%-*s%s", width, r.Name, r.Message)
		case StatusFail:
			failureFn("%-*s%s", width, r.Name, r.Message)
		default:
			printFn("%s %-*s%s\n", r.Status.Symbol(), width, r.Name, r.Message)
		}

		if r.Detail != "" {
			mutedFn("    %s", r.Detail)
		}
	}
}

// Symbol returns the status symbol for display.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return checkMark
	case StatusWarn:
		return warningMark
	case StatusFail:
		return xMark
	default:
		return "?"
	}
}

// String returns the lowercase status name used in JSON output.
func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status as its name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const (
	checkMark   = "\u2713" // ✓
	xMark       = "\u2717" // ✗
	warningMark = "\u26A0" // ⚠
)
