// Package errors provides structured CLI error types for idehost.
//
// CLIError wraps errors with user-facing messages, hints, and exit codes
// to provide consistent, actionable error output across all commands.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Exit codes for CLI errors.
const (
	ExitSuccess   = 0  // Successful execution
	ExitGeneral   = 1  // General error
	ExitBackend   = 2  // Backend process failed to start
	ExitNetwork   = 3  // Listener/transport error
	ExitConfig    = 4  // Configuration error
	ExitTimeout   = 5  // Execution timeout
	ExitExecution = 6  // Execution failure
	ExitUsage     = 64 // Command line usage error (BSD convention)
)

// CLIError represents a user-facing CLI error with actionable guidance.
type CLIError struct {
	// Message is the primary error message shown to the user.
	Message string

	// Hint provides actionable guidance on how to fix the error.
	Hint string

	// Cause is the underlying error, if any.
	Cause error

	// Code is the exit code for the CLI.
	Code int
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}

	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// New creates a new CLIError with the given message and exit code.
func New(code int, message string) *CLIError {
	return &CLIError{
		Message: message,
		Code:    code,
	}
}

// Wrap wraps an existing error with a CLIError.
func Wrap(code int, message string, cause error) *CLIError {
	return &CLIError{
		Message: message,
		Cause:   cause,
		Code:    code,
	}
}

// WithHint adds a hint to the error.
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

// As is a convenience function for errors.As with CLIError.
func As(err error, target **CLIError) bool {
	return errors.As(err, target)
}

// --- Common error constructors ---

// EntryRequired returns an error when no backend entry can be resolved.
func EntryRequired() *CLIError {
	return &CLIError{
		Message: "No backend entry configured",
		Hint:    "Pass --entry, choose a --profile, or run 'idehost config set backend.entry <path>'",
		Code:    ExitConfig,
	}
}

// ProfileNotFound returns an error for an unknown backend profile.
func ProfileNotFound(name string, known []string) *CLIError {
	hint := "No backend profiles registered"
	if len(known) > 0 {
		hint = fmt.Sprintf("Known profiles: %s", strings.Join(known, ", "))
	}

	return &CLIError{
		Message: fmt.Sprintf("Backend profile not found: %s", name),
		Hint:    hint,
		Code:    ExitConfig,
	}
}

// BackendSpawnFailed returns an error when the backend process could not be created.
// It detects common OS failures and provides specific hints.
func BackendSpawnFailed(entry string, cause error) *CLIError {
	hint := "Run 'idehost doctor' to check the backend entry"

	switch {
	case cause != nil && containsAny(cause.Error(), "no such file", "not found"):
		hint = fmt.Sprintf("Check that %s exists", entry)
	case cause != nil && containsAny(cause.Error(), "permission denied"):
		hint = fmt.Sprintf("Check that %s is executable", entry)
	case cause != nil && containsAny(cause.Error(), "exited before ready"):
		hint = "The backend exited during startup; rerun with --log-level=debug to see its output"
	}

	return &CLIError{
		Message: "Backend process failed to start",
		Hint:    hint,
		Cause:   cause,
		Code:    ExitBackend,
	}
}

// BackendNotReady returns an error when the backend never signaled readiness.
func BackendNotReady(timeout string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Backend did not become ready within %s", timeout),
		Hint:    "Increase backend.ready_timeout or check that the backend writes the ready sentinel to IDEHOST_CONTROL_FD",
		Cause:   cause,
		Code:    ExitTimeout,
	}
}

// WindowStartFailed wraps any other window startup failure.
func WindowStartFailed(cause error) *CLIError {
	return &CLIError{
		Message: "Window failed to start",
		Hint:    "Run with --log-level=debug for more details",
		Cause:   cause,
		Code:    ExitExecution,
	}
}

// TerminalServeFailed returns an error when the terminal endpoint cannot serve.
func TerminalServeFailed(addr string, cause error) *CLIError {
	hint := "Check the listen address"
	if cause != nil && containsAny(cause.Error(), "address already in use") {
		hint = fmt.Sprintf("Another process is listening on %s; pass --addr to choose another", addr)
	}

	return &CLIError{
		Message: fmt.Sprintf("Terminal endpoint failed on %s", addr),
		Hint:    hint,
		Cause:   cause,
		Code:    ExitNetwork,
	}
}

// InvalidGeometry returns an error for non-positive terminal dimensions.
func InvalidGeometry(rows, cols int) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Invalid terminal size: %dx%d", rows, cols),
		Hint:    "Rows and columns must be between 1 and 65535",
		Code:    ExitUsage,
	}
}

// ConfigFailed returns an error for configuration save failures.
func ConfigFailed(operation string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Failed to %s", operation),
		Hint:    "Check file permissions for your idehost config directory or run 'idehost doctor'",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// UnknownConfigKey returns an error for a key outside the known set.
func UnknownConfigKey(key string, known []string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Unknown configuration key: %s", key),
		Hint:    fmt.Sprintf("Known keys: %s", strings.Join(known, ", ")),
		Code:    ExitUsage,
	}
}

// HistoryUnavailable returns an error for a window history database that
// cannot be opened or queried.
func HistoryUnavailable(cause error) *CLIError {
	return &CLIError{
		Message: "Window history is unavailable",
		Hint:    "Check permissions on the idehost state directory",
		Cause:   cause,
		Code:    ExitGeneral,
	}
}

// containsAny checks if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrings {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}

	return false
}
