// Package output writes human and machine readable CLI output for idehost.
//
// Commands never print directly. They receive a Writer that knows whether
// stdout is a terminal, whether color is allowed, and whether the user asked
// for JSON or quiet output. Tests inject buffers through NewWriter.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"github.com/musher-dev/idehost/internal/terminal"
)

type contextKey struct{}

// Status symbols.
const (
	CheckMark   = "\u2713" // ✓
	XMark       = "\u2717" // ✗
	WarningMark = "\u26A0" // ⚠
	InfoMark    = "\u2139" // ℹ
)

// Writer handles CLI output for a single command invocation.
type Writer struct {
	Out     io.Writer
	Err     io.Writer
	JSON    bool
	Quiet   bool
	Verbose bool

	terminal *terminal.Info
	tones    map[string]*color.Color
}

// Default returns a Writer for the process stdout and stderr.
func Default() *Writer {
	return NewWriter(os.Stdout, os.Stderr, terminal.Detect())
}

// NewWriter creates a Writer with custom writers and terminal info.
func NewWriter(out, errOut io.Writer, term *terminal.Info) *Writer {
	if term == nil {
		term = &terminal.Info{Width: 80, Height: 24}
	}

	w := &Writer{
		Out:      out,
		Err:      errOut,
		terminal: term,
		tones: map[string]*color.Color{
			CheckMark:   color.New(color.FgGreen),
			XMark:       color.New(color.FgRed),
			WarningMark: color.New(color.FgYellow),
			InfoMark:    color.New(color.FgCyan),
			"muted":     color.New(color.FgHiBlack),
		},
	}
	w.applyColor()

	return w
}

// WithContext stores the Writer in the context.
func (w *Writer) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, w)
}

// FromContext retrieves the Writer from context, or returns Default().
func FromContext(ctx context.Context) *Writer {
	if w, ok := ctx.Value(contextKey{}).(*Writer); ok {
		return w
	}

	return Default()
}

// Terminal returns the terminal info.
func (w *Writer) Terminal() *terminal.Info {
	return w.terminal
}

// SetNoColor disables colored output regardless of the terminal.
func (w *Writer) SetNoColor(disabled bool) {
	w.terminal.ForceFlag = disabled
	w.applyColor()
}

func (w *Writer) applyColor() {
	enabled := w.terminal.ColorEnabled()
	for _, c := range w.tones {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

// Print writes to stdout unless quiet.
func (w *Writer) Print(format string, args ...any) {
	if !w.Quiet {
		fmt.Fprintf(w.Out, format, args...)
	}
}

// Println writes a line to stdout unless quiet.
func (w *Writer) Println(args ...any) {
	if !w.Quiet {
		fmt.Fprintln(w.Out, args...)
	}
}

// PrintJSON writes v as indented JSON to stdout. Quiet does not apply.
func (w *Writer) PrintJSON(v any) error {
	enc := json.NewEncoder(w.Out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// KeyValues prints a sorted key/value listing, or a JSON object in JSON mode.
func (w *Writer) KeyValues(values map[string]any) error {
	if w.JSON {
		return w.PrintJSON(values)
	}

	keys := make([]string, 0, len(values))
	width := 0

	for k := range values {
		keys = append(keys, k)
		width = max(width, len(k))
	}

	sort.Strings(keys)

	for _, k := range keys {
		w.Print("%-*s  %v\n", width, k, values[k])
	}

	return nil
}

// Error writes to stderr.
func (w *Writer) Error(format string, args ...any) {
	fmt.Fprintf(w.Err, format, args...)
}

// Write implements io.Writer on stdout.
func (w *Writer) Write(p []byte) (int, error) {
	if w.Quiet {
		return len(p), nil
	}

	return w.Out.Write(p)
}

// Debug writes to stderr only in verbose mode.
func (w *Writer) Debug(format string, args ...any) {
	if w.Verbose {
		w.tones["muted"].Fprintf(w.Err, "[debug] "+format+"\n", args...)
	}
}

// Success writes a message prefixed with a check mark.
func (w *Writer) Success(format string, args ...any) {
	if !w.Quiet {
		w.status(w.Out, CheckMark, fmt.Sprintf(format, args...))
	}
}

// Failure writes a message prefixed with an X mark to stderr. Quiet does not apply.
func (w *Writer) Failure(format string, args ...any) {
	w.status(w.Err, XMark, fmt.Sprintf(format, args...))
}

// Warning writes a message prefixed with a warning sign.
func (w *Writer) Warning(format string, args ...any) {
	if !w.Quiet {
		w.status(w.Out, WarningMark, fmt.Sprintf(format, args...))
	}
}

// Info writes a message prefixed with an info sign.
func (w *Writer) Info(format string, args ...any) {
	if !w.Quiet {
		w.status(w.Out, InfoMark, fmt.Sprintf(format, args...))
	}
}

// Muted writes dimmed text.
func (w *Writer) Muted(format string, args ...any) {
	if !w.Quiet {
		w.tones["muted"].Fprintln(w.Out, fmt.Sprintf(format, args...))
	}
}

func (w *Writer) status(out io.Writer, mark, msg string) {
	w.tones[mark].Fprint(out, mark+" ")
	fmt.Fprintln(out, msg)
}

// Spinner creates a progress indicator for long operations such as waiting
// for backend readiness. Without a TTY it degrades to plain progress text.
func (w *Writer) Spinner(message string) *Spinner {
	sp := &Spinner{message: message, writer: w}

	if w.Quiet || w.JSON || !w.terminal.SpinnersEnabled() {
		sp.plain = true
		return sp
	}

	sp.spinner = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w.Out))
	sp.spinner.Suffix = " " + message

	return sp
}

// Spinner wraps briandowns/spinner with a plain-text fallback.
type Spinner struct {
	spinner *spinner.Spinner
	message string
	writer  *Writer
	plain   bool
}

// Start begins the animation.
func (s *Spinner) Start() {
	if s.plain {
		s.writer.Print("%s... ", s.message)
		return
	}

	s.spinner.Start()
}

// Stop halts the animation without printing a result.
func (s *Spinner) Stop() {
	if !s.plain {
		s.spinner.Stop()
	}
}

// Succeed stops and reports success.
func (s *Spinner) Succeed(message string) {
	s.finish("done", message, s.writer.Success)
}

// Fail stops and reports failure.
func (s *Spinner) Fail(message string) {
	s.finish("failed", message, s.writer.Failure)
}

func (s *Spinner) finish(word, message string, report func(string, ...any)) {
	if s.plain {
		s.writer.Println(word)
	} else {
		s.spinner.Stop()
	}

	if message != "" {
		report("%s", message)
	}
}

// UpdateMessage changes the spinner text.
func (s *Spinner) UpdateMessage(message string) {
	s.message = message
	if !s.plain {
		s.spinner.Suffix = " " + message
	}
}
