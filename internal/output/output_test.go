package output

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/musher-dev/idehost/internal/terminal"
	"github.com/musher-dev/idehost/internal/testutil"
)

// testTerminal returns a terminal.Info for testing (non-TTY, no color).
func testTerminal() *terminal.Info {
	return &terminal.Info{
		IsTTY:   false,
		NoColor: true,
		Width:   80,
		Height:  24,
	}
}

func TestWriter_Print(t *testing.T) {
	tests := []struct {
		name  string
		quiet bool
		want  string
	}{
		{"normal output", false, "Hello, world!"},
		{"quiet mode suppresses output", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			w := NewWriter(&buf, &buf, testTerminal())
			w.Quiet = tt.quiet

			w.Print("Hello, %s!", "world")

			if got := buf.String(); got != tt.want {
				t.Errorf("Print() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriter_ErrorGoesToStderr(t *testing.T) {
	var outBuf, errBuf bytes.Buffer

	w := NewWriter(&outBuf, &errBuf, testTerminal())
	w.Error("Error: %s", "backend exited")

	if got := errBuf.String(); got != "Error: backend exited" {
		t.Errorf("Error() = %q", got)
	}

	if outBuf.Len() > 0 {
		t.Errorf("Error() wrote to stdout: %q", outBuf.String())
	}
}

func TestWriter_FailureIgnoresQuiet(t *testing.T) {
	var outBuf, errBuf bytes.Buffer

	w := NewWriter(&outBuf, &errBuf, testTerminal())
	w.Quiet = true

	w.Success("hidden")
	w.Failure("backend not ready")

	if outBuf.Len() > 0 {
		t.Errorf("quiet Success() wrote %q", outBuf.String())
	}

	if got := errBuf.String(); got != XMark+" backend not ready\n" {
		t.Errorf("Failure() = %q", got)
	}
}

func TestWriter_Write(t *testing.T) {
	var buf bytes.Buffer

	w := NewWriter(&buf, &buf, testTerminal())
	w.Quiet = true

	n, err := w.Write([]byte("data"))
	if err != nil || n != 4 {
		t.Fatalf("Write() = %d, %v", n, err)
	}

	if buf.Len() != 0 {
		t.Fatalf("quiet Write() wrote %q", buf.String())
	}
}

func TestWriter_Debug(t *testing.T) {
	var outBuf, errBuf bytes.Buffer

	w := NewWriter(&outBuf, &errBuf, testTerminal())
	w.Debug("not shown")

	w.Verbose = true
	w.Debug("pid=%d", 42)

	if got := errBuf.String(); got != "[debug] pid=42\n" {
		t.Errorf("Debug() = %q", got)
	}
}

func TestWriter_KeyValues(t *testing.T) {
	values := map[string]any{
		"terminal.addr":   "127.0.0.1:8729",
		"backend.profile": "extension-host",
	}

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer

		w := NewWriter(&buf, &buf, testTerminal())
		if err := w.KeyValues(values); err != nil {
			t.Fatal(err)
		}

		want := "backend.profile  extension-host\nterminal.addr    127.0.0.1:8729\n"
		if got := buf.String(); got != want {
			t.Errorf("KeyValues() = %q, want %q", got, want)
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer

		w := NewWriter(&buf, &buf, testTerminal())
		w.JSON = true

		if err := w.KeyValues(values); err != nil {
			t.Fatal(err)
		}

		if !strings.HasPrefix(buf.String(), "{\n  \"backend.profile\"") {
			t.Errorf("KeyValues() JSON = %q", buf.String())
		}
	})
}

func TestWriter_Context(t *testing.T) {
	w := NewWriter(&bytes.Buffer{}, &bytes.Buffer{}, testTerminal())
	ctx := w.WithContext(context.Background())

	if FromContext(ctx) != w {
		t.Fatal("FromContext() did not return stored writer")
	}

	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext() returned nil default")
	}
}

func TestWriter_SetNoColor(t *testing.T) {
	w := NewWriter(&bytes.Buffer{}, &bytes.Buffer{}, &terminal.Info{IsTTY: true})

	if !w.Terminal().ColorEnabled() {
		t.Fatal("expected color on a TTY")
	}

	w.SetNoColor(true)

	if w.Terminal().ColorEnabled() {
		t.Fatal("SetNoColor(true) left color enabled")
	}
}

func TestSpinner_PlainFallback(t *testing.T) {
	tests := []struct {
		name   string
		finish func(*Spinner)
		want   string
	}{
		{"succeed", func(s *Spinner) { s.Succeed("backend ready") }, "Waiting for backend... done\n" + CheckMark + " backend ready\n"},
		{"stop", func(s *Spinner) { s.Stop() }, "Waiting for backend... "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			w := NewWriter(&buf, &buf, testTerminal())
			s := w.Spinner("Waiting for backend")
			s.Start()
			tt.finish(s)

			if got := buf.String(); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSpinner_FailWritesToStderr(t *testing.T) {
	var outBuf, errBuf bytes.Buffer

	w := NewWriter(&outBuf, &errBuf, testTerminal())
	s := w.Spinner("Waiting for backend")
	s.Start()
	s.Fail("readiness timeout")

	if got := outBuf.String(); got != "Waiting for backend... failed\n" {
		t.Errorf("stdout = %q", got)
	}

	if got := errBuf.String(); got != XMark+" readiness timeout\n" {
		t.Errorf("stderr = %q", got)
	}
}

func TestStatusMessages_Golden(t *testing.T) {
	var buf bytes.Buffer

	w := NewWriter(&buf, &buf, testTerminal())

	w.Success("Window visible at %s", "http://127.0.0.1:8000/")
	w.Warning("Backend profile %q overridden by backend.entry", "extension-host")
	w.Info("Terminal endpoint listening on %s", "127.0.0.1:8729")
	w.Muted("Press Ctrl+C to stop")

	testutil.AssertGolden(t, buf.String(), "status_messages.golden")
}
