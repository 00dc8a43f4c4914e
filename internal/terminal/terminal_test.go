package terminal

import (
	"os"
	"testing"
)

func TestInfo_ColorEnabled(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want bool
	}{
		{"tty", Info{IsTTY: true}, true},
		{"not a tty", Info{IsTTY: false}, false},
		{"NO_COLOR", Info{IsTTY: true, NoColor: true}, false},
		{"--no-color", Info{IsTTY: true, ForceFlag: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.ColorEnabled(); got != tt.want {
				t.Errorf("ColorEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetect_NoColorEnv(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	if info := Detect(); !info.NoColor {
		t.Fatal("Detect() ignored NO_COLOR")
	}
}

func TestDetect_DumbTerminal(t *testing.T) {
	t.Setenv("TERM", "dumb")

	if info := Detect(); !info.NoColor || info.SpinnersEnabled() {
		t.Fatalf("Detect() with TERM=dumb = %+v", info)
	}
}

func TestIsTerminal_RegularFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if IsTerminal(f) {
		t.Fatal("IsTerminal() = true for a regular file")
	}

	if IsTerminal(nil) {
		t.Fatal("IsTerminal(nil) = true")
	}
}
