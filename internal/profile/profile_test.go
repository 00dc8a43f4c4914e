package profile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBuiltin(t *testing.T) {
	r, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin() error = %v", err)
	}

	if got := strings.Join(r.Names(), ","); got != "extension-host,language-services,stub" {
		t.Fatalf("Names() = %s", got)
	}

	tests := []struct {
		name    string
		timeout time.Duration
		role    string
	}{
		{"extension-host", 30 * time.Second, "extension-host"},
		{"language-services", 45 * time.Second, "language-services"},
		{"stub", 5 * time.Second, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := r.Get(tt.name)
			if !ok {
				t.Fatalf("Get(%q) not found", tt.name)
			}

			if p.Entry != SelfEntry {
				t.Errorf("Entry = %q, want self", p.Entry)
			}

			if p.Timeout() != tt.timeout {
				t.Errorf("Timeout() = %v, want %v", p.Timeout(), tt.timeout)
			}

			if p.Args[0] != "backend" || p.Args[1] != "stub" {
				t.Errorf("Args = %v", p.Args)
			}

			if tt.role != "" && !strings.Contains(strings.Join(p.Args, " "), "--role "+tt.role) {
				t.Errorf("Args = %v, want --role %s", p.Args, tt.role)
			}

			if !strings.HasPrefix(p.Source, "builtin:") {
				t.Errorf("Source = %q", p.Source)
			}
		})
	}
}

func writeProfile(t *testing.T, dir, file, body string) {
	t.Helper()

	if err := os.WriteFile(filepath.Join(dir, file), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDir_OverridesAndAdds(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "ext.yaml", "name: extension-host\nentry: /opt/ide/ext-host\nargs: [--stdio]\n")
	writeProfile(t, dir, "lint.yaml", "name: lint\nentry: sh\nreadyTimeout: 2s\n")
	writeProfile(t, dir, "README.md", "ignored")

	r, err := Builtin()
	if err != nil {
		t.Fatal(err)
	}

	if err := r.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}

	ext, _ := r.Get("extension-host")
	if entry, err := ext.ResolveEntry("/usr/bin/idehost"); err != nil || entry != "/opt/ide/ext-host" {
		t.Fatalf("ResolveEntry() = %q, %v", entry, err)
	}

	lint, ok := r.Get("lint")
	if !ok || lint.Timeout() != 2*time.Second {
		t.Fatalf("lint profile = %+v", lint)
	}
}

func TestLoadDir_Missing(t *testing.T) {
	r, err := Builtin()
	if err != nil {
		t.Fatal(err)
	}

	if err := r.LoadDir(filepath.Join(t.TempDir(), "absent")); err != nil {
		t.Fatalf("LoadDir() on missing dir error = %v", err)
	}
}

func TestLoadDir_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing name", "entry: sh\n", "name is required"},
		{"missing entry", "name: x\n", "entry is required"},
		{"bad timeout", "name: x\nentry: sh\nreadyTimeout: soon\n", "invalid readyTimeout"},
		{"bad env", "name: x\nentry: sh\nenv: [NOEQUALS]\n", "KEY=VALUE"},
		{"bad yaml", "name: [x\n", "parse profile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeProfile(t, dir, "p.yaml", tt.body)

			r, err := Builtin()
			if err != nil {
				t.Fatal(err)
			}

			err = r.LoadDir(dir)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("LoadDir() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDir_DuplicateNames(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "a.yaml", "name: dup\nentry: sh\n")
	writeProfile(t, dir, "b.yaml", "name: dup\nentry: sh\n")

	r, err := Builtin()
	if err != nil {
		t.Fatal(err)
	}

	if err := r.LoadDir(dir); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("LoadDir() error = %v, want duplicate", err)
	}
}

func TestResolveEntry(t *testing.T) {
	self := &Profile{Name: "s", Entry: SelfEntry}
	if got, err := self.ResolveEntry("/usr/local/bin/idehost"); err != nil || got != "/usr/local/bin/idehost" {
		t.Fatalf("self ResolveEntry() = %q, %v", got, err)
	}

	if _, err := self.ResolveEntry(""); err == nil {
		t.Fatal("self ResolveEntry(\"\") succeeded, want error")
	}

	missing := &Profile{Name: "m", Entry: "idehost-definitely-not-on-path"}
	if _, err := missing.ResolveEntry("/x"); err == nil {
		t.Fatal("ResolveEntry() for missing binary succeeded")
	}
}

func TestRegistryResolve(t *testing.T) {
	r, err := Builtin()
	if err != nil {
		t.Fatal(err)
	}

	const self = "/usr/local/bin/idehost"

	t.Run("profile", func(t *testing.T) {
		launch, err := r.Resolve(Selection{Profile: "extension-host", Args: []string{"--verbose"}}, self)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}

		if launch.Path != self {
			t.Errorf("Path = %q, want %q", launch.Path, self)
		}

		wantArgs := "backend stub --role extension-host --verbose"
		if got := strings.Join(launch.Args, " "); got != wantArgs {
			t.Errorf("Args = %q, want %q", got, wantArgs)
		}

		if launch.ReadyTimeout != 30*time.Second {
			t.Errorf("ReadyTimeout = %v, want 30s", launch.ReadyTimeout)
		}

		if launch.Source != "builtin:extension-host.yaml" {
			t.Errorf("Source = %q", launch.Source)
		}
	})

	t.Run("explicit entry wins", func(t *testing.T) {
		launch, err := r.Resolve(Selection{Profile: "extension-host", Entry: "/opt/ide/host", Args: []string{"-x"}}, self)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}

		if launch.Path != "/opt/ide/host" || len(launch.Args) != 1 || launch.ReadyTimeout != 0 {
			t.Errorf("Resolve() = %+v", launch)
		}
	})

	t.Run("unknown profile", func(t *testing.T) {
		_, err := r.Resolve(Selection{Profile: "nope"}, self)

		var unknown *UnknownProfileError
		if !errors.As(err, &unknown) {
			t.Fatalf("Resolve() error = %v, want *UnknownProfileError", err)
		}

		if len(unknown.Known) == 0 {
			t.Error("Known is empty")
		}
	})
}

func TestLoad_EmptyDir(t *testing.T) {
	r, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, ok := r.Get("stub"); !ok {
		t.Fatal("Load(\"\") missing builtin stub profile")
	}
}
