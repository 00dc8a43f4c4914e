// Package profile loads named backend profiles from YAML.
package profile

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SelfEntry as a profile entry means the running idehost executable.
const SelfEntry = "self"

//go:embed profiles/*.yaml
var builtinFS embed.FS

// Profile describes how to launch one kind of backend.
type Profile struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Entry        string   `yaml:"entry"`
	Args         []string `yaml:"args"`
	Env          []string `yaml:"env"`
	ReadyTimeout string   `yaml:"readyTimeout"`

	// Source is the file the profile was loaded from.
	Source string `yaml:"-"`

	timeout time.Duration
}

// Timeout returns the parsed readiness timeout, or 0 when unset.
func (p *Profile) Timeout() time.Duration {
	return p.timeout
}

// ResolveEntry returns the executable to spawn. SelfEntry resolves to self;
// bare names are looked up on PATH.
func (p *Profile) ResolveEntry(self string) (string, error) {
	switch {
	case p.Entry == SelfEntry:
		if self == "" {
			return "", errors.New("cannot resolve self entry: executable path unknown")
		}

		return self, nil
	case strings.ContainsRune(p.Entry, filepath.Separator):
		return p.Entry, nil
	default:
		resolved, err := exec.LookPath(p.Entry)
		if err != nil {
			return "", fmt.Errorf("profile %s: %w", p.Name, err)
		}

		return resolved, nil
	}
}

func (p *Profile) validate() error {
	if p.Name == "" {
		return errors.New("name is required")
	}

	if p.Entry == "" {
		return errors.New("entry is required")
	}

	for _, kv := range p.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("env entry %q is not KEY=VALUE", kv)
		}
	}

	if p.ReadyTimeout != "" {
		d, err := time.ParseDuration(p.ReadyTimeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid readyTimeout %q", p.ReadyTimeout)
		}

		p.timeout = d
	}

	return nil
}

// Registry holds profiles by name.
type Registry struct {
	profiles map[string]*Profile
}

// Builtin returns the profiles shipped with idehost.
func Builtin() (*Registry, error) {
	r := &Registry{profiles: make(map[string]*Profile)}

	if err := r.loadFS(builtinFS, "profiles", "builtin:"); err != nil {
		return nil, err
	}

	return r, nil
}

// LoadDir adds or overrides profiles from every *.yaml file in dir. A
// missing dir is not an error.
func (r *Registry) LoadDir(dir string) error {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return r.loadFS(os.DirFS(dir), ".", dir+string(filepath.Separator))
}

func (r *Registry) loadFS(fsys fs.FS, dir, sourcePrefix string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read profiles dir: %w", err)
	}

	seen := make(map[string]string, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		data, readErr := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if readErr != nil {
			return fmt.Errorf("read profile %s: %w", entry.Name(), readErr)
		}

		var p Profile
		if unmarshalErr := yaml.Unmarshal(data, &p); unmarshalErr != nil {
			return fmt.Errorf("parse profile %s: %w", entry.Name(), unmarshalErr)
		}

		if validateErr := p.validate(); validateErr != nil {
			return fmt.Errorf("profile %s: %w", entry.Name(), validateErr)
		}

		if prev, dup := seen[p.Name]; dup {
			return fmt.Errorf("duplicate profile name %q in %s and %s", p.Name, prev, entry.Name())
		}

		seen[p.Name] = entry.Name()
		p.Source = sourcePrefix + entry.Name()
		r.profiles[p.Name] = &p
	}

	return nil
}

// Get returns the named profile.
func (r *Registry) Get(name string) (*Profile, bool) {
	p, ok := r.profiles[name]
	return p, ok
}

// Names returns all profile names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Load returns the builtin profiles overlaid with those found in dir.
func Load(dir string) (*Registry, error) {
	r, err := Builtin()
	if err != nil {
		return nil, err
	}

	if dir == "" {
		return r, nil
	}

	if err := r.LoadDir(dir); err != nil {
		return nil, err
	}

	return r, nil
}

// UnknownProfileError reports a profile name missing from the registry.
type UnknownProfileError struct {
	Name  string
	Known []string
}

func (e *UnknownProfileError) Error() string {
	return fmt.Sprintf("unknown backend profile %q", e.Name)
}

// Selection is the user's choice of backend: an explicit entry wins over a
// named profile.
type Selection struct {
	Profile string
	Entry   string
	Args    []string
}

// Launch is a fully resolved backend command line.
type Launch struct {
	Path         string
	Args         []string
	Env          []string
	ReadyTimeout time.Duration
	Source       string
}

// Resolve turns a selection into a launchable command. ReadyTimeout is left
// zero when neither the profile nor the selection sets one.
func (r *Registry) Resolve(sel Selection, self string) (*Launch, error) {
	if entry := strings.TrimSpace(sel.Entry); entry != "" {
		p := &Profile{Name: "entry", Entry: entry}

		resolved, err := p.ResolveEntry(self)
		if err != nil {
			return nil, err
		}

		return &Launch{Path: resolved, Args: sel.Args, Source: "backend.entry"}, nil
	}

	p, ok := r.Get(sel.Profile)
	if !ok {
		return nil, &UnknownProfileError{Name: sel.Profile, Known: r.Names()}
	}

	resolved, err := p.ResolveEntry(self)
	if err != nil {
		return nil, err
	}

	return &Launch{
		Path:         resolved,
		Args:         append(append([]string(nil), p.Args...), sel.Args...),
		Env:          p.Env,
		ReadyTimeout: p.Timeout(),
		Source:       p.Source,
	}, nil
}
