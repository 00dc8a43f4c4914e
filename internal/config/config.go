// Package config handles idehost configuration using Viper.
//
// Configuration sources (in priority order):
//  1. Environment variables (IDEHOST_*)
//  2. Config file (<user config dir>/idehost/config.yaml)
//  3. Built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/musher-dev/idehost/internal/paths"
)

const (
	// DefaultBackendProfile is the backend profile used when no entry is configured.
	DefaultBackendProfile = "extension-host"
	// DefaultReadyTimeout bounds the wait for the backend readiness sentinel.
	DefaultReadyTimeout = 30 * time.Second
	// DefaultKillGrace is the delay between SIGTERM and SIGKILL on dispose.
	DefaultKillGrace = 3 * time.Second
	// DefaultOutputBuffer is the number of queued output chunks per backend stream.
	DefaultOutputBuffer = 64
	// DefaultWindowAddress is the address loaded into the window surface.
	DefaultWindowAddress = "http://127.0.0.1:8000/"
	// DefaultTerminalAddr is the listen address of the terminal RPC endpoint.
	DefaultTerminalAddr = "127.0.0.1:8729"
)

// Keys lists every recognized configuration key.
var Keys = []string{
	"backend.profile",
	"backend.entry",
	"backend.args",
	"backend.ready_timeout",
	"backend.kill_grace",
	"backend.output_buffer",
	"window.address",
	"window.workspace",
	"terminal.addr",
	"terminal.shell",
}

// Config holds the idehost configuration.
type Config struct {
	v *viper.Viper
}

// Load reads configuration from all sources.
func Load() *Config {
	v := viper.New()

	v.SetDefault("backend.profile", DefaultBackendProfile)
	v.SetDefault("backend.ready_timeout", DefaultReadyTimeout.String())
	v.SetDefault("backend.kill_grace", DefaultKillGrace.String())
	v.SetDefault("backend.output_buffer", DefaultOutputBuffer)
	v.SetDefault("window.address", DefaultWindowAddress)
	v.SetDefault("terminal.addr", DefaultTerminalAddr)

	if configFile, err := paths.ConfigFile(); err == nil {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("IDEHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found, but warn on other errors)
	if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
		fmt.Fprintf(os.Stderr, "Warning: error reading config file: %v\n", err)
	}

	return &Config{v: v}
}

func isNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}

	return os.IsNotExist(err)
}

// Get returns a configuration value.
func (c *Config) Get(key string) interface{} {
	return c.v.Get(key)
}

// GetString returns a configuration value as string.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt returns a configuration value as int.
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// Set sets a configuration value and persists it.
func (c *Config) Set(key string, value interface{}) error {
	c.v.Set(key, value)

	configFile, err := paths.ConfigFile()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
		return err
	}

	return c.v.WriteConfigAs(configFile)
}

// All returns all configuration as a map.
func (c *Config) All() map[string]interface{} {
	return c.v.AllSettings()
}

// BackendProfile returns the configured backend profile name.
func (c *Config) BackendProfile() string {
	return c.GetString("backend.profile")
}

// BackendEntry returns an explicit backend entry path, overriding the profile.
func (c *Config) BackendEntry() string {
	return c.GetString("backend.entry")
}

// BackendArgs returns extra arguments for an explicit backend entry.
func (c *Config) BackendArgs() []string {
	return c.v.GetStringSlice("backend.args")
}

// ReadyTimeout returns the backend readiness timeout.
func (c *Config) ReadyTimeout() time.Duration {
	return c.duration("backend.ready_timeout", DefaultReadyTimeout)
}

// KillGrace returns the delay before escalating SIGTERM to SIGKILL.
func (c *Config) KillGrace() time.Duration {
	return c.duration("backend.kill_grace", DefaultKillGrace)
}

// OutputBuffer returns the per-stream output queue depth.
func (c *Config) OutputBuffer() int {
	n := c.GetInt("backend.output_buffer")
	if n <= 0 {
		return DefaultOutputBuffer
	}

	return n
}

// WindowAddress returns the address the window surface loads.
func (c *Config) WindowAddress() string {
	return c.GetString("window.address")
}

// WorkspaceID returns the optional workspace identifier.
func (c *Config) WorkspaceID() string {
	return c.GetString("window.workspace")
}

// TerminalAddr returns the terminal RPC listen address.
func (c *Config) TerminalAddr() string {
	return c.GetString("terminal.addr")
}

// TerminalShell returns the shell for terminal sessions, falling back to $SHELL.
func (c *Config) TerminalShell() string {
	if shell := strings.TrimSpace(c.GetString("terminal.shell")); shell != "" {
		return shell
	}

	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}

	return "/bin/sh"
}

func (c *Config) duration(key string, fallback time.Duration) time.Duration {
	d := c.v.GetDuration(key)
	if d <= 0 {
		return fallback
	}

	return d
}
