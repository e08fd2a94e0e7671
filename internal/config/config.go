// Package config loads and validates the optional .redgreen YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up at the repository root.
const FileName = ".redgreen"

// Default values for runner configuration.
const (
	DefaultTimeout         = 10 * time.Minute
	DefaultMaxOutput       = 1 << 20 // 1 MB
	DefaultWatchInterval   = 2 * time.Second
	DefaultAgentModel      = "codex-mini-latest"
	DefaultCompletionModel = "gpt-4.1-2025-04-14"
	DefaultHistorySize     = 20
	DefaultStoreFile       = ".redgreen.db"
)

// DefaultAgentBinary is the argv prefix used to launch the agent CLI.
var DefaultAgentBinary = []string{"codex"}

// Config holds the parsed .redgreen configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version      int              `yaml:"version"`
	Command      string           `yaml:"command"`    // initial test command
	RawTimeout   string           `yaml:"timeout"`    // e.g. "10m", "0" disables
	RawMaxOutput int              `yaml:"max_output"` // bytes
	Env          []string         `yaml:"env"`        // extra KEY=VALUE pairs for test runs
	Watch        WatchConfig      `yaml:"watch"`
	Agent        AgentConfig      `yaml:"agent"`
	Completion   CompletionConfig `yaml:"completion"`
	Store        StoreConfig      `yaml:"store"`
	History      HistoryConfig    `yaml:"history"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	Interval string `yaml:"interval"` // e.g. "2s"
}

// AgentConfig controls how the coding agent CLI is launched.
type AgentConfig struct {
	Binary []string `yaml:"binary"` // e.g. ["npx", "@openai/codex"]
	Model  string   `yaml:"model"`
}

// CompletionConfig controls the chat completion client used for test generation.
type CompletionConfig struct {
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
}

// StoreConfig locates the persistent key-value store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// HistoryConfig sizes the in-memory run history.
type HistoryConfig struct {
	Size int `yaml:"size"`
}

// Timeout returns the configured timeout or the default. An explicit zero
// duration disables the timeout.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d >= 0 {
			return d
		}
	}
	return DefaultTimeout
}

// MaxOutputBytes returns the configured max output size or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// WatchInterval returns the configured watch interval or the default.
func (c *Config) WatchInterval() time.Duration {
	if c.Watch.Interval != "" {
		d, err := time.ParseDuration(c.Watch.Interval)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultWatchInterval
}

// AgentBinary returns the agent argv prefix, falling back to "codex".
func (c *Config) AgentBinary() []string {
	if len(c.Agent.Binary) > 0 {
		return c.Agent.Binary
	}
	return DefaultAgentBinary
}

// AgentModel returns the agent model, falling back to codex-mini-latest.
func (c *Config) AgentModel() string {
	if c.Agent.Model != "" {
		return c.Agent.Model
	}
	return DefaultAgentModel
}

// CompletionModel returns the completion model or the default.
func (c *Config) CompletionModel() string {
	if c.Completion.Model != "" {
		return c.Completion.Model
	}
	return DefaultCompletionModel
}

// StorePath returns the sqlite file path. Relative paths are resolved
// against root.
func (c *Config) StorePath(root string) string {
	p := c.Store.Path
	if p == "" {
		p = DefaultStoreFile
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// HistorySize returns the run history capacity or the default.
func (c *Config) HistorySize() int {
	if c.History.Size > 0 {
		return c.History.Size
	}
	return DefaultHistorySize
}

// LoadResult holds the parsed config and the discovered repository root.
type LoadResult struct {
	Config   *Config
	RepoRoot string // directory containing go.mod or .git; falls back to workspace
}

// Load reads the .redgreen file from the repository root.
// The repository root is discovered by walking upward from workspace
// looking for go.mod or .git. If no .redgreen file exists, a default
// Config is returned.
func Load(workspace string) (*LoadResult, error) {
	root, err := findRepoRoot(workspace)
	if err != nil {
		// No marker found; use workspace as root.
		root, err = filepath.Abs(workspace)
		if err != nil {
			return nil, fmt.Errorf("resolving workspace: %w", err)
		}
	}

	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &LoadResult{Config: &Config{}, RepoRoot: root}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return &LoadResult{Config: cfg, RepoRoot: root}, nil
}

func (c *Config) validate() error {
	if c.RawTimeout != "" {
		if _, err := time.ParseDuration(c.RawTimeout); err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
	}
	if c.Watch.Interval != "" {
		if _, err := time.ParseDuration(c.Watch.Interval); err != nil {
			return fmt.Errorf("watch.interval: %w", err)
		}
	}
	if c.Completion.Temperature < 0 || c.Completion.Temperature > 2 {
		return fmt.Errorf("completion.temperature must be within [0, 2], got %v", c.Completion.Temperature)
	}
	return nil
}

// findRepoRoot walks upward from dir looking for go.mod or .git.
func findRepoRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		for _, marker := range []string{"go.mod", ".git"} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("repository root not found")
		}
		dir = parent
	}
}
