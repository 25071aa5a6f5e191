// Package config provides layered configuration for the EnsoAI backend.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lwt-sadais/EnsoAI/internal/util"
)

const (
	// ConfigFileName is the config file name inside an enso directory.
	ConfigFileName = "config.yaml"
	// EnsoDir is the enso configuration directory name.
	EnsoDir = ".enso"
)

// ServerConfig controls the local API server.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// MaxPortAttempts is how many consecutive ports to try when the
	// configured port is already bound.
	MaxPortAttempts int `yaml:"max_port_attempts"`
}

// ProxyConfig holds proxy settings handed to spawned git processes.
type ProxyConfig struct {
	HTTP    string `yaml:"http,omitempty"`
	HTTPS   string `yaml:"https,omitempty"`
	NoProxy string `yaml:"no_proxy,omitempty"`
}

// GitConfig controls how git is invoked.
type GitConfig struct {
	// Binary is the git executable. Default "git" from PATH.
	Binary string `yaml:"binary"`

	// Timeout bounds each git invocation. Zero disables the limit.
	Timeout time.Duration `yaml:"timeout"`

	Proxy ProxyConfig `yaml:"proxy"`
}

// MergeConfig holds merge defaults applied when a request leaves them unset.
type MergeConfig struct {
	// DefaultStrategy is merge, squash, or rebase.
	DefaultStrategy string `yaml:"default_strategy"`

	// NoFF forces a merge commit for the merge strategy.
	NoFF bool `yaml:"no_ff"`

	// AutoStash stashes dirty trees around a merge.
	AutoStash bool `yaml:"auto_stash"`

	// KeepBranches are glob patterns (doublestar) naming branches that
	// post-merge cleanup must never delete.
	KeepBranches []string `yaml:"keep_branches,omitempty"`
}

// WorktreeConfig controls where new worktrees are created.
type WorktreeConfig struct {
	// Root is the directory for new worktrees, resolved against the
	// repository root when relative.
	Root string `yaml:"root"`

	// AutoPrune runs worktree prune before listing.
	AutoPrune bool `yaml:"auto_prune"`
}

// DBConfig selects the settings/history store backend.
type DBConfig struct {
	// Dialect is sqlite or postgres.
	Dialect string `yaml:"dialect"`

	// DSN is the connection string. Empty means the dialect default
	// (for sqlite, a database file under ~/.enso).
	DSN string `yaml:"dsn,omitempty"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level %q: must be debug, info, warn, or error", l.Level)
}

// Config is the merged EnsoAI backend configuration.
type Config struct {
	// Version is the config file version.
	Version int `yaml:"version"`

	Server   ServerConfig   `yaml:"server"`
	Git      GitConfig      `yaml:"git"`
	Merge    MergeConfig    `yaml:"merge"`
	Worktree WorktreeConfig `yaml:"worktree"`
	DB       DBConfig       `yaml:"db"`
	Log      LogConfig      `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            4690,
			MaxPortAttempts: 10,
		},
		Git: GitConfig{
			Binary:  "git",
			Timeout: 2 * time.Minute,
		},
		Merge: MergeConfig{
			DefaultStrategy: "merge",
			NoFF:            true,
			AutoStash:       true,
		},
		Worktree: WorktreeConfig{
			Root:      ".worktrees",
			AutoPrune: true,
		},
		DB: DBConfig{
			Dialect: "sqlite",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the merged configuration for values no layer may set.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d: out of range", c.Server.Port)
	}
	if c.Server.MaxPortAttempts < 1 {
		return fmt.Errorf("server.max_port_attempts %d: must be at least 1", c.Server.MaxPortAttempts)
	}
	if c.Git.Binary == "" {
		return fmt.Errorf("git.binary: must not be empty")
	}
	if c.Git.Timeout < 0 {
		return fmt.Errorf("git.timeout %s: must not be negative", c.Git.Timeout)
	}
	switch c.Merge.DefaultStrategy {
	case "merge", "squash", "rebase":
	default:
		return fmt.Errorf("merge.default_strategy %q: must be merge, squash, or rebase", c.Merge.DefaultStrategy)
	}
	switch c.DB.Dialect {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("db.dialect %q: must be sqlite or postgres", c.DB.Dialect)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q: must be text or json", c.Log.Format)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// GitEnv returns environment entries for spawned git processes. Proxy
// settings travel as explicit child environment so nothing mutates the
// parent process env.
func (c *Config) GitEnv() []string {
	var env []string
	if v := c.Git.Proxy.HTTP; v != "" {
		env = append(env, "HTTP_PROXY="+v, "http_proxy="+v)
	}
	if v := c.Git.Proxy.HTTPS; v != "" {
		env = append(env, "HTTPS_PROXY="+v, "https_proxy="+v)
	}
	if v := c.Git.Proxy.NoProxy; v != "" {
		env = append(env, "NO_PROXY="+v, "no_proxy="+v)
	}
	return env
}

// UserConfigPath returns the per-user config file path (~/.enso/config.yaml).
func UserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, EnsoDir, ConfigFileName), nil
}

// ProjectConfigPath returns the project config file path under root.
func ProjectConfigPath(root string) string {
	return filepath.Join(root, EnsoDir, ConfigFileName)
}

// LoadFrom loads a single config file over the defaults, without
// layering. A missing file yields the defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveTo writes the config to path atomically, creating parent
// directories. Settings writes race with a running server reading the
// same file, so partial content must never be visible.
func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
