package config

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.Port != 4690 {
		t.Errorf("Server.Port = %d, want 4690", cfg.Server.Port)
	}
	if cfg.Git.Binary != "git" {
		t.Errorf("Git.Binary = %q, want git", cfg.Git.Binary)
	}
	if cfg.Git.Timeout != 2*time.Minute {
		t.Errorf("Git.Timeout = %s, want 2m", cfg.Git.Timeout)
	}
	if cfg.Merge.DefaultStrategy != "merge" {
		t.Errorf("Merge.DefaultStrategy = %q, want merge", cfg.Merge.DefaultStrategy)
	}
	if !cfg.Merge.NoFF {
		t.Error("Merge.NoFF = false, want true")
	}
	if !cfg.Merge.AutoStash {
		t.Error("Merge.AutoStash = false, want true")
	}
	if cfg.Worktree.Root != ".worktrees" {
		t.Errorf("Worktree.Root = %q, want .worktrees", cfg.Worktree.Root)
	}
	if cfg.DB.Dialect != "sqlite" {
		t.Errorf("DB.Dialect = %q, want sqlite", cfg.DB.Dialect)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v, want info/text", cfg.Log)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, true},
		{"negative port", func(c *Config) { c.Server.Port = -1 }, true},
		{"zero port attempts", func(c *Config) { c.Server.MaxPortAttempts = 0 }, true},
		{"empty git binary", func(c *Config) { c.Git.Binary = "" }, true},
		{"negative timeout", func(c *Config) { c.Git.Timeout = -time.Second }, true},
		{"unknown strategy", func(c *Config) { c.Merge.DefaultStrategy = "octopus" }, true},
		{"squash strategy", func(c *Config) { c.Merge.DefaultStrategy = "squash" }, false},
		{"unknown dialect", func(c *Config) { c.DB.Dialect = "oracle" }, true},
		{"postgres dialect", func(c *Config) { c.DB.Dialect = "postgres" }, false},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"WARNING", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, err := LogConfig{Level: tt.level}.SlogLevel()
			if (err != nil) != tt.wantErr {
				t.Fatalf("SlogLevel(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestGitEnv(t *testing.T) {
	cfg := Default()
	if env := cfg.GitEnv(); len(env) != 0 {
		t.Errorf("GitEnv() with no proxies = %v, want empty", env)
	}

	cfg.Git.Proxy.HTTP = "http://127.0.0.1:8888"
	cfg.Git.Proxy.NoProxy = "localhost,.internal"
	env := cfg.GitEnv()

	want := []string{
		"HTTP_PROXY=http://127.0.0.1:8888",
		"http_proxy=http://127.0.0.1:8888",
		"NO_PROXY=localhost,.internal",
		"no_proxy=localhost,.internal",
	}
	if len(env) != len(want) {
		t.Fatalf("GitEnv() = %v, want %v", env, want)
	}
	for i := range want {
		if env[i] != want[i] {
			t.Errorf("GitEnv()[%d] = %q, want %q", i, env[i], want[i])
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), EnsoDir, ConfigFileName)

	cfg := Default()
	cfg.Server.Port = 9321
	cfg.Merge.DefaultStrategy = "squash"
	cfg.Merge.KeepBranches = []string{"release/**", "main"}
	cfg.Git.Proxy.HTTP = "http://proxy:3128"

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if loaded.Server.Port != 9321 {
		t.Errorf("Server.Port = %d, want 9321", loaded.Server.Port)
	}
	if loaded.Merge.DefaultStrategy != "squash" {
		t.Errorf("Merge.DefaultStrategy = %q, want squash", loaded.Merge.DefaultStrategy)
	}
	if len(loaded.Merge.KeepBranches) != 2 || loaded.Merge.KeepBranches[0] != "release/**" {
		t.Errorf("Merge.KeepBranches = %v", loaded.Merge.KeepBranches)
	}
	if loaded.Git.Proxy.HTTP != "http://proxy:3128" {
		t.Errorf("Git.Proxy.HTTP = %q", loaded.Git.Proxy.HTTP)
	}
	if loaded.Git.Timeout != cfg.Git.Timeout {
		t.Errorf("Git.Timeout = %s, want %s", loaded.Git.Timeout, cfg.Git.Timeout)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope", ConfigFileName))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Server.Port != Default().Server.Port {
		t.Errorf("missing file should yield defaults, got port %d", cfg.Server.Port)
	}
}
