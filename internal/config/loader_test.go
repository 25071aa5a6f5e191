package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfigFile writes content to dir/.enso/config.yaml.
func writeConfigFile(t *testing.T, dir, content string) {
	t.Helper()
	ensoDir := filepath.Join(dir, EnsoDir)
	if err := os.MkdirAll(ensoDir, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", ensoDir, err)
	}
	if err := os.WriteFile(filepath.Join(ensoDir, ConfigFileName), []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoadWithSourcesDefaults(t *testing.T) {
	t.Setenv("HOME", filepath.Join(t.TempDir(), "nonexistent"))

	tc, err := LoadWithSources(t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithSources() error = %v", err)
	}

	if tc.Config.Server.Port != 4690 {
		t.Errorf("Server.Port = %d, want default 4690", tc.Config.Server.Port)
	}
	if got := tc.GetSource("server.port"); got != SourceDefault {
		t.Errorf("GetSource(server.port) = %q, want default", got)
	}
	if got := tc.GetSource("merge.no_ff"); got != SourceDefault {
		t.Errorf("GetSource(merge.no_ff) = %q, want default", got)
	}
}

func TestLoadWithSourcesProject(t *testing.T) {
	t.Setenv("HOME", filepath.Join(t.TempDir(), "nonexistent"))

	projectRoot := t.TempDir()
	writeConfigFile(t, projectRoot, `
server:
  port: 9999
merge:
  no_ff: false
  keep_branches:
    - release/**
git:
  timeout: 90s
`)

	tc, err := LoadWithSources(projectRoot)
	if err != nil {
		t.Fatalf("LoadWithSources() error = %v", err)
	}

	if tc.Config.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", tc.Config.Server.Port)
	}
	if tc.Config.Merge.NoFF {
		t.Error("Merge.NoFF = true, want false from project file")
	}
	if tc.Config.Git.Timeout != 90*time.Second {
		t.Errorf("Git.Timeout = %s, want 90s", tc.Config.Git.Timeout)
	}
	if len(tc.Config.Merge.KeepBranches) != 1 || tc.Config.Merge.KeepBranches[0] != "release/**" {
		t.Errorf("Merge.KeepBranches = %v", tc.Config.Merge.KeepBranches)
	}

	// Touched fields carry the project source, untouched ones stay default.
	if got := tc.GetSource("server.port"); got != SourceProject {
		t.Errorf("GetSource(server.port) = %q, want project", got)
	}
	if ts := tc.GetTrackedSource("server.port"); !strings.HasSuffix(ts.Path, ConfigFileName) {
		t.Errorf("TrackedSource path = %q, want the project config file", ts.Path)
	}
	if got := tc.GetSource("server.host"); got != SourceDefault {
		t.Errorf("GetSource(server.host) = %q, want default", got)
	}
}

func TestLoadWithSourcesUserProjectPrecedence(t *testing.T) {
	fakeHome := t.TempDir()
	t.Setenv("HOME", fakeHome)
	writeConfigFile(t, fakeHome, `
server:
  port: 7000
log:
  level: debug
`)

	projectRoot := t.TempDir()
	writeConfigFile(t, projectRoot, `
server:
  port: 9000
`)

	tc, err := LoadWithSources(projectRoot)
	if err != nil {
		t.Fatalf("LoadWithSources() error = %v", err)
	}

	if tc.Config.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want project value 9000", tc.Config.Server.Port)
	}
	if got := tc.GetSource("server.port"); got != SourceProject {
		t.Errorf("GetSource(server.port) = %q, want project", got)
	}

	// The user layer still supplies what the project file leaves alone.
	if tc.Config.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want user value debug", tc.Config.Log.Level)
	}
	if got := tc.GetSource("log.level"); got != SourceUser {
		t.Errorf("GetSource(log.level) = %q, want user", got)
	}
}

func TestLoadWithSourcesEnvWins(t *testing.T) {
	t.Setenv("HOME", filepath.Join(t.TempDir(), "nonexistent"))

	projectRoot := t.TempDir()
	writeConfigFile(t, projectRoot, `
server:
  port: 9000
`)

	t.Setenv("ENSO_PORT", "9100")
	t.Setenv("ENSO_MERGE_STRATEGY", "rebase")
	t.Setenv("ENSO_KEEP_BRANCHES", "main, release/**")

	tc, err := LoadWithSources(projectRoot)
	if err != nil {
		t.Fatalf("LoadWithSources() error = %v", err)
	}

	if tc.Config.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want env value 9100", tc.Config.Server.Port)
	}
	if got := tc.GetSource("server.port"); got != SourceEnv {
		t.Errorf("GetSource(server.port) = %q, want env", got)
	}
	if tc.Config.Merge.DefaultStrategy != "rebase" {
		t.Errorf("Merge.DefaultStrategy = %q, want rebase", tc.Config.Merge.DefaultStrategy)
	}
	want := []string{"main", "release/**"}
	if len(tc.Config.Merge.KeepBranches) != 2 ||
		tc.Config.Merge.KeepBranches[0] != want[0] ||
		tc.Config.Merge.KeepBranches[1] != want[1] {
		t.Errorf("Merge.KeepBranches = %v, want %v", tc.Config.Merge.KeepBranches, want)
	}
}

func TestLoadWithSourcesProjectErrorFatal(t *testing.T) {
	t.Setenv("HOME", filepath.Join(t.TempDir(), "nonexistent"))

	projectRoot := t.TempDir()
	writeConfigFile(t, projectRoot, "server: [not: a map\n")

	if _, err := LoadWithSources(projectRoot); err == nil {
		t.Fatal("LoadWithSources() with malformed project config should fail")
	}
}

func TestLoadWithSourcesUserErrorWarns(t *testing.T) {
	fakeHome := t.TempDir()
	t.Setenv("HOME", fakeHome)
	writeConfigFile(t, fakeHome, "server: [not: a map\n")

	tc, err := LoadWithSources(t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithSources() error = %v, broken user config should be skipped", err)
	}
	if tc.Config.Server.Port != 4690 {
		t.Errorf("Server.Port = %d, want default after skipping user config", tc.Config.Server.Port)
	}
}

func TestLoadWithSourcesValidatesMergedResult(t *testing.T) {
	t.Setenv("HOME", filepath.Join(t.TempDir(), "nonexistent"))

	projectRoot := t.TempDir()
	writeConfigFile(t, projectRoot, `
merge:
  default_strategy: octopus
`)

	_, err := LoadWithSources(projectRoot)
	if err == nil {
		t.Fatal("LoadWithSources() should reject unknown strategy")
	}
	if !strings.Contains(err.Error(), "merge.default_strategy") {
		t.Errorf("error = %v, want mention of merge.default_strategy", err)
	}
}

func TestLoadWithSourcesEmptyProjectRoot(t *testing.T) {
	fakeHome := t.TempDir()
	t.Setenv("HOME", fakeHome)
	writeConfigFile(t, fakeHome, `
worktree:
  root: /tmp/enso-trees
`)

	tc, err := LoadWithSources("")
	if err != nil {
		t.Fatalf("LoadWithSources(\"\") error = %v", err)
	}
	if tc.Config.Worktree.Root != "/tmp/enso-trees" {
		t.Errorf("Worktree.Root = %q, want user value", tc.Config.Worktree.Root)
	}
	if got := tc.GetSource("worktree.root"); got != SourceUser {
		t.Errorf("GetSource(worktree.root) = %q, want user", got)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	t.Setenv("HOME", filepath.Join(t.TempDir(), "nonexistent"))

	projectRoot := t.TempDir()
	writeConfigFile(t, projectRoot, `
log:
  format: json
`)

	cfg, err := Load(projectRoot)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want untouched default info", cfg.Log.Level)
	}
	if !cfg.Merge.AutoStash {
		t.Error("Merge.AutoStash flipped by a file that never mentions it")
	}
}

func TestApplyEnvVarsReportsPaths(t *testing.T) {
	t.Setenv("ENSO_LOG_LEVEL", "debug")
	t.Setenv("ENSO_GIT_TIMEOUT", "45s")

	tc := NewTrackedConfig()
	overridden := ApplyEnvVars(tc)

	found := map[string]bool{}
	for _, p := range overridden {
		found[p] = true
	}
	if !found["log.level"] || !found["git.timeout"] {
		t.Errorf("overridden = %v, want log.level and git.timeout", overridden)
	}
	if tc.Config.Git.Timeout != 45*time.Second {
		t.Errorf("Git.Timeout = %s, want 45s", tc.Config.Git.Timeout)
	}
}

func TestApplyEnvVarsIgnoresUnparsable(t *testing.T) {
	t.Setenv("ENSO_PORT", "not-a-number")

	tc := NewTrackedConfig()
	ApplyEnvVars(tc)

	if tc.Config.Server.Port != 4690 {
		t.Errorf("Server.Port = %d, want default when env value is garbage", tc.Config.Server.Port)
	}
	if got := tc.GetSource("server.port"); got != SourceDefault {
		t.Errorf("GetSource(server.port) = %q, want default", got)
	}
}
