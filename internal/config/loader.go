package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadWithSources loads configuration with source tracking.
// Load order (later sources override earlier):
//  1. Built-in defaults
//  2. User config (~/.enso/config.yaml) - optional
//  3. Project config (<projectRoot>/.enso/config.yaml) - optional
//  4. Environment variables (ENSO_*)
//
// An unreadable or malformed user file is skipped with a warning; a
// broken project file is fatal. An empty projectRoot skips the project
// layer. The merged result is validated before it is returned.
func LoadWithSources(projectRoot string) (*TrackedConfig, error) {
	tc := NewTrackedConfig()
	markDefaults(tc)

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, EnsoDir, ConfigFileName)
		if _, err := os.Stat(userPath); err == nil {
			if err := mergeFromFile(tc, userPath, SourceUser); err != nil {
				slog.Warn("skipping user config", "path", userPath, "error", err)
			}
		}
	}

	if projectRoot != "" {
		projectPath := ProjectConfigPath(projectRoot)
		if _, err := os.Stat(projectPath); err == nil {
			if err := mergeFromFile(tc, projectPath, SourceProject); err != nil {
				return nil, err
			}
		}
	}

	ApplyEnvVars(tc)

	if err := tc.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return tc, nil
}

// Load is LoadWithSources without the source bookkeeping.
func Load(projectRoot string) (*Config, error) {
	tc, err := LoadWithSources(projectRoot)
	if err != nil {
		return nil, err
	}
	return tc.Config, nil
}

// mergeFromFile merges configuration from a file into tc.
func mergeFromFile(tc *TrackedConfig, path string, source ConfigSource) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	// Parse into a map first to know which fields the file actually sets.
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	mergeConfig(tc, &fileCfg, raw, source, path)
	return nil
}

// mergeConfig merges the fields present in raw into tc.Config, tracking
// sources.
func mergeConfig(tc *TrackedConfig, fileCfg *Config, raw map[string]interface{}, source ConfigSource, filePath string) {
	if _, ok := raw["version"]; ok {
		tc.Config.Version = fileCfg.Version
		tc.SetSourceWithPath("version", source, filePath)
	}

	if rawServer, ok := raw["server"].(map[string]interface{}); ok {
		mergeServerConfig(tc, fileCfg, rawServer, source, filePath)
	}
	if rawGit, ok := raw["git"].(map[string]interface{}); ok {
		mergeGitConfig(tc, fileCfg, rawGit, source, filePath)
	}
	if rawMerge, ok := raw["merge"].(map[string]interface{}); ok {
		mergeMergeConfig(tc, fileCfg, rawMerge, source, filePath)
	}
	if rawWorktree, ok := raw["worktree"].(map[string]interface{}); ok {
		mergeWorktreeConfig(tc, fileCfg, rawWorktree, source, filePath)
	}
	if rawDB, ok := raw["db"].(map[string]interface{}); ok {
		mergeDBConfig(tc, fileCfg, rawDB, source, filePath)
	}
	if rawLog, ok := raw["log"].(map[string]interface{}); ok {
		mergeLogConfig(tc, fileCfg, rawLog, source, filePath)
	}
}

func mergeServerConfig(tc *TrackedConfig, fileCfg *Config, raw map[string]interface{}, source ConfigSource, filePath string) {
	if _, ok := raw["host"]; ok {
		tc.Config.Server.Host = fileCfg.Server.Host
		tc.SetSourceWithPath("server.host", source, filePath)
	}
	if _, ok := raw["port"]; ok {
		tc.Config.Server.Port = fileCfg.Server.Port
		tc.SetSourceWithPath("server.port", source, filePath)
	}
	if _, ok := raw["max_port_attempts"]; ok {
		tc.Config.Server.MaxPortAttempts = fileCfg.Server.MaxPortAttempts
		tc.SetSourceWithPath("server.max_port_attempts", source, filePath)
	}
}

func mergeGitConfig(tc *TrackedConfig, fileCfg *Config, raw map[string]interface{}, source ConfigSource, filePath string) {
	if _, ok := raw["binary"]; ok {
		tc.Config.Git.Binary = fileCfg.Git.Binary
		tc.SetSourceWithPath("git.binary", source, filePath)
	}
	if _, ok := raw["timeout"]; ok {
		tc.Config.Git.Timeout = fileCfg.Git.Timeout
		tc.SetSourceWithPath("git.timeout", source, filePath)
	}
	if rawProxy, ok := raw["proxy"].(map[string]interface{}); ok {
		if _, ok := rawProxy["http"]; ok {
			tc.Config.Git.Proxy.HTTP = fileCfg.Git.Proxy.HTTP
			tc.SetSourceWithPath("git.proxy.http", source, filePath)
		}
		if _, ok := rawProxy["https"]; ok {
			tc.Config.Git.Proxy.HTTPS = fileCfg.Git.Proxy.HTTPS
			tc.SetSourceWithPath("git.proxy.https", source, filePath)
		}
		if _, ok := rawProxy["no_proxy"]; ok {
			tc.Config.Git.Proxy.NoProxy = fileCfg.Git.Proxy.NoProxy
			tc.SetSourceWithPath("git.proxy.no_proxy", source, filePath)
		}
	}
}

func mergeMergeConfig(tc *TrackedConfig, fileCfg *Config, raw map[string]interface{}, source ConfigSource, filePath string) {
	if _, ok := raw["default_strategy"]; ok {
		tc.Config.Merge.DefaultStrategy = fileCfg.Merge.DefaultStrategy
		tc.SetSourceWithPath("merge.default_strategy", source, filePath)
	}
	if _, ok := raw["no_ff"]; ok {
		tc.Config.Merge.NoFF = fileCfg.Merge.NoFF
		tc.SetSourceWithPath("merge.no_ff", source, filePath)
	}
	if _, ok := raw["auto_stash"]; ok {
		tc.Config.Merge.AutoStash = fileCfg.Merge.AutoStash
		tc.SetSourceWithPath("merge.auto_stash", source, filePath)
	}
	if _, ok := raw["keep_branches"]; ok {
		tc.Config.Merge.KeepBranches = fileCfg.Merge.KeepBranches
		tc.SetSourceWithPath("merge.keep_branches", source, filePath)
	}
}

func mergeWorktreeConfig(tc *TrackedConfig, fileCfg *Config, raw map[string]interface{}, source ConfigSource, filePath string) {
	if _, ok := raw["root"]; ok {
		tc.Config.Worktree.Root = fileCfg.Worktree.Root
		tc.SetSourceWithPath("worktree.root", source, filePath)
	}
	if _, ok := raw["auto_prune"]; ok {
		tc.Config.Worktree.AutoPrune = fileCfg.Worktree.AutoPrune
		tc.SetSourceWithPath("worktree.auto_prune", source, filePath)
	}
}

func mergeDBConfig(tc *TrackedConfig, fileCfg *Config, raw map[string]interface{}, source ConfigSource, filePath string) {
	if _, ok := raw["dialect"]; ok {
		tc.Config.DB.Dialect = fileCfg.DB.Dialect
		tc.SetSourceWithPath("db.dialect", source, filePath)
	}
	if _, ok := raw["dsn"]; ok {
		tc.Config.DB.DSN = fileCfg.DB.DSN
		tc.SetSourceWithPath("db.dsn", source, filePath)
	}
}

func mergeLogConfig(tc *TrackedConfig, fileCfg *Config, raw map[string]interface{}, source ConfigSource, filePath string) {
	if _, ok := raw["level"]; ok {
		tc.Config.Log.Level = fileCfg.Log.Level
		tc.SetSourceWithPath("log.level", source, filePath)
	}
	if _, ok := raw["format"]; ok {
		tc.Config.Log.Format = fileCfg.Log.Format
		tc.SetSourceWithPath("log.format", source, filePath)
	}
}

// markDefaults marks every known config path as SourceDefault.
func markDefaults(tc *TrackedConfig) {
	for _, path := range AllConfigPaths() {
		tc.SetSource(path, SourceDefault)
	}
}
