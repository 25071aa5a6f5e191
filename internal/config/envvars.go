package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvVarMapping maps environment variables to config paths.
var EnvVarMapping = map[string]string{
	"ENSO_HOST":                "server.host",
	"ENSO_PORT":                "server.port",
	"ENSO_MAX_PORT_ATTEMPTS":   "server.max_port_attempts",
	"ENSO_GIT_BINARY":          "git.binary",
	"ENSO_GIT_TIMEOUT":         "git.timeout",
	"ENSO_HTTP_PROXY":          "git.proxy.http",
	"ENSO_HTTPS_PROXY":         "git.proxy.https",
	"ENSO_NO_PROXY":            "git.proxy.no_proxy",
	"ENSO_MERGE_STRATEGY":      "merge.default_strategy",
	"ENSO_MERGE_NO_FF":         "merge.no_ff",
	"ENSO_MERGE_AUTO_STASH":    "merge.auto_stash",
	"ENSO_KEEP_BRANCHES":       "merge.keep_branches",
	"ENSO_WORKTREE_ROOT":       "worktree.root",
	"ENSO_WORKTREE_AUTO_PRUNE": "worktree.auto_prune",
	"ENSO_DB_DIALECT":          "db.dialect",
	"ENSO_DB_DSN":              "db.dsn",
	"ENSO_LOG_LEVEL":           "log.level",
	"ENSO_LOG_FORMAT":          "log.format",
}

// ApplyEnvVars applies environment variable overrides to a TrackedConfig.
// Returns the config paths that were overridden.
func ApplyEnvVars(tc *TrackedConfig) []string {
	var overridden []string

	for envVar, configPath := range EnvVarMapping {
		value := os.Getenv(envVar)
		if value == "" {
			continue
		}

		if applyEnvVar(tc.Config, configPath, value) {
			tc.SetSource(configPath, SourceEnv)
			overridden = append(overridden, configPath)
		}
	}

	return overridden
}

// applyEnvVar applies a single environment variable to the config.
// Returns true if the value was applied.
func applyEnvVar(cfg *Config, path string, value string) bool {
	switch path {
	case "server.host":
		cfg.Server.Host = value
	case "server.port":
		v, err := strconv.Atoi(value)
		if err != nil {
			return false
		}
		cfg.Server.Port = v
	case "server.max_port_attempts":
		v, err := strconv.Atoi(value)
		if err != nil {
			return false
		}
		cfg.Server.MaxPortAttempts = v
	case "git.binary":
		cfg.Git.Binary = value
	case "git.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return false
		}
		cfg.Git.Timeout = d
	case "git.proxy.http":
		cfg.Git.Proxy.HTTP = value
	case "git.proxy.https":
		cfg.Git.Proxy.HTTPS = value
	case "git.proxy.no_proxy":
		cfg.Git.Proxy.NoProxy = value
	case "merge.default_strategy":
		cfg.Merge.DefaultStrategy = value
	case "merge.no_ff":
		cfg.Merge.NoFF = parseBool(value)
	case "merge.auto_stash":
		cfg.Merge.AutoStash = parseBool(value)
	case "merge.keep_branches":
		cfg.Merge.KeepBranches = splitList(value)
	case "worktree.root":
		cfg.Worktree.Root = value
	case "worktree.auto_prune":
		cfg.Worktree.AutoPrune = parseBool(value)
	case "db.dialect":
		cfg.DB.Dialect = value
	case "db.dsn":
		cfg.DB.DSN = value
	case "log.level":
		cfg.Log.Level = value
	case "log.format":
		cfg.Log.Format = value
	default:
		return false
	}
	return true
}

// parseBool parses a boolean string (case-insensitive).
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// splitList splits a comma-separated value, trimming whitespace.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
