// Package cli implements the enso command-line interface.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/lwt-sadais/EnsoAI/internal/config"
	"github.com/lwt-sadais/EnsoAI/internal/db"
	"github.com/lwt-sadais/EnsoAI/internal/git"
)

// newContext is swapped in tests to script git interactions.
var newContext = git.NewContext

// repoContext resolves the repository containing path and loads its
// configuration. Discovery runs with a default runner first because the
// project config lives at the repository root, which only git can tell
// us; the context is then rebuilt with the configured binary, proxy env,
// and timeout.
func repoContext(path string) (*git.Context, *config.Config, error) {
	gc, err := newContext(path)
	if err != nil {
		return nil, nil, err
	}

	cfg := loadConfig(gc.RepoPath())

	runnerOpts := []git.RunnerOption{}
	if env := cfg.GitEnv(); len(env) > 0 {
		runnerOpts = append(runnerOpts, git.WithEnv(env))
	}
	if cfg.Git.Timeout > 0 {
		runnerOpts = append(runnerOpts, git.WithTimeout(cfg.Git.Timeout))
	}

	gc, err = newContext(gc.RepoPath(),
		git.WithRunner(git.NewExecRunner(runnerOpts...)),
		git.WithGitBinary(cfg.Git.Binary))
	if err != nil {
		return nil, nil, err
	}
	return gc, cfg, nil
}

// loadConfig loads the layered configuration for a project root, honoring
// the global --config flag. Load failures fall back to defaults so every
// command still works in an unconfigured checkout.
func loadConfig(projectRoot string) *config.Config {
	if cfgFile != "" {
		cfg, err := config.LoadFrom(cfgFile)
		if err == nil {
			return cfg
		}
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	cfg, err := config.Load(projectRoot)
	if err != nil {
		if verbose {
			fmt.Fprintf(os.Stderr, "Warning: using default config: %v\n", err)
		}
		return config.Default()
	}
	return cfg
}

// newLogger builds the slog logger commands hand to the engine and the
// API server. The --verbose and --quiet flags override the config level.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if l, err := cfg.Log.SlogLevel(); err == nil {
		level = l
	}
	if verbose {
		level = slog.LevelDebug
	}
	if quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// newEngine builds a merge engine for the repository. Merge history is
// recorded to the configured database when it can be opened; a failure
// there degrades to an unrecorded merge rather than blocking it. The
// returned closer releases the database.
func newEngine(gc *git.Context, cfg *config.Config, logger *slog.Logger) (*git.Engine, func()) {
	opts := []git.EngineOption{
		git.WithLogger(logger),
		git.WithKeepBranches(cfg.Merge.KeepBranches),
	}

	closer := func() {}
	database, err := db.Open(cfg.DB.Dialect, cfg.DB.DSN)
	if err != nil {
		logger.Warn("merge history disabled", "error", err)
	} else {
		opts = append(opts, git.WithHistory(db.NewMergeHistory(database)))
		closer = func() { _ = database.Close() }
	}

	return git.NewEngine(gc, opts...), closer
}

// printJSON writes v as indented JSON, the format every command emits
// under --json.
func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// styledOutput reports whether output should be styled for a terminal.
func styledOutput() bool {
	return !jsonOut && isatty.IsTerminal(os.Stdout.Fd())
}

// terminalWidth returns the terminal width, or fallback when stdout is
// not a terminal or the size cannot be determined.
func terminalWidth(fallback int) int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}

// truncate shortens s to maxLen runes, replacing the tail with "...".
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
