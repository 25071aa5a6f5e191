// Package watcher monitors a repository's .git directory and publishes
// events when git state changes on disk. This is how the app notices
// merges, checkouts, and worktree changes made from a terminal or another
// tool while a repository is open: subscribers re-query the affected state
// instead of polling.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/lwt-sadais/EnsoAI/internal/events"
)

// Scope names the slice of git state a change belongs to. Clients use it
// to decide which queries to re-run.
type Scope string

const (
	// ScopeMergeState covers merge, squash, and rebase marker files.
	ScopeMergeState Scope = "merge-state"
	// ScopeHead covers HEAD movement: commits, checkouts, resets.
	ScopeHead Scope = "head"
	// ScopeWorktrees covers worktree registrations appearing or vanishing.
	ScopeWorktrees Scope = "worktrees"
)

// DefaultDebounceMs is the debounce interval used when Config leaves it
// unset. Git touches several marker files per operation; one notification
// per burst is enough.
const DefaultDebounceMs = 200

// Config holds watcher configuration.
type Config struct {
	// RepoPath is the repository root. It is used verbatim as the event
	// repo key, so it must match the path clients subscribe with.
	RepoPath string
	// Publisher receives the change events.
	Publisher events.Publisher
	// Logger for watcher diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
	// DebounceMs is the quiet window before a change is published.
	DebounceMs int
}

// Watcher monitors a single repository's git directory.
type Watcher struct {
	repoPath     string
	gitDir       string
	worktreesDir string
	publisher    events.Publisher
	logger       *slog.Logger
	fsWatcher    *fsnotify.Watcher
	debouncer    *Debouncer

	stopOnce sync.Once
	done     chan struct{}
}

// New creates a watcher for the repository at cfg.RepoPath. The path must
// contain a .git entry; linked worktrees (where .git is a pointer file)
// are resolved to their private git directory.
func New(cfg *Config) (*Watcher, error) {
	if cfg.RepoPath == "" {
		return nil, fmt.Errorf("repo path is required")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gitDir, err := resolveGitDir(cfg.RepoPath)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	debounceMs := cfg.DebounceMs
	if debounceMs <= 0 {
		debounceMs = DefaultDebounceMs
	}

	w := &Watcher{
		repoPath:     cfg.RepoPath,
		gitDir:       gitDir,
		worktreesDir: filepath.Join(gitDir, "worktrees"),
		publisher:    cfg.Publisher,
		logger:       logger,
		fsWatcher:    fsWatcher,
		done:         make(chan struct{}),
	}
	w.debouncer = NewDebouncer(debounceMs, w.publish)

	return w, nil
}

// Start begins watching and blocks until the context is cancelled or Stop
// is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fsWatcher.Add(w.gitDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.gitDir, err)
	}

	// The worktrees directory only exists once the first linked worktree
	// is added. If it is missing now, handleFSEvent picks it up when git
	// creates it.
	if _, err := os.Stat(w.worktreesDir); err == nil {
		if err := w.fsWatcher.Add(w.worktreesDir); err != nil {
			w.logger.Debug("failed to watch worktrees directory", "dir", w.worktreesDir, "error", err)
		}
	}

	w.logger.Info("repository watcher started",
		"repo", w.repoPath,
		"git_dir", w.gitDir)

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return ctx.Err()

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFSEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "repo", w.repoPath, "error", err)
		}
	}
}

// Stop shuts the watcher down. Safe to call multiple times and
// concurrently with Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.debouncer.Stop()
		if err := w.fsWatcher.Close(); err != nil {
			w.logger.Debug("error closing file watcher", "error", err)
		}
		close(w.done)
		w.logger.Info("repository watcher stopped", "repo", w.repoPath)
	})
}

// Done returns a channel closed when the watcher has stopped.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// GitDir returns the resolved git directory being watched.
func (w *Watcher) GitDir() string {
	return w.gitDir
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	// Permission-only changes carry no state.
	if event.Op == fsnotify.Chmod {
		return
	}

	// Git creates the worktrees directory lazily on the first
	// "worktree add"; start watching it as soon as it appears.
	if event.Has(fsnotify.Create) && event.Name == w.worktreesDir {
		if err := w.fsWatcher.Add(w.worktreesDir); err != nil {
			w.logger.Debug("failed to watch worktrees directory", "dir", w.worktreesDir, "error", err)
		}
		w.debouncer.Trigger(ScopeWorktrees)
		return
	}

	scope, ok := w.classify(event.Name)
	if !ok {
		return
	}

	w.logger.Debug("git state change detected",
		"repo", w.repoPath,
		"path", event.Name,
		"op", event.Op.String(),
		"scope", scope)

	w.debouncer.Trigger(scope)
}

// classify maps a changed path to the scope it affects. Paths that carry
// no state worth re-querying report ok=false.
func (w *Watcher) classify(path string) (Scope, bool) {
	base := filepath.Base(path)

	// Lock files guard writes in progress; the rename that follows is the
	// signal worth reacting to.
	if strings.HasSuffix(base, ".lock") {
		return "", false
	}

	if strings.HasPrefix(path, w.worktreesDir+string(filepath.Separator)) {
		return ScopeWorktrees, true
	}

	if filepath.Dir(path) != w.gitDir {
		return "", false
	}

	switch base {
	case "MERGE_HEAD", "MERGE_MSG", "SQUASH_MSG", "REBASE_HEAD", "rebase-merge", "rebase-apply":
		return ScopeMergeState, true
	case "HEAD", "ORIG_HEAD":
		return ScopeHead, true
	}

	return "", false
}

func (w *Watcher) publish(scope Scope) {
	w.publisher.Publish(events.NewEvent(events.EventRepoChanged, w.repoPath, events.RepoChange{
		Scope: string(scope),
	}))
}

// resolveGitDir locates the git directory for a repository root without
// shelling out. In a primary worktree .git is a directory; in a linked
// worktree it is a file containing "gitdir: <path>".
func resolveGitDir(repoPath string) (string, error) {
	dotGit := filepath.Join(repoPath, ".git")

	info, err := os.Stat(dotGit)
	if err != nil {
		return "", fmt.Errorf("not a git repository: %s: %w", repoPath, err)
	}

	if info.IsDir() {
		return dotGit, nil
	}

	data, err := os.ReadFile(dotGit)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", dotGit, err)
	}

	target, ok := strings.CutPrefix(strings.TrimSpace(string(data)), "gitdir:")
	if !ok {
		return "", fmt.Errorf("unrecognized .git file at %s", repoPath)
	}

	target = strings.TrimSpace(target)
	if !filepath.IsAbs(target) {
		target = filepath.Join(repoPath, target)
	}
	return filepath.Clean(target), nil
}
