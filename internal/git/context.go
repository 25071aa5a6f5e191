// Package git implements the git-facing core of the EnsoAI backend: the
// command runner seam, the worktree registry, the stash coordinator, the
// merge engine, and conflict inspection. Everything speaks to git through
// a CommandRunner so the full merge lifecycle is testable without a real
// repository.
package git

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Context manages git operations for one working tree of a repository.
type Context struct {
	repoPath string        // Path to the repository root (the working tree NewContext was given)
	workDir  string        // Current working directory for commands (defaults to repoPath)
	gitBin   string        // Git binary (defaults to "git")
	runner   CommandRunner // Command runner (defaults to ExecRunner)
}

// ContextOption configures Context.
type ContextOption func(*Context)

// WithRunner sets a custom command runner for git operations.
// This is primarily used for testing to inject mock command execution.
func WithRunner(runner CommandRunner) ContextOption {
	return func(g *Context) {
		g.runner = runner
	}
}

// WithGitBinary sets the git executable to invoke. Default is "git" from PATH.
func WithGitBinary(bin string) ContextOption {
	return func(g *Context) {
		if bin != "" {
			g.gitBin = bin
		}
	}
}

// NewContext creates a new git context for the repository.
// The path may be anywhere inside a working tree; it is normalized to the
// tree's top level. Returns ErrNotGitRepo if the path is not inside one.
func NewContext(repoPath string, opts ...ContextOption) (*Context, error) {
	absPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	g := &Context{
		repoPath: absPath,
		workDir:  absPath,
		gitBin:   "git",
		runner:   NewExecRunner(),
	}

	for _, opt := range opts {
		opt(g)
	}

	// Validate through the runner so tests can mock repository discovery.
	top, err := g.runGit("rev-parse", "--show-toplevel")
	if err != nil {
		return nil, ErrNotGitRepo
	}
	if top != "" {
		g.repoPath = top
		g.workDir = top
	}

	return g, nil
}

// RepoPath returns the path to the repository root.
func (g *Context) RepoPath() string {
	return g.repoPath
}

// WorkDir returns the current working directory for git commands.
// This is the repo path unless working in a worktree.
func (g *Context) WorkDir() string {
	return g.workDir
}

// InWorktree returns a new Context that operates in the specified worktree.
func (g *Context) InWorktree(worktreePath string) *Context {
	return &Context{
		repoPath: g.repoPath,
		workDir:  worktreePath,
		gitBin:   g.gitBin,
		runner:   g.runner,
	}
}

// CurrentBranch returns the current branch name, or "HEAD" when detached.
func (g *Context) CurrentBranch() (string, error) {
	branch, err := g.runGit("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", &GitError{Op: "get current branch", Err: err}
	}
	return branch, nil
}

// CreateBranch creates a new branch at HEAD.
func (g *Context) CreateBranch(name string) error {
	if _, err := g.runGit("branch", name); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return ErrBranchExists
		}
		return &GitError{Op: "create branch", Err: err}
	}
	return nil
}

// DeleteBranch deletes a branch. If force is true, uses -D instead of -d.
func (g *Context) DeleteBranch(name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	if _, err := g.runGit("branch", flag, name); err != nil {
		if strings.Contains(err.Error(), "not found") {
			return ErrBranchNotFound
		}
		return &GitError{Op: "delete branch", Err: err}
	}
	return nil
}

// BranchExists checks if a local branch exists.
func (g *Context) BranchExists(name string) bool {
	_, err := g.runGit("rev-parse", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// Stage adds files to the staging area.
func (g *Context) Stage(files ...string) error {
	if len(files) == 0 {
		return nil
	}
	args := append([]string{"add", "--"}, files...)
	if _, err := g.runGit(args...); err != nil {
		return &GitError{Op: "stage files", Err: err}
	}
	return nil
}

// StageAll stages all changes (git add -A).
func (g *Context) StageAll() error {
	if _, err := g.runGit("add", "-A"); err != nil {
		return &GitError{Op: "stage all", Err: err}
	}
	return nil
}

// Commit creates a commit with the given message.
// Returns ErrNothingToCommit if there are no staged changes.
func (g *Context) Commit(message string) error {
	output, err := g.runGit("commit", "-m", message)
	if err != nil {
		if strings.Contains(output, "nothing to commit") ||
			strings.Contains(err.Error(), "nothing to commit") {
			return ErrNothingToCommit
		}
		return &GitError{Op: "commit", Output: output, Err: err}
	}
	return nil
}

// Status returns the working tree status in short format.
func (g *Context) Status() (string, error) {
	status, err := g.runGit("status", "--porcelain")
	if err != nil {
		return "", &GitError{Op: "status", Err: err}
	}
	return status, nil
}

// IsClean returns true if the working tree has no uncommitted changes.
func (g *Context) IsClean() (bool, error) {
	status, err := g.Status()
	if err != nil {
		return false, err
	}
	return status == "", nil
}

// HeadCommit returns the current HEAD commit SHA.
func (g *Context) HeadCommit() (string, error) {
	sha, err := g.runGit("rev-parse", "HEAD")
	if err != nil {
		return "", &GitError{Op: "get HEAD commit", Err: err}
	}
	return sha, nil
}

// GitDir returns the absolute path to the git directory serving the
// current working tree. For linked worktrees this is the per-worktree
// directory under the main repository's .git/worktrees.
func (g *Context) GitDir() (string, error) {
	dir, err := g.runGit("rev-parse", "--git-dir")
	if err != nil {
		return "", &GitError{Op: "resolve git dir", Err: err}
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(g.workDir, dir)
	}
	return dir, nil
}

// runGit executes a git command and returns stdout.
func (g *Context) runGit(args ...string) (string, error) {
	return g.runner.Run(g.workDir, g.gitBin, args...)
}

// RunGit executes a git command and returns stdout.
// This is the public version of runGit for use by external packages.
func (g *Context) RunGit(args ...string) (string, error) {
	return g.runGit(args...)
}
