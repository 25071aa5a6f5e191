package git

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Worktree represents one checked-out working copy of a repository.
type Worktree struct {
	Path           string `json:"path"`
	Head           string `json:"head"`
	Branch         string `json:"branch,omitempty"`
	IsMainWorktree bool   `json:"isMainWorktree"`
	IsLocked       bool   `json:"isLocked"`
	Prunable       bool   `json:"prunable"`
	Detached       bool   `json:"detached,omitempty"`
	Bare           bool   `json:"bare,omitempty"`
}

// WorktreeStatus is a Worktree annotated with working-tree state relative
// to a base branch. Computed on demand because it costs extra git calls.
type WorktreeStatus struct {
	Worktree
	Dirty  bool `json:"dirty"`
	Ahead  int  `json:"ahead"`
	Behind int  `json:"behind"`
}

// ParseWorktreeList parses `git worktree list --porcelain` output.
// Records are delimited by lines beginning "worktree "; HEAD, branch, and
// bare/locked/prunable/detached tokens attach to the current record. The
// first record is always the main worktree by git's listing convention.
func ParseWorktreeList(output string) []Worktree {
	var worktrees []Worktree
	var current *Worktree

	flush := func() {
		if current != nil {
			worktrees = append(worktrees, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, "worktree ") {
			flush()
			current = &Worktree{Path: strings.TrimPrefix(line, "worktree ")}
			continue
		}
		if current == nil {
			continue
		}
		switch {
		case strings.HasPrefix(line, "HEAD "):
			current.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			ref := strings.TrimPrefix(line, "branch ")
			current.Branch = strings.TrimPrefix(ref, "refs/heads/")
		case line == "bare":
			current.Bare = true
		case line == "detached":
			current.Detached = true
		case line == "locked" || strings.HasPrefix(line, "locked "):
			current.IsLocked = true
		case line == "prunable" || strings.HasPrefix(line, "prunable "):
			current.Prunable = true
		}
	}
	flush()

	if len(worktrees) > 0 {
		worktrees[0].IsMainWorktree = true
	}

	return worktrees
}

// ListWorktrees returns all worktrees of the repository.
// An empty listing yields an empty slice without error.
func (g *Context) ListWorktrees() ([]Worktree, error) {
	output, err := g.runGit("worktree", "list", "--porcelain")
	if err != nil {
		return nil, &GitError{Op: "list worktrees", Err: err}
	}
	return ParseWorktreeList(output), nil
}

// MainWorktree returns the repository's main worktree.
func (g *Context) MainWorktree() (*Worktree, error) {
	worktrees, err := g.ListWorktrees()
	if err != nil {
		return nil, err
	}
	for i := range worktrees {
		if worktrees[i].IsMainWorktree {
			return &worktrees[i], nil
		}
	}
	return nil, ErrWorktreeNotFound
}

// WorktreeFor returns the worktree registered at the given path.
func (g *Context) WorktreeFor(path string) (*Worktree, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	worktrees, err := g.ListWorktrees()
	if err != nil {
		return nil, err
	}
	for i := range worktrees {
		if filepath.Clean(worktrees[i].Path) == filepath.Clean(absPath) {
			return &worktrees[i], nil
		}
	}
	return nil, ErrWorktreeNotFound
}

// AddWorktreeOptions controls worktree creation.
type AddWorktreeOptions struct {
	// Path is the directory to create the worktree in. Required.
	Path string
	// Branch is an existing branch to check out. Ignored if NewBranch is set.
	Branch string
	// NewBranch creates a new branch at HEAD (or at Branch if also given)
	// and checks it out in the new worktree.
	NewBranch string
}

// AddWorktree creates a new linked worktree.
// A failure caused by a stale registration (directory gone but still
// registered) is retried once after pruning.
func (g *Context) AddWorktree(opts AddWorktreeOptions) error {
	if opts.Path == "" {
		return &GitError{Op: "add worktree", Err: fmt.Errorf("path is required")}
	}

	args := []string{"worktree", "add"}
	if opts.NewBranch != "" {
		args = append(args, "-b", opts.NewBranch)
	}
	args = append(args, opts.Path)
	if opts.Branch != "" {
		args = append(args, opts.Branch)
	}

	_, err := g.runGit(args...)
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "already exists"):
		return ErrWorktreeExists
	case strings.Contains(msg, "missing but already registered"),
		strings.Contains(msg, "is a missing but locked worktree"):
		// Stale registration left behind by an external delete. Prune and retry.
		if _, perr := g.runGit("worktree", "prune"); perr != nil {
			return &GitError{Op: "add worktree", Output: msg, Err: err}
		}
		if _, rerr := g.runGit(args...); rerr != nil {
			return &GitError{Op: "add worktree", Output: rerr.Error(), Err: rerr}
		}
		return nil
	case strings.Contains(msg, "not a valid reference"),
		strings.Contains(msg, "invalid reference"):
		return ErrBranchNotFound
	}
	return &GitError{Op: "add worktree", Output: msg, Err: err}
}

// RemoveWorktreeOptions controls worktree removal.
type RemoveWorktreeOptions struct {
	// Path of the worktree to remove. Required; never the main worktree.
	Path string
	// Force removes the worktree even with uncommitted changes.
	Force bool
	// DeleteBranch additionally force-deletes Branch after removal.
	DeleteBranch bool
	// Branch named here is deleted when DeleteBranch is set.
	Branch string
}

// RemoveWorktree removes a linked worktree and optionally its branch.
// The two steps are not atomic: if branch deletion fails after the
// worktree is gone, the error is surfaced but removal is not rolled back.
func (g *Context) RemoveWorktree(opts RemoveWorktreeOptions) error {
	if opts.Path == "" {
		return &GitError{Op: "remove worktree", Err: fmt.Errorf("path is required")}
	}

	wt, err := g.WorktreeFor(opts.Path)
	if err != nil {
		return err
	}
	if wt.IsMainWorktree {
		return ErrMainWorktree
	}

	args := []string{"worktree", "remove"}
	if opts.Force {
		args = append(args, "--force")
	}
	args = append(args, opts.Path)

	if _, err := g.runGit(args...); err != nil {
		return &GitError{Op: "remove worktree", Output: err.Error(), Err: err}
	}

	if opts.DeleteBranch && opts.Branch != "" {
		if err := g.DeleteBranch(opts.Branch, true); err != nil {
			return &GitError{Op: "delete branch after worktree removal", Err: err}
		}
	}

	return nil
}

// PruneWorktrees removes administrative metadata for worktrees whose
// directories no longer exist.
func (g *Context) PruneWorktrees() error {
	if _, err := g.runGit("worktree", "prune"); err != nil {
		return &GitError{Op: "prune worktrees", Err: err}
	}
	return nil
}

// statusConcurrency bounds the parallel git calls in ListWorktreesWithStatus.
const statusConcurrency = 4

// ListWorktreesWithStatus lists worktrees annotated with dirty state and
// ahead/behind counts versus baseBranch. Enrichment is best-effort: a
// worktree whose directory is gone keeps zero values and its prunable flag.
func (g *Context) ListWorktreesWithStatus(baseBranch string) ([]WorktreeStatus, error) {
	worktrees, err := g.ListWorktrees()
	if err != nil {
		return nil, err
	}

	statuses := make([]WorktreeStatus, len(worktrees))
	var eg errgroup.Group
	eg.SetLimit(statusConcurrency)

	for i := range worktrees {
		statuses[i].Worktree = worktrees[i]
		if worktrees[i].Prunable || worktrees[i].Bare {
			continue
		}
		eg.Go(func() error {
			tree := g.InWorktree(statuses[i].Path)
			if clean, err := tree.IsClean(); err == nil {
				statuses[i].Dirty = !clean
			}
			if baseBranch != "" && !statuses[i].Detached {
				ahead, behind, err := tree.aheadBehind(baseBranch)
				if err == nil {
					statuses[i].Ahead = ahead
					statuses[i].Behind = behind
				}
			}
			return nil
		})
	}
	_ = eg.Wait()

	return statuses, nil
}

// aheadBehind counts commits HEAD is ahead of and behind base.
func (g *Context) aheadBehind(base string) (ahead, behind int, err error) {
	out, err := g.runGit("rev-list", "--left-right", "--count", base+"...HEAD")
	if err != nil {
		return 0, 0, &GitError{Op: "count ahead/behind", Err: err}
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected rev-list output: %q", out)
	}
	behind, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parse behind count: %w", err)
	}
	ahead, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parse ahead count: %w", err)
	}
	return ahead, behind, nil
}

var (
	unsafeNameChars = regexp.MustCompile(`[^a-z0-9-]`)
	dashRuns        = regexp.MustCompile(`-+`)
)

// SanitizeBranchName converts a branch name to a safe directory name.
func SanitizeBranchName(branch string) string {
	safe := strings.ReplaceAll(branch, "/", "-")
	safe = strings.ToLower(safe)
	safe = unsafeNameChars.ReplaceAllString(safe, "")
	safe = dashRuns.ReplaceAllString(safe, "-")
	safe = strings.Trim(safe, "-")
	return safe
}
