package git

import "errors"

// Git operation errors.
var (
	// ErrNotGitRepo indicates the path is not a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrWorktreeExists indicates the worktree path is already in use.
	ErrWorktreeExists = errors.New("worktree already exists")

	// ErrWorktreeNotFound indicates the worktree does not exist.
	ErrWorktreeNotFound = errors.New("worktree not found")

	// ErrMainWorktree indicates the operation targeted the main worktree.
	ErrMainWorktree = errors.New("operation not allowed on the main worktree")

	// ErrBranchExists indicates the branch already exists.
	ErrBranchExists = errors.New("branch already exists")

	// ErrBranchNotFound indicates the branch does not exist.
	ErrBranchNotFound = errors.New("branch not found")

	// ErrNothingToCommit indicates there are no staged changes to commit.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrNoMergeInProgress indicates there is no merge state to continue or abort.
	ErrNoMergeInProgress = errors.New("no merge in progress")

	// ErrMergeInProgress indicates the repository already has unresolved merge state.
	ErrMergeInProgress = errors.New("merge already in progress")
)

// GitError wraps a git command error with context.
type GitError struct {
	Op     string // Operation that failed (e.g., "merge", "stash pop")
	Output string // Combined stdout/stderr output
	Err    error  // Underlying error
}

func (e *GitError) Error() string {
	if e.Output != "" {
		return e.Op + ": " + e.Output
	}
	if e.Err != nil {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " failed"
}

func (e *GitError) Unwrap() error {
	return e.Err
}
