package git

import (
	"fmt"
	"log/slog"
	"strings"
)

// StashStatus is the stash state of one working tree within a merge
// attempt. Transitions are none -> stashed -> {applied | conflict};
// applied and conflict are terminal for the attempt.
type StashStatus string

const (
	// StashNone means the tree was clean, nothing was stashed.
	StashNone StashStatus = "none"
	// StashStashed means uncommitted changes were set aside and not yet restored.
	StashStashed StashStatus = "stashed"
	// StashApplied means the stash was popped back cleanly.
	StashApplied StashStatus = "applied"
	// StashConflict means the pop produced merge markers; the entry is kept
	// so the user can retry manually in the reported working tree.
	StashConflict StashStatus = "conflict"
)

// StashLabelPrefix marks every stash entry created by the merge engine.
// Entries are found again by scanning stash subjects for this prefix, so
// restores work even after a process restart loses the attempt id.
const StashLabelPrefix = "enso-merge:"

// StashLabel builds the stash message for one merge attempt.
func StashLabel(attemptID string) string {
	return fmt.Sprintf("%s %s", StashLabelPrefix, attemptID)
}

// StashCoordinator wraps stash push/pop for the working trees of one
// repository. Entries are tagged with a per-attempt label so concurrent
// attempts on different worktrees never cross-contaminate, and so a
// restarted process can still locate its own entries.
type StashCoordinator struct {
	ctx    *Context
	label  string
	logger *slog.Logger
}

// NewStashCoordinator creates a coordinator whose entries carry label.
func NewStashCoordinator(ctx *Context, label string, logger *slog.Logger) *StashCoordinator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StashCoordinator{ctx: ctx, label: label, logger: logger}
}

// StashIfDirty inspects treePath and stashes its uncommitted changes
// (including untracked files) when dirty. Returns StashNone for a clean
// tree and StashStashed after a successful stash. A failure here must
// abort the merge before any branch mutation.
func (s *StashCoordinator) StashIfDirty(treePath string) (StashStatus, error) {
	tree := s.ctx.InWorktree(treePath)

	clean, err := tree.IsClean()
	if err != nil {
		return StashNone, &GitError{Op: "inspect working tree", Err: err}
	}
	if clean {
		return StashNone, nil
	}

	if _, err := tree.RunGit("stash", "push", "-u", "-m", s.label); err != nil {
		return StashNone, &GitError{Op: "stash push", Err: err}
	}

	s.logger.Debug("stashed working tree", "path", treePath, "label", s.label)
	return StashStashed, nil
}

// Pop restores this attempt's stash entry in treePath.
// A clean pop returns StashApplied. A pop that produces merge markers
// returns StashConflict with the entry kept for manual recovery. Other
// pop failures return StashStashed with the error; the entry remains.
func (s *StashCoordinator) Pop(treePath string) (StashStatus, error) {
	tree := s.ctx.InWorktree(treePath)

	ref, err := findStashEntry(tree, s.label)
	if err != nil {
		return StashStashed, err
	}
	if ref == "" {
		// Entry gone: popped or dropped outside this attempt.
		s.logger.Warn("no stash entry found, treating as applied",
			"path", treePath, "label", s.label)
		return StashApplied, nil
	}
	return s.popRef(tree, treePath, ref)
}

// RestoreAny restores the newest stash entry created by any merge attempt
// in treePath. Used when completing a merge after a restart, when the
// original attempt id is no longer known. No labeled entry means nothing
// was stashed: StashNone.
func (s *StashCoordinator) RestoreAny(treePath string) (StashStatus, error) {
	tree := s.ctx.InWorktree(treePath)

	ref, err := findStashEntry(tree, StashLabelPrefix)
	if err != nil {
		return StashNone, err
	}
	if ref == "" {
		return StashNone, nil
	}
	return s.popRef(tree, treePath, ref)
}

func (s *StashCoordinator) popRef(tree *Context, treePath, ref string) (StashStatus, error) {
	output, err := tree.RunGit("stash", "pop", ref)
	if err == nil {
		s.logger.Debug("stash popped", "path", treePath, "ref", ref)
		return StashApplied, nil
	}

	combined := output + "\n" + err.Error()
	if strings.Contains(combined, "CONFLICT") {
		// Git keeps the entry on a conflicted pop.
		s.logger.Warn("stash pop produced conflicts", "path", treePath, "ref", ref)
		return StashConflict, nil
	}

	return StashStashed, &GitError{Op: "stash pop", Output: err.Error(), Err: err}
}

// findStashEntry returns the newest stash ref whose subject contains
// needle, or "" when there is none.
func findStashEntry(tree *Context, needle string) (string, error) {
	output, err := tree.RunGit("stash", "list", "--format=%gd\t%gs")
	if err != nil {
		return "", &GitError{Op: "stash list", Err: err}
	}

	for _, line := range strings.Split(output, "\n") {
		ref, subject, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		if strings.Contains(subject, needle) {
			return strings.TrimSpace(ref), nil
		}
	}
	return "", nil
}
