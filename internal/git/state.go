package git

import (
	"os"
	"path/filepath"
	"strings"
)

// MergeKind identifies which git mechanism holds in-progress merge state.
type MergeKind string

const (
	MergeKindNone   MergeKind = ""
	MergeKindMerge  MergeKind = "merge"
	MergeKindSquash MergeKind = "squash"
	MergeKindRebase MergeKind = "rebase"
)

// MergeState is the queryable status of an in-progress merge. It is
// derived from the repository's on-disk state on every call, never cached,
// so it stays correct across UI navigation and process restarts.
type MergeState struct {
	InProgress   bool            `json:"inProgress"`
	Kind         MergeKind       `json:"kind,omitempty"`
	TargetBranch string          `json:"targetBranch,omitempty"`
	SourceBranch string          `json:"sourceBranch,omitempty"`
	Conflicts    []MergeConflict `json:"conflicts,omitempty"`
}

// MergeState derives the current merge state of the working tree.
//
// Detection order: a rebase state directory wins, then MERGE_HEAD, then a
// squash (unmerged index or SQUASH_MSG without either marker). A clean
// tree yields InProgress=false.
func (g *Context) MergeState() (*MergeState, error) {
	gitDir, err := g.GitDir()
	if err != nil {
		return nil, err
	}

	state := &MergeState{}

	for _, dir := range []string{"rebase-merge", "rebase-apply"} {
		stateDir := filepath.Join(gitDir, dir)
		if _, err := os.Stat(stateDir); err != nil {
			continue
		}
		state.InProgress = true
		state.Kind = MergeKindRebase
		state.TargetBranch = readRefFile(filepath.Join(stateDir, "head-name"))
		if onto := readRefFile(filepath.Join(stateDir, "onto")); onto != "" {
			state.SourceBranch = g.branchNameFor(onto)
		}
		break
	}

	if !state.InProgress {
		if _, err := g.runGit("rev-parse", "-q", "--verify", "MERGE_HEAD"); err == nil {
			state.InProgress = true
			state.Kind = MergeKindMerge
			if branch, err := g.CurrentBranch(); err == nil && branch != "HEAD" {
				state.TargetBranch = branch
			}
			state.SourceBranch = g.branchNameFor("MERGE_HEAD")
		}
	}

	conflicts, err := g.Conflicts()
	if err != nil {
		return nil, err
	}
	state.Conflicts = conflicts

	if !state.InProgress {
		// A squash leaves no MERGE_HEAD: in-progress state shows up as an
		// unmerged index, or as SQUASH_MSG once everything is staged.
		_, msgErr := os.Stat(filepath.Join(gitDir, "SQUASH_MSG"))
		if len(conflicts) > 0 || msgErr == nil {
			state.InProgress = true
			state.Kind = MergeKindSquash
			if branch, err := g.CurrentBranch(); err == nil && branch != "HEAD" {
				state.TargetBranch = branch
			}
		}
	}

	return state, nil
}

// branchNameFor resolves a rev to a local branch name, or "" when the rev
// does not sit on one.
func (g *Context) branchNameFor(rev string) string {
	name, err := g.runGit("name-rev", "--name-only", "--refs=refs/heads/*", rev)
	if err != nil || name == "undefined" {
		return ""
	}
	// name-rev decorates non-tip commits as branch~N or branch^N.
	if i := strings.IndexAny(name, "~^"); i >= 0 {
		name = name[:i]
	}
	return name
}

// readRefFile reads a single-line git state file and strips the
// refs/heads/ prefix. Missing files yield "".
func readRefFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	ref := strings.TrimSpace(string(data))
	return strings.TrimPrefix(ref, "refs/heads/")
}
