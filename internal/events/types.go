// Package events provides event types and publishing infrastructure for the
// EnsoAI backend. Events are keyed by repository path so that multiple panels
// watching different repositories only receive what they care about.
package events

import (
	"time"
)

// EventType defines the type of event.
type EventType string

const (
	// Merge lifecycle events

	// EventMergeStarted indicates a merge attempt began.
	EventMergeStarted EventType = "merge_started"
	// EventMergeProgress indicates the merge engine moved to a new phase.
	EventMergeProgress EventType = "merge_progress"
	// EventMergeConflict indicates the merge halted on conflicts.
	EventMergeConflict EventType = "merge_conflict"
	// EventMergeCompleted indicates a merge finished and cleanup ran.
	EventMergeCompleted EventType = "merge_completed"
	// EventMergeFailed indicates a merge failed for a reason other than conflicts.
	EventMergeFailed EventType = "merge_failed"
	// EventMergeAborted indicates an in-progress merge was abandoned.
	EventMergeAborted EventType = "merge_aborted"

	// Stash events

	// EventStash indicates a stash status change in one of the two worktrees.
	EventStash EventType = "stash"

	// Conflict resolution events

	// EventConflictResolved indicates a single conflicted file was resolved.
	EventConflictResolved EventType = "conflict_resolved"

	// Worktree events (UI refreshes its worktree list on these)

	// EventWorktreeCreated indicates a new linked worktree was added.
	EventWorktreeCreated EventType = "worktree_created"
	// EventWorktreeRemoved indicates a worktree was removed.
	EventWorktreeRemoved EventType = "worktree_removed"
	// EventWorktreePruned indicates stale worktree entries were pruned.
	EventWorktreePruned EventType = "worktree_pruned"

	// Settings events

	// EventSettingsUpdated indicates the app settings changed.
	EventSettingsUpdated EventType = "settings_updated"

	// External change events

	// EventRepoChanged indicates git state changed on disk outside the app,
	// e.g. a merge or checkout run from a terminal.
	EventRepoChanged EventType = "repo_changed"
)

// Event represents a published event.
type Event struct {
	Type EventType `json:"type"`
	Repo string    `json:"repo"`
	Data any       `json:"data"`
	Time time.Time `json:"time"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType, repo string, data any) Event {
	return Event{
		Type: eventType,
		Repo: repo,
		Data: data,
		Time: time.Now(),
	}
}

// MergeUpdate describes a merge lifecycle transition.
type MergeUpdate struct {
	Phase        string `json:"phase"` // stashing, merging, conflicted, completing, cleaning-up, failed
	SourceBranch string `json:"sourceBranch"`
	TargetBranch string `json:"targetBranch"`
	Strategy     string `json:"strategy"`
	CommitHash   string `json:"commitHash,omitempty"`
	Error        string `json:"error,omitempty"`
}

// StashUpdate reports a stash status change for one worktree.
type StashUpdate struct {
	TreePath string `json:"treePath"`
	Status   string `json:"status"` // none, stashed, applied, conflict
}

// ConflictUpdate carries the conflicted paths after a halted merge.
type ConflictUpdate struct {
	Files []string `json:"files"`
	Count int      `json:"count"`
}

// ResolutionUpdate reports a single file resolution.
type ResolutionUpdate struct {
	File       string `json:"file"`
	Resolution string `json:"resolution"` // ours, theirs, delete, manual
	Remaining  int    `json:"remaining"`
}

// WorktreeUpdate reports a worktree lifecycle change.
type WorktreeUpdate struct {
	Path   string `json:"path"`
	Branch string `json:"branch,omitempty"`
}

// RepoChange identifies which slice of on-disk git state changed.
type RepoChange struct {
	Scope string `json:"scope"` // merge-state, head, worktrees
}

// WarningData represents a non-fatal warning.
type WarningData struct {
	Message string `json:"message"`
}
