package git

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	ensoerr "github.com/lwt-sadais/EnsoAI/internal/errors"
	"github.com/lwt-sadais/EnsoAI/internal/events"
	"github.com/lwt-sadais/EnsoAI/internal/util"
)

// Strategy selects how the source branch is integrated into the target.
type Strategy string

const (
	StrategyMerge  Strategy = "merge"
	StrategySquash Strategy = "squash"
	StrategyRebase Strategy = "rebase"
)

// MergeRequest is the input to a merge attempt.
type MergeRequest struct {
	// WorktreePath is the source worktree whose branch is merged.
	WorktreePath string `json:"worktreePath"`
	// TargetBranch is the destination branch; it must be checked out in
	// some worktree (normally the main one).
	TargetBranch string `json:"targetBranch"`
	// Strategy defaults to merge.
	Strategy Strategy `json:"strategy,omitempty"`
	// NoFF forces a merge commit for the merge strategy. Defaults to true;
	// only an explicit false allows fast-forward.
	NoFF *bool `json:"noFf,omitempty"`
	// Message overrides the commit message.
	Message string `json:"message,omitempty"`
	// AutoStash stashes uncommitted changes in both trees before merging.
	AutoStash bool `json:"autoStash,omitempty"`
	// DeleteWorktreeAfterMerge removes the source worktree after a fully
	// completed merge. Never honored while conflicts are unresolved.
	DeleteWorktreeAfterMerge bool `json:"deleteWorktreeAfterMerge,omitempty"`
	// DeleteBranchAfterMerge force-deletes the source branch after a fully
	// completed merge.
	DeleteBranchAfterMerge bool `json:"deleteBranchAfterMerge,omitempty"`
}

// CleanupOptions is the deferred-cleanup snapshot carried from a
// conflicted merge to the continue call that completes it. The original
// MergeRequest is out of scope by then; this captures what cleanup needs.
type CleanupOptions struct {
	WorktreePath   string `json:"worktreePath,omitempty"`
	SourceBranch   string `json:"sourceBranch,omitempty"`
	DeleteWorktree bool   `json:"deleteWorktree,omitempty"`
	DeleteBranch   bool   `json:"deleteBranch,omitempty"`
}

// MergeResult is the outcome of a merge or continue call.
type MergeResult struct {
	// Success means the operation ran without fatal error. A conflicted
	// merge is still Success=true; the conflicts are a normal outcome.
	Success bool `json:"success"`
	// Merged is true only when the branch integration fully completed.
	Merged     bool            `json:"merged"`
	Conflicts  []MergeConflict `json:"conflicts,omitempty"`
	CommitHash string          `json:"commitHash,omitempty"`
	Error      string          `json:"error,omitempty"`
	Warnings   []string        `json:"warnings,omitempty"`
	// Stash statuses are tracked independently per working tree.
	MainStashStatus     StashStatus `json:"mainStashStatus"`
	WorktreeStashStatus StashStatus `json:"worktreeStashStatus"`
	// Paths echoed back so the UI can point the user at the exact
	// directory for manual stash recovery.
	MainWorktreePath string `json:"mainWorktreePath,omitempty"`
	WorktreePath     string `json:"worktreePath,omitempty"`
}

// ResolveOptions names one conflicted file and how to settle it. Either
// Content carries the full resolved text, or Resolution declares a side.
type ResolveOptions struct {
	File string `json:"file"`
	// Content is the resolved file content, written verbatim and staged.
	Content *string `json:"content,omitempty"`
	// Resolution is "ours", "theirs", or "delete"; the only choices for
	// binary, rename, and delete conflicts.
	Resolution string `json:"resolution,omitempty"`
}

// MergeRecord is one terminal merge outcome for the history store.
type MergeRecord struct {
	ID           string        `json:"id"`
	RepoPath     string        `json:"repoPath"`
	SourceBranch string        `json:"sourceBranch"`
	TargetBranch string        `json:"targetBranch"`
	Strategy     string        `json:"strategy"`
	Outcome      string        `json:"outcome"` // merged, conflicted, failed, aborted
	Conflicts    int           `json:"conflicts"`
	Duration     time.Duration `json:"duration"`
	StartedAt    time.Time     `json:"startedAt"`
	FinishedAt   time.Time     `json:"finishedAt"`
}

// HistoryRecorder persists terminal merge outcomes.
type HistoryRecorder interface {
	Record(rec MergeRecord) error
}

// Engine orchestrates the full merge lifecycle for one repository:
// pre-merge stashing, branch integration, conflict intake, completion or
// abort, and post-merge cleanup. It holds no in-memory merge state; every
// call re-derives the repository's situation from disk, so calls remain
// safe after a crash or restart.
type Engine struct {
	ctx       *Context
	logger    *slog.Logger
	publisher events.Publisher
	history   HistoryRecorder
	keepGlobs []string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithPublisher sets the event publisher for merge progress.
func WithPublisher(p events.Publisher) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithHistory sets the merge history recorder.
func WithHistory(h HistoryRecorder) EngineOption {
	return func(e *Engine) {
		e.history = h
	}
}

// WithKeepBranches sets glob patterns for branches exempt from post-merge
// cleanup (their worktrees and branches are never deleted).
func WithKeepBranches(globs []string) EngineOption {
	return func(e *Engine) {
		e.keepGlobs = globs
	}
}

// NewEngine creates a merge engine over the given repository context.
func NewEngine(ctx *Context, opts ...EngineOption) *Engine {
	e := &Engine{
		ctx:       ctx,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		publisher: events.NewNopPublisher(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Merge runs one merge attempt: precheck, optional stashing, branch
// integration, then either conflict intake or stash restore and cleanup.
//
// A non-nil error means the request was rejected before any branch
// mutation. Once mutation starts, failures are reported in the result
// (Success=false) so stash statuses and recovery paths reach the caller.
func (e *Engine) Merge(req MergeRequest) (*MergeResult, error) {
	attemptID := uuid.New().String()
	started := time.Now()

	strategy := req.Strategy
	if strategy == "" {
		strategy = StrategyMerge
	}

	// Precheck: nothing below mutates until the request is fully vetted.
	if req.WorktreePath == "" {
		return nil, ensoerr.ErrInvalidInput("worktreePath", "a source worktree path is required")
	}
	if req.TargetBranch == "" {
		return nil, ensoerr.ErrInvalidInput("targetBranch", "a target branch is required")
	}
	switch strategy {
	case StrategyMerge, StrategySquash, StrategyRebase:
	default:
		return nil, ensoerr.ErrInvalidInput("strategy", fmt.Sprintf("unknown strategy %q", strategy))
	}

	worktrees, err := e.ctx.ListWorktrees()
	if err != nil {
		return nil, ensoerr.ErrRepoNotResolved(e.ctx.RepoPath()).WithCause(err)
	}

	src := worktreeAt(worktrees, req.WorktreePath)
	if src == nil || src.Prunable {
		return nil, ensoerr.ErrWorktreeNotFound(req.WorktreePath)
	}
	if src.Branch == "" {
		return nil, ensoerr.ErrInvalidInput("worktreePath", "source worktree has no branch checked out")
	}
	if src.Branch == req.TargetBranch {
		return nil, ensoerr.ErrBranchIntoItself(req.TargetBranch)
	}
	sourceBranch := src.Branch

	target := worktreeByBranch(worktrees, req.TargetBranch)
	if target == nil {
		if !e.ctx.BranchExists(req.TargetBranch) {
			return nil, ensoerr.ErrBranchNotFound(req.TargetBranch)
		}
		return nil, ensoerr.ErrInvalidInput("targetBranch",
			fmt.Sprintf("branch %q is not checked out in any worktree", req.TargetBranch))
	}
	if target.Prunable {
		return nil, ensoerr.ErrInvalidInput("targetBranch",
			fmt.Sprintf("the worktree hosting %q no longer exists on disk", req.TargetBranch))
	}
	if req.DeleteWorktreeAfterMerge && src.IsMainWorktree {
		return nil, ensoerr.ErrMainWorktreeProtected(src.Path)
	}

	if tree, state, err := e.activeMergeTree(worktrees); err != nil {
		return nil, ensoerr.ErrGitExecution("state inspection").WithCause(err)
	} else if state != nil {
		e.logger.Warn("merge rejected, repository already mid-merge",
			"tree", tree.Path, "kind", state.Kind)
		return nil, ensoerr.ErrMergeInProgress(e.ctx.RepoPath())
	}

	result := &MergeResult{
		MainStashStatus:     StashNone,
		WorktreeStashStatus: StashNone,
		MainWorktreePath:    target.Path,
		WorktreePath:        src.Path,
	}

	e.logger.Info("merge started",
		"attempt", attemptID,
		"source", sourceBranch,
		"target", req.TargetBranch,
		"strategy", strategy)
	e.publishMerge(events.EventMergeStarted, "starting", sourceBranch, req.TargetBranch, strategy, "", "")

	stash := NewStashCoordinator(e.ctx, StashLabel(shortID(attemptID)), e.logger)
	record := func(outcome string, conflicts int) {
		e.record(MergeRecord{
			ID:           attemptID,
			RepoPath:     e.ctx.RepoPath(),
			SourceBranch: sourceBranch,
			TargetBranch: req.TargetBranch,
			Strategy:     string(strategy),
			Outcome:      outcome,
			Conflicts:    conflicts,
			Duration:     time.Since(started),
			StartedAt:    started,
			FinishedAt:   time.Now(),
		})
	}

	// Stash phase. A failure here aborts before any branch mutation.
	if req.AutoStash {
		e.publishMerge(events.EventMergeProgress, "stashing", sourceBranch, req.TargetBranch, strategy, "", "")
		status, err := stash.StashIfDirty(target.Path)
		result.MainStashStatus = status
		if err != nil {
			result.Error = ensoerr.ErrStashFailed(target.Path).WithCause(err).Error()
			record("failed", 0)
			e.publishMerge(events.EventMergeFailed, "failed", sourceBranch, req.TargetBranch, strategy, "", result.Error)
			return result, nil
		}
		e.publishStash(target.Path, status)

		status, err = stash.StashIfDirty(src.Path)
		result.WorktreeStashStatus = status
		if err != nil {
			// Put the target tree back the way we found it.
			if result.MainStashStatus == StashStashed {
				restored, perr := stash.Pop(target.Path)
				result.MainStashStatus = restored
				if perr != nil {
					result.Warnings = append(result.Warnings, stashRecoveryHint(target.Path, perr))
				}
			}
			result.Error = ensoerr.ErrStashFailed(src.Path).WithCause(err).Error()
			record("failed", 0)
			e.publishMerge(events.EventMergeFailed, "failed", sourceBranch, req.TargetBranch, strategy, "", result.Error)
			return result, nil
		}
		e.publishStash(src.Path, status)
	}

	// Merge phase.
	e.publishMerge(events.EventMergeProgress, "merging", sourceBranch, req.TargetBranch, strategy, "", "")
	targetCtx := e.ctx.InWorktree(target.Path)
	mergeErr := e.integrate(targetCtx, strategy, req, sourceBranch, result)

	if mergeErr != nil {
		conflicts, cerr := targetCtx.Conflicts()
		if cerr == nil && len(conflicts) > 0 {
			// Conflict halt is a normal outcome, not a failure. Git's own
			// in-progress state stays on disk; stashes stay put until the
			// continue call restores them.
			result.Success = true
			result.Conflicts = conflicts
			e.logger.Info("merge halted on conflicts",
				"attempt", attemptID, "files", len(conflicts))
			record("conflicted", len(conflicts))
			e.publishConflicts(conflicts)
			return result, nil
		}

		// Hard failure: restore both trees best-effort and report.
		e.restoreStashes(stash, result, target.Path, src.Path)
		result.Error = ensoerr.ErrGitExecution(string(strategy)).WithCause(mergeErr).Error()
		e.logger.Error("merge failed", "attempt", attemptID, "error", mergeErr)
		record("failed", 0)
		e.publishMerge(events.EventMergeFailed, "failed", sourceBranch, req.TargetBranch, strategy, "", result.Error)
		return result, nil
	}

	// Clean completion.
	result.Success = true
	result.Merged = true
	if sha, err := targetCtx.HeadCommit(); err == nil {
		result.CommitHash = sha
	}

	e.publishMerge(events.EventMergeProgress, "completing", sourceBranch, req.TargetBranch, strategy, result.CommitHash, "")
	e.restoreStashes(stash, result, target.Path, src.Path)

	e.publishMerge(events.EventMergeProgress, "cleaning-up", sourceBranch, req.TargetBranch, strategy, result.CommitHash, "")
	e.cleanup(result, CleanupOptions{
		WorktreePath:   src.Path,
		SourceBranch:   sourceBranch,
		DeleteWorktree: req.DeleteWorktreeAfterMerge,
		DeleteBranch:   req.DeleteBranchAfterMerge,
	})

	e.logger.Info("merge completed",
		"attempt", attemptID, "commit", result.CommitHash, "warnings", len(result.Warnings))
	record("merged", 0)
	e.publishMerge(events.EventMergeCompleted, "idle", sourceBranch, req.TargetBranch, strategy, result.CommitHash, "")
	return result, nil
}

// integrate runs the strategy-specific branch integration in the target
// tree. Squash commits separately because git never auto-commits it.
func (e *Engine) integrate(targetCtx *Context, strategy Strategy, req MergeRequest, sourceBranch string, result *MergeResult) error {
	switch strategy {
	case StrategyMerge:
		args := []string{"merge"}
		if req.NoFF == nil || *req.NoFF {
			args = append(args, "--no-ff")
		}
		if req.Message != "" {
			args = append(args, "-m", req.Message)
		}
		args = append(args, sourceBranch)
		_, err := targetCtx.RunGit(args...)
		return err

	case StrategySquash:
		if _, err := targetCtx.RunGit("merge", "--squash", sourceBranch); err != nil {
			return err
		}
		msg := strings.TrimSpace(req.Message)
		if msg == "" {
			msg = squashMessage(sourceBranch, req.TargetBranch)
		}
		err := targetCtx.Commit(msg)
		if errors.Is(err, ErrNothingToCommit) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("nothing to squash: %q already contains %q", req.TargetBranch, sourceBranch))
			return nil
		}
		return err

	case StrategyRebase:
		// Replays the target's commits onto the source tip, which brings
		// the source branch's changes into the target history.
		_, err := targetCtx.RunGit("rebase", sourceBranch)
		return err
	}
	return fmt.Errorf("unknown strategy %q", strategy)
}

// ContinueMerge completes a previously conflicted merge once the caller
// believes every conflict is staged. Remaining unresolved paths come back
// as another conflicted result; this is a retry loop, not a one-shot call.
// On completion it restores stashes and runs the deferred cleanup.
func (e *Engine) ContinueMerge(message string, cleanup CleanupOptions) (*MergeResult, error) {
	started := time.Now()
	attemptID := uuid.New().String()

	tree, state, err := e.findActiveMerge()
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ensoerr.ErrNoMergeInProgress(e.ctx.RepoPath())
	}

	result := &MergeResult{
		MainStashStatus:     StashNone,
		WorktreeStashStatus: StashNone,
		MainWorktreePath:    tree.Path,
		WorktreePath:        cleanup.WorktreePath,
	}

	if len(state.Conflicts) > 0 {
		result.Success = true
		result.Conflicts = state.Conflicts
		return result, nil
	}

	treeCtx := e.ctx.InWorktree(tree.Path)
	sourceBranch := state.SourceBranch
	if sourceBranch == "" {
		sourceBranch = cleanup.SourceBranch
	}

	var completeErr error
	switch state.Kind {
	case MergeKindMerge:
		if message != "" {
			completeErr = treeCtx.Commit(message)
		} else {
			// No message: keep the MERGE_MSG git prepared.
			_, completeErr = treeCtx.RunGit("commit", "--no-edit")
		}

	case MergeKindSquash:
		msg := strings.TrimSpace(message)
		if msg == "" {
			msg = squashMessage(sourceBranch, state.TargetBranch)
		}
		completeErr = treeCtx.Commit(msg)
		if errors.Is(completeErr, ErrNothingToCommit) {
			result.Warnings = append(result.Warnings, "nothing left to commit after resolution")
			completeErr = nil
			clearSquashState(treeCtx)
		}

	case MergeKindRebase:
		// core.editor=true accepts the prepared message without opening
		// an editor inside the backend.
		_, completeErr = treeCtx.RunGit("-c", "core.editor=true", "rebase", "--continue")

	default:
		return nil, ensoerr.ErrNoMergeInProgress(e.ctx.RepoPath())
	}

	if completeErr != nil {
		// A later rebase commit (or an unstaged path) can conflict again.
		conflicts, cerr := treeCtx.Conflicts()
		if cerr == nil && len(conflicts) > 0 {
			result.Success = true
			result.Conflicts = conflicts
			e.publishConflicts(conflicts)
			return result, nil
		}
		result.Error = ensoerr.ErrGitExecution("continue").WithCause(completeErr).Error()
		return result, nil
	}

	result.Success = true
	result.Merged = true
	if sha, err := treeCtx.HeadCommit(); err == nil {
		result.CommitHash = sha
	}

	// The original attempt id is gone after a restart; restore whatever
	// labeled entries this engine left behind.
	stash := NewStashCoordinator(e.ctx, StashLabel(shortID(attemptID)), e.logger)
	status, err := stash.RestoreAny(tree.Path)
	result.MainStashStatus = status
	if err != nil {
		result.Warnings = append(result.Warnings, stashRecoveryHint(tree.Path, err))
	}
	e.publishStash(tree.Path, status)
	if cleanup.WorktreePath != "" && cleanup.WorktreePath != tree.Path {
		status, err := stash.RestoreAny(cleanup.WorktreePath)
		result.WorktreeStashStatus = status
		if err != nil {
			result.Warnings = append(result.Warnings, stashRecoveryHint(cleanup.WorktreePath, err))
		}
		e.publishStash(cleanup.WorktreePath, status)
	}

	e.cleanup(result, cleanup)

	e.record(MergeRecord{
		ID:           attemptID,
		RepoPath:     e.ctx.RepoPath(),
		SourceBranch: sourceBranch,
		TargetBranch: state.TargetBranch,
		Strategy:     string(kindStrategy(state.Kind)),
		Outcome:      "merged",
		Duration:     time.Since(started),
		StartedAt:    started,
		FinishedAt:   time.Now(),
	})
	e.publishMerge(events.EventMergeCompleted, "idle", sourceBranch, state.TargetBranch, kindStrategy(state.Kind), result.CommitHash, "")
	return result, nil
}

// AbortMerge discards any in-progress merge state with git's native abort.
// Calling it with nothing in progress is a no-op; it never restores
// stashes (the entries stay findable for manual recovery).
func (e *Engine) AbortMerge() error {
	tree, state, err := e.findActiveMerge()
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}

	treeCtx := e.ctx.InWorktree(tree.Path)
	var abortErr error
	switch state.Kind {
	case MergeKindRebase:
		_, abortErr = treeCtx.RunGit("rebase", "--abort")
	case MergeKindMerge:
		_, abortErr = treeCtx.RunGit("merge", "--abort")
	case MergeKindSquash:
		_, abortErr = treeCtx.RunGit("reset", "--merge")
		if abortErr == nil {
			clearSquashState(treeCtx)
		}
	}

	if abortErr != nil && !abortedAlready(abortErr) {
		return ensoerr.ErrGitExecution("abort").WithCause(abortErr)
	}

	e.logger.Info("merge aborted", "tree", tree.Path, "kind", state.Kind)
	e.record(MergeRecord{
		ID:           uuid.New().String(),
		RepoPath:     e.ctx.RepoPath(),
		SourceBranch: state.SourceBranch,
		TargetBranch: state.TargetBranch,
		Strategy:     string(kindStrategy(state.Kind)),
		Outcome:      "aborted",
		Conflicts:    len(state.Conflicts),
		StartedAt:    time.Now(),
		FinishedAt:   time.Now(),
	})
	e.publishMerge(events.EventMergeAborted, "idle", state.SourceBranch, state.TargetBranch, kindStrategy(state.Kind), "", "")
	return nil
}

// ResolveConflict settles one conflicted file, either with caller-supplied
// content or by declaring a side, and stages the outcome. It does not
// check whether other conflicts remain; State answers that.
func (e *Engine) ResolveConflict(opts ResolveOptions) error {
	if opts.File == "" {
		return ensoerr.ErrInvalidInput("file", "a conflicted file path is required")
	}
	if filepath.IsAbs(opts.File) || strings.Contains(opts.File, "..") {
		return ensoerr.ErrInvalidInput("file", "path must be repo-relative")
	}

	tree, state, err := e.findActiveMerge()
	if err != nil {
		return err
	}
	if state == nil {
		return ensoerr.ErrNoMergeInProgress(e.ctx.RepoPath())
	}

	treeCtx := e.ctx.InWorktree(tree.Path)

	switch {
	case opts.Content != nil:
		abs := filepath.Join(tree.Path, filepath.FromSlash(opts.File))
		if err := util.AtomicWriteFileString(abs, *opts.Content, 0o644); err != nil {
			return ensoerr.ErrGitExecution("write resolution").WithCause(err)
		}
		if err := treeCtx.Stage(opts.File); err != nil {
			return ensoerr.ErrGitExecution("stage resolution").WithCause(err)
		}

	case opts.Resolution == "ours", opts.Resolution == "theirs":
		if _, err := treeCtx.RunGit("checkout", "--"+opts.Resolution, "--", opts.File); err != nil {
			return ensoerr.ErrGitExecution("checkout " + opts.Resolution).WithCause(err)
		}
		if err := treeCtx.Stage(opts.File); err != nil {
			return ensoerr.ErrGitExecution("stage resolution").WithCause(err)
		}

	case opts.Resolution == "delete":
		if _, err := treeCtx.RunGit("rm", "--force", "--", opts.File); err != nil {
			return ensoerr.ErrGitExecution("remove conflicted file").WithCause(err)
		}

	default:
		return ensoerr.ErrInvalidInput("resolution",
			fmt.Sprintf("expected content or one of ours/theirs/delete, got %q", opts.Resolution))
	}

	remaining := 0
	if conflicts, err := treeCtx.Conflicts(); err == nil {
		remaining = len(conflicts)
	}
	resolution := opts.Resolution
	if opts.Content != nil {
		resolution = "manual"
	}
	e.publisher.Publish(events.NewEvent(events.EventConflictResolved, e.ctx.RepoPath(), events.ResolutionUpdate{
		File:       opts.File,
		Resolution: resolution,
		Remaining:  remaining,
	}))
	return nil
}

// State reports the repository's merge state, re-derived from disk.
func (e *Engine) State() (*MergeState, error) {
	_, state, err := e.findActiveMerge()
	if err != nil {
		return nil, err
	}
	if state == nil {
		return &MergeState{}, nil
	}
	return state, nil
}

// ConflictContent fetches the three-way content of a conflicted file in
// the tree holding the active merge.
func (e *Engine) ConflictContent(file string) (*ConflictContent, error) {
	if filepath.IsAbs(file) || strings.Contains(file, "..") {
		return nil, ensoerr.ErrInvalidInput("file", "path must be repo-relative")
	}
	tree, state, err := e.findActiveMerge()
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ensoerr.ErrNoMergeInProgress(e.ctx.RepoPath())
	}
	return e.ctx.InWorktree(tree.Path).ConflictContent(file)
}

// --- internals ---

// findActiveMerge scans all worktrees for on-disk merge state. Returns
// (nil, nil, nil) when the repository is idle.
func (e *Engine) findActiveMerge() (*Worktree, *MergeState, error) {
	worktrees, err := e.ctx.ListWorktrees()
	if err != nil {
		return nil, nil, ensoerr.ErrRepoNotResolved(e.ctx.RepoPath()).WithCause(err)
	}
	tree, state, err := e.activeMergeTree(worktrees)
	if err != nil {
		return nil, nil, ensoerr.ErrGitExecution("state inspection").WithCause(err)
	}
	return tree, state, nil
}

func (e *Engine) activeMergeTree(worktrees []Worktree) (*Worktree, *MergeState, error) {
	for i := range worktrees {
		if worktrees[i].Prunable || worktrees[i].Bare {
			continue
		}
		state, err := e.ctx.InWorktree(worktrees[i].Path).MergeState()
		if err != nil {
			return nil, nil, err
		}
		if state.InProgress {
			return &worktrees[i], state, nil
		}
	}
	return nil, nil, nil
}

// restoreStashes pops both trees' entries back after the branch work is
// done, downgrading failures to warnings with recovery hints.
func (e *Engine) restoreStashes(stash *StashCoordinator, result *MergeResult, mainPath, wtPath string) {
	if result.MainStashStatus == StashStashed {
		status, err := stash.Pop(mainPath)
		result.MainStashStatus = status
		if err != nil {
			result.Warnings = append(result.Warnings, stashRecoveryHint(mainPath, err))
		}
		e.publishStash(mainPath, status)
	}
	if result.WorktreeStashStatus == StashStashed {
		status, err := stash.Pop(wtPath)
		result.WorktreeStashStatus = status
		if err != nil {
			result.Warnings = append(result.Warnings, stashRecoveryHint(wtPath, err))
		}
		e.publishStash(wtPath, status)
	}
}

// cleanup deletes the source worktree and/or branch after a completed
// merge. Failures are warnings, never errors: the merge itself already
// succeeded. The worktree goes first because a checked-out branch cannot
// be deleted.
func (e *Engine) cleanup(result *MergeResult, opts CleanupOptions) {
	if !result.Merged {
		return
	}
	if !opts.DeleteWorktree && !opts.DeleteBranch {
		return
	}

	if opts.SourceBranch != "" && e.keepBranch(opts.SourceBranch) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("branch %q matches keep_branches; skipping cleanup", opts.SourceBranch))
		return
	}

	if opts.DeleteWorktree && opts.WorktreePath != "" {
		wt, err := e.ctx.WorktreeFor(opts.WorktreePath)
		switch {
		case err != nil:
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("worktree removal skipped: %v", err))
		case wt.IsMainWorktree:
			result.Warnings = append(result.Warnings,
				"refusing to remove the main worktree")
		default:
			// No --force: a tree holding restored uncommitted changes
			// makes git refuse, which protects the restored work.
			err := e.ctx.RemoveWorktree(RemoveWorktreeOptions{Path: opts.WorktreePath})
			if err != nil {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("worktree removal failed: %v; remove %s manually", err, opts.WorktreePath))
			} else {
				e.publisher.Publish(events.NewEvent(events.EventWorktreeRemoved, e.ctx.RepoPath(), events.WorktreeUpdate{
					Path:   opts.WorktreePath,
					Branch: opts.SourceBranch,
				}))
			}
		}
	}

	if opts.DeleteBranch && opts.SourceBranch != "" {
		if err := e.ctx.DeleteBranch(opts.SourceBranch, true); err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("branch deletion failed: %v; delete %q manually", err, opts.SourceBranch))
		}
	}
}

func (e *Engine) keepBranch(branch string) bool {
	for _, glob := range e.keepGlobs {
		if ok, err := doublestar.Match(glob, branch); err == nil && ok {
			return true
		}
	}
	return false
}

func (e *Engine) record(rec MergeRecord) {
	if e.history == nil {
		return
	}
	if err := e.history.Record(rec); err != nil {
		e.logger.Warn("merge history write failed", "error", err)
	}
}

func (e *Engine) publishMerge(t events.EventType, phase, source, target string, strategy Strategy, commit, errMsg string) {
	e.publisher.Publish(events.NewEvent(t, e.ctx.RepoPath(), events.MergeUpdate{
		Phase:        phase,
		SourceBranch: source,
		TargetBranch: target,
		Strategy:     string(strategy),
		CommitHash:   commit,
		Error:        errMsg,
	}))
}

func (e *Engine) publishStash(treePath string, status StashStatus) {
	e.publisher.Publish(events.NewEvent(events.EventStash, e.ctx.RepoPath(), events.StashUpdate{
		TreePath: treePath,
		Status:   string(status),
	}))
}

func (e *Engine) publishConflicts(conflicts []MergeConflict) {
	files := make([]string, len(conflicts))
	for i, c := range conflicts {
		files[i] = c.File
	}
	e.publisher.Publish(events.NewEvent(events.EventMergeConflict, e.ctx.RepoPath(), events.ConflictUpdate{
		Files: files,
		Count: len(files),
	}))
}

// clearSquashState drops the leftover SQUASH_MSG marker so state queries
// stop reporting an in-progress squash.
func clearSquashState(treeCtx *Context) {
	gitDir, err := treeCtx.GitDir()
	if err != nil {
		return
	}
	_ = os.Remove(filepath.Join(gitDir, "SQUASH_MSG"))
}

// abortedAlready reports whether an abort failure just means there was
// nothing left to abort.
func abortedAlready(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "MERGE_HEAD missing") ||
		strings.Contains(msg, "no merge to abort") ||
		strings.Contains(msg, "No rebase in progress")
}

func stashRecoveryHint(treePath string, err error) string {
	return fmt.Sprintf("stash restore failed in %s: %v; run 'git stash pop' there manually", treePath, err)
}

func squashMessage(source, target string) string {
	if source == "" {
		return fmt.Sprintf("Squash merge into %s", target)
	}
	return fmt.Sprintf("Squash merge branch '%s' into %s", source, target)
}

func kindStrategy(kind MergeKind) Strategy {
	switch kind {
	case MergeKindRebase:
		return StrategyRebase
	case MergeKindSquash:
		return StrategySquash
	default:
		return StrategyMerge
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func worktreeAt(worktrees []Worktree, path string) *Worktree {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil
	}
	for i := range worktrees {
		if filepath.Clean(worktrees[i].Path) == filepath.Clean(abs) {
			return &worktrees[i]
		}
	}
	return nil
}

func worktreeByBranch(worktrees []Worktree, branch string) *Worktree {
	for i := range worktrees {
		if worktrees[i].Branch == branch {
			return &worktrees[i]
		}
	}
	return nil
}
