package api

import (
	"errors"
	"net/http"

	ensoerr "github.com/lwt-sadais/EnsoAI/internal/errors"
	"github.com/lwt-sadais/EnsoAI/internal/events"
	"github.com/lwt-sadais/EnsoAI/internal/git"
)

// mapWorktreeError translates git sentinel errors into the taxonomy so the
// shell gets a code and a fix hint instead of raw git output.
func mapWorktreeError(err error, op, path, branch string) error {
	switch {
	case errors.Is(err, git.ErrWorktreeNotFound):
		return ensoerr.ErrWorktreeNotFound(path)
	case errors.Is(err, git.ErrWorktreeExists):
		return ensoerr.ErrWorktreeExists(path)
	case errors.Is(err, git.ErrMainWorktree):
		return ensoerr.ErrMainWorktreeProtected(path)
	case errors.Is(err, git.ErrBranchNotFound):
		return ensoerr.ErrBranchNotFound(branch)
	case errors.Is(err, git.ErrNotGitRepo):
		return ensoerr.ErrRepoNotResolved(path)
	default:
		return ensoerr.ErrGitExecution(op).WithCause(err)
	}
}

// handleListWorktrees returns the repository's worktrees.
// GET /api/worktrees?repo=<path>&status=true
// With status=true each entry is annotated with dirty state and
// ahead/behind counts versus the main worktree's branch.
func (s *Server) handleListWorktrees(w http.ResponseWriter, r *http.Request) {
	h, err := s.repoFor(r.URL.Query().Get("repo"))
	if err != nil {
		s.handleError(w, err)
		return
	}

	if r.URL.Query().Get("status") == "true" {
		base := ""
		if main, err := h.ctx.MainWorktree(); err == nil {
			base = main.Branch
		}
		statuses, err := h.ctx.ListWorktreesWithStatus(base)
		if err != nil {
			s.handleError(w, mapWorktreeError(err, "list worktrees", h.ctx.RepoPath(), ""))
			return
		}
		s.jsonResponse(w, statuses)
		return
	}

	worktrees, err := h.ctx.ListWorktrees()
	if err != nil {
		s.handleError(w, mapWorktreeError(err, "list worktrees", h.ctx.RepoPath(), ""))
		return
	}
	s.jsonResponse(w, worktrees)
}

// worktreeCreateRequest is the request body for creating a worktree.
type worktreeCreateRequest struct {
	Repo string `json:"repo"`
	Path string `json:"path"`
	// Branch is an existing branch to check out.
	Branch string `json:"branch,omitempty"`
	// NewBranch creates a branch (at Branch when given, else HEAD) and
	// checks it out in the new worktree.
	NewBranch string `json:"newBranch,omitempty"`
}

// handleCreateWorktree creates a new linked worktree.
// POST /api/worktrees
func (s *Server) handleCreateWorktree(w http.ResponseWriter, r *http.Request) {
	var req worktreeCreateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	h, err := s.repoFor(req.Repo)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if req.Path == "" {
		s.handleError(w, ensoerr.ErrInvalidInput("path", "a worktree path is required"))
		return
	}

	err = h.ctx.AddWorktree(git.AddWorktreeOptions{
		Path:      req.Path,
		Branch:    req.Branch,
		NewBranch: req.NewBranch,
	})
	if err != nil {
		branch := req.Branch
		if req.NewBranch != "" {
			branch = req.NewBranch
		}
		s.handleError(w, mapWorktreeError(err, "add worktree", req.Path, branch))
		return
	}

	wt, err := h.ctx.WorktreeFor(req.Path)
	if err != nil {
		s.handleError(w, mapWorktreeError(err, "inspect new worktree", req.Path, ""))
		return
	}

	s.publisher.Publish(events.NewEvent(events.EventWorktreeCreated, h.ctx.RepoPath(), events.WorktreeUpdate{
		Path:   wt.Path,
		Branch: wt.Branch,
	}))
	JSONResponseStatus(w, wt, http.StatusCreated)
}

// worktreeRemoveRequest is the request body for removing a worktree.
type worktreeRemoveRequest struct {
	Repo  string `json:"repo"`
	Path  string `json:"path"`
	Force bool   `json:"force,omitempty"`
	// DeleteBranch also force-deletes the worktree's branch. When Branch
	// is omitted the branch checked out in the worktree is used.
	DeleteBranch bool   `json:"deleteBranch,omitempty"`
	Branch       string `json:"branch,omitempty"`
}

// handleRemoveWorktree removes a linked worktree.
// POST /api/worktrees/remove
func (s *Server) handleRemoveWorktree(w http.ResponseWriter, r *http.Request) {
	var req worktreeRemoveRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	h, err := s.repoFor(req.Repo)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if req.Path == "" {
		s.handleError(w, ensoerr.ErrInvalidInput("path", "a worktree path is required"))
		return
	}

	branch := req.Branch
	if req.DeleteBranch && branch == "" {
		if wt, err := h.ctx.WorktreeFor(req.Path); err == nil {
			branch = wt.Branch
		}
	}

	err = h.ctx.RemoveWorktree(git.RemoveWorktreeOptions{
		Path:         req.Path,
		Force:        req.Force,
		DeleteBranch: req.DeleteBranch,
		Branch:       branch,
	})
	if err != nil {
		s.handleError(w, mapWorktreeError(err, "remove worktree", req.Path, branch))
		return
	}

	s.publisher.Publish(events.NewEvent(events.EventWorktreeRemoved, h.ctx.RepoPath(), events.WorktreeUpdate{
		Path:   req.Path,
		Branch: branch,
	}))
	s.jsonResponse(w, map[string]any{"status": "removed", "path": req.Path})
}

// worktreePruneRequest is the request body for pruning stale worktrees.
type worktreePruneRequest struct {
	Repo string `json:"repo"`
}

// handlePruneWorktrees drops registrations whose directories are gone.
// POST /api/worktrees/prune
func (s *Server) handlePruneWorktrees(w http.ResponseWriter, r *http.Request) {
	var req worktreePruneRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	h, err := s.repoFor(req.Repo)
	if err != nil {
		s.handleError(w, err)
		return
	}

	if err := h.ctx.PruneWorktrees(); err != nil {
		s.handleError(w, mapWorktreeError(err, "prune worktrees", h.ctx.RepoPath(), ""))
		return
	}

	s.publisher.Publish(events.NewEvent(events.EventWorktreePruned, h.ctx.RepoPath(), nil))
	s.jsonResponse(w, map[string]any{"status": "pruned"})
}
