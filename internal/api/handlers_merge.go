package api

import (
	"net/http"
	"strconv"

	ensoerr "github.com/lwt-sadais/EnsoAI/internal/errors"
	"github.com/lwt-sadais/EnsoAI/internal/git"
)

// mergeRequest is the request body for starting a merge. Strategy, noFf,
// and autoStash fall back to the configured merge defaults when omitted.
type mergeRequest struct {
	Repo         string `json:"repo"`
	WorktreePath string `json:"worktreePath"`
	TargetBranch string `json:"targetBranch"`
	Strategy     string `json:"strategy,omitempty"`
	NoFF         *bool  `json:"noFf,omitempty"`
	Message      string `json:"message,omitempty"`
	AutoStash    *bool  `json:"autoStash,omitempty"`

	DeleteWorktreeAfterMerge bool `json:"deleteWorktreeAfterMerge,omitempty"`
	DeleteBranchAfterMerge   bool `json:"deleteBranchAfterMerge,omitempty"`
}

// handleMerge runs one merge attempt.
// POST /api/merge
//
// Engine outcomes, including rejections and failures, always answer 200
// with a MergeResult; the shell reads success/error from the body. Only
// transport problems (bad body, unresolvable repo) use error statuses.
func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	h, err := s.repoFor(req.Repo)
	if err != nil {
		s.handleError(w, err)
		return
	}

	greq := git.MergeRequest{
		WorktreePath:             req.WorktreePath,
		TargetBranch:             req.TargetBranch,
		Strategy:                 git.Strategy(req.Strategy),
		NoFF:                     req.NoFF,
		Message:                  req.Message,
		AutoStash:                s.cfg.Merge.AutoStash,
		DeleteWorktreeAfterMerge: req.DeleteWorktreeAfterMerge,
		DeleteBranchAfterMerge:   req.DeleteBranchAfterMerge,
	}
	if req.Strategy == "" {
		greq.Strategy = git.Strategy(s.cfg.Merge.DefaultStrategy)
	}
	if req.NoFF == nil {
		noFF := s.cfg.Merge.NoFF
		greq.NoFF = &noFF
	}
	if req.AutoStash != nil {
		greq.AutoStash = *req.AutoStash
	}

	h.mu.Lock()
	result, err := h.engine.Merge(greq)
	h.mu.Unlock()
	if err != nil {
		s.jsonResponse(w, &git.MergeResult{Success: false, Error: err.Error()})
		return
	}
	s.jsonResponse(w, result)
}

// handleMergeState reports the repository's merge state, derived from disk.
// GET /api/merge/state?repo=<path>
func (s *Server) handleMergeState(w http.ResponseWriter, r *http.Request) {
	h, err := s.repoFor(r.URL.Query().Get("repo"))
	if err != nil {
		s.handleError(w, err)
		return
	}

	state, err := h.engine.State()
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, state)
}

// resolveRequest is the request body for settling one conflicted file.
type resolveRequest struct {
	Repo string `json:"repo"`
	File string `json:"file"`
	// Content is full resolved file content; Resolution declares a side
	// (ours, theirs, delete). Exactly one of the two applies.
	Content    *string `json:"content,omitempty"`
	Resolution string  `json:"resolution,omitempty"`
}

// handleResolveConflict resolves and stages a single conflicted file.
// POST /api/merge/resolve
func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	h, err := s.repoFor(req.Repo)
	if err != nil {
		s.handleError(w, err)
		return
	}

	h.mu.Lock()
	err = h.engine.ResolveConflict(git.ResolveOptions{
		File:       req.File,
		Content:    req.Content,
		Resolution: req.Resolution,
	})
	h.mu.Unlock()
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, map[string]any{"status": "resolved", "file": req.File})
}

// continueRequest is the request body for completing a conflicted merge.
type continueRequest struct {
	Repo    string `json:"repo"`
	Message string `json:"message,omitempty"`
	// Cleanup carries the deferred cleanup captured when the merge halted.
	Cleanup git.CleanupOptions `json:"cleanup,omitempty"`
}

// handleContinueMerge completes a previously conflicted merge.
// POST /api/merge/continue
//
// Same in-band error convention as handleMerge: engine outcomes answer
// 200 with a MergeResult.
func (s *Server) handleContinueMerge(w http.ResponseWriter, r *http.Request) {
	var req continueRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	h, err := s.repoFor(req.Repo)
	if err != nil {
		s.handleError(w, err)
		return
	}

	h.mu.Lock()
	result, err := h.engine.ContinueMerge(req.Message, req.Cleanup)
	h.mu.Unlock()
	if err != nil {
		s.jsonResponse(w, &git.MergeResult{Success: false, Error: err.Error()})
		return
	}
	s.jsonResponse(w, result)
}

// abortRequest is the request body for abandoning an in-progress merge.
type abortRequest struct {
	Repo string `json:"repo"`
}

// handleAbortMerge discards any in-progress merge state. Aborting an idle
// repository succeeds; the call is idempotent.
// POST /api/merge/abort
func (s *Server) handleAbortMerge(w http.ResponseWriter, r *http.Request) {
	var req abortRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	h, err := s.repoFor(req.Repo)
	if err != nil {
		s.handleError(w, err)
		return
	}

	h.mu.Lock()
	err = h.engine.AbortMerge()
	h.mu.Unlock()
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, map[string]any{"status": "aborted"})
}

// handleConflictContent fetches the three-way content of one conflicted
// file for the shell's conflict editor.
// GET /api/merge/conflict?repo=<path>&file=<repo-relative path>
func (s *Server) handleConflictContent(w http.ResponseWriter, r *http.Request) {
	h, err := s.repoFor(r.URL.Query().Get("repo"))
	if err != nil {
		s.handleError(w, err)
		return
	}

	file := r.URL.Query().Get("file")
	if file == "" {
		s.handleError(w, ensoerr.ErrInvalidInput("file", "a conflicted file path is required"))
		return
	}

	content, err := h.engine.ConflictContent(file)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, content)
}

// handleMergeHistory lists recorded merge outcomes, newest first.
// GET /api/merge/history?repo=<path>&limit=<n>
func (s *Server) handleMergeHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.repoFor(r.URL.Query().Get("repo"))
	if err != nil {
		s.handleError(w, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			s.handleError(w, ensoerr.ErrInvalidInput("limit", "limit must be an integer"))
			return
		}
	}

	records, err := s.history.List(h.ctx.RepoPath(), limit)
	if err != nil {
		s.handleError(w, ensoerr.ErrStoreFailed("list merge history").WithCause(err))
		return
	}
	if records == nil {
		records = []git.MergeRecord{}
	}
	s.jsonResponse(w, records)
}
