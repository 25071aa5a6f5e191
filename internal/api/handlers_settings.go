package api

import (
	"net/http"

	ensoerr "github.com/lwt-sadais/EnsoAI/internal/errors"
	"github.com/lwt-sadais/EnsoAI/internal/events"
)

// handleGetSettings returns all stored settings for a repository.
// GET /api/settings?repo=<path>
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	h, err := s.repoFor(r.URL.Query().Get("repo"))
	if err != nil {
		s.handleError(w, err)
		return
	}

	settings, err := s.settings.All(h.ctx.RepoPath())
	if err != nil {
		s.handleError(w, ensoerr.ErrStoreFailed("load settings").WithCause(err))
		return
	}
	s.jsonResponse(w, settings)
}

// settingsUpdateRequest is the request body for replacing a repository's
// settings.
type settingsUpdateRequest struct {
	Repo     string            `json:"repo"`
	Settings map[string]string `json:"settings"`
}

// handleUpdateSettings replaces the repository's settings with the given
// map: keys absent from the body are removed.
// PUT /api/settings
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	h, err := s.repoFor(req.Repo)
	if err != nil {
		s.handleError(w, err)
		return
	}
	repo := h.ctx.RepoPath()

	current, err := s.settings.All(repo)
	if err != nil {
		s.handleError(w, ensoerr.ErrStoreFailed("load settings").WithCause(err))
		return
	}

	for key := range current {
		if _, ok := req.Settings[key]; ok {
			continue
		}
		if err := s.settings.Delete(repo, key); err != nil {
			s.handleError(w, ensoerr.ErrStoreFailed("delete setting "+key).WithCause(err))
			return
		}
	}
	for key, value := range req.Settings {
		if err := s.settings.Set(repo, key, value); err != nil {
			s.handleError(w, ensoerr.ErrStoreFailed("save setting "+key).WithCause(err))
			return
		}
	}

	updated, err := s.settings.All(repo)
	if err != nil {
		s.handleError(w, ensoerr.ErrStoreFailed("load settings").WithCause(err))
		return
	}

	s.publisher.Publish(events.NewEvent(events.EventSettingsUpdated, repo, updated))
	s.jsonResponse(w, updated)
}
