// Package api provides the localhost REST and WebSocket server that the
// EnsoAI desktop shell talks to. Every endpoint addresses a repository by
// path; the server keeps one git context and merge engine per repository
// and serializes merge operations per repository.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/lwt-sadais/EnsoAI/internal/config"
	"github.com/lwt-sadais/EnsoAI/internal/db"
	ensoerr "github.com/lwt-sadais/EnsoAI/internal/errors"
	"github.com/lwt-sadais/EnsoAI/internal/events"
	"github.com/lwt-sadais/EnsoAI/internal/git"
	"github.com/lwt-sadais/EnsoAI/internal/watcher"
)

// Server is the EnsoAI backend API server.
type Server struct {
	host            string
	port            int
	maxPortAttempts int
	mux             *http.ServeMux
	logger          *slog.Logger

	cfg *config.Config

	// Event publisher for real-time updates
	publisher events.Publisher
	wsHandler *WSHandler

	// Settings and merge history persistence
	database *db.DB
	ownsDB   bool
	settings *db.SettingsStore
	history  *db.MergeHistory

	// One handle per repository; the handle's mutex serializes merge
	// operations on that repository.
	repos   map[string]*repoHandle
	reposMu sync.Mutex

	// Filesystem watchers started on demand when a client subscribes, so
	// panels pick up git activity from outside the app.
	watchers    map[string]*watcher.Watcher
	watchersMu  sync.Mutex
	watchCtx    context.Context
	watchCancel context.CancelFunc

	// newContext builds the git context for a repository path. Replaced in
	// tests to inject a scripted command runner.
	newContext func(repoPath string) (*git.Context, error)
}

// repoHandle bundles the per-repository git context and merge engine.
type repoHandle struct {
	mu     sync.Mutex
	ctx    *git.Context
	engine *git.Engine
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	MaxPortAttempts int
	Logger          *slog.Logger
	// Enso is the application configuration (merge defaults, git env, db).
	Enso *config.Config
	// Database overrides the database opened from Enso's db section.
	// The caller keeps ownership and closes it.
	Database *db.DB
}

// New creates a new API server.
func New(cfg *Config) (*Server, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	enso := cfg.Enso
	if enso == nil {
		enso = config.Default()
	}

	host := cfg.Host
	if host == "" {
		host = enso.Server.Host
	}
	port := cfg.Port
	if port == 0 {
		port = enso.Server.Port
	}
	attempts := cfg.MaxPortAttempts
	if attempts == 0 {
		attempts = enso.Server.MaxPortAttempts
	}

	database := cfg.Database
	ownsDB := false
	if database == nil {
		var err error
		database, err = db.Open(enso.DB.Dialect, enso.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		ownsDB = true
	}

	s := &Server{
		host:            host,
		port:            port,
		maxPortAttempts: attempts,
		mux:             http.NewServeMux(),
		logger:          logger,
		cfg:             enso,
		publisher:       events.NewMemoryPublisher(),
		database:        database,
		ownsDB:          ownsDB,
		settings:        db.NewSettingsStore(database),
		history:         db.NewMergeHistory(database),
		repos:           make(map[string]*repoHandle),
		watchers:        make(map[string]*watcher.Watcher),
	}
	s.watchCtx, s.watchCancel = context.WithCancel(context.Background())

	// All repositories share one runner so proxy env and timeout apply
	// uniformly.
	var runnerOpts []git.RunnerOption
	if env := enso.GitEnv(); len(env) > 0 {
		runnerOpts = append(runnerOpts, git.WithEnv(env))
	}
	if enso.Git.Timeout > 0 {
		runnerOpts = append(runnerOpts, git.WithTimeout(enso.Git.Timeout))
	}
	runner := git.NewExecRunner(runnerOpts...)
	s.newContext = func(repoPath string) (*git.Context, error) {
		return git.NewContext(repoPath,
			git.WithRunner(runner),
			git.WithGitBinary(enso.Git.Binary))
	}

	s.wsHandler = NewWSHandler(s.publisher, logger)
	s.wsHandler.onSubscribe = s.ensureWatcher

	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up all API routes.
func (s *Server) registerRoutes() {
	// CORS middleware wrapper
	cors := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			h(w, r)
		}
	}

	// Health check
	s.mux.HandleFunc("GET /api/health", cors(s.handleHealth))

	// Worktrees
	s.mux.HandleFunc("GET /api/worktrees", cors(s.handleListWorktrees))
	s.mux.HandleFunc("POST /api/worktrees", cors(s.handleCreateWorktree))
	s.mux.HandleFunc("POST /api/worktrees/remove", cors(s.handleRemoveWorktree))
	s.mux.HandleFunc("POST /api/worktrees/prune", cors(s.handlePruneWorktrees))

	// Merge lifecycle
	s.mux.HandleFunc("POST /api/merge", cors(s.handleMerge))
	s.mux.HandleFunc("GET /api/merge/state", cors(s.handleMergeState))
	s.mux.HandleFunc("POST /api/merge/resolve", cors(s.handleResolveConflict))
	s.mux.HandleFunc("POST /api/merge/continue", cors(s.handleContinueMerge))
	s.mux.HandleFunc("POST /api/merge/abort", cors(s.handleAbortMerge))
	s.mux.HandleFunc("GET /api/merge/conflict", cors(s.handleConflictContent))
	s.mux.HandleFunc("GET /api/merge/history", cors(s.handleMergeHistory))

	// Per-repository settings
	s.mux.HandleFunc("GET /api/settings", cors(s.handleGetSettings))
	s.mux.HandleFunc("PUT /api/settings", cors(s.handleUpdateSettings))

	// WebSocket for real-time updates
	s.mux.Handle("GET /ws", s.wsHandler)
}

// Start starts the API server and blocks until it stops.
func (s *Server) Start() error {
	return s.StartContext(context.Background())
}

// StartContext starts the API server and shuts it down gracefully when the
// context is cancelled. When the configured port is taken, the next ports
// are tried up to the configured attempt limit.
func (s *Server) StartContext(ctx context.Context) error {
	ln, port, err := findAvailablePort(s.host, s.port, s.maxPortAttempts)
	if err != nil {
		return err
	}
	if port != s.port {
		s.logger.Warn("configured port busy, using fallback",
			"configured", s.port, "port", port)
	}

	server := &http.Server{Handler: s.mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", "addr", fmt.Sprintf("http://%s", ln.Addr()))
	err = server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	s.Close()
	return err
}

// Close releases the server's resources: repository watchers, open
// WebSocket connections, the event publisher, and the database when the
// server opened it itself.
func (s *Server) Close() {
	s.watchCancel()
	s.watchersMu.Lock()
	for _, w := range s.watchers {
		w.Stop()
	}
	s.watchers = make(map[string]*watcher.Watcher)
	s.watchersMu.Unlock()

	s.wsHandler.Close()
	s.publisher.Close()
	if s.ownsDB {
		if err := s.database.Close(); err != nil {
			s.logger.Warn("closing database", "error", err)
		}
	}
}

// Publisher returns the event publisher for external use.
func (s *Server) Publisher() events.Publisher {
	return s.publisher
}

// repoFor returns the handle for the repository at repoPath, creating it
// on first use. Paths are canonicalized to the repository root so every
// path inside one working tree maps to the same handle.
func (s *Server) repoFor(repoPath string) (*repoHandle, error) {
	if repoPath == "" {
		return nil, ensoerr.ErrInvalidInput("repo", "a repository path is required")
	}
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, ensoerr.ErrRepoNotResolved(repoPath).WithCause(err)
	}

	s.reposMu.Lock()
	defer s.reposMu.Unlock()

	if h, ok := s.repos[abs]; ok {
		return h, nil
	}

	ctx, err := s.newContext(abs)
	if err != nil {
		return nil, ensoerr.ErrRepoNotResolved(repoPath).WithCause(err)
	}

	// The context normalizes the path to the tree's top level; an alias
	// path reuses the canonical handle.
	canon := ctx.RepoPath()
	if h, ok := s.repos[canon]; ok {
		s.repos[abs] = h
		return h, nil
	}

	h := &repoHandle{
		ctx: ctx,
		engine: git.NewEngine(ctx,
			git.WithLogger(s.logger.With("component", "engine")),
			git.WithPublisher(s.publisher),
			git.WithHistory(s.history),
			git.WithKeepBranches(s.cfg.Merge.KeepBranches)),
	}
	s.repos[canon] = h
	if abs != canon {
		s.repos[abs] = h
	}
	return h, nil
}

// ensureWatcher starts a filesystem watcher for the repository on its
// first subscription. When the watcher cannot start the subscription still
// works, just without external change events.
func (s *Server) ensureWatcher(repo string) {
	if repo == events.GlobalRepo {
		return
	}

	key, err := filepath.Abs(repo)
	if err != nil {
		key = repo
	}

	s.watchersMu.Lock()
	defer s.watchersMu.Unlock()

	if _, ok := s.watchers[key]; ok {
		return
	}

	w, err := watcher.New(&watcher.Config{
		RepoPath:  repo,
		Publisher: s.publisher,
		Logger:    s.logger.With("component", "watcher"),
	})
	if err != nil {
		s.logger.Debug("repository watcher not started", "repo", repo, "error", err)
		return
	}

	s.watchers[key] = w
	go func() {
		if err := w.Start(s.watchCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("repository watcher exited", "repo", repo, "error", err)
		}
	}()
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response.
func (s *Server) jsonResponse(w http.ResponseWriter, data any) {
	JSONResponse(w, data)
}

// jsonError writes a JSON error response.
func (s *Server) jsonError(w http.ResponseWriter, message string, status int) {
	JSONError(w, message, status)
}

// handleError writes the taxonomy envelope for structured errors and a
// plain 500 for anything else.
func (s *Server) handleError(w http.ResponseWriter, err error) {
	HandleError(w, err)
}

// decodeBody decodes a JSON request body, answering 400 on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
