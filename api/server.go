// Package api serves the workbench over HTTP.
//
// Every route under the prefix reads the caller from the X-Workbench-User
// header; authentication happens in front of this server. Project routes
// derive the caller's authority from the project's membership.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/c360studio/workbench/artefact"
	"github.com/c360studio/workbench/axis"
	"github.com/c360studio/workbench/definition"
	"github.com/c360studio/workbench/directory"
	"github.com/c360studio/workbench/instructions"
	"github.com/c360studio/workbench/metrics"
	"github.com/c360studio/workbench/model"
	"github.com/c360studio/workbench/resolution"
	fieldvalidator "github.com/c360studio/workbench/validator"
)

// HeaderUser carries the calling user's ID.
const HeaderUser = "X-Workbench-User"

// DefaultPrefix is where the API is mounted by Handler.
const DefaultPrefix = "api/v1"

// maxRequestBodySize limits POST body sizes to prevent DoS.
const maxRequestBodySize = 1 << 20 // 1 MB

// Managed chat direction caps.
const (
	maxChatConstraints = 5
	maxChatNonGoals    = 5
)

// Deps are the services the API fronts. Drafter may be nil, which disables
// the draft action; Models may be nil, which leaves out the model routes.
type Deps struct {
	Directory directory.Store
	Engine    *definition.Engine
	Artefacts *artefact.Service
	Drafter   *fieldvalidator.Drafter
	Resolver  *resolution.Resolver
	Compiler  *instructions.Compiler
	Registry  *axis.Registry
	Models    *model.Registry
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics instruments every route and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithRateLimit limits model-backed actions per user. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		s.limiter = newActorLimiter(rps, burst)
	}
}

// Server handles workbench HTTP requests.
type Server struct {
	deps     Deps
	logger   *slog.Logger
	metrics  *metrics.Metrics
	limiter  *actorLimiter
	validate *validator.Validate
}

// NewServer creates a server over deps.
func NewServer(deps Deps, opts ...Option) *Server {
	s := &Server{
		deps:     deps,
		logger:   slog.Default(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.deps.Compiler == nil {
		s.deps.Compiler = instructions.NewCompiler(s.deps.Registry)
	}
	return s
}

// Handler returns a mux with the API under /api/v1 plus /healthz and, when
// metrics are configured, /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	s.RegisterHTTPHandlers(DefaultPrefix, mux)
	return mux
}

// RegisterHTTPHandlers registers all API handlers under the given prefix.
// The prefix should be the path segment without a trailing slash (e.g. "api/v1").
// Handlers are registered as:
//
//	GET  <prefix>/catalog
//	POST <prefix>/context/resolve
//	POST <prefix>/context/instructions
//	PUT  <prefix>/directory/users/{user}
//	PUT  <prefix>/directory/users/{user}/profile
//	PUT  <prefix>/directory/projects/{project}
//	PUT  <prefix>/directory/projects/{project}/prefs/{user}
//	GET  <prefix>/projects/{project}/documents/{type}
//	POST <prefix>/projects/{project}/documents/{type}/{action}
//	GET  <prefix>/projects/{project}/artefacts
//	GET  <prefix>/projects/{project}/artefacts/{id}
//	POST <prefix>/projects/{project}/artefacts/{id}/accept
//	GET  <prefix>/models
//	POST <prefix>/models/{name}/reset
func (s *Server) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	// Normalise: ensure leading slash and no trailing slash.
	prefix = "/" + strings.Trim(prefix, "/")

	s.handle(mux, "GET "+prefix+"/catalog", "catalog", s.handleCatalog)
	s.handle(mux, "POST "+prefix+"/context/resolve", "context_resolve", s.handleResolve)
	s.handle(mux, "POST "+prefix+"/context/instructions", "context_instructions", s.handleInstructions)

	s.handle(mux, "PUT "+prefix+"/directory/users/{user}", "put_user", s.handlePutUser)
	s.handle(mux, "PUT "+prefix+"/directory/users/{user}/profile", "put_profile", s.handlePutProfile)
	s.handle(mux, "PUT "+prefix+"/directory/projects/{project}", "put_project", s.handlePutProject)
	s.handle(mux, "PUT "+prefix+"/directory/projects/{project}/prefs/{user}", "put_prefs", s.handlePutPrefs)

	doc := prefix + "/projects/{project}/documents/{type}"
	s.handle(mux, "GET "+doc, "document", s.handleDocument)
	s.handle(mux, "POST "+doc+"/draft", "draft", s.handleDraft)
	s.handle(mux, "POST "+doc+"/propose_lock", "propose_lock", s.handlePropose)
	s.handle(mux, "POST "+doc+"/approve_lock", "approve_lock", s.handleApprove)
	s.handle(mux, "POST "+doc+"/override_lock", "override_lock", s.handleOverride)
	s.handle(mux, "POST "+doc+"/reopen_field", "reopen_field", s.handleReopen)
	s.handle(mux, "POST "+doc+"/save", "save", s.handleSave)
	s.handle(mux, "POST "+doc+"/validate_lock", "validate_lock", s.handlePreflight)
	s.handle(mux, "POST "+doc+"/run", "run", s.handleRun)
	s.handle(mux, "POST "+doc+"/commit", "commit", s.handleCommit)

	art := prefix + "/projects/{project}/artefacts"
	s.handle(mux, "GET "+art, "artefacts", s.handleListArtefacts)
	s.handle(mux, "GET "+art+"/{id}", "artefact", s.handleGetArtefact)
	s.handle(mux, "POST "+art+"/{id}/accept", "accept", s.handleAccept)

	if s.deps.Models != nil {
		s.handle(mux, "GET "+prefix+"/models", "models", s.handleModels)
		s.handle(mux, "POST "+prefix+"/models/{name}/reset", "reset_model", s.handleResetModel)
	}
}

func (s *Server) handle(mux *http.ServeMux, pattern, route string, h http.HandlerFunc) {
	var handler http.Handler = h
	if s.metrics != nil {
		handler = s.metrics.Middleware(route, handler)
	}
	mux.Handle(pattern, handler)
}

// caller returns the user named by the identity header, or writes 401.
func caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := strings.TrimSpace(r.Header.Get(HeaderUser))
	if user == "" {
		writeProblem(w, http.StatusUnauthorized, "missing "+HeaderUser+" header", nil)
		return "", false
	}
	return user, true
}

// projectActor loads the path project and the caller's authority on it.
func (s *Server) projectActor(w http.ResponseWriter, r *http.Request) (*directory.Project, directory.Actor, bool) {
	user, ok := caller(w, r)
	if !ok {
		return nil, directory.Actor{}, false
	}
	project, err := s.visibleProject(r.Context(), r.PathValue("project"), user)
	if err != nil {
		s.writeError(w, r, err)
		return nil, directory.Actor{}, false
	}
	return project, project.Actor(user), true
}

// visibleProject loads a project the user may view. Projects the user
// cannot see are reported as not found.
func (s *Server) visibleProject(ctx context.Context, id, user string) (*directory.Project, error) {
	project, err := s.deps.Directory.Project(ctx, id)
	if err != nil {
		return nil, err
	}
	if !project.CanView(user) {
		s.logger.Debug("Project hidden from caller", "project_id", id, "user_id", user)
		return nil, fmt.Errorf("%w: project %s", directory.ErrNotFound, id)
	}
	return project, nil
}

// allow applies the per-user limit to a model-backed action, writing 429
// when it is exceeded.
func (s *Server) allow(w http.ResponseWriter, userID string) bool {
	if s.limiter.allow(userID) {
		return true
	}
	w.Header().Set("Retry-After", "1")
	writeProblem(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
	return false
}
