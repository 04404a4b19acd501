package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/workbench/axis"
	"github.com/c360studio/workbench/definition"
	"github.com/c360studio/workbench/directory"
	"github.com/c360studio/workbench/resolution"
)

// UserRequest is the body of PUT /directory/users/{user}.
type UserRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"omitempty,email"`
}

// SelectionsRequest is the body of the profile and prefs upserts. Selection
// keys are axis names; values are preset IDs or names.
type SelectionsRequest struct {
	Language   string            `json:"language" validate:"max=64"`
	Selections map[string]string `json:"selections"`
}

// MemberRequest is one project membership.
type MemberRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=OWNER MANAGER CONTRIBUTOR OBSERVER"`
}

// ProjectRequest is the body of PUT /directory/projects/{project}.
type ProjectRequest struct {
	Name       string          `json:"name" validate:"required,max=200"`
	Kind       string          `json:"kind" validate:"omitempty,oneof=STANDARD SANDBOX"`
	Governance string          `json:"governance"`
	Committers []string        `json:"committers" validate:"dive,required"`
	Members    []MemberRequest `json:"members" validate:"dive"`
}

// selections parses axis selections, rejecting keys that name no axis.
func selections(raw map[string]string) (map[axis.Axis]axis.Ref, error) {
	o := resolution.ParseOverrides(raw)
	if len(o.Ignored) > 0 {
		return nil, fmt.Errorf("unknown axes: %v", o.Ignored)
	}
	return o.Values, nil
}

// self checks that the caller is acting on their own record.
func (s *Server) self(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, ok := caller(w, r)
	if !ok {
		return "", false
	}
	if user != r.PathValue("user") {
		s.writeError(w, r, fmt.Errorf("%w: users may only update their own records", definition.ErrPermissionDenied))
		return "", false
	}
	return user, true
}

func (s *Server) handlePutUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.self(w, r)
	if !ok {
		return
	}
	var req UserRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	u := &directory.User{ID: userID, CreatedAt: time.Now().UTC()}
	if existing, err := s.deps.Directory.User(ctx, userID); err == nil {
		u = existing
	} else if !errors.Is(err, directory.ErrNotFound) {
		s.writeError(w, r, err)
		return
	}
	u.Name, u.Email = req.Name, req.Email
	if err := s.deps.Directory.PutUser(ctx, u); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.self(w, r)
	if !ok {
		return
	}
	var req SelectionsRequest
	if !s.decode(w, r, &req) {
		return
	}
	sel, err := selections(req.Selections)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	ctx := r.Context()
	if _, err := s.deps.Directory.User(ctx, userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	p := &directory.Profile{ID: uuid.NewString(), UserID: userID}
	if existing, err := s.deps.Directory.Profile(ctx, userID); err == nil {
		p = existing
	} else if !errors.Is(err, directory.ErrNotFound) {
		s.writeError(w, r, err)
		return
	}
	p.Language, p.Selections, p.UpdatedAt = req.Language, sel, time.Now().UTC()
	if err := s.deps.Directory.PutProfile(ctx, p); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutPrefs(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.self(w, r)
	if !ok {
		return
	}
	var req SelectionsRequest
	if !s.decode(w, r, &req) {
		return
	}
	sel, err := selections(req.Selections)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	ctx := r.Context()
	project, err := s.visibleProject(ctx, r.PathValue("project"), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p := &directory.ProjectPrefs{
		ProjectID:  project.ID,
		UserID:     userID,
		Language:   req.Language,
		Selections: sel,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := s.deps.Directory.PutPrefs(ctx, p); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handlePutProject creates a project owned by the caller, or lets a
// committer update its name, kind, governance and membership. Definition
// metadata written by commits is kept.
func (s *Server) handlePutProject(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	var req ProjectRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	id := r.PathValue("project")
	now := time.Now().UTC()

	status := http.StatusOK
	p, err := s.deps.Directory.Project(ctx, id)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		p = &directory.Project{ID: id, Owner: user, Status: directory.StatusActive, CreatedAt: now}
		status = http.StatusCreated
	case err != nil:
		s.writeError(w, r, err)
		return
	case !p.Actor(user).IsCommitter():
		s.writeError(w, r, fmt.Errorf("%w: only committers update project %s", definition.ErrPermissionDenied, id))
		return
	}

	p.Name = req.Name
	p.Kind = directory.KindStandard
	if req.Kind != "" {
		p.Kind = directory.ProjectKind(req.Kind)
	}
	p.Governance = req.Governance
	p.Committers = req.Committers
	p.Members = make([]directory.Membership, 0, len(req.Members))
	for _, m := range req.Members {
		p.Members = append(p.Members, directory.Membership{UserID: m.UserID, Role: directory.MemberRole(m.Role)})
	}
	p.UpdatedAt = now

	if err := s.deps.Directory.PutProject(ctx, p); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, p)
}
