package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/c360studio/workbench/definition"
	"github.com/c360studio/workbench/directory"
	fieldvalidator "github.com/c360studio/workbench/validator"
)

// FieldRequest is the body of propose_lock, approve_lock and override_lock.
type FieldRequest struct {
	Key   string `json:"key" validate:"required"`
	Value string `json:"value"`
}

// ReopenRequest is the body of reopen_field.
type ReopenRequest struct {
	Key string `json:"key" validate:"required"`
}

// SaveRequest is the body of save.
type SaveRequest struct {
	Values map[string]string `json:"values" validate:"required,min=1"`
}

// RunRequest is the body of run and validate_lock. Mode is ignored by
// validate_lock.
type RunRequest struct {
	Mode   string            `json:"mode"`
	Inputs map[string]string `json:"inputs"`
}

// DraftRequest is the body of draft.
type DraftRequest struct {
	Seed        string `json:"seed" validate:"required,max=8000"`
	Style       string `json:"style" validate:"omitempty,oneof=concise balanced detailed"`
	Constraints string `json:"constraints" validate:"max=400"`
	// Save stores the hypotheses as draft field values.
	Save bool `json:"save"`
}

// DraftResponse carries drafted hypotheses.
type DraftResponse struct {
	Document   string              `json:"document"`
	Hypotheses map[string]string   `json:"hypotheses"`
	Ignored    []string            `json:"ignored,omitempty"`
	Saved      []*definition.Field `json:"saved,omitempty"`
}

// DocumentResponse is a document's spec, state and stored fields.
type DocumentResponse struct {
	State  *definition.DocumentState `json:"state"`
	Spec   []definition.FieldSpec    `json:"spec"`
	Fields []*definition.Field       `json:"fields"`
}

// document parses the path document and the caller's authority on its
// project. Scoped documents (CDE chats, PPDE stages) take the scope from the
// "scope" query parameter.
func (s *Server) document(w http.ResponseWriter, r *http.Request) (definition.DocumentRef, directory.Actor, bool) {
	typ, err := definition.ParseDocumentType(r.PathValue("type"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, err.Error(), nil)
		return definition.DocumentRef{}, directory.Actor{}, false
	}
	ref := definition.DocumentRef{
		Type:      typ,
		ProjectID: r.PathValue("project"),
		Scope:     strings.TrimSpace(r.URL.Query().Get("scope")),
	}
	if err := ref.Validate(); err != nil {
		writeProblem(w, http.StatusBadRequest, err.Error(), nil)
		return definition.DocumentRef{}, directory.Actor{}, false
	}
	_, actor, ok := s.projectActor(w, r)
	if !ok {
		return definition.DocumentRef{}, directory.Actor{}, false
	}
	return ref, actor, true
}

// writeOutcome answers a single-field operation; blocked outcomes are 422.
func writeOutcome(w http.ResponseWriter, out *definition.Outcome) {
	status := http.StatusOK
	if out.Blocked {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, out)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	ref, _, ok := s.document(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	spec, err := s.deps.Engine.Spec(ref)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	state, err := s.deps.Engine.State(ctx, ref)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fields, err := s.deps.Engine.Fields(ctx, ref)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{State: state, Spec: spec.Fields, Fields: fields})
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	ref, actor, ok := s.document(w, r)
	if !ok {
		return
	}
	var req DraftRequest
	if !s.decode(w, r, &req) {
		return
	}
	if s.deps.Drafter == nil {
		writeProblem(w, http.StatusNotImplemented, "drafting is not configured", nil)
		return
	}
	if !actor.CanEdit() {
		s.writeError(w, r, definition.ErrPermissionDenied)
		return
	}
	spec, err := s.deps.Engine.Spec(ref)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !s.allow(w, actor.UserID) {
		return
	}

	draft, err := s.deps.Drafter.Draft(r.Context(), fieldvalidator.DraftRequest{
		Boilerplate: spec.DraftBoilerplate,
		Seed:        req.Seed,
		Style:       fieldvalidator.ParseStyle(req.Style),
		Constraints: req.Constraints,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := DraftResponse{Document: ref.ID(), Hypotheses: make(map[string]string, len(draft.Fields))}
	for k, v := range draft.Fields {
		if _, known := spec.Field(k); known {
			resp.Hypotheses[k] = v
		} else {
			resp.Ignored = append(resp.Ignored, k)
		}
	}
	sort.Strings(resp.Ignored)

	if req.Save && len(resp.Hypotheses) > 0 {
		saved, err := s.deps.Engine.Save(r.Context(), ref, actor, resp.Hypotheses)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.Saved = saved
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	ref, actor, ok := s.document(w, r)
	if !ok {
		return
	}
	var req FieldRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !s.allow(w, actor.UserID) {
		return
	}
	out, err := s.deps.Engine.Propose(r.Context(), ref, actor, req.Key, req.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOutcome(w, out)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	ref, actor, ok := s.document(w, r)
	if !ok {
		return
	}
	var req FieldRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !s.allow(w, actor.UserID) {
		return
	}
	out, err := s.deps.Engine.Approve(r.Context(), ref, actor, req.Key, req.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOutcome(w, out)
}

func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	ref, actor, ok := s.document(w, r)
	if !ok {
		return
	}
	var req FieldRequest
	if !s.decode(w, r, &req) {
		return
	}
	out, err := s.deps.Engine.OverrideLock(r.Context(), ref, actor, req.Key, req.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOutcome(w, out)
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request) {
	ref, actor, ok := s.document(w, r)
	if !ok {
		return
	}
	var req ReopenRequest
	if !s.decode(w, r, &req) {
		return
	}
	out, err := s.deps.Engine.Reopen(r.Context(), ref, actor, req.Key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOutcome(w, out)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	ref, actor, ok := s.document(w, r)
	if !ok {
		return
	}
	var req SaveRequest
	if !s.decode(w, r, &req) {
		return
	}
	changed, err := s.deps.Engine.Save(r.Context(), ref, actor, req.Values)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": ref.ID(), "changed": changed})
}

// handlePreflight reports what a controlled run would do without saving.
// Like run, a blocker is reported in the body, not as an error status.
func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	ref, actor, ok := s.document(w, r)
	if !ok {
		return
	}
	var req RunRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !s.allow(w, actor.UserID) {
		return
	}
	res, err := s.deps.Engine.Preflight(r.Context(), ref, actor, req.Inputs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	ref, actor, ok := s.document(w, r)
	if !ok {
		return
	}
	var req RunRequest
	if !s.decode(w, r, &req) {
		return
	}
	mode, err := definition.ParseMode(req.Mode)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if mode == definition.ModeControlled && !s.allow(w, actor.UserID) {
		return
	}
	res, err := s.deps.Engine.Run(r.Context(), ref, actor, req.Inputs, mode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
