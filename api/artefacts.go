package api

import (
	"net/http"

	"github.com/c360studio/workbench/artefact"
)

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	ref, actor, ok := s.document(w, r)
	if !ok {
		return
	}
	a, err := s.deps.Artefacts.Commit(r.Context(), artefact.CommitRequest{Document: ref, Actor: actor})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleListArtefacts(w http.ResponseWriter, r *http.Request) {
	project, _, ok := s.projectActor(w, r)
	if !ok {
		return
	}
	var kind artefact.Kind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		k, err := artefact.ParseKind(raw)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		kind = k
	}
	list, err := s.deps.Artefacts.List(r.Context(), project.ID, kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*artefact.Artefact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"project_id": project.ID, "artefacts": list})
}

func (s *Server) handleGetArtefact(w http.ResponseWriter, r *http.Request) {
	project, _, ok := s.projectActor(w, r)
	if !ok {
		return
	}
	a, err := s.deps.Artefacts.Get(r.Context(), project.ID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	project, actor, ok := s.projectActor(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Artefacts.Accept(r.Context(), artefact.AcceptRequest{
		ProjectID:  project.ID,
		ArtefactID: r.PathValue("id"),
		Actor:      actor,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
