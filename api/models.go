package api

import (
	"net/http"
)

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Models.Status())
}

// handleResetModel closes an endpoint's circuit so the next validation tries
// it again without waiting out the recovery timeout.
func (s *Server) handleResetModel(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	if s.deps.Models.GetEndpoint(name) == nil {
		writeProblem(w, http.StatusNotFound, "unknown model endpoint "+name, nil)
		return
	}
	s.deps.Models.ResetEndpointHealth(name)
	s.logger.Info("Model endpoint health reset", "endpoint", name, "user_id", user)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "endpoint": name})
}
