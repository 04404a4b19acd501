package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/c360studio/workbench/artefact"
	"github.com/c360studio/workbench/definition"
	"github.com/c360studio/workbench/directory"
	"github.com/c360studio/workbench/llm"
	"github.com/c360studio/workbench/storage"
	fieldvalidator "github.com/c360studio/workbench/validator"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing,omitempty"`
	Details []string `json:"details,omitempty"`
}

// writeJSON marshals v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Response is already partially written if this fails.
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, msg string, details []string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}

// decode reads a JSON body into v and checks its validate tags, writing 400
// on failure. An empty body decodes as the zero value.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeProblem(w, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				details = append(details, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			writeProblem(w, http.StatusBadRequest, "invalid request", details)
			return false
		}
		writeProblem(w, http.StatusBadRequest, err.Error(), nil)
		return false
	}
	return true
}

// writeError maps service errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var precondition *artefact.PreconditionError
	var draftErr *fieldvalidator.DraftError

	switch {
	case errors.As(err, &precondition):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: precondition.Error(), Missing: precondition.Missing})
	case errors.Is(err, definition.ErrPermissionDenied):
		writeProblem(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, definition.ErrNotProposed), errors.Is(err, artefact.ErrNotDraft):
		writeProblem(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, directory.ErrNotFound), errors.Is(err, artefact.ErrNotFound):
		writeProblem(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, storage.ErrConflict):
		// Writers kept racing on the same record; the request itself is fine.
		s.logger.Warn("Update lost to concurrent writers", "path", r.URL.Path, "error", err)
		w.Header().Set("Retry-After", "1")
		writeProblem(w, http.StatusServiceUnavailable, "concurrent update, retry", nil)
	case errors.Is(err, definition.ErrUnknownField),
		errors.Is(err, definition.ErrUnknownDocument),
		errors.Is(err, definition.ErrEmptyValue):
		writeProblem(w, http.StatusBadRequest, err.Error(), nil)
	case errors.As(err, &draftErr):
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: draftErr.Reason})
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		// Client went away; nobody reads the response.
		s.logger.Debug("Request cancelled", "path", r.URL.Path)
	case llm.IsTimeout(err):
		writeProblem(w, http.StatusGatewayTimeout, "model call timed out", nil)
	case errors.Is(err, fieldvalidator.ErrGeneration), llm.IsTransient(err), llm.IsFatal(err):
		s.logger.Warn("Model call failed", "path", r.URL.Path, "error", err)
		writeProblem(w, http.StatusBadGateway, "model call failed", nil)
	default:
		s.logger.Error("Request failed", "path", r.URL.Path, "error", err)
		writeProblem(w, http.StatusInternalServerError, "internal error", nil)
	}
}
