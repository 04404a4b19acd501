package api

import (
	"net/http"

	"github.com/c360studio/workbench/axis"
	"github.com/c360studio/workbench/definition"
	"github.com/c360studio/workbench/instructions"
	"github.com/c360studio/workbench/resolution"
)

// ContextRequest names the project and chat to resolve for the calling user,
// with the request-scoped override layers.
type ContextRequest struct {
	ProjectID string            `json:"project_id" validate:"required"`
	ChatID    string            `json:"chat_id"`
	Session   map[string]string `json:"session_overrides"`
	Chat      map[string]string `json:"chat_overrides"`
}

// ContextResponse is a resolved context. Ignored lists override keys that
// named no axis.
type ContextResponse struct {
	Context *resolution.EffectiveContext `json:"context"`
	Ignored []string                     `json:"ignored,omitempty"`
}

// InstructionsResponse is a compiled instruction preview.
type InstructionsResponse struct {
	Context  *resolution.EffectiveContext `json:"context"`
	Blocks   []instructions.Block         `json:"blocks"`
	Messages []string                     `json:"system_messages"`
}

// AxisCatalog is one axis of the catalog listing.
type AxisCatalog struct {
	Axis    axis.Axis     `json:"axis"`
	Label   string        `json:"label"`
	Default string        `json:"default"`
	Presets []axis.Preset `json:"presets"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	catalog := s.deps.Registry.Catalog()
	out := make([]AxisCatalog, 0, len(axis.All))
	for _, a := range axis.All {
		out = append(out, AxisCatalog{
			Axis:    a,
			Label:   a.Label(),
			Default: catalog.Default(a).Name,
			Presets: catalog.Presets(a),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"axes": out})
}

// resolve parses a context request and resolves it for the caller.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) (*resolution.EffectiveContext, []string, bool) {
	user, ok := caller(w, r)
	if !ok {
		return nil, nil, false
	}
	var req ContextRequest
	if !s.decode(w, r, &req) {
		return nil, nil, false
	}
	if _, err := s.visibleProject(r.Context(), req.ProjectID, user); err != nil {
		s.writeError(w, r, err)
		return nil, nil, false
	}
	session := resolution.ParseOverrides(req.Session)
	chat := resolution.ParseOverrides(req.Chat)
	ec, err := s.deps.Resolver.Resolve(r.Context(), resolution.Request{
		ProjectID: req.ProjectID,
		UserID:    user,
		ChatID:    req.ChatID,
		Session:   session,
		Chat:      chat,
	})
	if err != nil {
		s.writeError(w, r, err)
		return nil, nil, false
	}
	ignored := append(append([]string(nil), session.Ignored...), chat.Ignored...)
	return ec, ignored, true
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	ec, ignored, ok := s.resolve(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ContextResponse{Context: ec, Ignored: ignored})
}

// handleInstructions compiles the resolved context. A chat with locked
// definition fields also gets its managed chat direction block.
func (s *Server) handleInstructions(w http.ResponseWriter, r *http.Request) {
	ec, _, ok := s.resolve(w, r)
	if !ok {
		return
	}
	blocks := s.deps.Compiler.Compile(ec)

	if ec.ChatID != "" && s.deps.Engine != nil {
		ref := definition.DocumentRef{Type: definition.TypeCDE, ProjectID: ec.ProjectID, Scope: ec.ChatID}
		if ref.Validate() == nil {
			locked, err := s.deps.Engine.LockedFields(r.Context(), ref)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			if len(locked) > 0 {
				blocks = append(blocks, instructions.Block{
					Name: instructions.BlockChat,
					Text: instructions.ChatDirectionBlock(locked, maxChatConstraints, maxChatNonGoals),
				})
			}
		}
	}

	writeJSON(w, http.StatusOK, InstructionsResponse{
		Context:  ec,
		Blocks:   blocks,
		Messages: instructions.SystemMessages(blocks),
	})
}
