package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/okian/posemon/internal/domain/model"
)

// SessionDependencies defines the interface for session lifecycle operations.
type SessionDependencies interface {
	StartSession(ctx context.Context, id string, meta model.SessionMeta) (Session, bool, error)
	ResetSession(ctx context.Context, id string) (Session, error)
	EndSession(ctx context.Context, id string) error
	Session(ctx context.Context, id string) (Session, error)
	Sessions(ctx context.Context) []Session
}

// startRequest is the optional body of PUT /sessions/{id}.
type startRequest struct {
	Camera string `json:"camera,omitempty"`
	Device string `json:"device,omitempty"`
	Model  string `json:"model,omitempty"`
}

type listResponse struct {
	Count    int       `json:"count"`
	Sessions []Session `json:"sessions"`
}

// SessionsHandler handles session requests.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// HandleList handles GET /sessions requests.
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sessions := h.deps.Sessions(r.Context())
	if sessions == nil {
		sessions = []Session{}
	}
	writeJSON(w, http.StatusOK, listResponse{Count: len(sessions), Sessions: sessions})
}

// HandleStart handles PUT /sessions/{id} requests. It answers 201 for a new
// session and 200 when an existing one was restarted.
func (h *SessionsHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	const op = "api.start_session"

	var req startRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFrameBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	sess, restarted, err := h.deps.StartSession(r.Context(), r.PathValue("id"), model.SessionMeta{
		Camera: req.Camera,
		Device: req.Device,
		Model:  req.Model,
	})
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	status := http.StatusCreated
	if restarted {
		status = http.StatusOK
	}
	writeJSON(w, status, sess)
}

// HandleGet handles GET /sessions/{id} requests.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "api.get_session", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// HandleEnd handles DELETE /sessions/{id} requests.
func (h *SessionsHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.EndSession(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, "api.end_session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReset handles POST /sessions/{id}/reset requests.
func (h *SessionsHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.ResetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "api.reset_session", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
