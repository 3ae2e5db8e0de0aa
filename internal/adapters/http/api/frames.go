package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/posemon/internal/domain/dedupe"
	"github.com/okian/posemon/internal/domain/model"
	"github.com/okian/posemon/internal/domain/types"
	"github.com/okian/posemon/pkg/metrics"
)

// maxFrameBody bounds the size of a POST /frames body.
const maxFrameBody = 64 << 10

// FrameDependencies defines the interface for frame ingestion.
type FrameDependencies interface {
	// Ingest queues a frame. Repeated event ids return dedupe.ErrDuplicate.
	Ingest(ctx context.Context, e model.FrameEvent) error
}

// FramesHandler handles frame submissions.
type FramesHandler struct {
	deps FrameDependencies
}

// NewFramesHandler creates a new frames handler.
func NewFramesHandler(deps FrameDependencies) *FramesHandler {
	return &FramesHandler{deps: deps}
}

// HandlePostFrame handles POST /frames and POST /sessions/{id}/frames.
// The path session id, when present, wins over the body.
func (h *FramesHandler) HandlePostFrame(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_frame"

	var req types.FrameRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFrameBody)).Decode(&req); err != nil {
		metrics.RecordIngest("http", "rejected")
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	event, err := req.ToFrameEvent(r.PathValue("id"))
	if err != nil {
		metrics.RecordIngest("http", "rejected")
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	switch err := h.deps.Ingest(r.Context(), event); {
	case err == nil:
		metrics.RecordIngest("http", "accepted")
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
	case errors.Is(err, dedupe.ErrDuplicate):
		metrics.RecordIngest("http", "duplicate")
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
	default:
		metrics.RecordIngest("http", "rejected")
		writeServiceError(w, op, err)
	}
}
