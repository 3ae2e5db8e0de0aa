package api

import (
	"net/http"

	"github.com/okian/posemon/internal/domain/activity"
)

type labelsResponse struct {
	Labels  []string `json:"labels"`
	Default string   `json:"default"`
}

// LabelsHandler lists the pose labels the stabilizer knows.
type LabelsHandler struct {
	body labelsResponse
}

// NewLabelsHandler creates a new labels handler.
func NewLabelsHandler() *LabelsHandler {
	labels := activity.Labels()
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = l.String()
	}
	return &LabelsHandler{body: labelsResponse{Labels: names, Default: activity.Default.String()}}
}

// HandleLabels handles GET /labels requests.
func (h *LabelsHandler) HandleLabels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.body)
}
