// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/posemon/internal/domain/activity"
)

// FrameEvent is the classification result of one camera frame.
// Fields mirror the OpenAPI schema for /frames.
type FrameEvent struct {
	EventID     string           // unique id for idempotency, optional
	SessionID   string           // camera session the frame belongs to
	Seq         uint64           // frame sequence number within the session, 0 if unknown
	PersonScore *float64         // person detection confidence, nil when absent
	Labels      []activity.Score // classifier output, empty when no person was classified
	TS          time.Time        // frame capture time
}

// Observation converts the event into the stabilizer input.
func (e *FrameEvent) Observation() activity.Observation {
	return activity.Observation{
		PersonScore: e.PersonScore,
		Labels:      e.Labels,
	}
}

// SessionMeta describes the upstream pipeline feeding a session. The
// stabilizer does not use it; it is kept for display and diagnostics.
type SessionMeta struct {
	Camera string // e.g. "front", "back"
	Device string // inference backend, e.g. "cpu", "gpu", "nnapi"
	Model  string // pose model variant, e.g. "thunder", "lightning"
}
