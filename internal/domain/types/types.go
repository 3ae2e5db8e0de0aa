// Package types contains common types used across the application
package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/posemon/internal/domain/activity"
	"github.com/okian/posemon/internal/domain/model"
)

// Session is the read shape of one camera session.
type Session struct {
	ID          string         `json:"session_id"`
	Camera      string         `json:"camera,omitempty"`
	Device      string         `json:"device,omitempty"`
	Model       string         `json:"model,omitempty"`
	Text        string         `json:"text"`
	Status      string         `json:"status"`
	Label       string         `json:"label"`
	PersonScore *float64       `json:"person_score,omitempty"`
	FPS         float64        `json:"fps"`
	Frames      uint64         `json:"frames"`
	LastSeq     uint64         `json:"last_seq"`
	Missing     int            `json:"missing"`
	Counters    map[string]int `json:"counters,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Lifecycle statuses of an Update, next to the activity statuses.
const (
	UpdateReset = "reset"
	UpdateEnded = "ended"
)

// Update is pushed to display sinks whenever a session's text changes.
type Update struct {
	SessionID string    `json:"session_id"`
	Seq       uint64    `json:"seq"`
	Text      string    `json:"text"`
	Status    string    `json:"status"`
	Label     string    `json:"label"`
	At        time.Time `json:"at"`
}

// LabelScore is one classifier output on the wire.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// FrameRequest is the JSON shape of a frame submitted over HTTP or MQTT.
// SessionID may be omitted when the transport carries it, e.g. in the topic.
type FrameRequest struct {
	EventID     string       `json:"event_id,omitempty"`
	SessionID   string       `json:"session_id,omitempty"`
	Seq         uint64       `json:"seq,omitempty"`
	PersonScore *float64     `json:"person_score,omitempty"`
	Labels      []LabelScore `json:"labels,omitempty"`
	TS          time.Time    `json:"ts,omitempty"`
}

// ToFrameEvent validates the request and converts it to a FrameEvent.
// A non-empty sessionID overrides the one in the body.
func (r *FrameRequest) ToFrameEvent(sessionID string) (model.FrameEvent, error) {
	if sessionID == "" {
		sessionID = r.SessionID
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return model.FrameEvent{}, fmt.Errorf("%w: session_id is required", ErrInvalidFrame)
	}
	if len(sessionID) > MaxSessionIDLength {
		return model.FrameEvent{}, fmt.Errorf("%w: session_id longer than %d", ErrInvalidFrame, MaxSessionIDLength)
	}
	if len(r.Labels) > MaxLabels {
		return model.FrameEvent{}, fmt.Errorf("%w: more than %d labels", ErrInvalidFrame, MaxLabels)
	}
	labels := make([]activity.Score, 0, len(r.Labels))
	for i, l := range r.Labels {
		if strings.TrimSpace(l.Label) == "" {
			return model.FrameEvent{}, fmt.Errorf("%w: labels[%d] has no name", ErrInvalidFrame, i)
		}
		labels = append(labels, activity.Score{Label: l.Label, Score: l.Score})
	}
	ts := r.TS
	if ts.IsZero() {
		ts = time.Now()
	}
	return model.FrameEvent{
		EventID:     r.EventID,
		SessionID:   sessionID,
		Seq:         r.Seq,
		PersonScore: r.PersonScore,
		Labels:      labels,
		TS:          ts,
	}, nil
}
