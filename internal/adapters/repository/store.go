// Package repository keeps the per-session stabilizer state.
package repository

import (
	"context"
	"time"

	"github.com/okian/posemon/internal/domain/activity"
	"github.com/okian/posemon/internal/domain/model"
	"github.com/okian/posemon/internal/domain/types"
)

// Result is the outcome of applying one frame to a session.
type Result struct {
	Display activity.DisplayText
	// Changed reports whether the displayed text differs from before the frame.
	Changed bool
	Session types.Session
}

// Store provides read/write access to camera sessions.
type Store interface {
	// Start opens a session, or restarts it with a fresh stabilizer when it
	// already exists. The second return value reports a restart.
	Start(ctx context.Context, id string, meta model.SessionMeta) (types.Session, bool, error)

	// Reset clears the stabilizer of an existing session.
	Reset(ctx context.Context, id string) (types.Session, error)

	// End discards a session. Returns ErrNotFound if it does not exist.
	End(ctx context.Context, id string) error

	// Observe applies one frame to its session.
	Observe(ctx context.Context, e model.FrameEvent) (Result, error)

	// Get returns the current view of one session.
	Get(ctx context.Context, id string) (types.Session, error)

	// List returns all sessions ordered by id.
	List(ctx context.Context) []types.Session

	// Count returns the number of open sessions.
	Count(ctx context.Context) int

	// Sweep ends sessions without frames for longer than idle and returns their ids.
	Sweep(ctx context.Context, idle time.Duration) []string
}
