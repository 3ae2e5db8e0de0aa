// Package sink delivers display updates to their consumers.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/posemon/internal/domain/types"
	"github.com/okian/posemon/pkg/logger"
	"github.com/okian/posemon/pkg/metrics"
)

// Sink receives the display text of a session whenever it changes.
type Sink interface {
	Name() string
	Publish(ctx context.Context, u types.Update) error
}

// Fanout publishes every update to all of its sinks.
type Fanout struct {
	sinks  []Sink
	logger logger.Logger
}

// NewFanout creates a Fanout over sinks. Nil sinks are skipped.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{logger: logger.Get().Named("sink")}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Add registers another sink.
func (f *Fanout) Add(s Sink) {
	if s != nil {
		f.sinks = append(f.sinks, s)
	}
}

// Name implements Sink.
func (f *Fanout) Name() string { return "fanout" }

// Publish delivers u to every sink. A failing sink does not stop the
// others; all failures are joined into the returned error.
func (f *Fanout) Publish(ctx context.Context, u types.Update) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, u); err != nil {
			metrics.RecordSinkError(s.Name())
			metrics.RecordErrorByComponent("sink", s.Name())
			f.logger.Warn(ctx, "display update not delivered",
				logger.String("sink", s.Name()),
				logger.String("session_id", u.SessionID),
				logger.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		metrics.RecordSinkPublished(s.Name())
	}
	return errors.Join(errs...)
}
