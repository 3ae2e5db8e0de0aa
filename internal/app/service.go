// Package service wires the session store, the frame queue and the display
// sinks into the operations used by the HTTP, MQTT and bridge adapters.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	eventqueue "github.com/okian/posemon/internal/adapters/mq/queue"
	workerpool "github.com/okian/posemon/internal/adapters/mq/worker"
	repository "github.com/okian/posemon/internal/adapters/repository"
	"github.com/okian/posemon/internal/adapters/sink"
	"github.com/okian/posemon/internal/domain/activity"
	"github.com/okian/posemon/internal/domain/dedupe"
	"github.com/okian/posemon/internal/domain/model"
	"github.com/okian/posemon/internal/domain/types"
	"github.com/okian/posemon/pkg/logger"
	"github.com/okian/posemon/pkg/metrics"
)

const (
	minSweepInterval = time.Second
	stopTimeout      = 10 * time.Second
)

// Service owns the running pipeline: frames are deduplicated, queued per
// session, applied to the session stabilizer by the worker pool and every
// text change is published to the sinks.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	deduper dedupe.Deduper
	queue   *eventqueue.InMemoryQueue
	pool    *workerpool.Pool
	hub     *sink.Hub
	sinks   *sink.Fanout

	// Configuration
	workerCount    int
	queueSize      int
	dedupeSize     int
	shardCount     int
	autoStart      bool
	idleTimeout    time.Duration
	stabilizerOpts []activity.Option
	extraSinks     []sink.Sink

	// State
	started   bool
	cancel    context.CancelFunc
	sweepDone chan struct{}

	logger logger.Logger
}

// New constructs a Service with default configuration. The store and the
// hub exist right away so sessions can be managed before Start.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU(),
		queueSize:   10_000,
		dedupeSize:  100_000,
		shardCount:  32,
		autoStart:   true,
		idleTimeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.store = repository.NewMemoryStore(
		repository.WithShardCount(s.shardCount),
		repository.WithAutoStart(s.autoStart),
		repository.WithStabilizerOptions(s.stabilizerOpts...),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.hub = sink.NewHub(0)
	s.sinks = sink.NewFanout(s.hub)
	for _, sk := range s.extraSinks {
		s.sinks.Add(sk)
	}
	return s
}

// Start creates the queue and starts the workers and the idle sweeper.
// Calling Start on a running service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting activity service...")

	// Workers outlive the caller's context; Stop cancels them.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.queue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithPartitions(s.workerCount),
	)
	s.pool = workerpool.NewPool(s.queue, workerpool.ObserverFunc(s.observe))
	s.pool.Start(runCtx)

	s.sweepDone = make(chan struct{})
	if s.idleTimeout > 0 {
		go s.sweepLoop(runCtx, s.sweepDone)
	} else {
		close(s.sweepDone)
	}

	s.started = true
	s.logger.Info(ctx, "activity service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Bool("autoStart", s.autoStart),
		logger.Duration("idleTimeout", s.idleTimeout),
	)
	return nil
}

// Stop drains the queued frames and stops the workers and the sweeper.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping activity service...")

	shutdownCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	if err := s.pool.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	s.cancel()
	<-s.sweepDone

	s.started = false
	s.logger.Info(ctx, "activity service stopped")
}

// Ingest accepts one frame for asynchronous processing. A frame whose event
// id was already seen returns ErrDuplicate; frames without an id rely on the
// store rejecting stale sequence numbers. A full queue returns
// ErrBackpressure and forgets the id so the frame can be retried.
func (s *Service) Ingest(ctx context.Context, e model.FrameEvent) error { //nolint:gocritic // hugeParam: frames travel by value
	if strings.TrimSpace(e.SessionID) == "" {
		return ErrInvalidSession
	}
	if !s.autoStart {
		if _, err := s.store.Get(ctx, e.SessionID); err != nil {
			return err
		}
	}

	id := e.EventID
	if id != "" && s.SeenAndRecord(ctx, id) {
		s.logger.Debug(ctx, "duplicate frame skipped",
			logger.String("event_id", id),
			logger.String("session_id", e.SessionID),
		)
		return ErrDuplicate
	}

	if err := s.Enqueue(ctx, e); err != nil {
		if id != "" {
			s.Unrecord(ctx, id)
		}
		return err
	}
	return nil
}

// Enqueue submits a frame without deduplication.
func (s *Service) Enqueue(ctx context.Context, e model.FrameEvent) error { //nolint:gocritic // hugeParam: frames travel by value
	s.mu.RLock()
	q, started := s.queue, s.started
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}
	if err := q.Enqueue(ctx, e); err != nil {
		return fmt.Errorf("enqueue frame of session %s: %w", e.SessionID, err)
	}
	return nil
}

// SeenAndRecord atomically checks if an event id was seen and records it if not.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordFrameDuplicate()
	}
	return seen
}

// Unrecord removes an event id from the seen set so it can be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Size returns the number of remembered event ids.
func (s *Service) Size() int64 {
	return s.deduper.Size()
}

// observe is run by the worker owning the frame's session.
func (s *Service) observe(ctx context.Context, e model.FrameEvent) error { //nolint:gocritic // hugeParam: frames travel by value
	res, err := s.store.Observe(ctx, e)
	switch {
	case errors.Is(err, repository.ErrStaleFrame), errors.Is(err, repository.ErrNotFound):
		s.logger.Debug(ctx, "frame dropped",
			logger.String("session_id", e.SessionID),
			logger.Uint64("seq", e.Seq),
			logger.Error(err),
		)
		return nil
	case err != nil:
		return err
	}
	if !res.Changed {
		return nil
	}
	s.publish(ctx, types.Update{
		SessionID: e.SessionID,
		Seq:       e.Seq,
		Text:      res.Display.Text,
		Status:    res.Display.Status.String(),
		Label:     res.Display.Label.String(),
		At:        res.Session.UpdatedAt,
	})
	return nil
}

func (s *Service) publish(ctx context.Context, u types.Update) {
	if err := s.sinks.Publish(ctx, u); err == nil {
		return
	}
	// Fanout already logged each failing sink.
	metrics.RecordErrorByComponent("service", "publish")
}

// StartSession opens a session, or restarts it with a fresh stabilizer.
// The second return value reports a restart.
func (s *Service) StartSession(ctx context.Context, id string, meta model.SessionMeta) (types.Session, bool, error) {
	sess, restarted, err := s.store.Start(ctx, id, meta)
	if err != nil {
		return types.Session{}, false, err
	}
	if restarted {
		s.publish(ctx, types.Update{SessionID: id, Status: types.UpdateReset, At: sess.UpdatedAt})
	}
	s.logger.Info(ctx, "session started",
		logger.String("session_id", id),
		logger.String("camera", meta.Camera),
		logger.Bool("restarted", restarted),
	)
	return sess, restarted, nil
}

// ResetSession clears the stabilizer of a session.
func (s *Service) ResetSession(ctx context.Context, id string) (types.Session, error) {
	sess, err := s.store.Reset(ctx, id)
	if err != nil {
		return types.Session{}, err
	}
	s.publish(ctx, types.Update{SessionID: id, Status: types.UpdateReset, At: sess.UpdatedAt})
	return sess, nil
}

// EndSession discards a session and clears its display.
func (s *Service) EndSession(ctx context.Context, id string) error {
	if err := s.store.End(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, types.Update{SessionID: id, Status: types.UpdateEnded, At: time.Now()})
	s.logger.Info(ctx, "session ended", logger.String("session_id", id))
	return nil
}

// Session returns the current view of one session.
func (s *Service) Session(ctx context.Context, id string) (types.Session, error) {
	return s.store.Get(ctx, id)
}

// Sessions returns every open session ordered by id.
func (s *Service) Sessions(ctx context.Context) []types.Session {
	return s.store.List(ctx)
}

// Hub returns the websocket watcher registry.
func (s *Service) Hub() *sink.Hub {
	return s.hub
}

func (s *Service) sweepLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	interval := s.idleTimeout / 4
	if interval < minSweepInterval {
		interval = minSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	for _, id := range s.store.Sweep(ctx, s.idleTimeout) {
		s.publish(ctx, types.Update{SessionID: id, Status: types.UpdateEnded, At: time.Now()})
		s.logger.Info(ctx, "idle session ended", logger.String("session_id", id))
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	sessions := s.store.Count(ctx)
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"autoStart":   s.autoStart,
		"idleTimeout": s.idleTimeout.String(),
		"sessions":    sessions,
		"seenEvents":  s.deduper.Size(),
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["recentlyProcessed"] = s.pool.Processed()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)
	}
	metrics.UpdateSessionsActive(sessions)

	return stats
}
