package repository

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/posemon/internal/domain/activity"
	"github.com/okian/posemon/internal/domain/model"
	"github.com/okian/posemon/internal/domain/types"
	"github.com/okian/posemon/pkg/metrics"
)

const (
	defaultShardCount = 16
	// fpsSmoothing weights the newest frame interval in the FPS average.
	fpsSmoothing = 0.2
)

// session owns one stabilizer. mu serializes every access to it.
type session struct {
	mu sync.Mutex

	id        string
	meta      model.SessionMeta
	stab      *activity.Stabilizer
	status    activity.Status
	score     *float64
	fps       float64
	frames    uint64
	lastSeq   uint64
	lastFrame time.Time
	startedAt time.Time
	updatedAt time.Time
	ended     bool
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// MemoryStore is a sharded in-memory Store.
type MemoryStore struct {
	shards         []*shard
	shardCount     int
	stabilizerOpts []activity.Option
	autoStart      bool
	now            func() time.Time
}

// NewMemoryStore constructs a store with configuration options.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		shardCount: defaultShardCount,
		autoStart:  true,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*session)}
	}
	metrics.UpdateSessionsActive(0)
	return s
}

func (s *MemoryStore) shardFor(id string) *shard {
	return s.shards[xxhash.Sum64String(id)%uint64(len(s.shards))]
}

func (s *MemoryStore) lookup(id string) (*session, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	sess, ok := sh.sessions[id]
	sh.mu.RUnlock()
	return sess, ok
}

func (s *MemoryStore) newSession(id string, meta model.SessionMeta) *session {
	now := s.now()
	return &session{
		id:        id,
		meta:      meta,
		stab:      activity.New(s.stabilizerOpts...),
		startedAt: now,
		updatedAt: now,
	}
}

// Start implements Store.Start.
func (s *MemoryStore) Start(_ context.Context, id string, meta model.SessionMeta) (types.Session, bool, error) {
	if strings.TrimSpace(id) == "" {
		return types.Session{}, false, ErrInvalidSession
	}
	sh := s.shardFor(id)
	sh.mu.Lock()
	old, restarted := sh.sessions[id]
	sess := s.newSession(id, meta)
	sh.sessions[id] = sess
	sh.mu.Unlock()

	if restarted {
		old.mu.Lock()
		old.ended = true
		old.mu.Unlock()
		metrics.RecordSessionEvent("restart")
	} else {
		metrics.RecordSessionEvent("start")
		metrics.UpdateSessionsActive(s.Count(context.Background()))
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(), restarted, nil
}

// Reset implements Store.Reset.
func (s *MemoryStore) Reset(_ context.Context, id string) (types.Session, error) {
	sess, ok := s.lookup(id)
	if !ok {
		return types.Session{}, ErrNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.ended {
		return types.Session{}, ErrNotFound
	}
	sess.stab.Reset()
	sess.status = activity.StatusUnchanged
	sess.lastSeq = 0
	sess.updatedAt = s.now()
	metrics.RecordSessionEvent("reset")
	return sess.view(), nil
}

// End implements Store.End.
func (s *MemoryStore) End(_ context.Context, id string) error {
	if !s.remove(id, nil) {
		return ErrNotFound
	}
	metrics.RecordSessionEvent("end")
	return nil
}

// remove deletes id, only if it still maps to want when want is non-nil.
func (s *MemoryStore) remove(id string, want *session) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	sess, ok := sh.sessions[id]
	if ok && (want == nil || sess == want) {
		delete(sh.sessions, id)
	} else {
		ok = false
	}
	sh.mu.Unlock()
	if !ok {
		return false
	}

	sess.mu.Lock()
	sess.ended = true
	sess.mu.Unlock()
	metrics.UpdateSessionsActive(s.Count(context.Background()))
	return true
}

// Observe implements Store.Observe.
func (s *MemoryStore) Observe(ctx context.Context, e model.FrameEvent) (Result, error) { //nolint:gocritic // hugeParam: frames travel by value
	start := time.Now()
	defer func() {
		metrics.RecordObserveLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	sess, ok := s.lookup(e.SessionID)
	if !ok {
		if !s.autoStart {
			return Result{}, ErrNotFound
		}
		if _, _, err := s.startIfAbsent(ctx, e.SessionID); err != nil {
			return Result{}, err
		}
		sess, _ = s.lookup(e.SessionID)
		if sess == nil {
			return Result{}, ErrNotFound
		}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.ended {
		return Result{}, ErrNotFound
	}
	if e.Seq != 0 && e.Seq <= sess.lastSeq {
		metrics.RecordFrameObserved("stale")
		return Result{}, ErrStaleFrame
	}

	prev := sess.stab.Text()
	d := sess.stab.Observe(e.Observation())

	at := e.TS
	if at.IsZero() {
		at = s.now()
	}
	sess.trackRate(at)
	sess.frames++
	if e.Seq != 0 {
		sess.lastSeq = e.Seq
	}
	sess.score = finite(e.PersonScore)
	sess.updatedAt = s.now()
	if d.Updated() {
		sess.status = d.Status
		metrics.RecordDisplayUpdate(d.Status.String(), d.Label.String())
	}
	if sess.stab.Missing() > 0 {
		metrics.RecordFrameObserved("missing")
	} else {
		metrics.RecordFrameObserved("confident")
	}

	changed := d.Text != prev
	if changed {
		metrics.RecordTextChange()
	}
	return Result{Display: d, Changed: changed, Session: sess.view()}, nil
}

// startIfAbsent opens a session unless another goroutine won the race.
func (s *MemoryStore) startIfAbsent(_ context.Context, id string) (*session, bool, error) {
	if strings.TrimSpace(id) == "" {
		return nil, false, ErrInvalidSession
	}
	sh := s.shardFor(id)
	sh.mu.Lock()
	if sess, ok := sh.sessions[id]; ok {
		sh.mu.Unlock()
		return sess, false, nil
	}
	sess := s.newSession(id, model.SessionMeta{})
	sh.sessions[id] = sess
	sh.mu.Unlock()

	metrics.RecordSessionEvent("start")
	metrics.UpdateSessionsActive(s.Count(context.Background()))
	return sess, true, nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(_ context.Context, id string) (types.Session, error) {
	sess, ok := s.lookup(id)
	if !ok {
		return types.Session{}, ErrNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(), nil
}

// List implements Store.List.
func (s *MemoryStore) List(_ context.Context) []types.Session {
	var all []*session
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, sess := range sh.sessions {
			all = append(all, sess)
		}
		sh.mu.RUnlock()
	}

	out := make([]types.Session, 0, len(all))
	for _, sess := range all {
		sess.mu.Lock()
		out = append(out, sess.view())
		sess.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count implements Store.Count.
func (s *MemoryStore) Count(_ context.Context) int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// Sweep implements Store.Sweep.
func (s *MemoryStore) Sweep(_ context.Context, idle time.Duration) []string {
	if idle <= 0 {
		return nil
	}
	cutoff := s.now().Add(-idle)

	var stale []*session
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, sess := range sh.sessions {
			sess.mu.Lock()
			if sess.updatedAt.Before(cutoff) {
				stale = append(stale, sess)
			}
			sess.mu.Unlock()
		}
		sh.mu.RUnlock()
	}

	ids := make([]string, 0, len(stale))
	for _, sess := range stale {
		if s.remove(sess.id, sess) {
			metrics.RecordSessionEvent("expire")
			ids = append(ids, sess.id)
		}
	}
	sort.Strings(ids)
	return ids
}

// trackRate folds the interval since the previous frame into the FPS average.
func (sess *session) trackRate(at time.Time) {
	if !sess.lastFrame.IsZero() {
		if dt := at.Sub(sess.lastFrame).Seconds(); dt > 0 {
			inst := 1 / dt
			if sess.fps == 0 {
				sess.fps = inst
			} else {
				sess.fps += fpsSmoothing * (inst - sess.fps)
			}
		}
	}
	sess.lastFrame = at
}

func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	c := *v
	return &c
}

// view must be called with sess.mu held.
func (sess *session) view() types.Session {
	st := sess.stab.State()
	counters := make(map[string]int)
	for label, c := range st.Counters {
		if c != 0 {
			counters[label] = c
		}
	}
	var status string
	if st.Text != "" {
		status = sess.status.String()
	}
	score := finite(sess.score)
	return types.Session{
		ID:          sess.id,
		Camera:      sess.meta.Camera,
		Device:      sess.meta.Device,
		Model:       sess.meta.Model,
		Text:        st.Text,
		Status:      status,
		Label:       st.Register.String(),
		PersonScore: score,
		FPS:         sess.fps,
		Frames:      sess.frames,
		LastSeq:     sess.lastSeq,
		Missing:     st.Missing,
		Counters:    counters,
		StartedAt:   sess.startedAt,
		UpdatedAt:   sess.updatedAt,
	}
}
