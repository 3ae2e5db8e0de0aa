package sink

import (
	"context"
	"sync"

	"github.com/okian/posemon/internal/domain/types"
	"github.com/okian/posemon/pkg/metrics"
)

const defaultSubscriberBuffer = 16

// Hub fans display updates out to live watchers of a session.
// Slow watchers lose updates rather than blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	buffer int
	count  int
}

type subscription struct {
	ch chan types.Update
}

// NewHub creates an empty Hub. buffer sizes each watcher channel.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{subs: make(map[string]map[*subscription]struct{}), buffer: buffer}
}

// Name implements Sink.
func (h *Hub) Name() string { return "websocket" }

// Subscribe registers a watcher for sessionID. The returned cancel func
// unregisters it and closes the channel; it is safe to call twice.
func (h *Hub) Subscribe(sessionID string) (<-chan types.Update, func()) {
	sub := &subscription{ch: make(chan types.Update, h.buffer)}

	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[*subscription]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	h.count++
	metrics.UpdateWatchClients(h.count)
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[sessionID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(h.subs, sessionID)
				}
			}
			h.count--
			metrics.UpdateWatchClients(h.count)
			close(sub.ch)
		})
	}
}

// Watchers returns the number of watchers of sessionID.
func (h *Hub) Watchers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// Publish implements Sink.
func (h *Hub) Publish(_ context.Context, u types.Update) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[u.SessionID] {
		select {
		case sub.ch <- u:
		default:
			metrics.RecordErrorByComponent("hub", "watcher_slow")
		}
	}
	return nil
}
