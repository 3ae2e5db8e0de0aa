package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/posemon/internal/domain/types"
	"github.com/okian/posemon/pkg/logger"
	"github.com/okian/posemon/pkg/metrics"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultWriteTimeout = 5 * time.Second
	maxClientMessage    = 512
)

// Watcher delivers the display updates of one session.
type Watcher interface {
	Subscribe(sessionID string) (<-chan types.Update, func())
}

// WatchOption configures the watch handler.
type WatchOption func(*WatchHandler)

// WithPingInterval sets how often idle connections are pinged.
func WithPingInterval(d time.Duration) WatchOption {
	return func(h *WatchHandler) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithWriteTimeout bounds every websocket write.
func WithWriteTimeout(d time.Duration) WatchOption {
	return func(h *WatchHandler) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithCheckOrigin replaces the same-origin check of the upgrader.
func WithCheckOrigin(fn func(r *http.Request) bool) WatchOption {
	return func(h *WatchHandler) {
		h.upgrader.CheckOrigin = fn
	}
}

// WatchHandler streams display updates of a session over a websocket.
// The first message is the current state, then one message per text change.
type WatchHandler struct {
	sessions SessionDependencies
	watcher  Watcher
	upgrader websocket.Upgrader

	pingInterval time.Duration
	writeTimeout time.Duration

	done      chan struct{}
	closeOnce sync.Once

	logger logger.Logger
}

// NewWatchHandler creates a new watch handler.
func NewWatchHandler(sessions SessionDependencies, watcher Watcher, opts ...WatchOption) *WatchHandler {
	h := &WatchHandler{
		sessions: sessions,
		watcher:  watcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pingInterval: defaultPingInterval,
		writeTimeout: defaultWriteTimeout,
		done:         make(chan struct{}),
		logger:       logger.Get().Named("watch"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Close ends all open watch connections.
func (h *WatchHandler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// HandleWatch handles GET /sessions/{id}/watch requests.
func (h *WatchHandler) HandleWatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.watch_session"
	ctx := r.Context()
	id := r.PathValue("id")

	// Subscribe before reading the snapshot so no change falls in between.
	updates, cancel := h.watcher.Subscribe(id)
	defer cancel()

	sess, err := h.sessions.Session(ctx, id)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already answered the request.
		metrics.RecordErrorByEndpoint("watch", r.Method, "upgrade")
		h.logger.Debug(ctx, "websocket upgrade failed", logger.String("session_id", id), logger.Error(err))
		return
	}
	defer conn.Close()
	metrics.RecordHTTPRequest("watch", r.Method, "101")

	closed := make(chan struct{})
	go h.readLoop(conn, closed)

	snapshot := types.Update{
		SessionID: sess.ID,
		Seq:       sess.LastSeq,
		Text:      sess.Text,
		Status:    sess.Status,
		Label:     sess.Label,
		At:        sess.UpdatedAt,
	}
	if err := h.write(conn, snapshot); err != nil {
		return
	}

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-h.done:
			h.closeWith(conn, websocket.CloseGoingAway, "server shutting down")
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := h.write(conn, u); err != nil {
				h.logger.Debug(ctx, "watch write failed", logger.String("session_id", id), logger.Error(err))
				return
			}
			if u.Status == types.UpdateEnded {
				h.closeWith(conn, websocket.CloseNormalClosure, "session ended")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		}
	}
}

// readLoop discards client messages and reports when the peer goes away.
func (h *WatchHandler) readLoop(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(maxClientMessage)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WatchHandler) write(conn *websocket.Conn, u types.Update) error {
	if err := conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(u)
}

func (h *WatchHandler) closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.writeTimeout))
}
