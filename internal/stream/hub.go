package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"stack-queue-parking/internal/parking"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong before the connection is
	// treated as dead.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16
)

// EventState is the only event the hub emits.
const EventState = "state"

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string        `json:"event"`
	Data  parking.State `json:"data"`
}

// Snapshotter is the read side of a lot.
type Snapshotter interface {
	Snapshot() parking.State
}

// Hub fans parking state out to WebSocket clients. A client that cannot keep
// up is disconnected instead of slowing down the lot.
type Hub struct {
	source         Snapshotter
	interval       time.Duration
	logger         *slog.Logger
	allowedOrigins []string
	upgrader       websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte

	// version of the newest state queued for this client.
	version uint64
}

type Option func(*Hub)

// WithAllowedOrigins limits upgrades to requests whose Origin header is in
// origins. Requests without an Origin are not browsers and are accepted. An
// empty list accepts every origin.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		h.allowedOrigins = origins
	}
}

// New creates a Hub reading from source. When interval is positive Run also
// rebroadcasts the current state on that period.
func New(source Snapshotter, interval time.Duration, logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		source:   source,
		interval: interval,
		logger:   logger,
		clients:  make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(h.allowedOrigins, origin)
}

// Run blocks until ctx is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	var tick <-chan time.Time
	if h.interval > 0 {
		t := time.NewTicker(h.interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-tick:
			h.Publish(h.source.Snapshot())
		}
	}
}

// ServeHTTP upgrades the connection, sends the current state right away and
// then streams every published state. It blocks until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		h.logger.DebugContext(r.Context(), "stream upgrade refused", "err", err, "origin", r.Header.Get("Origin"))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	// Snapshot and register under the same lock as Publish so the client
	// neither misses a state nor receives one older than its first.
	h.mu.Lock()
	state := h.source.Snapshot()
	if data, err := encode(state); err == nil {
		c.send <- data
	}
	c.version = state.Version
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	defer h.unregister(c)

	h.logger.DebugContext(r.Context(), "stream client connected", "remote", r.RemoteAddr)
	go c.writePump()
	c.readPump()
	h.logger.DebugContext(r.Context(), "stream client disconnected", "remote", r.RemoteAddr)
}

// OnChange is a parking.Observer that publishes successful mutations.
func (h *Hub) OnChange(_ context.Context, c parking.Change) {
	if c.Err != nil {
		return
	}
	h.Publish(c.State)
}

// Publish sends state to every connected client. A client that has already
// been sent a newer state skips it.
func (h *Hub) Publish(state parking.State) {
	data, err := encode(state)
	if err != nil {
		h.logger.Error("stream: encode state", "err", err)
		return
	}

	var slow []*client
	h.mu.Lock()
	for c := range h.clients {
		if state.Version < c.version {
			continue
		}
		c.version = state.Version
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Warn("stream: dropping slow client")
		h.unregister(c)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func encode(state parking.State) ([]byte, error) {
	return json.Marshal(Message{Event: EventState, Data: state})
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// writePump forwards queued messages and sends periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles control frames and detects disconnects.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
