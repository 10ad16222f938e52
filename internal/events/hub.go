// Package events streams the assistant's state to browser and CLI clients.
//
// [Hub] implements [turn.Observer] and [turn.MetaObserver]. Every phase
// change, message and metadata update is encoded once as JSON and fanned out
// to all websocket clients connected to the hub's handler. A new client first
// receives the current phase and the retained messages, then live events.
//
// Each client has a bounded queue. A client that falls behind is
// disconnected instead of slowing down the turn controller.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/turn"
)

// Event types.
const (
	TypeState   = "state"
	TypeMessage = "message"
	TypeMeta    = "meta"
)

// Event is the JSON document sent to clients.
type Event struct {
	Type      string         `json:"type"`
	State     string         `json:"state,omitempty"`
	Message   *turn.Message  `json:"message,omitempty"`
	MessageID string         `json:"message_id,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	At        time.Time      `json:"at"`
}

// Snapshot is the hub state reported by /status.
type Snapshot struct {
	State       string         `json:"state"`
	Messages    []turn.Message `json:"messages"`
	Subscribers int            `json:"subscribers"`
}

// Defaults for [New].
const (
	DefaultQueueSize = 64
	DefaultHistory   = 50
	writeTimeout     = 5 * time.Second
)

// Option configures a [Hub].
type Option func(*Hub)

// WithQueueSize sets the per-client event queue length.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithHistory sets how many messages are retained for new clients and
// [Hub.Snapshot].
func WithHistory(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.keep = n
		}
	}
}

// WithMetrics tracks the number of connected clients.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithOriginPatterns allows cross-origin websocket clients matching the
// given host patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.origins = patterns }
}

// Hub fans out controller events to websocket clients. The zero value is not
// usable; create hubs with [New].
type Hub struct {
	queueSize int
	keep      int
	metrics   *observe.Metrics
	origins   []string

	mu       sync.Mutex
	clients  map[*client]struct{}
	phase    turn.Phase
	messages []turn.Message
}

var (
	_ turn.Observer     = (*Hub)(nil)
	_ turn.MetaObserver = (*Hub)(nil)
)

type client struct {
	id    string
	queue chan []byte
	// kick is closed when the client is dropped for being slow.
	kick chan struct{}
	once sync.Once
}

func (c *client) drop() { c.once.Do(func() { close(c.kick) }) }

// New returns an empty hub in the [turn.Idle] phase.
func New(opts ...Option) *Hub {
	h := &Hub{
		queueSize: DefaultQueueSize,
		keep:      DefaultHistory,
		clients:   make(map[*client]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// OnPhase implements [turn.Observer].
func (h *Hub) OnPhase(p turn.Phase) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.phase = p
	h.broadcast(Event{Type: TypeState, State: p.String(), At: time.Now()})
}

// OnMessage implements [turn.Observer].
func (h *Hub) OnMessage(m turn.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, m)
	if over := len(h.messages) - h.keep; over > 0 {
		h.messages = slices.Clone(h.messages[over:])
	}
	h.broadcast(Event{Type: TypeMessage, Message: &m, At: time.Now()})
}

// OnMeta implements [turn.MetaObserver]. The metadata is merged into the
// retained message so late clients see it too.
func (h *Hub) OnMeta(messageID string, meta map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.messages {
		if h.messages[i].ID != messageID {
			continue
		}
		merged := make(map[string]any, len(h.messages[i].Meta)+len(meta))
		for k, v := range h.messages[i].Meta {
			merged[k] = v
		}
		for k, v := range meta {
			merged[k] = v
		}
		h.messages[i].Meta = merged
	}
	h.broadcast(Event{Type: TypeMeta, MessageID: messageID, Meta: meta, At: time.Now()})
}

// Snapshot returns the current phase and retained messages.
func (h *Hub) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{
		State:       h.phase.String(),
		Messages:    slices.Clone(h.messages),
		Subscribers: len(h.clients),
	}
}

// broadcast encodes ev and queues it for every client. Must be called with
// h.mu held.
func (h *Hub) broadcast(ev Event) {
	if len(h.clients) == 0 {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("events: encode event", "type", ev.Type, "err", err)
		return
	}
	for c := range h.clients {
		select {
		case c.queue <- data:
		default:
			slog.Warn("events: dropping slow client", "client", c.id)
			delete(h.clients, c)
			c.drop()
		}
	}
}

// subscribe registers a client and returns it with the replay events
// already queued.
func (h *Hub) subscribe() (*client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := &client{
		id:    uuid.NewString(),
		queue: make(chan []byte, max(h.queueSize, len(h.messages)+1)),
		kick:  make(chan struct{}),
	}
	now := time.Now()
	replay := []Event{{Type: TypeState, State: h.phase.String(), At: now}}
	for i := range h.messages {
		replay = append(replay, Event{Type: TypeMessage, Message: &h.messages[i], At: now})
	}
	for _, ev := range replay {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}
		c.queue <- data
	}
	h.clients[c] = struct{}{}
	return c, nil
}

func (h *Hub) unsubscribe(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// ServeHTTP upgrades the request to a websocket and streams events until the
// client disconnects, falls behind, or the request context ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Warn("events: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	c, err := h.subscribe()
	if err != nil {
		conn.Close(websocket.StatusInternalError, "snapshot failed")
		return
	}
	defer h.unsubscribe(c)

	ctx := r.Context()
	if h.metrics != nil {
		h.metrics.ActiveSubscribers.Add(ctx, 1)
		defer h.metrics.ActiveSubscribers.Add(context.WithoutCancel(ctx), -1)
	}
	log := observe.Logger(ctx).With("client", c.id)
	log.Debug("events: client connected")

	// Clients never send anything; CloseRead handles pings and close frames.
	ctx = conn.CloseRead(ctx)

	for {
		select {
		case data := <-c.queue:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) == -1 {
					log.Debug("events: write failed", "err", err)
				}
				return
			}
		case <-c.kick:
			conn.Close(websocket.StatusPolicyViolation, "client too slow")
			return
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}
