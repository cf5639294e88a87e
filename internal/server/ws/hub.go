// Package ws streams live auction events to websocket clients. It is a
// display reader: it never takes an auction lock and tolerates stale data.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBufferSize = 256

	// maxSubscriptions caps the auctions one connection may follow.
	maxSubscriptions = 100

	// replayLimit stays below sendBufferSize so a replay is never dropped.
	replayLimit = 200
)

// EventPattern is the bus pattern carrying every auction's events.
const EventPattern = "ch:auction:*"

// allAuctions subscribes a client to every auction.
const allAuctions = "*"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool // auction ids, or allAuctions
	mu   sync.RWMutex
}

// subscribeMsg is what a client sends to follow or drop auctions:
//
//	{"action":"subscribe","auctions":["a1","a2"]}
type subscribeMsg struct {
	Action   string   `json:"action"`
	Auctions []string `json:"auctions"`
}

// envelope is every frame the hub sends. Event frames carry the engine event
// verbatim in Event.
type envelope struct {
	Type     string                  `json:"type"`
	StreamID string                  `json:"stream_id,omitempty"`
	Auctions []string                `json:"auctions,omitempty"`
	Snapshot *domain.AuctionSnapshot `json:"snapshot,omitempty"`
	Event    json.RawMessage         `json:"event,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// Hub fans events from the signal bus out to subscribed clients.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	done       chan struct{}
	bus        domain.SignalBus
	snapshots  domain.AuctionCache
	stream     string
	mu         sync.RWMutex
	logger     *slog.Logger
}

type broadcastMsg struct {
	auctionID string
	data      []byte
}

// NewHub creates a hub over bus. snapshots may be nil; when set, a client
// receives the cached snapshot of each auction it subscribes to.
func NewHub(bus domain.SignalBus, snapshots domain.AuctionCache, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		snapshots:  snapshots,
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
}

// WithReplay lets clients that connect with ?since=<id> catch up from the
// durable event stream before live events.
func (h *Hub) WithReplay(stream string) *Hub {
	h.stream = stream
	return h
}

// Run subscribes to the event bus and serves registrations and broadcasts
// until ctx is cancelled. Call in a goroutine.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	events, err := h.bus.Subscribe(ctx, EventPattern)
	if err != nil {
		return err
	}
	h.logger.Info("ws: subscribed to events", slog.String("pattern", EventPattern))

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws: client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws: client disconnected", slog.Int("total_clients", n))

		case payload, ok := <-events:
			if !ok {
				h.closeAll()
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("ws: event subscription closed")
			}
			h.route(payload)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func auctionOf(payload []byte) (string, bool) {
	var head struct {
		AuctionID string `json:"auction_id"`
	}
	if err := json.Unmarshal(payload, &head); err != nil || head.AuctionID == "" {
		return "", false
	}
	return head.AuctionID, true
}

// route wraps a bus payload and hands it to deliver.
func (h *Hub) route(payload []byte) {
	auctionID, ok := auctionOf(payload)
	if !ok {
		h.logger.Warn("ws: dropping malformed event")
		return
	}
	data, err := json.Marshal(envelope{Type: "event", Event: payload})
	if err != nil {
		return
	}
	h.deliver(broadcastMsg{auctionID: auctionID, data: data})
}

func (h *Hub) deliver(msg broadcastMsg) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.follows(msg.auctionID) {
			continue
		}
		select {
		case c.send <- msg.data:
		default:
			h.logger.Warn("ws: dropping message for slow client", slog.String("auction_id", msg.auctionID))
		}
	}
}

// HandleWS upgrades the request and registers the client. A client may
// pre-subscribe with ?auction=a1&auction=a2 and, when replay is enabled,
// receive the stream entries after ?since=<id> for those auctions.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	if ids := r.URL.Query()["auction"]; len(ids) > 0 {
		c.handleSubscription(r.Context(), subscribeMsg{Action: "subscribe", Auctions: ids})
	}
	if since := r.URL.Query().Get("since"); since != "" && h.stream != "" {
		c.replay(r.Context(), since)
	}
	go c.readPump()
}

// readPump applies subscription requests until the connection closes.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err != nil {
			c.reply(envelope{Type: "error", Error: "malformed message"})
			continue
		}
		c.handleSubscription(context.Background(), sub)
	}
}

// handleSubscription updates the client's auctions, acknowledges the change
// and, on subscribe, sends the latest cached snapshot of each auction.
func (c *client) handleSubscription(ctx context.Context, msg subscribeMsg) {
	ids := make([]string, 0, len(msg.Auctions))
	for _, id := range msg.Auctions {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	c.mu.Lock()
	switch msg.Action {
	case "subscribe":
		if len(c.subs)+len(ids) > maxSubscriptions {
			c.mu.Unlock()
			c.reply(envelope{Type: "error", Error: "too many subscriptions"})
			return
		}
		for _, id := range ids {
			c.subs[id] = true
		}
	case "unsubscribe":
		for _, id := range ids {
			delete(c.subs, id)
		}
	default:
		c.mu.Unlock()
		c.reply(envelope{Type: "error", Error: "unknown action"})
		return
	}
	c.mu.Unlock()

	c.reply(envelope{Type: msg.Action + "d", Auctions: ids})
	if msg.Action != "subscribe" || c.hub.snapshots == nil {
		return
	}
	for _, id := range ids {
		if id == allAuctions {
			continue
		}
		snap, err := c.hub.snapshots.Get(ctx, id)
		if err != nil {
			continue
		}
		c.reply(envelope{Type: "snapshot", Snapshot: &snap})
	}
}

// replay sends followed events recorded after since, oldest first.
func (c *client) replay(ctx context.Context, since string) {
	msgs, err := c.hub.bus.StreamRead(ctx, c.hub.stream, since, replayLimit)
	if err != nil {
		c.hub.logger.Warn("ws: replay failed", slog.String("since", since), slog.String("error", err.Error()))
		c.reply(envelope{Type: "error", Error: "replay unavailable"})
		return
	}
	for _, m := range msgs {
		if id, ok := auctionOf(m.Payload); ok && c.follows(id) {
			c.reply(envelope{Type: "event", StreamID: m.ID, Event: m.Payload})
		}
	}
}

func (c *client) reply(env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	defer func() {
		// The hub may have closed send during shutdown.
		_ = recover()
	}()
	select {
	case c.send <- data:
	default:
	}
}

func (c *client) follows(auctionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[allAuctions] || c.subs[auctionID]
}

// writePump writes queued frames as text messages and pings periodically.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
