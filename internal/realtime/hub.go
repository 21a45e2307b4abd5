// Package realtime pushes ride events to connected websocket clients. Events
// are published on a Redis channel so every replica delivers to its own
// sockets.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"syncway/internal/config"
	"syncway/internal/domain"
)

// DefaultChannel is the Redis pub/sub channel shared by all replicas.
const DefaultChannel = "realtime:events"

const (
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
	presenceWait   = 5 * time.Second
)

// Presence is the part of the presence store the hub keeps up to date. Every
// socket is registered separately so a user connected to several replicas
// stays online until the last socket closes.
type Presence interface {
	Connect(ctx context.Context, userID, connID string) error
	Heartbeat(ctx context.Context, userID, connID string) error
	Disconnect(ctx context.Context, userID, connID string) error
	Count(ctx context.Context) (int64, error)
}

// envelope travels over Redis. Target is empty for broadcasts.
type envelope struct {
	Event  string          `json:"event"`
	Target string          `json:"target,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// Message is what a client receives.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type client struct {
	userID string
	connID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub tracks local websocket connections and relays published events to them.
type Hub struct {
	rdb      *redis.Client
	channel  string
	presence Presence
	logger   logrus.FieldLogger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}

	ready     chan struct{}
	readyOnce sync.Once
}

// NewHub creates a new Hub. Browser sockets are accepted from the request's
// own origin and from allowedOrigins. Call Run to start delivering events.
func NewHub(rdb *redis.Client, presence Presence, logger logrus.FieldLogger, allowedOrigins []string) *Hub {
	return &Hub{
		rdb:      rdb,
		channel:  DefaultChannel,
		presence: presence,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return config.OriginAllowed(allowedOrigins, r.Header.Get("Origin"), r.Host)
			},
		},
		clients: make(map[*client]struct{}),
		ready:   make(chan struct{}),
	}
}

// Broadcast publishes an event for every connected client.
func (h *Hub) Broadcast(ctx context.Context, event string, payload any) error {
	return h.publish(ctx, event, "", payload)
}

// Notify publishes an event for the connections of one user.
func (h *Hub) Notify(ctx context.Context, userID, event string, payload any) error {
	if userID == "" {
		return fmt.Errorf("notify %s: empty user id", event)
	}
	return h.publish(ctx, event, userID, payload)
}

func (h *Hub) publish(ctx context.Context, event, target string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	body, err := json.Marshal(envelope{Event: event, Target: target, Data: data})
	if err != nil {
		return err
	}
	if err := h.rdb.Publish(ctx, h.channel, body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

// Ready is closed once Run has subscribed.
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

// Run subscribes to the event channel and delivers messages until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	sub := h.rdb.Subscribe(ctx, h.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", h.channel, err)
	}
	h.readyOnce.Do(func() { close(h.ready) })
	h.logger.WithField("channel", h.channel).Info("realtime hub subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				h.logger.WithError(err).Warn("discarding malformed realtime event")
				continue
			}
			h.deliver(env)
		}
	}
}

func (h *Hub) deliver(env envelope) {
	out, err := json.Marshal(Message{Event: env.Event, Data: env.Data})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if env.Target != "" && c.userID != env.Target {
			continue
		}
		select {
		case c.send <- out:
		default:
			h.logger.WithFields(logrus.Fields{"user_id": c.userID, "event": env.Event}).Warn("client send buffer full, dropping event")
		}
	}
}

// LocalConnections returns the number of sockets held by this replica.
func (h *Hub) LocalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades a request carrying ?user_id= to a websocket.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{userID: userID, connID: uuid.New().String(), conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), presenceWait)
	defer cancel()
	if err := h.presence.Connect(ctx, c.userID, c.connID); err != nil {
		h.logger.WithError(err).WithField("user_id", c.userID).Warn("mark online failed")
	}
	h.publishOnlineCount(ctx)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), presenceWait)
	defer cancel()
	if err := h.presence.Disconnect(ctx, c.userID, c.connID); err != nil {
		h.logger.WithError(err).WithField("user_id", c.userID).Warn("remove connection from presence failed")
	}
	h.publishOnlineCount(ctx)
}

func (h *Hub) publishOnlineCount(ctx context.Context) {
	count, err := h.presence.Count(ctx)
	if err != nil {
		h.logger.WithError(err).Warn("count online users failed")
		return
	}
	if err := h.Broadcast(ctx, domain.EventOnlineUsersUpdate, domain.OnlineUsers{OnlineCount: count}); err != nil {
		h.logger.WithError(err).Warn("broadcast online count failed")
	}
}

func (h *Hub) heartbeat(c *client) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceWait)
	defer cancel()
	if err := h.presence.Heartbeat(ctx, c.userID, c.connID); err != nil {
		h.logger.WithError(err).WithField("user_id", c.userID).Warn("presence heartbeat failed")
	}
}

// closeAll drops every local socket and its presence entry. Entries the
// store misses here still expire after the presence TTL.
func (h *Hub) closeAll() {
	h.mu.Lock()
	closed := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		closed = append(closed, c)
	}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), presenceWait)
	defer cancel()
	for _, c := range closed {
		if err := h.presence.Disconnect(ctx, c.userID, c.connID); err != nil {
			h.logger.WithError(err).WithField("user_id", c.userID).Warn("remove connection from presence failed")
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		h.heartbeat(c)
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).WithField("user_id", c.userID).Debug("websocket read error")
			}
			return
		}

		// {"type":"heartbeat"} refreshes presence for clients that cannot answer pings.
		var msg struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(raw, &msg) == nil && msg.Type == "heartbeat" {
			h.heartbeat(c)
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
