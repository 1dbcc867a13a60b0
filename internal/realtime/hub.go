package realtime

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/runmate/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10

	defaultBufferSize = 64
)

// Message is the JSON frame delivered to subscribers.
type Message struct {
	Stream string         `json:"stream"`
	Event  string         `json:"event"`
	Data   any            `json:"data,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

type controlMessage struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

// subscriber is either a websocket connection or an in-process listener.
type subscriber interface {
	owner() string
	deliver(Message) bool
	shutdown()
}

// Hub fans messages out to the subscribers of a stream, keyed by user.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]map[string]map[subscriber]struct{}
	upgrader      websocket.Upgrader
	log           *zap.Logger
}

// NewHub constructs a realtime hub.
func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[string]map[string]map[subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		log: logger.WithModule("realtime"),
	}
}

// Serve upgrades the request to a WebSocket and subscribes it to streams.
// A nil allowed set permits every stream.
func (h *Hub) Serve(userID string, streams []string, allowed map[string]struct{}, w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	conn := &connection{
		hub:     h,
		socket:  socket,
		userID:  userID,
		send:    make(chan Message, defaultBufferSize),
		allowed: allowed,
		streams: make(map[string]struct{}),
	}
	h.subscribe(conn, streams)

	go conn.writeLoop()
	conn.readLoop()
}

// Listen registers an in-process subscriber for one user on a stream. The
// returned cancel func unsubscribes and closes the channel. Messages that
// arrive while the buffer is full are dropped for this listener only.
func (h *Hub) Listen(stream, userID string) (<-chan Message, func()) {
	l := &listener{
		userID: userID,
		ch:     make(chan Message, defaultBufferSize),
	}

	stream = normalizeStream(stream)
	if stream == "" || userID == "" {
		close(l.ch)
		return l.ch, func() {}
	}

	h.mu.Lock()
	h.addLocked(stream, l)
	h.mu.Unlock()

	var once sync.Once
	return l.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			h.removeLocked(stream, l)
			h.mu.Unlock()
			l.shutdown()
		})
	}
}

// Subscribers reports how many subscribers a user has on a stream.
func (h *Hub) Subscribers(stream, userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[normalizeStream(stream)][userID])
}

// BroadcastToUser delivers a message to every subscriber of userID on stream.
func (h *Hub) BroadcastToUser(stream, userID string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" || userID == "" {
		return
	}

	h.mu.RLock()
	targets := make([]subscriber, 0, len(h.subscriptions[stream][userID]))
	for sub := range h.subscriptions[stream][userID] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	message.Stream = stream
	for _, sub := range targets {
		if !sub.deliver(message) {
			h.log.Warn("dropping slow subscriber", zap.String("stream", stream), zap.String("user_id", userID))
		}
	}
}

// BroadcastToUsers delivers a message to each of the supplied users.
func (h *Hub) BroadcastToUsers(stream string, userIDs []string, message Message) {
	for _, userID := range userIDs {
		h.BroadcastToUser(stream, userID, message)
	}
}

func (h *Hub) subscribe(conn *connection, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		if !conn.isAllowed(stream) {
			h.log.Debug("ignoring unauthorized stream", zap.String("stream", stream), zap.String("user_id", conn.userID))
			continue
		}
		if _, exists := conn.streams[stream]; exists {
			continue
		}
		conn.streams[stream] = struct{}{}
		h.addLocked(stream, conn)
	}
}

func (h *Hub) unsubscribe(conn *connection, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		delete(conn.streams, stream)
		h.removeLocked(stream, conn)
	}
}

func (h *Hub) unregister(conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for stream := range conn.streams {
		h.removeLocked(stream, conn)
	}
	conn.streams = map[string]struct{}{}
}

func (h *Hub) addLocked(stream string, sub subscriber) {
	byUser := h.subscriptions[stream]
	if byUser == nil {
		byUser = make(map[string]map[subscriber]struct{})
		h.subscriptions[stream] = byUser
	}
	if byUser[sub.owner()] == nil {
		byUser[sub.owner()] = make(map[subscriber]struct{})
	}
	byUser[sub.owner()][sub] = struct{}{}
}

func (h *Hub) removeLocked(stream string, sub subscriber) {
	byUser, ok := h.subscriptions[stream]
	if !ok {
		return
	}
	subs := byUser[sub.owner()]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(byUser, sub.owner())
	}
	if len(byUser) == 0 {
		delete(h.subscriptions, stream)
	}
}

type listener struct {
	userID string
	mu     sync.Mutex
	ch     chan Message
	closed bool
}

func (l *listener) owner() string { return l.userID }

func (l *listener) deliver(message Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return true
	}
	select {
	case l.ch <- message:
	default:
	}
	return true
}

func (l *listener) shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.ch)
	}
}

type connection struct {
	hub     *Hub
	socket  *websocket.Conn
	userID  string
	streams map[string]struct{}
	allowed map[string]struct{}

	mu     sync.Mutex
	send   chan Message
	closed bool
	once   sync.Once
}

func (c *connection) owner() string { return c.userID }

// deliver queues a frame. A full queue closes the connection; the client
// reconnects and re-lists.
func (c *connection) deliver(message Message) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return true
	}
	select {
	case c.send <- message:
		c.mu.Unlock()
		return true
	default:
		c.mu.Unlock()
		go c.shutdown()
		return false
	}
}

func (c *connection) shutdown() {
	c.once.Do(func() {
		c.hub.unregister(c)
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		_ = c.socket.Close()
	})
}

func (c *connection) readLoop() {
	defer c.shutdown()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("unexpected close", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		if len(payload) == 0 {
			continue
		}

		var ctrl controlMessage
		if err := json.Unmarshal(payload, &ctrl); err != nil {
			c.hub.log.Debug("invalid control payload", zap.String("user_id", c.userID), zap.Error(err))
			continue
		}

		switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
		case "subscribe":
			c.hub.subscribe(c, ctrl.Streams)
		case "unsubscribe":
			c.hub.unsubscribe(c, ctrl.Streams)
		case "ping":
			c.deliver(Message{Event: "pong"})
		default:
			c.hub.log.Debug("unsupported control action", zap.String("action", ctrl.Action), zap.String("user_id", c.userID))
		}
	}
}

func (c *connection) writeLoop() {
	defer c.shutdown()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) isAllowed(stream string) bool {
	if len(c.allowed) == 0 {
		return true
	}
	_, ok := c.allowed[stream]
	return ok
}

// checkOrigin accepts native clients (no Origin), same-host origins and loopback.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originHost := hostWithoutPort(origin)
	return originHost == hostWithoutPort(r.Host) || isLoopback(originHost)
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://")
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}

func uniqueStreams(streams []string) []string {
	seen := make(map[string]struct{}, len(streams))
	var out []string
	for _, stream := range streams {
		stream = normalizeStream(stream)
		if stream == "" {
			continue
		}
		if _, ok := seen[stream]; ok {
			continue
		}
		seen[stream] = struct{}{}
		out = append(out, stream)
	}
	return out
}
