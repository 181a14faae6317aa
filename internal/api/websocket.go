package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"carnival/internal/game"
	"carnival/internal/identity"
	"carnival/internal/lobby"

	"github.com/gorilla/websocket"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the default per-IP connection cap
	MaxWSConnectionsPerIP = 5

	wsSendBuffer = 64
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsMaxMessage = 4096
)

// wsClient is one connection. Only writePump writes to conn.
type wsClient struct {
	hub    *WebSocketHub
	conn   *websocket.Conn
	ip     string
	userID string
	send   chan []byte
}

// wsMessage is the envelope for both directions.
type wsMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// wsInput is the client's match input.
type wsInput struct {
	MatchID string      `json:"matchId"`
	Action  game.Action `json:"action"`
}

// WebSocketHub routes events to the connections of the user they belong to.
type WebSocketHub struct {
	mu      sync.RWMutex
	clients map[string]map[*wsClient]struct{} // by user ID
	total   int

	wsLimiter *WebSocketRateLimiter
	origins   *OriginChecker
	upgrader  websocket.Upgrader
}

// NewWebSocketHub creates a hub with per-IP connection limiting.
func NewWebSocketHub(maxPerIP int, origins *OriginChecker) *WebSocketHub {
	if maxPerIP <= 0 {
		maxPerIP = MaxWSConnectionsPerIP
	}
	if origins == nil {
		origins = NewOriginChecker(nil)
	}
	h := &WebSocketHub{
		clients:   make(map[string]map[*wsClient]struct{}),
		wsLimiter: NewWebSocketRateLimiter(maxPerIP),
		origins:   origins,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if h.origins.Allowed(origin) {
				return true
			}
			log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// Publish implements lobby.Publisher. Slow clients drop messages rather
// than stall the match driver.
func (h *WebSocketHub) Publish(userID, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("⚠️ WebSocket event %s not encodable: %v", event, err)
		return
	}
	msg, err := json.Marshal(wsMessage{Event: event, Data: payload})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		select {
		case c.send <- msg:
			IncrementWSMessages()
		default:
			RecordWSDropped()
		}
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

func (h *WebSocketHub) register(c *wsClient) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*wsClient]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.total++
	count := h.total
	h.mu.Unlock()

	log.Printf("📱 Client connected from %s (%d total)", c.ip, count)
	UpdateWSConnections(count)
}

func (h *WebSocketHub) unregister(c *wsClient) {
	h.mu.Lock()
	set := h.clients[c.userID]
	if _, ok := set[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	h.total--
	count := h.total
	close(c.send)
	h.mu.Unlock()

	h.wsLimiter.Release(c.ip)
	log.Printf("📱 Client disconnected (%d remaining)", count)
	UpdateWSConnections(count)
}

// Close disconnects every client.
func (h *WebSocketHub) Close() {
	h.mu.RLock()
	var all []*wsClient
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		c.conn.Close()
	}
}

// HandleWebSocket upgrades an authenticated request. The caller's session
// handles match inputs sent over the socket.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request, sessions Lobby) {
	u, ok := identity.CurrentUser(r.Context())
	if !ok {
		writeError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	ip := GetClientIP(r)

	if h.ClientCount() >= MaxWSConnectionsTotal {
		log.Printf("⚠️ WebSocket connection rejected: total limit reached")
		RecordConnectionRejected("ws_total_limit")
		writeError(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	if !h.wsLimiter.Allow(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		writeError(w, "too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	session, err := sessions.Session(r.Context(), u)
	if err != nil {
		h.wsLimiter.Release(ip)
		writeError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.wsLimiter.Release(ip)
		return
	}

	c := &wsClient{hub: h, conn: conn, ip: ip, userID: u.ID, send: make(chan []byte, wsSendBuffer)}
	h.register(c)
	go c.writePump()
	go c.readPump(session)

	// Greet with the current state so a reconnecting client can resume.
	if p, err := session.Profile(context.WithoutCancel(r.Context())); err == nil {
		h.Publish(u.ID, "profile", p)
	}
}

func (c *wsClient) readPump(session *lobby.Session) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessage)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Event != "input" {
			continue
		}
		var in wsInput
		if err := json.Unmarshal(msg.Data, &in); err != nil {
			continue
		}
		accepted, err := session.Input(in.MatchID, in.Action)
		RecordInput(accepted, err)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
