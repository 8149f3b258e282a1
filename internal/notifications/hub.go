package notifications

import (
	"context"
	"errors"
	"sync"

	"restjam/internal/middleware"
	"restjam/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	maxConnsPerViewer = 12
	maxTotalConns     = 10000
)

var (
	ErrServerFull = errors.New("server connection limit reached")
	ErrViewerFull = errors.New("viewer connection limit reached")
)

// Hub tracks feed connections grouped by viewer key.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]map[*Client]struct{}
	totalConns int
	closed     bool
}

// NewHub creates an empty feed hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[*Client]struct{})}
}

// Register adds a connection for key. Returns an error if limits are exceeded.
func (h *Hub) Register(key string, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.totalConns >= maxTotalConns {
		return nil, ErrServerFull
	}

	m, ok := h.conns[key]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[key] = m
	}
	// Anonymous readers share one bucket, so only named viewers are capped.
	if key != "" && len(m) >= maxConnsPerViewer {
		return nil, ErrViewerFull
	}

	client := newClient(h, conn, key)
	m[client] = struct{}{}
	h.totalConns++
	observability.WebSocketConnectionsTotal.Inc()
	return client, nil
}

// UnregisterClient removes client; calling it twice is harmless.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[client.Key]
	if !ok {
		return
	}
	if _, exists := m[client]; exists {
		delete(m, client)
		h.totalConns--
		observability.WebSocketConnectionsTotal.Dec()
		close(client.Send)
	}
	if len(m) == 0 {
		delete(h.conns, client.Key)
	}
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConns
}

// BroadcastAll sends message to every connected client.
func (h *Hub) BroadcastAll(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for _, clients := range h.conns {
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// PublishBroadcast delivers payload to this instance only. It lets the hub
// stand in for the Redis notifier when Redis is unavailable.
func (h *Hub) PublishBroadcast(_ context.Context, payload string) error {
	h.BroadcastAll(payload)
	return nil
}

// StartWiring forwards feed events received through Redis to local clients.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartSubscriber(ctx, h.BroadcastAll)
}

// Shutdown closes every connection with a going-away frame.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	for key, clients := range h.conns {
		for client := range clients {
			close(client.Send)
			observability.WebSocketConnectionsTotal.Dec()
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				middleware.Logger.Warn("failed to write close message", "viewer", key, "error", err)
			}
			if err := client.Conn.Close(); err != nil {
				middleware.Logger.Warn("failed to close websocket", "viewer", key, "error", err)
			}
		}
	}
	h.conns = make(map[string]map[*Client]struct{})
	h.totalConns = 0
	return nil
}
