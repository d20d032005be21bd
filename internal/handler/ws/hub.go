// Package ws implements the signaling WebSocket endpoint: one
// connection per user, authenticated in-band by the first frame.
package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"peerpractice-backend/internal/service/signaling"
	"peerpractice-backend/pkg/constants"
	"peerpractice-backend/pkg/env"
	"peerpractice-backend/pkg/logger"
	"peerpractice-backend/pkg/metrics"
)

// Hub tracks the authoritative connection per user and routes server
// pushes to them. It implements signaling.Pusher.
type Hub struct {
	service *signaling.Service
	metrics *metrics.Metrics

	mu      sync.RWMutex
	clients map[uuid.UUID]*Client

	// Concurrency limit for accepted connections
	maxConnections int
	semaphore      chan struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Reject empty origins - require explicit origin for security
			return false
		}

		for _, allowed := range allowedOrigins() {
			if origin == allowed {
				return true
			}
		}
		return false
	},
}

// allowedOrigins returns the origins permitted to open signaling
// connections, from the comma-separated WS_ALLOWED_ORIGINS variable
func allowedOrigins() []string {
	raw := env.GetString("WS_ALLOWED_ORIGINS", "http://localhost:3000")

	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// NewHub creates a new connection hub
func NewHub(service *signaling.Service, m *metrics.Metrics) *Hub {
	maxConns := env.GetInt("WS_MAX_SIGNALING_CONNECTIONS", constants.MaxSignalingConnections)

	return &Hub{
		service:        service,
		metrics:        m,
		clients:        make(map[uuid.UUID]*Client),
		maxConnections: maxConns,
		semaphore:      make(chan struct{}, maxConns),
	}
}

// register makes the client the authoritative connection for its user.
// An existing connection for the same user is superseded and closed;
// the map entry is replaced before the old client unwinds, so its
// cleanup sees it is no longer authoritative and leaves presence alone.
func (h *Hub) register(client *Client) {
	h.mu.Lock()
	old := h.clients[client.userID]
	h.clients[client.userID] = client
	count := len(h.clients)
	h.mu.Unlock()

	if old != nil {
		logger.Info("Superseding existing signaling connection",
			zap.String("user_id", client.userID.String()),
			zap.String("old_connection_id", old.connectionID),
			zap.String("new_connection_id", client.connectionID))
		old.close()
	}

	h.metrics.SetWebSocketConnections(count)
}

// unregister drops the client and reports whether it was still the
// authoritative connection for its user. A superseded client returns
// false so its cleanup does not flip a freshly reconnected user offline.
func (h *Hub) unregister(client *Client) bool {
	h.mu.Lock()
	authoritative := h.clients[client.userID] == client
	if authoritative {
		delete(h.clients, client.userID)
	}
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetWebSocketConnections(count)
	return authoritative
}

// PushToUser delivers a message to the user's live connection, if any.
// A full send buffer counts as undelivered rather than blocking the
// caller.
func (h *Hub) PushToUser(userID uuid.UUID, message any) bool {
	h.mu.RLock()
	client := h.clients[userID]
	h.mu.RUnlock()

	if client == nil {
		return false
	}

	data, err := json.Marshal(message)
	if err != nil {
		logger.Error("Failed to marshal push message", zap.Error(err))
		h.metrics.RecordWebSocketError("marshal")
		return false
	}

	select {
	case client.send <- data:
		return true
	default:
		logger.Warn("Dropping push for slow signaling client",
			zap.String("user_id", userID.String()))
		h.metrics.RecordWebSocketError("slow_client")
		return false
	}
}

// Broadcast delivers a message to every authenticated connection
func (h *Hub) Broadcast(message any) {
	data, err := json.Marshal(message)
	if err != nil {
		logger.Error("Failed to marshal broadcast message", zap.Error(err))
		h.metrics.RecordWebSocketError("marshal")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for userID, client := range h.clients {
		select {
		case client.send <- data:
		default:
			logger.Warn("Dropping broadcast for slow signaling client",
				zap.String("user_id", userID.String()))
			h.metrics.RecordWebSocketError("slow_client")
		}
	}
}

// ConnectionCount returns the number of authenticated connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a signaling WebSocket connection.
// Authentication happens in-band: the first frame must be an
// authenticate message.
func (h *Hub) ServeWS(c *gin.Context) {
	select {
	case h.semaphore <- struct{}{}:
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server at capacity, please try again later"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		<-h.semaphore
		logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(h, conn)

	go client.writePump()
	go client.readPump()
}
