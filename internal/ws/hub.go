package ws

import (
	"sync"

	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/metrics"
)

// Frame is the envelope written to a socket.
type Frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Connection is one live socket as seen by the hub.
type Connection interface {
	ID() string
	// Enqueue queues frame for writing and reports whether it was accepted.
	Enqueue(frame Frame) bool
}

// Hub maps user ids to their live connections. A user may hold several
// connections at once, one per device or tab.
type Hub struct {
	mu     sync.RWMutex
	users  map[string]map[string]Connection
	owners map[string]string
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		users:  make(map[string]map[string]Connection),
		owners: make(map[string]string),
		logger: logger.Named("ws-hub"),
	}
}

// Register adds conn under userID.
func (h *Hub) Register(userID string, conn Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.users[userID]
	if !ok {
		conns = make(map[string]Connection)
		h.users[userID] = conns
	}
	if _, exists := conns[conn.ID()]; !exists {
		metrics.WSConnections.Inc()
	}
	conns[conn.ID()] = conn
	h.owners[conn.ID()] = userID

	h.logger.Debug("connection registered",
		zap.String("user_id", userID),
		zap.String("connection_id", conn.ID()),
		zap.Int("user_connections", len(conns)))
}

// Unregister removes the connection and prunes the user entry once it has
// no connections left.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID, ok := h.owners[connID]
	if !ok {
		return
	}
	delete(h.owners, connID)
	metrics.WSConnections.Dec()

	conns := h.users[userID]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(h.users, userID)
	}

	h.logger.Debug("connection unregistered",
		zap.String("user_id", userID),
		zap.String("connection_id", connID))
}

// BroadcastToUser sends event to every connection of userID and returns the
// number of connections that accepted it. A user with no connections is a
// silent no-op.
func (h *Hub) BroadcastToUser(userID, event string, data interface{}) int {
	h.mu.RLock()
	conns := make([]Connection, 0, len(h.users[userID]))
	for _, c := range h.users[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	return h.deliver(conns, event, data)
}

func (h *Hub) deliver(conns []Connection, event string, data interface{}) int {
	frame := Frame{Event: event, Data: data}
	sent := 0
	for _, c := range conns {
		if c.Enqueue(frame) {
			sent++
			continue
		}
		h.logger.Warn("dropping frame for slow connection",
			zap.String("connection_id", c.ID()),
			zap.String("event", event))
	}
	if sent > 0 {
		metrics.WSMessages.WithLabelValues(event).Add(float64(sent))
	}
	return sent
}

// ConnectedUserCount returns the number of users with at least one connection.
func (h *Hub) ConnectedUserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.owners)
}

// IsUserConnected reports whether userID has a live connection.
func (h *Hub) IsUserConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}
