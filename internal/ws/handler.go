package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/momentapp/notifier/pkg/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Handler upgrades authenticated HTTP requests to sockets and registers them
// with the hub.
type Handler struct {
	hub      *Hub
	authn    auth.Authenticator
	upgrader websocket.Upgrader
	now      func() time.Time
	logger   *zap.Logger
}

// NewHandler creates a socket handler.
func NewHandler(hub *Hub, authn auth.Authenticator, logger *zap.Logger) *Handler {
	return &Handler{
		hub:   hub,
		authn: authn,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		now:    time.Now,
		logger: logger.Named("ws"),
	}
}

// ServeHTTP authenticates the request, upgrades it and serves the socket
// until the client goes away. Requests without a valid credential are
// rejected before the upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.AuthenticateRequest(h.authn, r)
	if err != nil {
		h.logger.Debug("rejecting socket handshake", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication failed"})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("socket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	c := &client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan Frame, sendBuffer),
	}
	h.hub.Register(userID, c)
	h.logger.Info("socket connected", zap.String("user_id", userID), zap.String("connection_id", c.id))

	go h.writePump(c)
	h.readPump(c)

	h.hub.Unregister(c.id)
	c.close()
	h.logger.Info("socket disconnected", zap.String("user_id", userID), zap.String("connection_id", c.id))
}

// inbound is a client message. Plain text "ping" is accepted as well.
type inbound struct {
	Event string `json:"event"`
}

func (h *Handler) readPump(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("socket read error", zap.String("connection_id", c.id), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			msg.Event = strings.TrimSpace(string(data))
		}
		if msg.Event == "ping" {
			c.Enqueue(Frame{Event: EventPong, Data: map[string]interface{}{
				"status":    "pong",
				"timestamp": h.now().UTC().Format(time.RFC3339Nano),
			}})
		}
	}
}

func (h *Handler) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				h.logger.Debug("socket write failed", zap.String("connection_id", c.id), zap.Error(err))
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

// client is a gorilla backed Connection.
type client struct {
	id     string
	userID string
	conn   *websocket.Conn

	mu     sync.Mutex
	closed bool
	send   chan Frame
}

func (c *client) ID() string {
	return c.id
}

func (c *client) Enqueue(frame Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
