package ws

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/domain/events"
)

// Socket event names.
const (
	EventMomentRequest  = "moment:request"
	EventMomentResponse = "moment:response"
	EventMomentCanceled = "moment:canceled"
	EventPong           = "pong"
)

// Route is the socket emission an event maps to.
type Route struct {
	UserID  string
	Event   string
	Payload map[string]interface{}
}

// RoutedTypes lists the event types the router may forward.
func RoutedTypes() []events.EventType {
	return []events.EventType{
		events.MomentRequestCreated,
		events.MomentRequestApproved,
		events.MomentRequestRejected,
		events.MomentDeleted,
	}
}

// RouteFor maps an event to its socket emission. Only request lifecycle
// events and deletes that came from a cancellation are forwarded.
func RouteFor(e *events.Event) (Route, bool) {
	var userID, name string

	switch e.Type {
	case events.MomentRequestCreated:
		userID, name = e.Payload.String("receiverId"), EventMomentRequest
	case events.MomentRequestApproved, events.MomentRequestRejected:
		userID, name = e.Payload.String("senderId"), EventMomentResponse
	case events.MomentDeleted:
		if !e.Payload.Has("otherUserId") || !e.Payload.Has("momentRequestId") {
			return Route{}, false
		}
		userID, name = e.Payload.String("otherUserId"), EventMomentCanceled
	default:
		return Route{}, false
	}
	if userID == "" {
		return Route{}, false
	}

	payload := make(map[string]interface{}, len(e.Payload)+2)
	payload["eventType"] = string(e.Type)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)

	return Route{UserID: userID, Event: name, Payload: payload}, true
}

// Router is the bus subscriber that fans events out to sockets.
type Router struct {
	hub    *Hub
	logger *zap.Logger
}

// NewRouter creates a router emitting through hub.
func NewRouter(hub *Hub, logger *zap.Logger) *Router {
	return &Router{hub: hub, logger: logger.Named("ws-router")}
}

// Handle emits the socket event for e, if any. Socket delivery is best
// effort so Handle never returns an error.
func (r *Router) Handle(_ context.Context, e *events.Event) error {
	route, ok := RouteFor(e)
	if !ok {
		return nil
	}

	sent := r.hub.BroadcastToUser(route.UserID, route.Event, route.Payload)
	r.logger.Debug("routed event to sockets",
		zap.String("event_id", e.ID),
		zap.String("event_type", string(e.Type)),
		zap.String("user_id", route.UserID),
		zap.String("socket_event", route.Event),
		zap.Int("connections", sent))
	return nil
}
