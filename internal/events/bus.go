package events

import (
	"context"

	domainevents "github.com/momentapp/notifier/internal/domain/events"
	apperrors "github.com/momentapp/notifier/pkg/errors"
)

// ErrNotConnected is returned when a bus is used before Connect.
var ErrNotConnected = apperrors.NotConnected("event bus is not connected")

// Bus is the publish/subscribe contract every adapter implements. Publisher,
// sweeper and subscribers depend only on this interface.
type Bus interface {
	// Publish hands one event to the transport.
	Publish(ctx context.Context, event *domainevents.Event) error

	// PublishBatch hands several events to the transport in order.
	PublishBatch(ctx context.Context, events []*domainevents.Event) error

	// Subscribe registers handler for an exact event type.
	Subscribe(eventType domainevents.EventType, handler domainevents.Handler, opts ...SubscribeOption)

	// SubscribeToPattern registers handler for every type matching pattern.
	SubscribeToPattern(pattern string, handler domainevents.Handler, opts ...SubscribeOption)

	// Connect opens the transport.
	Connect(ctx context.Context) error

	// Disconnect flushes in-flight sends where supported and closes the transport.
	Disconnect(ctx context.Context) error

	// IsHealthy reports whether the transport is usable.
	IsHealthy(ctx context.Context) bool
}

// SubscribeOption customizes a subscription.
type SubscribeOption func(*subscription)

// WithName labels a subscription in logs and metrics.
func WithName(name string) SubscribeOption {
	return func(s *subscription) {
		s.name = name
	}
}
