package memory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	domainevents "github.com/momentapp/notifier/internal/domain/events"
	"github.com/momentapp/notifier/internal/events"
	"github.com/momentapp/notifier/internal/metrics"
)

// Bus is the single process event bus. Publish invokes every matching
// handler and returns once all of them have settled. Published events are
// kept so tests can inspect them.
type Bus struct {
	registry  *events.Registry
	logger    *zap.Logger
	mu        sync.RWMutex
	drained   *sync.Cond
	connected bool
	inflight  int
	published []*domainevents.Event
}

var _ events.Bus = (*Bus)(nil)

// NewBus creates a new in-memory event bus
func NewBus(logger *zap.Logger) *Bus {
	b := &Bus{
		registry: events.NewRegistry(logger),
		logger:   logger.Named("memory-bus"),
	}
	b.drained = sync.NewCond(&b.mu)
	return b
}

// Publish records the event and dispatches it to all subscribers.
func (b *Bus) Publish(ctx context.Context, event *domainevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		metrics.RecordPublish(string(event.Type), events.ErrNotConnected)
		return events.ErrNotConnected
	}
	b.published = append(b.published, event)
	b.inflight++
	b.mu.Unlock()

	b.registry.Dispatch(ctx, event)

	b.mu.Lock()
	b.inflight--
	if b.inflight == 0 {
		b.drained.Broadcast()
	}
	b.mu.Unlock()
	metrics.RecordPublish(string(event.Type), nil)

	b.logger.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
	)
	return nil
}

// PublishBatch publishes events one after another and stops at the first failure.
func (b *Bus) PublishBatch(ctx context.Context, batch []*domainevents.Event) error {
	for _, event := range batch {
		if err := b.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType domainevents.EventType, handler domainevents.Handler, opts ...events.SubscribeOption) {
	b.registry.Add(eventType, handler, opts...)
}

// SubscribeToPattern registers a handler for every matching event type
func (b *Bus) SubscribeToPattern(pattern string, handler domainevents.Handler, opts ...events.SubscribeOption) {
	b.registry.AddPattern(pattern, handler, opts...)
}

// Connect marks the bus usable.
func (b *Bus) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	b.logger.Info("event bus connected")
	return nil
}

// Disconnect marks the bus unusable, then waits for publishes already past
// the connected check and their handlers.
func (b *Bus) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	b.connected = false
	for b.inflight > 0 {
		b.drained.Wait()
	}
	b.mu.Unlock()

	b.registry.Wait()
	b.logger.Info("event bus disconnected")
	return nil
}

// IsHealthy reports whether the bus is connected.
func (b *Bus) IsHealthy(ctx context.Context) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// PublishedEvents returns a copy of every event published so far.
func (b *Bus) PublishedEvents() []*domainevents.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*domainevents.Event, len(b.published))
	copy(out, b.published)
	return out
}

// EventsByType returns the published events of one type.
func (b *Bus) EventsByType(eventType domainevents.EventType) []*domainevents.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*domainevents.Event
	for _, e := range b.published {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// ClearEvents forgets recorded events.
func (b *Bus) ClearEvents() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = nil
}
