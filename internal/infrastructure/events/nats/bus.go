package nats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/config"
	domainevents "github.com/momentapp/notifier/internal/domain/events"
	"github.com/momentapp/notifier/internal/events"
	"github.com/momentapp/notifier/internal/metrics"
	apperrors "github.com/momentapp/notifier/pkg/errors"
)

const publishTimeout = 5 * time.Second

// Bus is the JetStream backed event bus. Subjects follow the broker topic
// naming and the event id doubles as the JetStream dedupe id.
type Bus struct {
	cfg       config.NATSConfig
	namespace string
	registry  *events.Registry
	logger    *zap.Logger

	mu       sync.RWMutex
	client   *Client
	consumer jetstream.ConsumeContext
}

var _ events.Bus = (*Bus)(nil)

// NewBus creates a JetStream event bus. Nothing is dialed until Connect.
func NewBus(cfg config.NATSConfig, namespace string, logger *zap.Logger) *Bus {
	return &Bus{
		cfg:       cfg,
		namespace: namespace,
		registry:  events.NewRegistry(logger),
		logger:    logger.Named("nats-bus"),
	}
}

// Connect dials NATS, ensures the stream and starts the durable consumer.
func (b *Bus) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil {
		return nil
	}

	client, err := NewClient(ctx, b.cfg, b.namespace, b.logger)
	if err != nil {
		return apperrors.TransientDelivery("connecting to NATS", err)
	}

	consumer, err := startConsumer(ctx, client, b.cfg.Durable, b.registry, b.logger)
	if err != nil {
		client.Close()
		return apperrors.TransientDelivery("starting NATS consumer", err)
	}

	b.client = client
	b.consumer = consumer
	return nil
}

// Publish writes event to its subject and waits for the stream ack.
func (b *Bus) Publish(ctx context.Context, event *domainevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()
	if client == nil {
		metrics.RecordPublish(string(event.Type), events.ErrNotConnected)
		return events.ErrNotConnected
	}

	data, err := event.Marshal()
	if err != nil {
		return err
	}

	msg := nats.NewMsg(event.Topic(b.namespace))
	msg.Data = data
	msg.Header.Set("eventType", string(event.Type))
	msg.Header.Set("eventId", event.ID)
	msg.Header.Set("aggregateType", string(event.AggregateType))
	msg.Header.Set("aggregateId", event.AggregateID)
	msg.Header.Set("timestamp", event.Timestamp.UTC().Format(time.RFC3339Nano))

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	ack, err := client.JetStream().PublishMsg(pubCtx, msg, jetstream.WithMsgID(event.ID))
	metrics.RecordPublish(string(event.Type), err)
	if err != nil {
		b.logger.Error("failed to publish event",
			zap.Error(err),
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("subject", msg.Subject),
		)
		return apperrors.TransientDelivery("publishing to JetStream", err)
	}

	b.logger.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("subject", msg.Subject),
		zap.Uint64("sequence", ack.Sequence),
		zap.String("stream", ack.Stream),
	)
	return nil
}

// PublishBatch publishes events in order and stops at the first failure.
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

// Disconnect stops the consumer, waits for handlers and drains the connection.
func (b *Bus) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client == nil {
		return nil
	}
	if b.consumer != nil {
		b.consumer.Stop()
		b.consumer = nil
	}
	b.registry.Wait()
	b.client.Close()
	b.client = nil

	b.logger.Info("NATS event bus disconnected")
	return nil
}

// IsHealthy reports whether JetStream answers.
func (b *Bus) IsHealthy(ctx context.Context) bool {
	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()
	return client != nil && client.Health(ctx) == nil
}
