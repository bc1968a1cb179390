package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/config"
	domainevents "github.com/momentapp/notifier/internal/domain/events"
	"github.com/momentapp/notifier/internal/events"
	"github.com/momentapp/notifier/internal/metrics"
	apperrors "github.com/momentapp/notifier/pkg/errors"
)

const maxBackoff = 30 * time.Second

// ProducerFactory creates the sync producer used for publishing.
type ProducerFactory func(brokers []string, cfg *sarama.Config) (sarama.SyncProducer, error)

// ConsumerGroupFactory creates the consumer group that feeds subscribers.
type ConsumerGroupFactory func(brokers []string, groupID string, cfg *sarama.Config) (sarama.ConsumerGroup, error)

// Option configures a Bus.
type Option func(*Bus)

// WithProducerFactory replaces sarama.NewSyncProducer.
func WithProducerFactory(f ProducerFactory) Option {
	return func(b *Bus) { b.newProducer = f }
}

// WithConsumerGroupFactory replaces sarama.NewConsumerGroup. A nil factory
// runs the bus as a publisher only.
func WithConsumerGroupFactory(f ConsumerGroupFactory) Option {
	return func(b *Bus) { b.newGroup = f }
}

// Bus is the Kafka backed event bus. Publish writes to the broker and
// returns; handlers run when the consumer group receives the message.
type Bus struct {
	cfg       config.KafkaConfig
	namespace string
	saramaCfg *sarama.Config
	registry  *events.Registry
	logger    *zap.Logger

	newProducer ProducerFactory
	newGroup    ConsumerGroupFactory

	mu        sync.RWMutex
	producer  sarama.SyncProducer
	group     sarama.ConsumerGroup
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

var _ events.Bus = (*Bus)(nil)

// NewBus creates a Kafka event bus. Nothing is dialed until Connect.
func NewBus(cfg config.KafkaConfig, namespace string, logger *zap.Logger, opts ...Option) *Bus {
	b := &Bus{
		cfg:         cfg,
		namespace:   namespace,
		saramaCfg:   NewSaramaConfig(cfg),
		registry:    events.NewRegistry(logger),
		logger:      logger.Named("kafka-bus"),
		newProducer: sarama.NewSyncProducer,
		newGroup:    sarama.NewConsumerGroup,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connect creates the producer and, when enabled, starts the consumer group.
// Both steps retry with exponential backoff.
func (b *Bus) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connected {
		return nil
	}

	var producer sarama.SyncProducer
	err := b.retry(ctx, "producer", func() error {
		p, err := b.newProducer(b.cfg.Brokers, b.saramaCfg)
		if err != nil {
			return err
		}
		producer = p
		return nil
	})
	if err != nil {
		return apperrors.TransientDelivery("creating kafka producer", err)
	}
	b.producer = producer

	if b.newGroup != nil {
		var group sarama.ConsumerGroup
		err := b.retry(ctx, "consumer group", func() error {
			g, err := b.newGroup(b.cfg.Brokers, b.cfg.GroupID, b.saramaCfg)
			if err != nil {
				return err
			}
			group = g
			return nil
		})
		if err != nil {
			_ = producer.Close()
			b.producer = nil
			return apperrors.TransientDelivery("creating kafka consumer group", err)
		}
		b.group = group
		b.startConsuming()
	}

	b.connected = true
	b.logger.Info("kafka event bus connected",
		zap.Strings("brokers", b.cfg.Brokers),
		zap.String("client_id", b.cfg.ClientID),
		zap.String("group_id", b.cfg.GroupID),
	)
	return nil
}

// retry runs fn with exponential backoff from RetryInitial, RetryMax times.
func (b *Bus) retry(ctx context.Context, what string, fn func() error) error {
	return events.Retry(ctx, events.Backoff{
		Attempts: b.cfg.RetryMax,
		Initial:  b.cfg.RetryInitial,
		Max:      maxBackoff,
	}, b.logger, what, fn)
}

func (b *Bus) topics() []string {
	if len(b.cfg.Topics) > 0 {
		return b.cfg.Topics
	}
	return domainevents.Topics(b.namespace)
}

func (b *Bus) startConsuming() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	handler := newConsumerHandler(b.registry, b.logger)
	topics := b.topics()
	group := b.group

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		for {
			if err := group.Consume(ctx, topics, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				b.logger.Error("kafka consume failed", zap.Error(err))
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	go func() {
		defer b.wg.Done()
		for {
			select {
			case err, ok := <-group.Errors():
				if !ok {
					return
				}
				b.logger.Error("kafka consumer error", zap.Error(err))
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Publish sends event to its topic.
func (b *Bus) Publish(ctx context.Context, event *domainevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	producer, err := b.activeProducer()
	if err != nil {
		metrics.RecordPublish(string(event.Type), err)
		return err
	}

	msg, err := newProducerMessage(b.namespace, event)
	if err != nil {
		return err
	}

	partition, offset, err := producer.SendMessage(msg)
	metrics.RecordPublish(string(event.Type), err)
	if err != nil {
		b.logger.Error("failed to publish event",
			zap.Error(err),
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("topic", msg.Topic),
		)
		return apperrors.TransientDelivery("sending kafka message", err)
	}

	b.logger.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("topic", msg.Topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// PublishBatch sends all events in a single producer call.
func (b *Bus) PublishBatch(ctx context.Context, batch []*domainevents.Event) error {
	if len(batch) == 0 {
		return nil
	}

	producer, err := b.activeProducer()
	if err != nil {
		return err
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(batch))
	for _, event := range batch {
		if err := event.Validate(); err != nil {
			return fmt.Errorf("invalid event: %w", err)
		}
		msg, err := newProducerMessage(b.namespace, event)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	err = producer.SendMessages(msgs)
	for _, event := range batch {
		metrics.RecordPublish(string(event.Type), err)
	}
	if err != nil {
		return apperrors.TransientDelivery("sending kafka batch", err)
	}

	b.logger.Debug("event batch published", zap.Int("count", len(batch)))
	return nil
}

func (b *Bus) activeProducer() (sarama.SyncProducer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.connected || b.producer == nil {
		return nil, events.ErrNotConnected
	}
	return b.producer, nil
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType domainevents.EventType, handler domainevents.Handler, opts ...events.SubscribeOption) {
	b.registry.Add(eventType, handler, opts...)
}

// SubscribeToPattern registers a handler for every matching event type
func (b *Bus) SubscribeToPattern(pattern string, handler domainevents.Handler, opts ...events.SubscribeOption) {
	b.registry.AddPattern(pattern, handler, opts...)
}

// Disconnect stops consuming, waits for in-flight handlers and closes the
// producer, which flushes buffered messages.
func (b *Bus) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return nil
	}
	b.connected = false

	if b.cancel != nil {
		b.cancel()
	}

	var errs []error
	if b.group != nil {
		if err := b.group.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing consumer group: %w", err))
		}
	}
	b.wg.Wait()
	b.registry.Wait()

	if b.producer != nil {
		if err := b.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing producer: %w", err))
		}
	}

	b.logger.Info("kafka event bus disconnected")
	return errors.Join(errs...)
}

// IsHealthy reports whether the producer is available.
func (b *Bus) IsHealthy(ctx context.Context) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected && b.producer != nil
}
