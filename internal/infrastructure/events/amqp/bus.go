package amqp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/config"
	domainevents "github.com/momentapp/notifier/internal/domain/events"
	"github.com/momentapp/notifier/internal/events"
	"github.com/momentapp/notifier/internal/metrics"
	apperrors "github.com/momentapp/notifier/pkg/errors"
)

// Bus publishes events to a durable topic exchange. The routing key is the
// broker topic, so a queue bound to "namespace.#" sees every event. A
// connection dropped by the broker is re-established in the background
// until Disconnect.
type Bus struct {
	cfg       config.AMQPConfig
	namespace string
	registry  *events.Registry
	logger    *zap.Logger
	dial      func(url string) (*amqp091.Connection, error)

	mu    sync.RWMutex
	conn  *amqp091.Connection
	pubCh *amqp091.Channel
	subCh *amqp091.Channel
	done  chan struct{}
	stop  chan struct{}
}

// session is one live connection with its channels.
type session struct {
	conn       *amqp091.Connection
	pubCh      *amqp091.Channel
	subCh      *amqp091.Channel
	deliveries <-chan amqp091.Delivery
	closed     chan *amqp091.Error
}

func (s *session) close() {
	_ = s.subCh.Close()
	_ = s.pubCh.Close()
	_ = s.conn.Close()
}

var _ events.Bus = (*Bus)(nil)

// NewBus creates an AMQP event bus. Nothing is dialed until Connect.
func NewBus(cfg config.AMQPConfig, namespace string, logger *zap.Logger) *Bus {
	return &Bus{
		cfg:       cfg,
		namespace: namespace,
		registry:  events.NewRegistry(logger),
		logger:    logger.Named("amqp-bus"),
		dial:      amqp091.Dial,
	}
}

// Connect dials the broker, declares the exchange and queue and starts
// consuming. Dialing retries with exponential backoff.
func (b *Bus) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stop != nil {
		return nil
	}

	sess, err := b.open(ctx)
	if err != nil {
		return err
	}

	b.stop = make(chan struct{})
	b.install(sess)

	b.logger.Info("AMQP event bus connected",
		zap.String("exchange", b.cfg.Exchange),
		zap.String("queue", b.cfg.Queue),
	)
	return nil
}

func (b *Bus) open(ctx context.Context) (*session, error) {
	var sess *session
	err := events.Retry(ctx, events.Backoff{
		Attempts: b.cfg.RetryMax,
		Initial:  b.cfg.RetryInitial,
	}, b.logger, "amqp connection", func() error {
		s, err := b.dialSession()
		if err != nil {
			return err
		}
		sess = s
		return nil
	})
	if err != nil {
		return nil, apperrors.TransientDelivery("connecting to AMQP broker", err)
	}
	return sess, nil
}

func (b *Bus) dialSession() (*session, error) {
	conn, err := b.dial(b.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dialing broker: %w", err)
	}
	closed := conn.NotifyClose(make(chan *amqp091.Error, 1))

	pubCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening publish channel: %w", err)
	}
	if err := declareExchange(pubCh, b.cfg.Exchange); err != nil {
		pubCh.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring exchange: %w", err)
	}

	subCh, err := conn.Channel()
	if err != nil {
		pubCh.Close()
		conn.Close()
		return nil, fmt.Errorf("opening consume channel: %w", err)
	}
	deliveries, err := b.declareQueue(subCh)
	if err != nil {
		subCh.Close()
		pubCh.Close()
		conn.Close()
		return nil, err
	}

	return &session{conn: conn, pubCh: pubCh, subCh: subCh, deliveries: deliveries, closed: closed}, nil
}

// install makes sess the live session. Callers hold b.mu.
func (b *Bus) install(sess *session) {
	b.conn = sess.conn
	b.pubCh = sess.pubCh
	b.subCh = sess.subCh
	b.done = make(chan struct{})

	go b.consume(sess.deliveries, b.done)
	go b.watch(sess, b.stop)
}

// watch reconnects when the broker closes the connection. A close started
// by Disconnect carries no error and ends the watch.
func (b *Bus) watch(sess *session, stop chan struct{}) {
	select {
	case err, ok := <-sess.closed:
		if !ok || err == nil {
			return
		}
		b.logger.Warn("AMQP connection lost, reconnecting", zap.Error(err))
		b.reconnect(stop)
	case <-stop:
	}
}

func (b *Bus) reconnect(stop chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		sess, err := b.open(ctx)
		if err == nil {
			b.mu.Lock()
			if b.stop != stop {
				b.mu.Unlock()
				sess.close()
				return
			}
			b.install(sess)
			b.mu.Unlock()
			b.logger.Info("AMQP event bus reconnected")
			return
		}
		if ctx.Err() != nil {
			return
		}

		b.logger.Error("AMQP reconnect failed", zap.Error(err))
		timer := time.NewTimer(events.DefaultMaxBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func declareExchange(ch *amqp091.Channel, exchange string) error {
	return ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

func (b *Bus) declareQueue(ch *amqp091.Channel) (<-chan amqp091.Delivery, error) {
	q, err := ch.QueueDeclare(
		b.cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, b.namespace+".#", b.cfg.Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	if err := ch.Qos(50, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	return ch.Consume(
		q.Name,
		b.cfg.Queue,
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
}

func (b *Bus) consume(deliveries <-chan amqp091.Delivery, done chan struct{}) {
	defer close(done)
	for msg := range deliveries {
		event, err := decodeDelivery(msg)
		if err != nil {
			b.logger.Error("dropping undecodable message",
				zap.Error(err),
				zap.String("routing_key", msg.RoutingKey),
			)
			if nackErr := msg.Nack(false, false); nackErr != nil {
				b.logger.Warn("failed to nack message", zap.Error(nackErr))
			}
			continue
		}

		b.registry.Dispatch(context.Background(), event)

		if err := msg.Ack(false); err != nil {
			b.logger.Warn("failed to ack message",
				zap.Error(err),
				zap.String("event_id", event.ID),
			)
		}
	}
}

// newPublishing builds the persistent AMQP message for event.
func newPublishing(event *domainevents.Event) (amqp091.Publishing, error) {
	body, err := event.Marshal()
	if err != nil {
		return amqp091.Publishing{}, err
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.Timestamp,
		Type:         string(event.Type),
		Headers: amqp091.Table{
			"eventType":     string(event.Type),
			"eventId":       event.ID,
			"aggregateType": string(event.AggregateType),
			"aggregateId":   event.AggregateID,
			"timestamp":     event.Timestamp.UTC().Format(time.RFC3339Nano),
		},
	}, nil
}

func decodeDelivery(msg amqp091.Delivery) (*domainevents.Event, error) {
	return domainevents.Unmarshal(msg.Body)
}

// Publish sends event to the exchange using its topic as routing key.
func (b *Bus) Publish(ctx context.Context, event *domainevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	b.mu.RLock()
	ch := b.pubCh
	b.mu.RUnlock()
	if ch == nil || ch.IsClosed() {
		metrics.RecordPublish(string(event.Type), events.ErrNotConnected)
		return events.ErrNotConnected
	}

	msg, err := newPublishing(event)
	if err != nil {
		return err
	}

	routingKey := event.Topic(b.namespace)
	err = ch.PublishWithContext(ctx, b.cfg.Exchange, routingKey, false, false, msg)
	metrics.RecordPublish(string(event.Type), err)
	if err != nil {
		b.logger.Error("failed to publish event",
			zap.Error(err),
			zap.String("event_id", event.ID),
			zap.String("routing_key", routingKey),
		)
		return apperrors.TransientDelivery("publishing to exchange", err)
	}

	b.logger.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("routing_key", routingKey),
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

// Disconnect stops reconnecting, closes the channels, waits for in-flight
// handlers and closes the connection.
func (b *Bus) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stop == nil {
		return nil
	}
	close(b.stop)
	b.stop = nil

	if b.subCh != nil {
		_ = b.subCh.Close()
	}
	select {
	case <-b.done:
	case <-ctx.Done():
		b.logger.Warn("timed out waiting for AMQP consumer to stop")
	}
	b.registry.Wait()

	if b.pubCh != nil {
		_ = b.pubCh.Close()
	}
	err := b.conn.Close()

	b.conn, b.pubCh, b.subCh = nil, nil, nil
	b.logger.Info("AMQP event bus disconnected")
	if err != nil && err != amqp091.ErrClosed {
		return err
	}
	return nil
}

// IsHealthy reports whether the connection is open.
func (b *Bus) IsHealthy(ctx context.Context) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.conn != nil && !b.conn.IsClosed() && b.pubCh != nil && !b.pubCh.IsClosed()
}
