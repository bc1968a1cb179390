package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	domainevents "github.com/momentapp/notifier/internal/domain/events"
	"github.com/momentapp/notifier/internal/events"
)

const (
	defaultAckWait    = 30 * time.Second
	defaultMaxDeliver = 5
)

// startConsumer creates the durable consumer and feeds every message into
// the registry. Handler failures never cause a redelivery because each
// handler owns its failure; only undecodable messages are terminated.
func startConsumer(ctx context.Context, client *Client, durable string, registry *events.Registry, logger *zap.Logger) (jetstream.ConsumeContext, error) {
	consumer, err := client.JetStream().CreateOrUpdateConsumer(ctx, client.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       durable,
		Description:   fmt.Sprintf("Consumer for %s", durable),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       defaultAckWait,
		MaxDeliver:    defaultMaxDeliver,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
		MaxAckPending: 100,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	return consumer.Consume(func(msg jetstream.Msg) {
		event, err := domainevents.Unmarshal(msg.Data())
		if err != nil {
			logger.Error("dropping undecodable message",
				zap.Error(err),
				zap.String("subject", msg.Subject()),
			)
			if termErr := msg.Term(); termErr != nil {
				logger.Warn("failed to terminate message", zap.Error(termErr))
			}
			return
		}

		registry.Dispatch(context.Background(), event)

		if err := msg.Ack(); err != nil {
			logger.Warn("failed to ack message",
				zap.Error(err),
				zap.String("event_id", event.ID),
			)
		}
	})
}
