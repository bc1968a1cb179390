package kafka

import (
	"github.com/IBM/sarama"
	"go.uber.org/zap"

	domainevents "github.com/momentapp/notifier/internal/domain/events"
	"github.com/momentapp/notifier/internal/events"
)

// consumerHandler implements sarama.ConsumerGroupHandler and feeds every
// consumed event through the shared registry.
type consumerHandler struct {
	registry *events.Registry
	logger   *zap.Logger
}

func newConsumerHandler(registry *events.Registry, logger *zap.Logger) *consumerHandler {
	return &consumerHandler{
		registry: registry,
		logger:   logger,
	}
}

// Setup implements sarama.ConsumerGroupHandler
func (h *consumerHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.logger.Info("consumer group session started",
		zap.String("member_id", session.MemberID()),
		zap.Int32("generation", session.GenerationID()),
	)
	return nil
}

// Cleanup implements sarama.ConsumerGroupHandler
func (h *consumerHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.logger.Info("consumer group session ended", zap.String("member_id", session.MemberID()))
	return nil
}

// ConsumeClaim implements sarama.ConsumerGroupHandler. Offsets are marked
// after handlers settle, which gives at-least-once delivery. Messages that
// cannot be decoded are logged and skipped.
func (h *consumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			event, err := domainevents.Unmarshal(message.Value)
			if err != nil {
				h.logger.Error("dropping undecodable message",
					zap.Error(err),
					zap.String("topic", message.Topic),
					zap.Int32("partition", message.Partition),
					zap.Int64("offset", message.Offset),
				)
				session.MarkMessage(message, "")
				continue
			}

			h.registry.Dispatch(session.Context(), event)
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
