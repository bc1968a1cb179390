package events

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/config"
	"github.com/momentapp/notifier/internal/events"
	"github.com/momentapp/notifier/internal/infrastructure/events/amqp"
	"github.com/momentapp/notifier/internal/infrastructure/events/kafka"
	"github.com/momentapp/notifier/internal/infrastructure/events/memory"
	"github.com/momentapp/notifier/internal/infrastructure/events/nats"
)

// NewEventBus builds the adapter selected by cfg.Adapter. The returned bus
// is not connected.
func NewEventBus(cfg config.EventBusConfig, logger *zap.Logger) (events.Bus, error) {
	switch cfg.Adapter {
	case config.AdapterMemory, "":
		return memory.NewBus(logger), nil
	case config.AdapterKafka:
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, fmt.Errorf("kafka adapter requires brokers")
		}
		return kafka.NewBus(cfg.Kafka, cfg.Namespace, logger), nil
	case config.AdapterNATS:
		return nats.NewBus(cfg.NATS, cfg.Namespace, logger), nil
	case config.AdapterAMQP:
		return amqp.NewBus(cfg.AMQP, cfg.Namespace, logger), nil
	default:
		return nil, fmt.Errorf("unknown event bus adapter %q", cfg.Adapter)
	}
}
