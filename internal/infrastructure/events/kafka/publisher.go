package kafka

import (
	"time"

	"github.com/IBM/sarama"

	"github.com/momentapp/notifier/internal/config"
	domainevents "github.com/momentapp/notifier/internal/domain/events"
)

// Header keys attached to every produced message.
const (
	HeaderEventType     = "eventType"
	HeaderEventID       = "eventId"
	HeaderAggregateType = "aggregateType"
	HeaderTimestamp     = "timestamp"
)

// NewSaramaConfig builds the producer and consumer group configuration.
// The producer is idempotent, so it waits for all in-sync replicas and
// keeps a single request in flight per broker.
func NewSaramaConfig(cfg config.KafkaConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_1_0_0
	sc.ClientID = cfg.ClientID

	sc.Producer.Idempotent = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Net.MaxOpenRequests = 1
	sc.Producer.Retry.Max = cfg.RetryMax
	if sc.Producer.Retry.Max <= 0 {
		sc.Producer.Retry.Max = 1
	}
	if cfg.RetryInitial > 0 {
		sc.Producer.Retry.Backoff = cfg.RetryInitial
	}

	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	if cfg.SessionTimeout > 0 {
		sc.Consumer.Group.Session.Timeout = cfg.SessionTimeout
	}
	if cfg.Heartbeat > 0 {
		sc.Consumer.Group.Heartbeat.Interval = cfg.Heartbeat
	}

	if cfg.TLS {
		sc.Net.TLS.Enable = true
	}
	if cfg.SASL.Username != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User = cfg.SASL.Username
		sc.Net.SASL.Password = cfg.SASL.Password
		switch cfg.SASL.Mechanism {
		case config.SASLScramSHA256:
			sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			sc.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{hashGen: SHA256}
			}
		case config.SASLScramSHA512:
			sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			sc.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{hashGen: SHA512}
			}
		default:
			sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	}

	return sc
}

// newProducerMessage serializes event into a message keyed by aggregate id
// so every event of one aggregate lands on the same partition.
func newProducerMessage(namespace string, event *domainevents.Event) (*sarama.ProducerMessage, error) {
	data, err := event.Marshal()
	if err != nil {
		return nil, err
	}

	return &sarama.ProducerMessage{
		Topic: event.Topic(namespace),
		Key:   sarama.StringEncoder(event.AggregateID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEventType), Value: []byte(event.Type)},
			{Key: []byte(HeaderEventID), Value: []byte(event.ID)},
			{Key: []byte(HeaderAggregateType), Value: []byte(event.AggregateType)},
			{Key: []byte(HeaderTimestamp), Value: []byte(event.Timestamp.UTC().Format(time.RFC3339Nano))},
		},
		Timestamp: event.Timestamp,
	}, nil
}
