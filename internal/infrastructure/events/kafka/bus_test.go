package kafka_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/momentapp/notifier/internal/config"
	domainevents "github.com/momentapp/notifier/internal/domain/events"
	"github.com/momentapp/notifier/internal/events"
	"github.com/momentapp/notifier/internal/infrastructure/events/kafka"
	apperrors "github.com/momentapp/notifier/pkg/errors"
)

func testConfig() config.KafkaConfig {
	return config.KafkaConfig{
		Brokers:        []string{"localhost:9092"},
		ClientID:       "moment-app",
		GroupID:        "moment-consumers",
		RetryInitial:   time.Millisecond,
		RetryMax:       3,
		SessionTimeout: 30 * time.Second,
		Heartbeat:      3 * time.Second,
	}
}

func newEvent() *domainevents.Event {
	return domainevents.New(domainevents.MomentRequestCreated, domainevents.AggregateMomentRequest, "req-42", 1,
		time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		domainevents.Payload{"receiverId": "U2", "senderId": "U1"},
		domainevents.Metadata{Source: "moment-request-service", UserID: "U2", Priority: domainevents.PriorityHigh})
}

func header(msg *sarama.ProducerMessage, key string) string {
	for _, h := range msg.Headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func producerFactory(p sarama.SyncProducer) kafka.ProducerFactory {
	return func(brokers []string, cfg *sarama.Config) (sarama.SyncProducer, error) {
		return p, nil
	}
}

func TestNewSaramaConfig_IdempotentProducer(t *testing.T) {
	cfg := testConfig()
	cfg.SASL = config.SASLConfig{Username: "svc", Password: "secret"}
	cfg.TLS = true

	sc := kafka.NewSaramaConfig(cfg)

	require.NoError(t, sc.Validate())
	assert.True(t, sc.Producer.Idempotent)
	assert.Equal(t, sarama.WaitForAll, sc.Producer.RequiredAcks)
	assert.Equal(t, 1, sc.Net.MaxOpenRequests)
	assert.Equal(t, 3, sc.Producer.Retry.Max)
	assert.Equal(t, "moment-app", sc.ClientID)
	assert.True(t, sc.Net.SASL.Enable)
	assert.True(t, sc.Net.TLS.Enable)
	assert.Equal(t, 30*time.Second, sc.Consumer.Group.Session.Timeout)
}

func TestNewSaramaConfig_SASLMechanisms(t *testing.T) {
	tests := []struct {
		mechanism string
		want      sarama.SASLMechanism
		scram     bool
	}{
		{"", sarama.SASLTypePlaintext, false},
		{config.SASLPlain, sarama.SASLTypePlaintext, false},
		{config.SASLScramSHA256, sarama.SASLTypeSCRAMSHA256, true},
		{config.SASLScramSHA512, sarama.SASLTypeSCRAMSHA512, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.want)+"/"+tt.mechanism, func(t *testing.T) {
			cfg := testConfig()
			cfg.SASL = config.SASLConfig{Mechanism: tt.mechanism, Username: "svc", Password: "secret"}

			sc := kafka.NewSaramaConfig(cfg)

			require.NoError(t, sc.Validate())
			assert.Equal(t, tt.want, sc.Net.SASL.Mechanism)
			if !tt.scram {
				assert.Nil(t, sc.Net.SASL.SCRAMClientGeneratorFunc)
				return
			}

			require.NotNil(t, sc.Net.SASL.SCRAMClientGeneratorFunc)
			client := sc.Net.SASL.SCRAMClientGeneratorFunc()
			require.NoError(t, client.Begin("svc", "secret", ""))
			first, err := client.Step("")
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(first, "n,,n=svc,r="), first)
			assert.False(t, client.Done())
		})
	}
}

func TestNewSaramaConfig_NoCredentialsNoSASL(t *testing.T) {
	cfg := testConfig()
	cfg.SASL = config.SASLConfig{Mechanism: config.SASLScramSHA512}

	sc := kafka.NewSaramaConfig(cfg)
	assert.False(t, sc.Net.SASL.Enable)
}

func TestBus_PublishBeforeConnect(t *testing.T) {
	bus := kafka.NewBus(testConfig(), "moment", zaptest.NewLogger(t), kafka.WithConsumerGroupFactory(nil))

	err := bus.Publish(context.Background(), newEvent())

	assert.ErrorIs(t, err, events.ErrNotConnected)
	assert.False(t, bus.IsHealthy(context.Background()))
}

func TestBus_PublishKeysByAggregateAndTagsHeaders(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	producer := mocks.NewSyncProducer(t, kafka.NewSaramaConfig(cfg))
	event := newEvent()

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "req-42" {
			return errors.New("message not keyed by aggregate id")
		}
		if msg.Topic != "moment.moment_request.created" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		if header(msg, kafka.HeaderEventType) != "moment.request.created" ||
			header(msg, kafka.HeaderEventID) != event.ID ||
			header(msg, kafka.HeaderAggregateType) != "moment_request" ||
			header(msg, kafka.HeaderTimestamp) != "2026-05-01T09:00:00Z" {
			return errors.New("missing transport headers")
		}
		return nil
	})

	bus := kafka.NewBus(cfg, "moment", zaptest.NewLogger(t),
		kafka.WithProducerFactory(producerFactory(producer)),
		kafka.WithConsumerGroupFactory(nil),
	)
	require.NoError(t, bus.Connect(ctx))
	assert.True(t, bus.IsHealthy(ctx))

	require.NoError(t, bus.Publish(ctx, event))
	require.NoError(t, bus.Disconnect(ctx))
}

func TestBus_PublishFailureIsTransient(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	producer := mocks.NewSyncProducer(t, kafka.NewSaramaConfig(cfg))
	producer.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	bus := kafka.NewBus(cfg, "moment", zaptest.NewLogger(t),
		kafka.WithProducerFactory(producerFactory(producer)),
		kafka.WithConsumerGroupFactory(nil),
	)
	require.NoError(t, bus.Connect(ctx))

	err := bus.Publish(ctx, newEvent())
	assert.True(t, apperrors.IsTransientDelivery(err))
	require.NoError(t, bus.Disconnect(ctx))
}

func TestBus_PublishBatchUsesOneCall(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	producer := mocks.NewSyncProducer(t, kafka.NewSaramaConfig(cfg))
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndSucceed()

	bus := kafka.NewBus(cfg, "moment", zaptest.NewLogger(t),
		kafka.WithProducerFactory(producerFactory(producer)),
		kafka.WithConsumerGroupFactory(nil),
	)
	require.NoError(t, bus.Connect(ctx))

	require.NoError(t, bus.PublishBatch(ctx, []*domainevents.Event{newEvent(), newEvent()}))
	require.NoError(t, bus.Disconnect(ctx))
}

func TestBus_ConnectRetriesWithBackoff(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	producer := mocks.NewSyncProducer(t, kafka.NewSaramaConfig(cfg))

	var attempts atomic.Int32
	factory := func(brokers []string, sc *sarama.Config) (sarama.SyncProducer, error) {
		if attempts.Add(1) < 3 {
			return nil, sarama.ErrOutOfBrokers
		}
		return producer, nil
	}

	bus := kafka.NewBus(cfg, "moment", zaptest.NewLogger(t),
		kafka.WithProducerFactory(factory),
		kafka.WithConsumerGroupFactory(nil),
	)
	require.NoError(t, bus.Connect(ctx))
	assert.Equal(t, int32(3), attempts.Load())
	require.NoError(t, bus.Disconnect(ctx))
}

func TestBus_ConnectGivesUp(t *testing.T) {
	cfg := testConfig()
	var attempts atomic.Int32
	factory := func(brokers []string, sc *sarama.Config) (sarama.SyncProducer, error) {
		attempts.Add(1)
		return nil, sarama.ErrOutOfBrokers
	}

	bus := kafka.NewBus(cfg, "moment", zaptest.NewLogger(t),
		kafka.WithProducerFactory(factory),
		kafka.WithConsumerGroupFactory(nil),
	)
	err := bus.Connect(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.IsTransientDelivery(err))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestBus_ConsumedMessagesReachHandlers(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	producer := mocks.NewSyncProducer(t, kafka.NewSaramaConfig(cfg))
	event := newEvent()

	var captured *sarama.ProducerMessage
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		captured = msg
		return nil
	})

	group := newFakeGroup()
	bus := kafka.NewBus(cfg, "moment", zaptest.NewLogger(t),
		kafka.WithProducerFactory(producerFactory(producer)),
		kafka.WithConsumerGroupFactory(func(brokers []string, groupID string, sc *sarama.Config) (sarama.ConsumerGroup, error) {
			assert.Equal(t, "moment-consumers", groupID)
			return group, nil
		}),
	)

	received := make(chan *domainevents.Event, 2)
	bus.Subscribe(domainevents.MomentRequestCreated, func(ctx context.Context, e *domainevents.Event) error {
		received <- e
		return nil
	})
	bus.SubscribeToPattern("moment.*", func(ctx context.Context, e *domainevents.Event) error {
		received <- e
		return errors.New("pattern handler failure is isolated")
	})

	require.NoError(t, bus.Connect(ctx))
	require.NoError(t, bus.Publish(ctx, event))
	require.NotNil(t, captured)

	value, err := captured.Value.Encode()
	require.NoError(t, err)
	group.deliver(&sarama.ConsumerMessage{Topic: captured.Topic, Value: value, Offset: 7})

	for i := 0; i < 2; i++ {
		select {
		case got := <-received:
			assert.Equal(t, event.ID, got.ID)
		case <-time.After(2 * time.Second):
			t.Fatal("handler not invoked from consumed message")
		}
	}
	assert.Eventually(t, func() bool { return group.marked() == 1 }, time.Second, 10*time.Millisecond)
	assert.Contains(t, group.topics(), "moment.moment_request.created")

	require.NoError(t, bus.Disconnect(ctx))
}

// fakeGroup is a single member consumer group backed by a channel.
type fakeGroup struct {
	messages chan *sarama.ConsumerMessage
	errs     chan error
	closed   chan struct{}
	once     sync.Once

	mu         sync.Mutex
	subscribed []string
	markCount  int
}

func newFakeGroup() *fakeGroup {
	return &fakeGroup{
		messages: make(chan *sarama.ConsumerMessage, 10),
		errs:     make(chan error),
		closed:   make(chan struct{}),
	}
}

func (g *fakeGroup) deliver(msg *sarama.ConsumerMessage) { g.messages <- msg }

func (g *fakeGroup) marked() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.markCount
}

func (g *fakeGroup) topics() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.subscribed
}

func (g *fakeGroup) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	select {
	case <-g.closed:
		return sarama.ErrClosedConsumerGroup
	default:
	}

	g.mu.Lock()
	g.subscribed = topics
	g.mu.Unlock()

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-g.closed:
			cancel()
		case <-sessCtx.Done():
		}
	}()

	sess := &fakeSession{ctx: sessCtx, group: g}
	if err := handler.Setup(sess); err != nil {
		return err
	}
	err := handler.ConsumeClaim(sess, &fakeClaim{messages: g.messages})
	_ = handler.Cleanup(sess)
	return err
}

func (g *fakeGroup) Errors() <-chan error { return g.errs }

func (g *fakeGroup) Close() error {
	g.once.Do(func() {
		close(g.closed)
		close(g.errs)
	})
	return nil
}

func (g *fakeGroup) Pause(map[string][]int32) {}
func (g *fakeGroup) Resume(map[string][]int32) {}
func (g *fakeGroup) PauseAll() {}
func (g *fakeGroup) ResumeAll() {}

type fakeSession struct {
	ctx   context.Context
	group *fakeGroup
}

func (s *fakeSession) Claims() map[string][]int32 { return nil }
func (s *fakeSession) MemberID() string { return "member-1" }
func (s *fakeSession) GenerationID() int32 { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string) {}
func (s *fakeSession) Commit() {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context { return s.ctx }
func (s *fakeSession) MarkMessage(*sarama.ConsumerMessage, string) {
	s.group.mu.Lock()
	defer s.group.mu.Unlock()
	s.group.markCount++
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string { return "moment.moment_request.created" }
func (c *fakeClaim) Partition() int32 { return 0 }
func (c *fakeClaim) InitialOffset() int64 { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64 { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }
