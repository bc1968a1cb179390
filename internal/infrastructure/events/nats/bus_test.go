package nats_test

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/momentapp/notifier/internal/config"
	domainevents "github.com/momentapp/notifier/internal/domain/events"
	"github.com/momentapp/notifier/internal/events"
	natsbus "github.com/momentapp/notifier/internal/infrastructure/events/nats"
)

// startTestNATS starts an embedded JetStream enabled server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func testConfig(url string) config.NATSConfig {
	return config.NATSConfig{
		URL:           url,
		ClientID:      "notifier-test",
		Stream:        "MOMENT_EVENTS",
		Durable:       "notifier-test",
		MaxReconnect:  5,
		ReconnectWait: 100 * time.Millisecond,
		MaxAge:        time.Hour,
	}
}

func TestBus_PublishBeforeConnect(t *testing.T) {
	bus := natsbus.NewBus(testConfig("nats://127.0.0.1:1"), "moment", zaptest.NewLogger(t))

	err := bus.Publish(context.Background(), domainevents.New(domainevents.MomentCreated,
		domainevents.AggregateMoment, "m1", 1, time.Now(), nil, domainevents.Metadata{}))

	assert.ErrorIs(t, err, events.ErrNotConnected)
}

func TestBus_PublishAndConsume(t *testing.T) {
	ctx := context.Background()
	url := startTestNATS(t)

	bus := natsbus.NewBus(testConfig(url), "moment", zaptest.NewLogger(t))

	received := make(chan *domainevents.Event, 4)
	bus.Subscribe(domainevents.MomentRequestApproved, func(ctx context.Context, e *domainevents.Event) error {
		received <- e
		return nil
	})
	bus.SubscribeToPattern("moment.request.*", func(ctx context.Context, e *domainevents.Event) error {
		received <- e
		return nil
	})

	require.NoError(t, bus.Connect(ctx))
	t.Cleanup(func() { _ = bus.Disconnect(ctx) })
	assert.True(t, bus.IsHealthy(ctx))

	event := domainevents.New(domainevents.MomentRequestApproved, domainevents.AggregateMomentRequest, "req-1", 2,
		time.Now(), domainevents.Payload{"senderId": "U1"}, domainevents.Metadata{Source: "test", UserID: "U1"})
	require.NoError(t, bus.Publish(ctx, event))

	// The same id is deduplicated by the stream.
	require.NoError(t, bus.Publish(ctx, event))

	for i := 0; i < 2; i++ {
		select {
		case got := <-received:
			assert.Equal(t, event.ID, got.ID)
			assert.Equal(t, "U1", got.Payload.String("senderId"))
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for consumed event")
		}
	}

	select {
	case extra := <-received:
		t.Fatalf("duplicate delivery of %s", extra.ID)
	case <-time.After(300 * time.Millisecond):
	}
}
