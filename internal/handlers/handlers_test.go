package handlers_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	domainevents "github.com/momentapp/notifier/internal/domain/events"
	"github.com/momentapp/notifier/internal/domain/notification"
	"github.com/momentapp/notifier/internal/handlers"
	"github.com/momentapp/notifier/internal/infrastructure/events/memory"
	persistence "github.com/momentapp/notifier/internal/infrastructure/persistence/gorm"
	"github.com/momentapp/notifier/internal/ws"
	"github.com/momentapp/notifier/test/testutil"
)

type socket struct {
	id     string
	mu     sync.Mutex
	frames []ws.Frame
}

func (s *socket) ID() string { return s.id }

func (s *socket) Enqueue(frame ws.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return true
}

func (s *socket) received() []ws.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ws.Frame(nil), s.frames...)
}

type SubscribersTestSuite struct {
	suite.Suite
	db       *gorm.DB
	bus      *memory.Bus
	hub      *ws.Hub
	notes    *persistence.NotificationRepository
	store    *persistence.EventStore
	sender   *socket
	receiver *socket
}

func (s *SubscribersTestSuite) SetupTest() {
	logger := zaptest.NewLogger(s.T())
	s.db = persistence.NewTestDB(s.T())
	s.bus = memory.NewBus(logger)
	s.hub = ws.NewHub(logger)
	s.notes = persistence.NewNotificationRepository(s.db)
	s.store = persistence.NewEventStore(s.db)

	handlers.Register(s.bus, handlers.Subscribers{
		EventStore:    handlers.NewEventStoreWriter(s.store, logger),
		Notifications: handlers.NewNotificationWriter(s.notes, logger),
		Sockets:       ws.NewRouter(s.hub, logger),
	})
	s.Require().NoError(s.bus.Connect(context.Background()))

	s.sender = &socket{id: "sender-conn"}
	s.receiver = &socket{id: "receiver-conn"}
	s.hub.Register("U1", s.sender)
	s.hub.Register("U2", s.receiver)
}

func (s *SubscribersTestSuite) TearDownTest() {
	persistence.CleanupDB(s.T(), s.db)
}

func (s *SubscribersTestSuite) TestRequestCreatedReachesOnlyReceiver() {
	ctx := context.Background()
	event := testutil.CreateRequestCreatedEvent("U1", "U2")

	s.Require().NoError(s.bus.Publish(ctx, event))

	records, total, err := s.notes.ListForUser(ctx, "U2", false, 10, 0)
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Require().Len(records, 1)
	s.Equal(domainevents.MomentRequestCreated, records[0].Type)
	s.Equal("New Moment Request", records[0].Title)
	s.True(records[0].IsDelivered)
	s.NotNil(records[0].DeliveredAt)

	_, senderTotal, err := s.notes.ListForUser(ctx, "U1", false, 10, 0)
	s.Require().NoError(err)
	s.Zero(senderTotal)

	frames := s.receiver.received()
	s.Require().Len(frames, 1)
	s.Equal(ws.EventMomentRequest, frames[0].Event)
	s.Empty(s.sender.received())

	stored, err := s.store.ForAggregate(ctx, domainevents.AggregateMomentRequest, event.AggregateID)
	s.Require().NoError(err)
	s.Require().Len(stored, 1)
	s.Equal(event.ID, stored[0].EventID)
}

func (s *SubscribersTestSuite) TestUnpersistedTypesOnlyReachEventStore() {
	ctx := context.Background()
	event := testutil.CreateTestEvent(domainevents.MomentCreated, "U1", domainevents.Payload{"userId": "U1", "title": "Gym"})

	s.Require().NoError(s.bus.Publish(ctx, event))

	_, total, err := s.notes.ListForUser(ctx, "U1", false, 10, 0)
	s.Require().NoError(err)
	s.Zero(total)
	s.Empty(s.sender.received())

	stored, err := s.store.ForAggregate(ctx, domainevents.AggregateMoment, event.AggregateID)
	s.Require().NoError(err)
	s.Len(stored, 1)
}

func (s *SubscribersTestSuite) TestPlainDeleteIsStoredButNotRouted() {
	ctx := context.Background()
	event := testutil.CreateTestEvent(domainevents.MomentDeleted, "U1", domainevents.Payload{"userId": "U1", "title": "Gym"})

	s.Require().NoError(s.bus.Publish(ctx, event))

	s.Empty(s.sender.received())
	s.Empty(s.receiver.received())
}

func TestSubscribersTestSuite(t *testing.T) {
	suite.Run(t, new(SubscribersTestSuite))
}

func TestWritersSwallowPersistenceFailures(t *testing.T) {
	logger := zaptest.NewLogger(t)
	db := persistence.NewTestDB(t)
	persistence.CleanupDB(t, db)

	event := testutil.CreateRequestCreatedEvent("U1", "U2")

	storeWriter := handlers.NewEventStoreWriter(persistence.NewEventStore(db), logger)
	noteWriter := handlers.NewNotificationWriter(persistence.NewNotificationRepository(db), logger)

	assert.NoError(t, storeWriter.Handle(context.Background(), event))
	assert.NoError(t, noteWriter.Handle(context.Background(), event))
}

func TestNotificationWriter_EventTypes(t *testing.T) {
	writer := handlers.NewNotificationWriter(nil, zaptest.NewLogger(t))
	require.ElementsMatch(t, notification.PersistedTypes(), writer.EventTypes())
	assert.NotContains(t, writer.EventTypes(), domainevents.MomentCreated)
}
