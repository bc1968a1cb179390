package push_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"github.com/momentapp/notifier/internal/application/push"
	"github.com/momentapp/notifier/internal/domain/device"
	"github.com/momentapp/notifier/internal/domain/events"
	"github.com/momentapp/notifier/internal/domain/notification"
	persistence "github.com/momentapp/notifier/internal/infrastructure/persistence/gorm"
	"github.com/momentapp/notifier/test/testutil"
)

// fakeProvider answers per token. Tokens without an entry get an ok ticket.
type fakeProvider struct {
	mu       sync.Mutex
	tickets  map[string]push.Ticket
	receipts map[string]push.Receipt
	sendErr  error
	failCall int
	calls    int
	sent     [][]push.Message
	asked    []string
	seq      int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		tickets:  make(map[string]push.Ticket),
		receipts: make(map[string]push.Receipt),
	}
}

func (p *fakeProvider) Send(ctx context.Context, messages []push.Message) ([]push.Ticket, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.sendErr != nil && (p.failCall == 0 || p.failCall == p.calls) {
		return nil, p.sendErr
	}
	p.sent = append(p.sent, messages)

	out := make([]push.Ticket, len(messages))
	for i, m := range messages {
		if t, ok := p.tickets[m.To]; ok {
			out[i] = t
			continue
		}
		p.seq++
		out[i] = push.Ticket{ID: fmt.Sprintf("ticket-%d", p.seq), Outcome: push.OutcomeOK}
	}
	return out, nil
}

func (p *fakeProvider) Receipts(ctx context.Context, ids []string) (map[string]push.Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked = append(p.asked, ids...)
	out := make(map[string]push.Receipt)
	for _, id := range ids {
		if r, ok := p.receipts[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (p *fakeProvider) messages() []push.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []push.Message
	for _, batch := range p.sent {
		out = append(out, batch...)
	}
	return out
}

type PushTestSuite struct {
	suite.Suite

	ctx      context.Context
	now      time.Time
	devices  *persistence.DeviceRepository
	provider *fakeProvider
	tickets  *push.MemoryTicketStore
}

func (suite *PushTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.now = time.Now().UTC()
	suite.devices = persistence.NewDeviceRepository(persistence.NewTestDB(suite.T()))
	suite.provider = newFakeProvider()
	suite.tickets = push.NewMemoryTicketStore()
}

func (suite *PushTestSuite) register(userID, deviceID, token string) {
	_, err := suite.devices.RegisterOrUpdate(suite.ctx, userID, device.Registration{
		PushToken: token, DeviceID: deviceID, Platform: device.PlatformAndroid,
	})
	suite.Require().NoError(err)
}

func (suite *PushTestSuite) dispatcher(opts ...push.Option) *push.Dispatcher {
	opts = append(opts, push.WithClock(func() time.Time { return suite.now }))
	return push.NewDispatcher(suite.devices, suite.provider, suite.tickets, zaptest.NewLogger(suite.T()), opts...)
}

func (suite *PushTestSuite) status(token string) *device.Device {
	d, err := suite.devices.FindByToken(suite.ctx, token)
	suite.Require().NoError(err)
	return d
}

func (suite *PushTestSuite) TestRequestCreatedPushesReceiverDevicesOnly() {
	suite.register("U1", "d1", token("sender"))
	suite.register("U2", "d2", token("receiver-a"))
	suite.register("U2", "d3", token("receiver-b"))

	err := suite.dispatcher().Handle(suite.ctx, testutil.CreateRequestCreatedEvent("U1", "U2"))
	suite.Require().NoError(err)

	sent := suite.provider.messages()
	suite.Require().Len(sent, 2)
	for _, m := range sent {
		suite.NotEqual(token("sender"), m.To)
		suite.Equal("New Moment Request", m.Title)
		suite.Equal("high", m.Priority)
		suite.Equal("MOMENT_REQUEST", m.CategoryID)
		suite.Equal(string(events.MomentRequestCreated), m.Data["eventType"])
	}
	suite.Equal(2, suite.tickets.Len())
}

func (suite *PushTestSuite) TestUnmappedTypeSendsNothing() {
	suite.register("U1", "d1", token("a"))
	e := testutil.CreateTestEvent(events.UserVerified, "U1", events.Payload{"userId": "U1"})

	suite.Require().NoError(suite.dispatcher().Handle(suite.ctx, e))
	suite.Empty(suite.provider.messages())
}

func (suite *PushTestSuite) TestChunksLargeDeliveries() {
	for i := 0; i < 5; i++ {
		suite.register("U2", fmt.Sprintf("d%d", i), token(fmt.Sprintf("t%d", i)))
	}

	report, err := suite.dispatcher(push.WithChunkSize(2)).Send(suite.ctx, suite.requestMessage("U1", "U2"), events.PriorityHigh)
	suite.Require().NoError(err)

	suite.Equal(5, report.Devices)
	suite.Equal(5, report.Accepted)
	suite.Len(suite.provider.sent, 3)
}

func (suite *PushTestSuite) TestTicketErrorsUpdateTokenHealth() {
	gone := token("gone")
	flaky := token("flaky")
	suite.register("U2", "d1", gone)
	suite.register("U2", "d2", flaky)
	suite.provider.tickets[gone] = push.Ticket{Outcome: push.OutcomePermanent, Code: "DeviceNotRegistered"}
	suite.provider.tickets[flaky] = push.Ticket{Outcome: push.OutcomeError, Code: "MessageRateExceeded"}

	report, err := suite.dispatcher().Send(suite.ctx, suite.requestMessage("U1", "U2"), events.PriorityHigh)
	suite.Require().NoError(err)
	suite.Equal(1, report.Permanent)
	suite.Equal(1, report.Failed)
	suite.Zero(suite.tickets.Len())

	suite.Equal(device.StatusConfirmedInvalid, suite.status(gone).Status)
	suite.False(suite.status(gone).IsActive)
	suite.Equal(1, suite.status(flaky).FailureCount)
	suite.Equal(device.StatusActive, suite.status(flaky).Status)
}

func (suite *PushTestSuite) TestProviderOutageIsTransient() {
	suite.register("U2", "d1", token("a"))
	suite.provider.sendErr = errors.New("connection reset")

	_, err := suite.dispatcher().Send(suite.ctx, suite.requestMessage("U1", "U2"), events.PriorityNormal)
	suite.Require().Error(err)
	suite.Zero(suite.status(token("a")).FailureCount)
}

func (suite *PushTestSuite) TestFailedChunkKeepsEarlierTickets() {
	suite.register("U2", "d1", token("a"))
	suite.register("U2", "d2", token("b"))
	suite.provider.sendErr = errors.New("503 service unavailable")
	suite.provider.failCall = 2

	report, err := suite.dispatcher(push.WithChunkSize(1)).Send(suite.ctx, suite.requestMessage("U1", "U2"), events.PriorityHigh)
	suite.Require().Error(err)
	suite.Equal(2, report.Devices)
	suite.Equal(1, report.Accepted)
	suite.Equal(1, suite.tickets.Len())
}

func (suite *PushTestSuite) TestReceiptsReconcileAfterDelay() {
	okToken := token("ok")
	goneToken := token("gone")
	flakyToken := token("flaky")
	suite.register("U2", "d1", okToken)
	suite.register("U2", "d2", goneToken)
	suite.register("U2", "d3", flakyToken)

	_, err := suite.dispatcher().Send(suite.ctx, suite.requestMessage("U1", "U2"), events.PriorityHigh)
	suite.Require().NoError(err)
	suite.Require().Equal(3, suite.tickets.Len())

	pending, err := suite.tickets.Due(suite.ctx, suite.now.Add(push.DefaultReceiptDelay), 0, 10)
	suite.Require().NoError(err)
	suite.Require().Len(pending, 3)
	for _, t := range pending {
		switch t.Token {
		case goneToken:
			suite.provider.receipts[t.TicketID] = push.Receipt{Outcome: push.OutcomePermanent, Code: "DeviceNotRegistered"}
		case flakyToken:
			suite.provider.receipts[t.TicketID] = push.Receipt{Outcome: push.OutcomeError, Code: "MessageTooBig"}
		default:
			suite.provider.receipts[t.TicketID] = push.Receipt{Outcome: push.OutcomeOK}
		}
	}

	reconciler := push.NewReconciler(suite.tickets, suite.provider, suite.devices, zaptest.NewLogger(suite.T()))

	early, err := reconciler.WithClock(func() time.Time { return suite.now.Add(time.Minute) }).RunOnce(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(push.ReconcileResult{}, early)
	suite.Empty(suite.provider.asked)

	result, err := reconciler.WithClock(func() time.Time { return suite.now.Add(16 * time.Minute) }).RunOnce(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(1, result.OK)
	suite.Equal(1, result.Permanent)
	suite.Equal(1, result.Failed)
	suite.Zero(suite.tickets.Len())

	suite.Equal(device.StatusActive, suite.status(okToken).Status)
	suite.Zero(suite.status(okToken).FailureCount)
	suite.Equal(device.StatusConfirmedInvalid, suite.status(goneToken).Status)
	suite.Equal(1, suite.status(flakyToken).FailureCount)
}

func (suite *PushTestSuite) TestMissingReceiptsStayQueuedUntilExpiry() {
	suite.Require().NoError(suite.tickets.Add(suite.ctx, push.PendingTicket{
		TicketID: "t1", Token: token("a"), UserID: "U2", DueAt: suite.now,
	}))
	reconciler := push.NewReconciler(suite.tickets, suite.provider, suite.devices, zaptest.NewLogger(suite.T()))

	result, err := reconciler.WithClock(func() time.Time { return suite.now.Add(time.Hour) }).RunOnce(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(1, result.Pending)
	suite.Equal(1, suite.tickets.Len())

	result, err = reconciler.WithClock(func() time.Time { return suite.now.Add(25 * time.Hour) }).RunOnce(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(1, result.Expired)
	suite.Zero(suite.tickets.Len())
}

func (suite *PushTestSuite) TestUnresolvedTicketsDoNotStarveLaterOnes() {
	const waiting = 1500
	stale := make([]push.PendingTicket, waiting)
	for i := range stale {
		stale[i] = push.PendingTicket{
			TicketID: fmt.Sprintf("waiting-%05d", i),
			Token:    token(fmt.Sprintf("w%d", i)),
			UserID:   "U3",
			DueAt:    suite.now.Add(-time.Hour),
		}
	}
	suite.Require().NoError(suite.tickets.Add(suite.ctx, stale...))

	gone := token("gone")
	suite.register("U2", "d1", gone)
	suite.Require().NoError(suite.tickets.Add(suite.ctx, push.PendingTicket{
		TicketID: "latest", Token: gone, UserID: "U2", DueAt: suite.now.Add(-time.Minute),
	}))
	suite.provider.receipts["latest"] = push.Receipt{Outcome: push.OutcomePermanent, Code: "DeviceNotRegistered"}

	reconciler := push.NewReconciler(suite.tickets, suite.provider, suite.devices, zaptest.NewLogger(suite.T())).
		WithClock(func() time.Time { return suite.now })

	result, err := reconciler.RunOnce(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(waiting, result.Pending)
	suite.Equal(1, result.Permanent)
	suite.Equal(waiting, suite.tickets.Len())

	d := suite.status(gone)
	suite.Equal(device.StatusConfirmedInvalid, d.Status)
	suite.False(d.IsActive)
}

func (suite *PushTestSuite) TestRevalidationRestoresAndInvalidates() {
	back := token("back")
	gone := token("gone")
	still := token("still")
	for i, tok := range []string{back, gone, still} {
		suite.register("U1", fmt.Sprintf("d%d", i), tok)
		for n := 0; n < device.SuspectThreshold; n++ {
			_, err := suite.devices.IncrementFailureCount(suite.ctx, tok)
			suite.Require().NoError(err)
		}
		suite.Require().Equal(device.StatusSuspectedInvalid, suite.status(tok).Status)
	}
	suite.provider.tickets[gone] = push.Ticket{Outcome: push.OutcomePermanent, Code: "DeviceNotRegistered"}
	suite.provider.tickets[still] = push.Ticket{Outcome: push.OutcomeError, Code: "MessageRateExceeded"}

	result, err := push.NewRevalidator(suite.devices, suite.provider, zaptest.NewLogger(suite.T())).RunOnce(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(3, result.Tested)

	for _, m := range suite.provider.messages() {
		suite.True(m.ContentAvailable)
		suite.Empty(m.Title)
	}

	restored := suite.status(back)
	suite.Equal(device.StatusActive, restored.Status)
	suite.Zero(restored.FailureCount)
	suite.Equal(device.StatusConfirmedInvalid, suite.status(gone).Status)
	suite.Equal(device.SuspectThreshold+1, suite.status(still).FailureCount)
}

func (suite *PushTestSuite) requestMessage(senderID, receiverID string) notification.Message {
	msg, ok := notification.Render(testutil.CreateRequestCreatedEvent(senderID, receiverID))
	suite.Require().True(ok)
	return msg
}

func token(name string) string {
	return "ExponentPushToken[" + name + "]"
}

func TestPushTestSuite(t *testing.T) {
	suite.Run(t, new(PushTestSuite))
}
