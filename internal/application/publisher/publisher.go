package publisher

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/domain/events"
	"github.com/momentapp/notifier/internal/domain/scheduling"
)

// Event sources
const (
	SourceMoment        = "moment-service"
	SourceMomentRequest = "moment-request-service"
	SourceUser          = "user-service"
	SourceReminder      = "reminder-service"
	SourceTest          = "test"
)

// Bus is the part of the event bus the publisher needs
type Bus interface {
	Publish(ctx context.Context, event *events.Event) error
	PublishBatch(ctx context.Context, batch []*events.Event) error
}

// Option configures an EventPublisher
type Option func(*EventPublisher)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *EventPublisher) { p.now = now }
}

// EventPublisher builds one event per domain occurrence. Publish errors are
// returned for the caller to log and must not abort the business operation
// that triggered them. Only ScheduleMomentReminder writes durably.
type EventPublisher struct {
	bus       Bus
	scheduled scheduling.Repository
	logger    *zap.Logger
	now       func() time.Time
}

// New creates an EventPublisher
func New(bus Bus, scheduled scheduling.Repository, logger *zap.Logger, opts ...Option) *EventPublisher {
	p := &EventPublisher{
		bus:       bus,
		scheduled: scheduled,
		logger:    logger.Named("publisher"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *EventPublisher) metadata(ctx context.Context, source, recipient string, priority events.Priority) events.Metadata {
	return events.Metadata{
		Source:        source,
		CorrelationID: correlationID(ctx),
		CausationID:   causationID(ctx),
		UserID:        recipient,
		Priority:      priority,
	}
}

func (p *EventPublisher) publish(ctx context.Context, event *events.Event) error {
	if err := p.bus.Publish(ctx, event); err != nil {
		p.logger.Warn("failed to publish event",
			zap.Error(err),
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("user_id", event.Metadata.UserID),
		)
		return err
	}
	return nil
}

// PublishMomentCreated announces a new moment to its owner.
func (p *EventPublisher) PublishMomentCreated(ctx context.Context, m Moment) error {
	payload := events.Payload{
		"momentId":     m.ID,
		"userId":       m.UserID,
		"title":        firstNonEmpty(m.Notes, "New Moment"),
		"availability": m.Availability,
	}
	setTimes(payload, m.StartTime, m.EndTime)

	event := events.New(events.MomentCreated, events.AggregateMoment, m.ID, 1, p.now(), payload,
		p.metadata(ctx, SourceMoment, m.UserID, events.PriorityNormal))
	return p.publish(ctx, event)
}

// PublishMomentUpdated announces a change to a moment. When the moment came
// from a request, otherUserID is the other party and the one notified.
func (p *EventPublisher) PublishMomentUpdated(ctx context.Context, m Moment, otherUserID, momentRequestID string) error {
	return p.publish(ctx, p.momentChange(ctx, events.MomentUpdated, m, otherUserID, momentRequestID))
}

// PublishMomentDeleted announces a deleted moment. A deletion carrying both
// otherUserID and momentRequestID is a cancellation of an agreed meeting.
func (p *EventPublisher) PublishMomentDeleted(ctx context.Context, m Moment, otherUserID, momentRequestID string) error {
	return p.publish(ctx, p.momentChange(ctx, events.MomentDeleted, m, otherUserID, momentRequestID))
}

func (p *EventPublisher) momentChange(ctx context.Context, t events.EventType, m Moment, otherUserID, momentRequestID string) *events.Event {
	payload := events.Payload{
		"momentId": m.ID,
		"userId":   m.UserID,
		"title":    firstNonEmpty(m.Notes, m.Title, "Meeting"),
	}
	if otherUserID != "" {
		payload["otherUserId"] = otherUserID
	}
	if momentRequestID != "" {
		payload["momentRequestId"] = momentRequestID
	}
	if t == events.MomentUpdated && m.Availability != "" {
		payload["availability"] = m.Availability
	}
	setTimes(payload, m.StartTime, m.EndTime)

	return events.New(t, events.AggregateMoment, m.ID, 1, p.now(), payload,
		p.metadata(ctx, SourceMoment, firstNonEmpty(otherUserID, m.UserID), events.PriorityNormal))
}

// PublishMomentRequestCreated notifies the receiver of a new invitation.
func (p *EventPublisher) PublishMomentRequestCreated(ctx context.Context, r MomentRequest) error {
	payload := events.Payload{
		"momentRequestId": r.ID,
		"senderId":        r.SenderID,
		"receiverId":      r.ReceiverID,
		"senderName":      r.SenderName,
		"title":           r.Title,
		"notes":           r.Notes,
	}
	setTimes(payload, r.StartTime, r.EndTime)

	event := events.New(events.MomentRequestCreated, events.AggregateMomentRequest, r.ID, 1, p.now(), payload,
		p.metadata(ctx, SourceMomentRequest, r.ReceiverID, events.PriorityHigh))
	return p.publish(ctx, event)
}

// PublishMomentRequestApproved notifies the sender that the receiver accepted.
func (p *EventPublisher) PublishMomentRequestApproved(ctx context.Context, r MomentRequest, momentID string) error {
	payload := events.Payload{
		"momentRequestId": r.ID,
		"senderId":        r.SenderID,
		"receiverId":      r.ReceiverID,
		"receiverName":    r.ReceiverName,
		"momentId":        momentID,
		"title":           r.Title,
	}
	setTimes(payload, r.StartTime, r.EndTime)

	event := events.New(events.MomentRequestApproved, events.AggregateMomentRequest, r.ID, 2, p.now(), payload,
		p.metadata(ctx, SourceMomentRequest, r.SenderID, events.PriorityHigh))
	return p.publish(ctx, event)
}

// PublishMomentRequestRejected notifies the sender that the receiver declined.
func (p *EventPublisher) PublishMomentRequestRejected(ctx context.Context, r MomentRequest) error {
	payload := events.Payload{
		"momentRequestId": r.ID,
		"senderId":        r.SenderID,
		"receiverId":      r.ReceiverID,
		"receiverName":    r.ReceiverName,
		"title":           r.Title,
	}
	setTimes(payload, r.StartTime, r.EndTime)

	event := events.New(events.MomentRequestRejected, events.AggregateMomentRequest, r.ID, 2, p.now(), payload,
		p.metadata(ctx, SourceMomentRequest, r.SenderID, events.PriorityHigh))
	return p.publish(ctx, event)
}

// PublishMomentRequestCanceled notifies the other party of a canceled meeting.
func (p *EventPublisher) PublishMomentRequestCanceled(ctx context.Context, c Cancellation) error {
	payload := events.Payload{
		"momentRequestId":  c.RequestID,
		"notifyUserId":     c.NotifyUserID,
		"canceledByUserId": c.CanceledByUserID,
		"canceledByName":   c.CanceledByName,
		"title":            c.Title,
	}
	setTimes(payload, c.StartTime, c.EndTime)

	event := events.New(events.MomentRequestCanceled, events.AggregateMomentRequest, c.RequestID, 1, p.now(), payload,
		p.metadata(ctx, SourceMomentRequest, c.NotifyUserID, events.PriorityHigh))
	return p.publish(ctx, event)
}

// PublishContactRegistered tells a user that one of their contacts joined.
func (p *EventPublisher) PublishContactRegistered(ctx context.Context, c Contact) error {
	payload := events.Payload{
		"contactUserId":  c.UserID,
		"contactOwnerId": c.OwnerID,
		"contactName":    c.Name,
		"phoneNumber":    c.PhoneNumber,
	}

	event := events.New(events.ContactRegistered, events.AggregateContact, c.UserID, 1, p.now(), payload,
		p.metadata(ctx, SourceUser, c.OwnerID, events.PriorityNormal))
	return p.publish(ctx, event)
}

// ScheduleMomentReminder persists a reminder that the sweeper publishes at
// reminderTime. Unlike the publish methods its error must reach the caller.
func (p *EventPublisher) ScheduleMomentReminder(ctx context.Context, m Moment, reminderTime time.Time) (*scheduling.ScheduledEvent, error) {
	payload := events.Payload{
		"momentId": m.ID,
		"userId":   m.UserID,
		"title":    firstNonEmpty(m.Title, m.Notes, "Moment"),
	}
	if !m.StartTime.IsZero() {
		payload["startTime"] = m.StartTime.UTC().Format(time.RFC3339)
		payload["minutesBefore"] = int(math.Round(m.StartTime.Sub(reminderTime).Minutes()))
	}

	event := events.New(events.MomentReminderDue, events.AggregateMoment, m.ID, 1, reminderTime, payload,
		p.metadata(ctx, SourceReminder, m.UserID, events.PriorityHigh))

	scheduled, err := scheduling.New(event, reminderTime)
	if err != nil {
		return nil, err
	}
	if err := p.scheduled.Create(ctx, scheduled); err != nil {
		p.logger.Error("failed to schedule reminder",
			zap.Error(err),
			zap.String("event_id", event.ID),
			zap.String("moment_id", m.ID),
			zap.Time("scheduled_for", reminderTime),
		)
		return nil, err
	}

	p.logger.Info("reminder scheduled",
		zap.String("event_id", event.ID),
		zap.String("moment_id", m.ID),
		zap.Time("scheduled_for", scheduled.ScheduledFor),
	)
	return scheduled, nil
}

// PublishBatch publishes prebuilt events in order.
func (p *EventPublisher) PublishBatch(ctx context.Context, batch []*events.Event) error {
	if len(batch) == 0 {
		return nil
	}
	if err := p.bus.PublishBatch(ctx, batch); err != nil {
		p.logger.Warn("failed to publish batch", zap.Error(err), zap.Int("count", len(batch)))
		return err
	}
	return nil
}

// PublishTestEvent sends a low priority contact.registered event addressed
// to userID, used to exercise the delivery pipeline end to end.
func (p *EventPublisher) PublishTestEvent(ctx context.Context, userID string, data events.Payload) (*events.Event, error) {
	payload := data.Clone()
	if !payload.Has("contactOwnerId") {
		payload["contactOwnerId"] = userID
	}
	if !payload.Has("contactName") {
		payload["contactName"] = "Test"
	}

	event := events.New(events.ContactRegistered, events.AggregateUser, userID, 1, p.now(), payload,
		p.metadata(ctx, SourceTest, userID, events.PriorityLow))
	return event, p.publish(ctx, event)
}

func setTimes(payload events.Payload, start, end time.Time) {
	if !start.IsZero() {
		payload["startTime"] = start.UTC().Format(time.RFC3339)
	}
	if !end.IsZero() {
		payload["endTime"] = end.UTC().Format(time.RFC3339)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
