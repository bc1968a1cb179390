package push

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/domain/device"
	"github.com/momentapp/notifier/internal/domain/events"
	"github.com/momentapp/notifier/internal/domain/notification"
	"github.com/momentapp/notifier/internal/metrics"
	apperrors "github.com/momentapp/notifier/pkg/errors"
)

// DefaultChunkSize is the largest batch the provider accepts
const DefaultChunkSize = 100

// DefaultReceiptDelay is how long the provider needs before receipts are ready
const DefaultReceiptDelay = 15 * time.Minute

// Report summarizes a delivery to one user
type Report struct {
	Devices   int
	Accepted  int
	Permanent int
	Failed    int
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithChunkSize sets how many messages one provider call carries.
func WithChunkSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.chunkSize = n
		}
	}
}

// WithReceiptDelay sets how long after sending a ticket is reconciled.
func WithReceiptDelay(delay time.Duration) Option {
	return func(d *Dispatcher) {
		if delay > 0 {
			d.receiptDelay = delay
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher turns user facing events into pushes for the target user's
// healthy devices.
type Dispatcher struct {
	devices      device.Repository
	provider     Provider
	tickets      TicketStore
	health       tokenHealth
	logger       *zap.Logger
	chunkSize    int
	receiptDelay time.Duration
	now          func() time.Time
}

// NewDispatcher creates a dispatcher
func NewDispatcher(devices device.Repository, provider Provider, tickets TicketStore, logger *zap.Logger, opts ...Option) *Dispatcher {
	logger = logger.Named("push")
	d := &Dispatcher{
		devices:      devices,
		provider:     provider,
		tickets:      tickets,
		health:       tokenHealth{devices: devices, logger: logger},
		logger:       logger,
		chunkSize:    DefaultChunkSize,
		receiptDelay: DefaultReceiptDelay,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle is the event handler. Unmapped types and events without a target
// are skipped.
func (d *Dispatcher) Handle(ctx context.Context, e *events.Event) error {
	msg, ok := notification.Render(e)
	if !ok {
		return nil
	}

	report, err := d.Send(ctx, msg, e.Metadata.Priority)
	if err != nil {
		return err
	}
	if report.Devices > 0 {
		d.logger.Debug("push delivered",
			zap.String("event_id", e.ID),
			zap.String("event_type", string(e.Type)),
			zap.String("user_id", msg.UserID),
			zap.Int("devices", report.Devices),
			zap.Int("accepted", report.Accepted),
		)
	}
	return nil
}

// Send pushes msg to every healthy device of its user.
func (d *Dispatcher) Send(ctx context.Context, msg notification.Message, priority events.Priority) (Report, error) {
	var report Report

	devices, err := d.devices.HealthyDevicesForUser(ctx, msg.UserID, d.now())
	if err != nil {
		return report, err
	}
	if len(devices) == 0 {
		d.logger.Debug("no healthy devices", zap.String("user_id", msg.UserID))
		return report, nil
	}
	report.Devices = len(devices)

	messages := make([]Message, len(devices))
	for i, dev := range devices {
		messages[i] = buildMessage(dev.Token, msg, priority)
	}

	var pending []PendingTicket
	// Tickets from chunks the provider accepted are queued even when a
	// later chunk fails.
	defer func() { d.queue(ctx, pending) }()

	for start := 0; start < len(messages); start += d.chunkSize {
		end := start + d.chunkSize
		if end > len(messages) {
			end = len(messages)
		}

		tickets, err := d.provider.Send(ctx, messages[start:end])
		if err != nil {
			metrics.RecordPush(string(OutcomeError), end-start)
			d.logger.Error("push provider call failed",
				zap.String("user_id", msg.UserID),
				zap.Int("messages", end-start),
				zap.Error(err),
			)
			return report, apperrors.TransientDelivery("push send", err)
		}

		for i, ticket := range tickets {
			if start+i >= end {
				break
			}
			dev := devices[start+i]
			metrics.RecordPush(string(ticket.Outcome), 1)

			switch ticket.Outcome {
			case OutcomeOK:
				report.Accepted++
				if ticket.ID != "" {
					pending = append(pending, PendingTicket{
						TicketID: ticket.ID,
						Token:    dev.Token,
						UserID:   dev.UserID,
						DueAt:    d.now().Add(d.receiptDelay),
					})
				}
			case OutcomePermanent:
				report.Permanent++
				d.health.invalidate(ctx, dev.Token, ticket.Code)
			default:
				report.Failed++
				d.health.fail(ctx, dev.Token, ticket.Code)
			}
		}
	}

	return report, nil
}

func (d *Dispatcher) queue(ctx context.Context, pending []PendingTicket) {
	if len(pending) == 0 {
		return
	}
	if err := d.tickets.Add(ctx, pending...); err != nil {
		d.logger.Error("failed to queue push tickets", zap.Int("tickets", len(pending)), zap.Error(err))
	}
}

func buildMessage(token string, msg notification.Message, priority events.Priority) Message {
	m := Message{
		To:       token,
		Title:    msg.Title,
		Body:     msg.Body,
		Data:     msg.Data,
		Sound:    "default",
		Priority: "default",
	}
	if priority >= events.PriorityHigh {
		m.Priority = "high"
	}
	if category, ok := msg.Data["categoryId"].(string); ok {
		m.CategoryID = category
	}
	return m
}
