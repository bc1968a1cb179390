package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/domain/events"
	"github.com/momentapp/notifier/internal/domain/notification"
)

// NotificationWriter keeps a durable in-app record for the subset of events
// a user must be able to find after being offline
type NotificationWriter struct {
	repo      notification.Repository
	persisted map[events.EventType]struct{}
	now       func() time.Time
	logger    *zap.Logger
}

// NewNotificationWriter creates a new notification writer
func NewNotificationWriter(repo notification.Repository, logger *zap.Logger) *NotificationWriter {
	persisted := make(map[events.EventType]struct{})
	for _, t := range notification.PersistedTypes() {
		persisted[t] = struct{}{}
	}
	return &NotificationWriter{
		repo:      repo,
		persisted: persisted,
		now:       time.Now,
		logger:    logger.Named("notification-writer"),
	}
}

// EventTypes returns the event types this writer persists
func (w *NotificationWriter) EventTypes() []events.EventType {
	return notification.PersistedTypes()
}

// Handle maps the event to a notification record and stores it. Failures
// are logged and swallowed.
func (w *NotificationWriter) Handle(ctx context.Context, e *events.Event) error {
	if _, ok := w.persisted[e.Type]; !ok {
		return nil
	}

	msg, ok := notification.Render(e)
	if !ok {
		w.logger.Debug("no notification target for event",
			zap.String("event_id", e.ID),
			zap.String("event_type", string(e.Type)),
		)
		return nil
	}

	record := notification.NewRecord(msg, e.Timestamp, w.now())
	if err := w.repo.Create(ctx, record); err != nil {
		w.logger.Error("failed to store notification",
			zap.String("event_id", e.ID),
			zap.String("event_type", string(e.Type)),
			zap.String("user_id", msg.UserID),
			zap.Error(err),
		)
		return nil
	}

	w.logger.Debug("notification stored",
		zap.String("event_id", e.ID),
		zap.String("user_id", msg.UserID),
		zap.String("notification_id", record.ID),
	)
	return nil
}
