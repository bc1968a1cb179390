package handlers

import (
	"context"

	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/domain/events"
)

// EventStoreWriter appends every event it receives to the audit log
type EventStoreWriter struct {
	store  events.Store
	logger *zap.Logger
}

// NewEventStoreWriter creates a new event store writer
func NewEventStoreWriter(store events.Store, logger *zap.Logger) *EventStoreWriter {
	return &EventStoreWriter{
		store:  store,
		logger: logger.Named("event-store-writer"),
	}
}

// Handle persists the event. Failures are logged and swallowed so the bus
// and sibling handlers are unaffected.
func (w *EventStoreWriter) Handle(ctx context.Context, e *events.Event) error {
	record, err := events.NewStoredEvent(e)
	if err != nil {
		w.logger.Error("failed to serialize event",
			zap.String("event_id", e.ID),
			zap.String("event_type", string(e.Type)),
			zap.Error(err),
		)
		return nil
	}

	if err := w.store.Append(ctx, record); err != nil {
		w.logger.Error("failed to append event",
			zap.String("event_id", e.ID),
			zap.String("event_type", string(e.Type)),
			zap.Error(err),
		)
		return nil
	}

	w.logger.Debug("event stored",
		zap.String("event_id", e.ID),
		zap.String("event_type", string(e.Type)),
	)
	return nil
}
