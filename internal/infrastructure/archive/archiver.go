package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/domain/events"
)

// record is one archived line
type record struct {
	ID            string          `json:"id"`
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	AggregateID   string          `json:"aggregateId"`
	AggregateType string          `json:"aggregateType"`
	Version       int             `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Metadata      events.Metadata `json:"metadata"`
	Event         json.RawMessage `json:"event"`
}

// EventArchiver writes batches of event store rows as JSON lines, one
// object per batch, keyed by the day of the oldest row.
type EventArchiver struct {
	storage Storage
	logger  *zap.Logger
	now     func() time.Time
}

// NewEventArchiver creates an archiver on top of storage
func NewEventArchiver(storage Storage, logger *zap.Logger) *EventArchiver {
	return &EventArchiver{storage: storage, logger: logger.Named("archive"), now: time.Now}
}

// Archive stores batch. An empty batch writes nothing.
func (a *EventArchiver) Archive(ctx context.Context, batch []*events.StoredEvent) error {
	if len(batch) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range batch {
		line := record{
			ID:            e.ID,
			EventID:       e.EventID,
			EventType:     string(e.EventType),
			AggregateID:   e.AggregateID,
			AggregateType: string(e.AggregateType),
			Version:       e.Version,
			Timestamp:     e.Timestamp.UTC(),
			Metadata:      e.Metadata,
		}
		if json.Valid(e.EventData) {
			line.Event = json.RawMessage(e.EventData)
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("encoding archived event %s: %w", e.ID, err)
		}
	}

	key := Key(batch[0].Timestamp, batch[0].ID, a.now())
	if err := a.storage.Store(ctx, key, &buf); err != nil {
		return err
	}

	a.logger.Info("archived events", zap.String("key", key), zap.Int("count", len(batch)))
	return nil
}

// Key names an archive object: events/YYYY/MM/DD/<first id>-<unix nanos>.jsonl
func Key(oldest time.Time, firstID string, at time.Time) string {
	oldest = oldest.UTC()
	return fmt.Sprintf("events/%04d/%02d/%02d/%s-%d.jsonl",
		oldest.Year(), int(oldest.Month()), oldest.Day(), firstID, at.UnixNano())
}
