package events

import (
	"context"
	"time"
)

// StoredEvent is an append-only audit row for a published event
type StoredEvent struct {
	ID            string
	EventID       string
	EventType     EventType
	AggregateID   string
	AggregateType AggregateType
	Version       int
	EventData     []byte
	Metadata      Metadata
	Timestamp     time.Time
	CreatedAt     time.Time
}

// NewStoredEvent serializes e into an audit row.
func NewStoredEvent(e *Event) (*StoredEvent, error) {
	data, err := e.Marshal()
	if err != nil {
		return nil, err
	}
	return &StoredEvent{
		EventID:       e.ID,
		EventType:     e.Type,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		Version:       e.Version,
		EventData:     data,
		Metadata:      e.Metadata,
		Timestamp:     e.Timestamp,
	}, nil
}

// Store is the append-only event log
type Store interface {
	Append(ctx context.Context, record *StoredEvent) error
	// OlderThan returns up to limit rows with a timestamp before cutoff, oldest first.
	OlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*StoredEvent, error)
	// DeleteByIDs removes the given rows.
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
	// ForAggregate returns the log of one aggregate ordered by timestamp.
	ForAggregate(ctx context.Context, aggregateType AggregateType, aggregateID string) ([]*StoredEvent, error)
}
