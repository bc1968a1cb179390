package gorm

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/momentapp/notifier/internal/domain/events"
	apperrors "github.com/momentapp/notifier/pkg/errors"
)

// EventStore implements events.Store
type EventStore struct {
	db *gorm.DB
}

// NewEventStore creates a new GORM event store
func NewEventStore(db *gorm.DB) *EventStore {
	return &EventStore{db: db}
}

var _ events.Store = (*EventStore)(nil)

// Append writes one audit row.
func (s *EventStore) Append(ctx context.Context, record *events.StoredEvent) error {
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return apperrors.Persistence("encode event metadata", err)
	}

	model := EventModel{
		ID:            record.ID,
		EventID:       record.EventID,
		EventType:     string(record.EventType),
		AggregateID:   record.AggregateID,
		AggregateType: string(record.AggregateType),
		Version:       record.Version,
		EventData:     string(record.EventData),
		Metadata:      string(metadata),
		Timestamp:     record.Timestamp.UTC(),
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return apperrors.Persistence("append event", err)
	}
	record.ID = model.ID
	record.CreatedAt = model.CreatedAt
	return nil
}

// OlderThan returns up to limit rows with a timestamp before cutoff, oldest first.
func (s *EventStore) OlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*events.StoredEvent, error) {
	var models []EventModel
	err := s.db.WithContext(ctx).
		Where("occurred_at < ?", cutoff.UTC()).
		Order("occurred_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, apperrors.Persistence("select expired events", err)
	}
	return toStoredEvents(models), nil
}

// DeleteByIDs removes the given rows.
func (s *EventStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&EventModel{})
	if result.Error != nil {
		return 0, apperrors.Persistence("delete events", result.Error)
	}
	return result.RowsAffected, nil
}

// ForAggregate returns the log of one aggregate ordered by timestamp.
func (s *EventStore) ForAggregate(ctx context.Context, aggregateType events.AggregateType, aggregateID string) ([]*events.StoredEvent, error) {
	var models []EventModel
	err := s.db.WithContext(ctx).
		Where("aggregate_type = ? AND aggregate_id = ?", string(aggregateType), aggregateID).
		Order("occurred_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, apperrors.Persistence("load aggregate events", err)
	}
	return toStoredEvents(models), nil
}

func toStoredEvents(models []EventModel) []*events.StoredEvent {
	out := make([]*events.StoredEvent, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out
}
