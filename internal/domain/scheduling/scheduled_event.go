package scheduling

import (
	"context"
	"time"

	"github.com/momentapp/notifier/internal/domain/events"
)

// Status is the lifecycle state of a scheduled event
type Status string

const (
	StatusPending Status = "pending"
	StatusFired   Status = "fired"
	StatusFailed  Status = "failed"
)

// MaxAttempts is the number of publish attempts before an event is failed.
const MaxAttempts = 3

// ScheduledEvent is an event persisted for publication at a later time
type ScheduledEvent struct {
	ID           string
	EventData    []byte
	EventType    events.EventType
	ScheduledFor time.Time
	Status       Status
	Attempts     int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// New serializes event into a pending scheduled event firing at scheduledFor.
// The scheduled event shares the event's id.
func New(event *events.Event, scheduledFor time.Time) (*ScheduledEvent, error) {
	data, err := event.Marshal()
	if err != nil {
		return nil, err
	}
	return &ScheduledEvent{
		ID:           event.ID,
		EventData:    data,
		EventType:    event.Type,
		ScheduledFor: scheduledFor.UTC(),
		Status:       StatusPending,
	}, nil
}

// Event decodes the stored envelope.
func (s *ScheduledEvent) Event() (*events.Event, error) {
	return events.Unmarshal(s.EventData)
}

// IsDue reports whether the event should be swept at now.
func (s *ScheduledEvent) IsDue(now time.Time, maxAttempts int) bool {
	return s.Status == StatusPending && s.Attempts < maxAttempts && !s.ScheduledFor.After(now)
}

// StatusAfterFailure returns the status once attempts failed publishes
// have been recorded.
func StatusAfterFailure(attempts, maxAttempts int) Status {
	if attempts >= maxAttempts {
		return StatusFailed
	}
	return StatusPending
}

// Repository persists scheduled events
type Repository interface {
	Create(ctx context.Context, event *ScheduledEvent) error
	// Due returns up to limit pending events scheduled at or before now with
	// fewer than maxAttempts attempts, oldest first.
	Due(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*ScheduledEvent, error)
	MarkFired(ctx context.Context, id string) error
	// RecordFailure increments attempts and fails the event once
	// maxAttempts is reached. It returns the resulting status.
	RecordFailure(ctx context.Context, id string, cause error, maxAttempts int) (Status, error)
	// Ready reports whether the backing table exists.
	Ready(ctx context.Context) (bool, error)
	// PurgeFinished deletes fired and failed events last updated before cutoff.
	PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error)
}
