package notification

import (
	"context"
	"time"

	"github.com/momentapp/notifier/internal/domain/events"
)

// Record is a durable in-app notification
type Record struct {
	ID          string
	UserID      string
	Type        events.EventType
	Title       string
	Body        string
	Data        map[string]interface{}
	IsRead      bool
	IsDelivered bool
	ReadAt      *time.Time
	DeliveredAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewRecord builds the row for msg. The row is stamped with the event time
// and marked delivered at deliveredAt.
func NewRecord(msg Message, at, deliveredAt time.Time) *Record {
	delivered := deliveredAt.UTC()
	return &Record{
		UserID:      msg.UserID,
		Type:        msg.Type,
		Title:       msg.Title,
		Body:        msg.Body,
		Data:        msg.Data,
		IsDelivered: true,
		DeliveredAt: &delivered,
		CreatedAt:   at.UTC(),
		UpdatedAt:   at.UTC(),
	}
}

// Repository persists notification records
type Repository interface {
	Create(ctx context.Context, record *Record) error
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*Record, int64, error)
	// MarkRead flips isRead for the user's notification. It returns NotFound
	// when the row does not belong to userID.
	MarkRead(ctx context.Context, userID, id string, at time.Time) error
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
