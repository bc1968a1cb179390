package gorm

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/momentapp/notifier/internal/domain/notification"
	apperrors "github.com/momentapp/notifier/pkg/errors"
)

// NotificationRepository implements notification.Repository
type NotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new GORM notification repository
func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

var _ notification.Repository = (*NotificationRepository)(nil)

// Create inserts record and assigns its id.
func (r *NotificationRepository) Create(ctx context.Context, record *notification.Record) error {
	var model NotificationModel
	if err := model.FromDomain(record); err != nil {
		return apperrors.Persistence("encode notification data", err)
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return apperrors.Persistence("create notification", err)
	}
	record.ID = model.ID
	record.CreatedAt = model.CreatedAt
	record.UpdatedAt = model.UpdatedAt
	return nil
}

// ListForUser returns a page of the user's notifications, newest first, and the total count.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*notification.Record, int64, error) {
	query := r.db.WithContext(ctx).Model(&NotificationModel{}).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Persistence("count notifications", err)
	}

	var models []NotificationModel
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
		return nil, 0, apperrors.Persistence("list notifications", err)
	}

	out := make([]*notification.Record, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out, total, nil
}

// MarkRead flips isRead on one of the user's notifications.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id string, at time.Time) error {
	at = at.UTC()
	result := r.db.WithContext(ctx).Model(&NotificationModel{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{"is_read": true, "read_at": at, "updated_at": at})
	if result.Error != nil {
		return apperrors.Persistence("mark notification read", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("notification")
	}
	return nil
}

// MarkAllRead flips isRead on every unread notification of the user.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	at = at.UTC()
	result := r.db.WithContext(ctx).Model(&NotificationModel{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at, "updated_at": at})
	if result.Error != nil {
		return 0, apperrors.Persistence("mark notifications read", result.Error)
	}
	return result.RowsAffected, nil
}

// CountUnread returns the number of unread notifications of the user.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&NotificationModel{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.Persistence("count unread notifications", err)
	}
	return count, nil
}

// DeleteOlderThan removes notifications created before cutoff.
func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&NotificationModel{})
	if result.Error != nil {
		return 0, apperrors.Persistence("purge notifications", result.Error)
	}
	return result.RowsAffected, nil
}
