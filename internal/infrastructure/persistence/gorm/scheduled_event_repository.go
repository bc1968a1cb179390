package gorm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/momentapp/notifier/internal/domain/scheduling"
	apperrors "github.com/momentapp/notifier/pkg/errors"
)

// ScheduledEventRepository implements scheduling.Repository
type ScheduledEventRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewScheduledEventRepository creates a new GORM scheduled event repository
func NewScheduledEventRepository(db *gorm.DB) *ScheduledEventRepository {
	return &ScheduledEventRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

var _ scheduling.Repository = (*ScheduledEventRepository)(nil)

// Create persists a new scheduled event.
func (r *ScheduledEventRepository) Create(ctx context.Context, event *scheduling.ScheduledEvent) error {
	var model ScheduledEventModel
	model.FromDomain(event)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return apperrors.Persistence("create scheduled event", err)
	}
	event.ID = model.ID
	event.CreatedAt = model.CreatedAt
	event.UpdatedAt = model.UpdatedAt
	return nil
}

// Due returns pending events whose time has come, oldest first.
func (r *ScheduledEventRepository) Due(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*scheduling.ScheduledEvent, error) {
	var models []ScheduledEventModel
	err := r.db.WithContext(ctx).
		Where("scheduled_for <= ? AND status = ? AND attempts < ?", now.UTC(), string(scheduling.StatusPending), maxAttempts).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, apperrors.Persistence("select due scheduled events", err)
	}

	out := make([]*scheduling.ScheduledEvent, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out, nil
}

// MarkFired transitions the event to fired.
func (r *ScheduledEventRepository) MarkFired(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&ScheduledEventModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     string(scheduling.StatusFired),
			"updated_at": r.now(),
		})
	if result.Error != nil {
		return apperrors.Persistence("mark scheduled event fired", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("scheduled event")
	}
	return nil
}

// RecordFailure increments attempts and fails the event at maxAttempts.
func (r *ScheduledEventRepository) RecordFailure(ctx context.Context, id string, cause error, maxAttempts int) (scheduling.Status, error) {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}

	result := r.db.WithContext(ctx).Model(&ScheduledEventModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"status":     gorm.Expr("CASE WHEN attempts + 1 >= ? THEN ? ELSE status END", maxAttempts, string(scheduling.StatusFailed)),
			"last_error": reason,
			"updated_at": r.now(),
		})
	if result.Error != nil {
		return "", apperrors.Persistence("record scheduled event failure", result.Error)
	}
	if result.RowsAffected == 0 {
		return "", apperrors.NotFound("scheduled event")
	}

	var model ScheduledEventModel
	if err := r.db.WithContext(ctx).Select("status").First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.NotFound("scheduled event")
		}
		return "", apperrors.Persistence("read scheduled event status", err)
	}
	return scheduling.Status(model.Status), nil
}

// Ready reports whether the scheduled events table exists.
func (r *ScheduledEventRepository) Ready(ctx context.Context) (bool, error) {
	return r.db.WithContext(ctx).Migrator().HasTable(&ScheduledEventModel{}), nil
}

// PurgeFinished deletes fired and failed events last touched before cutoff.
func (r *ScheduledEventRepository) PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []string{string(scheduling.StatusFired), string(scheduling.StatusFailed)}, cutoff.UTC()).
		Delete(&ScheduledEventModel{})
	if result.Error != nil {
		return 0, apperrors.Persistence("purge scheduled events", result.Error)
	}
	return result.RowsAffected, nil
}

// FindByID returns one scheduled event.
func (r *ScheduledEventRepository) FindByID(ctx context.Context, id string) (*scheduling.ScheduledEvent, error) {
	var model ScheduledEventModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("scheduled event")
		}
		return nil, apperrors.Persistence("find scheduled event", err)
	}
	return model.ToDomain(), nil
}
