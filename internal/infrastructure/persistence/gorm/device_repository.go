package gorm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/momentapp/notifier/internal/domain/device"
	apperrors "github.com/momentapp/notifier/pkg/errors"
)

// DeviceRepository implements device.Repository
type DeviceRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDeviceRepository creates a new GORM device repository
func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

var _ device.Repository = (*DeviceRepository)(nil)

// RegisterOrUpdate upserts the (userID, deviceID) row and resets its token health.
func (r *DeviceRepository) RegisterOrUpdate(ctx context.Context, userID string, reg device.Registration) (*device.Device, error) {
	now := r.now()
	var model DeviceModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if reg.PushToken != "" {
			var owners int64
			if err := tx.Model(&DeviceModel{}).
				Where("token = ? AND user_id <> ? AND is_active = ?", reg.PushToken, userID, true).
				Count(&owners).Error; err != nil {
				return err
			}
			if owners > 0 {
				return apperrors.Conflict("push token is registered to another user")
			}
		}

		err := tx.Where("user_id = ? AND device_id = ?", userID, reg.DeviceID).First(&model).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			model = DeviceModel{
				UserID:           userID,
				DeviceID:         reg.DeviceID,
				Token:            reg.PushToken,
				Platform:         string(reg.Platform),
				AppVersion:       reg.AppVersion,
				ExpoVersion:      reg.ExpoVersion,
				IsActive:         true,
				LastSeen:         now,
				LastTokenRefresh: now,
				Status:           string(device.StatusActive),
			}
			return tx.Create(&model).Error
		case err != nil:
			return err
		}

		if reg.PushToken != "" {
			model.Token = reg.PushToken
		}
		model.Platform = string(reg.Platform)
		model.AppVersion = reg.AppVersion
		model.ExpoVersion = reg.ExpoVersion
		model.IsActive = true
		model.LastSeen = now
		model.LastTokenRefresh = now
		model.Status = string(device.StatusActive)
		model.FailureCount = 0
		return tx.Save(&model).Error
	})
	if err != nil {
		if apperrors.IsConflict(err) {
			return nil, err
		}
		if apperrors.IsDuplicateError(err) {
			return nil, apperrors.Conflict("device already registered")
		}
		return nil, apperrors.Persistence("register device", err)
	}
	return model.ToDomain(), nil
}

// IncrementFailureCount bumps the failure counter and applies the
// degradation thresholds in a single UPDATE.
func (r *DeviceRepository) IncrementFailureCount(ctx context.Context, token string) (*device.Device, error) {
	confirmed := string(device.StatusConfirmedInvalid)
	result := r.db.WithContext(ctx).Model(&DeviceModel{}).
		Where("token = ?", token).
		Updates(map[string]interface{}{
			"failure_count": gorm.Expr("failure_count + 1"),
			"token_validation_status": gorm.Expr(
				"CASE WHEN token_validation_status = ? OR failure_count + 1 >= ? THEN ? WHEN failure_count + 1 >= ? THEN ? ELSE token_validation_status END",
				confirmed, device.InvalidThreshold, confirmed,
				device.SuspectThreshold, string(device.StatusSuspectedInvalid),
			),
			"is_active":  gorm.Expr("CASE WHEN failure_count + 1 >= ? THEN ? ELSE is_active END", device.InvalidThreshold, false),
			"updated_at": r.now(),
		})
	if result.Error != nil {
		return nil, apperrors.Persistence("increment failure count", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperrors.NotFound("device token")
	}
	return r.FindByToken(ctx, token)
}

// MarkTokenInvalid confirms the token as invalid and deactivates every row carrying it.
func (r *DeviceRepository) MarkTokenInvalid(ctx context.Context, token, reason string) error {
	result := r.db.WithContext(ctx).Model(&DeviceModel{}).
		Where("token = ?", token).
		Updates(map[string]interface{}{
			"token_validation_status": string(device.StatusConfirmedInvalid),
			"is_active":               false,
			"failure_count":           gorm.Expr("failure_count + 1"),
			"updated_at":              r.now(),
		})
	if result.Error != nil {
		return apperrors.Persistence("mark token invalid: "+reason, result.Error)
	}
	return nil
}

// MarkTokenActive resets the token to active with a zero failure count.
func (r *DeviceRepository) MarkTokenActive(ctx context.Context, token string) error {
	result := r.db.WithContext(ctx).Model(&DeviceModel{}).
		Where("token = ?", token).
		Updates(map[string]interface{}{
			"token_validation_status": string(device.StatusActive),
			"failure_count":           0,
			"updated_at":              r.now(),
		})
	if result.Error != nil {
		return apperrors.Persistence("mark token active", result.Error)
	}
	return nil
}

// HealthyDevicesForUser returns the devices of userID that should receive pushes.
func (r *DeviceRepository) HealthyDevicesForUser(ctx context.Context, userID string, now time.Time) ([]*device.Device, error) {
	var models []DeviceModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND token <> ''", userID, true).
		Where("token_validation_status IN ?", []string{string(device.StatusActive), string(device.StatusSuspectedInvalid)}).
		Where("last_seen >= ?", now.UTC().Add(-device.HealthyWindow)).
		Find(&models).Error
	if err != nil {
		return nil, apperrors.Persistence("list healthy devices", err)
	}
	return toDevices(models), nil
}

// SuspectedInvalidDevices returns up to limit active devices awaiting revalidation.
func (r *DeviceRepository) SuspectedInvalidDevices(ctx context.Context, limit int) ([]*device.Device, error) {
	var models []DeviceModel
	err := r.db.WithContext(ctx).
		Where("token_validation_status = ? AND is_active = ? AND token <> ''", string(device.StatusSuspectedInvalid), true).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, apperrors.Persistence("list suspected devices", err)
	}
	return toDevices(models), nil
}

// FindByToken returns the most recently updated device carrying token.
func (r *DeviceRepository) FindByToken(ctx context.Context, token string) (*device.Device, error) {
	var model DeviceModel
	err := r.db.WithContext(ctx).Where("token = ?", token).Order("updated_at DESC").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("device token")
		}
		return nil, apperrors.Persistence("find device by token", err)
	}
	return model.ToDomain(), nil
}

// ListForUser returns every device of userID, newest first.
func (r *DeviceRepository) ListForUser(ctx context.Context, userID string) ([]*device.Device, error) {
	var models []DeviceModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("last_seen DESC").Find(&models).Error; err != nil {
		return nil, apperrors.Persistence("list devices", err)
	}
	return toDevices(models), nil
}

// Deactivate disables the user's device.
func (r *DeviceRepository) Deactivate(ctx context.Context, userID, deviceID string) error {
	result := r.db.WithContext(ctx).Model(&DeviceModel{}).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		Updates(map[string]interface{}{"is_active": false, "updated_at": r.now()})
	if result.Error != nil {
		return apperrors.Persistence("deactivate device", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("device")
	}
	return nil
}

// UpdateLastSeen records activity for every row carrying token.
func (r *DeviceRepository) UpdateLastSeen(ctx context.Context, token string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&DeviceModel{}).
		Where("token = ?", token).
		Updates(map[string]interface{}{"last_seen": at.UTC(), "updated_at": r.now()})
	if result.Error != nil {
		return apperrors.Persistence("update last seen", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("device token")
	}
	return nil
}

// RemoveByTokens deletes every row carrying one of tokens.
func (r *DeviceRepository) RemoveByTokens(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Where("token IN ?", tokens).Delete(&DeviceModel{})
	if result.Error != nil {
		return 0, apperrors.Persistence("remove devices", result.Error)
	}
	return result.RowsAffected, nil
}

// CleanupStaleTokens deletes long confirmed invalid rows and rows whose token
// has not been refreshed since refreshBefore.
func (r *DeviceRepository) CleanupStaleTokens(ctx context.Context, invalidBefore, refreshBefore time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("(token_validation_status = ? AND updated_at < ?) OR last_token_refresh < ?",
			string(device.StatusConfirmedInvalid), invalidBefore.UTC(), refreshBefore.UTC()).
		Delete(&DeviceModel{})
	if result.Error != nil {
		return 0, apperrors.Persistence("cleanup stale tokens", result.Error)
	}
	return result.RowsAffected, nil
}

func toDevices(models []DeviceModel) []*device.Device {
	out := make([]*device.Device, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out
}
