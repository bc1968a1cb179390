package device

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/domain/device"
	"github.com/momentapp/notifier/internal/domain/events"
	apperrors "github.com/momentapp/notifier/pkg/errors"
)

// TestSender publishes the end to end test event
type TestSender interface {
	PublishTestEvent(ctx context.Context, userID string, data events.Payload) (*events.Event, error)
}

// RegistrationResult is returned to the app after registering
type RegistrationResult struct {
	DeviceID         string             `json:"deviceId"`
	Status           device.TokenStatus `json:"status"`
	LastTokenRefresh time.Time          `json:"lastTokenRefresh"`
}

// Service handles device registration and maintenance requests.
type Service struct {
	repo        device.Repository
	tester      TestSender
	environment string
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a new device service.
func NewService(repo device.Repository, tester TestSender, environment string, logger *zap.Logger) *Service {
	return &Service{
		repo:        repo,
		tester:      tester,
		environment: environment,
		logger:      logger.Named("devices"),
		now:         time.Now,
	}
}

// Register upserts the caller's device and resets its token health.
func (s *Service) Register(ctx context.Context, userID string, reg device.Registration) (*RegistrationResult, error) {
	if userID == "" {
		return nil, apperrors.Unauthorized("user id is required")
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	d, err := s.repo.RegisterOrUpdate(ctx, userID, reg)
	if err != nil {
		return nil, err
	}

	s.logger.Info("device registered",
		zap.String("user_id", userID),
		zap.String("device_id", d.DeviceID),
		zap.String("platform", string(d.Platform)),
		zap.Bool("has_token", d.HasToken()),
	)

	return &RegistrationResult{
		DeviceID:         d.DeviceID,
		Status:           d.Status,
		LastTokenRefresh: d.LastTokenRefresh,
	}, nil
}

// List returns every device of the user.
func (s *Service) List(ctx context.Context, userID string) ([]*device.Device, error) {
	return s.repo.ListForUser(ctx, userID)
}

// Deactivate stops pushes to one of the user's devices.
func (s *Service) Deactivate(ctx context.Context, userID, deviceID string) error {
	if strings.TrimSpace(deviceID) == "" {
		return apperrors.BadRequest("deviceId is required")
	}
	if err := s.repo.Deactivate(ctx, userID, deviceID); err != nil {
		return err
	}
	s.logger.Info("device deactivated", zap.String("user_id", userID), zap.String("device_id", deviceID))
	return nil
}

// RecordActivity refreshes lastSeen for a token the user owns.
func (s *Service) RecordActivity(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperrors.BadRequest("expoPushToken is required")
	}

	d, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		return err
	}
	if d.UserID != userID {
		return apperrors.NotFound("device")
	}
	return s.repo.UpdateLastSeen(ctx, token, s.now())
}

// RemoveTokens deletes the devices carrying any of tokens, whoever owns
// them. Blank and repeated tokens are ignored.
func (s *Service) RemoveTokens(ctx context.Context, tokens []string) (int64, error) {
	seen := make(map[string]struct{}, len(tokens))
	cleaned := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		cleaned = append(cleaned, t)
	}
	if len(cleaned) == 0 {
		return 0, apperrors.BadRequest("at least one token is required")
	}

	removed, err := s.repo.RemoveByTokens(ctx, cleaned)
	if err != nil {
		return 0, err
	}
	s.logger.Info("devices removed by token",
		zap.Int("requested", len(cleaned)),
		zap.Int64("removed", removed))
	return removed, nil
}

// SendTest publishes a low priority test event to the user. It is refused
// in production.
func (s *Service) SendTest(ctx context.Context, userID string, data events.Payload) (*events.Event, error) {
	if s.environment == "production" {
		return nil, apperrors.Forbidden("test notifications are disabled in production")
	}
	return s.tester.PublishTestEvent(ctx, userID, data)
}
