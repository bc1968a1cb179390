package device

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/momentapp/notifier/pkg/errors"
)

// TokenStatus is the health of a device's push token
type TokenStatus string

const (
	StatusActive              TokenStatus = "active"
	StatusSuspectedInvalid    TokenStatus = "suspected_invalid"
	StatusConfirmedInvalid    TokenStatus = "confirmed_invalid"
	StatusTemporarilyDisabled TokenStatus = "temporarily_disabled"
)

// Platform is the mobile OS of a device
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

const (
	// SuspectThreshold is the failure count at which a token becomes suspect.
	SuspectThreshold = 3
	// InvalidThreshold is the failure count at which a token is given up on.
	InvalidThreshold = 5
	// HealthyWindow bounds how long ago a device must have been seen to receive pushes.
	HealthyWindow = 30 * 24 * time.Hour
	// RevalidationBatch caps the suspected devices retested per sweep.
	RevalidationBatch = 100
)

// Device is one registered app install for a user
type Device struct {
	ID               string
	UserID           string
	Token            string
	Platform         Platform
	DeviceID         string
	AppVersion       string
	ExpoVersion      string
	IsActive         bool
	LastSeen         time.Time
	LastTokenRefresh time.Time
	Status           TokenStatus
	FailureCount     int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasToken reports whether the device can receive pushes at all.
func (d *Device) HasToken() bool {
	return d.Token != ""
}

// IsHealthy reports whether pushes should be sent to the device at now.
func (d *Device) IsHealthy(now time.Time) bool {
	if !d.IsActive || !d.HasToken() {
		return false
	}
	if d.Status != StatusActive && d.Status != StatusSuspectedInvalid {
		return false
	}
	return !d.LastSeen.Before(now.Add(-HealthyWindow))
}

// StatusAfterFailures returns the status a token moves to once it has
// accumulated failures non-permanent delivery failures.
func StatusAfterFailures(current TokenStatus, failures int) TokenStatus {
	switch {
	case current == StatusConfirmedInvalid || failures >= InvalidThreshold:
		return StatusConfirmedInvalid
	case failures >= SuspectThreshold:
		return StatusSuspectedInvalid
	default:
		return current
	}
}

// Registration is the payload of a device registration request
type Registration struct {
	PushToken   string   `json:"expoPushToken"`
	DeviceID    string   `json:"deviceId"`
	Platform    Platform `json:"platform"`
	AppVersion  string   `json:"appVersion"`
	ExpoVersion string   `json:"expoVersion"`
}

// Validate checks the registration and normalizes the platform.
func (r *Registration) Validate() error {
	r.DeviceID = strings.TrimSpace(r.DeviceID)
	r.PushToken = strings.TrimSpace(r.PushToken)
	r.Platform = Platform(strings.ToLower(strings.TrimSpace(string(r.Platform))))

	if r.DeviceID == "" {
		return apperrors.BadRequest("deviceId is required")
	}
	switch r.Platform {
	case PlatformIOS, PlatformAndroid:
	case "":
		return apperrors.BadRequest("platform is required")
	default:
		return apperrors.BadRequest("platform must be ios or android")
	}
	return nil
}

// Repository persists devices. Every write is keyed by token or by
// (userID, deviceID).
type Repository interface {
	// RegisterOrUpdate upserts the device for (userID, reg.DeviceID) and resets its health.
	RegisterOrUpdate(ctx context.Context, userID string, reg Registration) (*Device, error)
	// IncrementFailureCount atomically bumps the counter for token and
	// applies the degradation thresholds. It returns the updated device.
	IncrementFailureCount(ctx context.Context, token string) (*Device, error)
	// MarkTokenInvalid confirms the token as invalid and deactivates it.
	MarkTokenInvalid(ctx context.Context, token, reason string) error
	// MarkTokenActive resets the token to active with no failures.
	MarkTokenActive(ctx context.Context, token string) error
	HealthyDevicesForUser(ctx context.Context, userID string, now time.Time) ([]*Device, error)
	SuspectedInvalidDevices(ctx context.Context, limit int) ([]*Device, error)
	FindByToken(ctx context.Context, token string) (*Device, error)
	ListForUser(ctx context.Context, userID string) ([]*Device, error)
	Deactivate(ctx context.Context, userID, deviceID string) error
	UpdateLastSeen(ctx context.Context, token string, at time.Time) error
	RemoveByTokens(ctx context.Context, tokens []string) (int64, error)
	// CleanupStaleTokens deletes confirmed invalid rows older than
	// invalidBefore and rows whose token was last refreshed before refreshBefore.
	CleanupStaleTokens(ctx context.Context, invalidBefore, refreshBefore time.Time) (int64, error)
}
