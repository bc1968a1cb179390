package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	devicesvc "github.com/momentapp/notifier/internal/application/device"
	"github.com/momentapp/notifier/internal/domain/device"
	"github.com/momentapp/notifier/internal/domain/events"
	apperrors "github.com/momentapp/notifier/pkg/errors"
)

// DeviceHandler serves the device registration endpoints
type DeviceHandler struct {
	devices *devicesvc.Service
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(devices *devicesvc.Service) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

type deviceView struct {
	ID               string             `json:"id"`
	DeviceID         string             `json:"deviceId"`
	Platform         device.Platform    `json:"platform"`
	AppVersion       string             `json:"appVersion,omitempty"`
	ExpoVersion      string             `json:"expoVersion,omitempty"`
	HasToken         bool               `json:"hasToken"`
	IsActive         bool               `json:"isActive"`
	Status           device.TokenStatus `json:"status"`
	FailureCount     int                `json:"failureCount"`
	LastSeen         time.Time          `json:"lastSeen"`
	LastTokenRefresh time.Time          `json:"lastTokenRefresh"`
}

func newDeviceView(d *device.Device) deviceView {
	return deviceView{
		ID:               d.ID,
		DeviceID:         d.DeviceID,
		Platform:         d.Platform,
		AppVersion:       d.AppVersion,
		ExpoVersion:      d.ExpoVersion,
		HasToken:         d.HasToken(),
		IsActive:         d.IsActive,
		Status:           d.Status,
		FailureCount:     d.FailureCount,
		LastSeen:         d.LastSeen,
		LastTokenRefresh: d.LastTokenRefresh,
	}
}

// Register handles POST /devices/register
func (h *DeviceHandler) Register(c *gin.Context) {
	var req device.Registration
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.BadRequest("invalid request body"))
		return
	}

	result, err := h.devices.Register(c.Request.Context(), currentUser(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// List handles GET /devices
func (h *DeviceHandler) List(c *gin.Context) {
	list, err := h.devices.List(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}

	views := make([]deviceView, len(list))
	for i, d := range list {
		views[i] = newDeviceView(d)
	}
	c.JSON(http.StatusOK, gin.H{"devices": views})
}

// Deactivate handles DELETE /devices/:deviceId
func (h *DeviceHandler) Deactivate(c *gin.Context) {
	if err := h.devices.Deactivate(c.Request.Context(), currentUser(c), c.Param("deviceId")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Activity handles POST /devices/activity
func (h *DeviceHandler) Activity(c *gin.Context) {
	var req struct {
		PushToken string `json:"expoPushToken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.BadRequest("invalid request body"))
		return
	}

	if err := h.devices.RecordActivity(c.Request.Context(), currentUser(c), req.PushToken); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SendTest handles POST /devices/test
func (h *DeviceHandler) SendTest(c *gin.Context) {
	var req struct {
		Data map[string]interface{} `json:"data"`
	}
	// an empty body is allowed
	_ = c.ShouldBindJSON(&req)

	event, err := h.devices.SendTest(c.Request.Context(), currentUser(c), events.Payload(req.Data))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"eventId": event.ID})
}
