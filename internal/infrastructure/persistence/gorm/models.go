package gorm

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/momentapp/notifier/internal/domain/device"
	"github.com/momentapp/notifier/internal/domain/events"
	"github.com/momentapp/notifier/internal/domain/notification"
	"github.com/momentapp/notifier/internal/domain/scheduling"
)

// BaseModel provides common fields for all models
type BaseModel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate assigns a UUID when the caller did not.
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// DeviceModel represents a registered device in the database
type DeviceModel struct {
	BaseModel
	UserID           string    `gorm:"not null;size:64;uniqueIndex:idx_devices_user_device"`
	DeviceID         string    `gorm:"not null;size:255;uniqueIndex:idx_devices_user_device"`
	Token            string    `gorm:"size:255;index"`
	Platform         string    `gorm:"not null;size:16"`
	AppVersion       string    `gorm:"size:32"`
	ExpoVersion      string    `gorm:"size:32"`
	IsActive         bool      `gorm:"not null;default:true;index"`
	LastSeen         time.Time `gorm:"not null"`
	LastTokenRefresh time.Time `gorm:"not null"`
	Status           string    `gorm:"column:token_validation_status;not null;size:32;default:'active';index"`
	FailureCount     int       `gorm:"not null;default:0"`
}

// TableName overrides the table name
func (DeviceModel) TableName() string { return "user_devices" }

// NotificationModel represents an in-app notification in the database
type NotificationModel struct {
	BaseModel
	UserID      string `gorm:"not null;size:64;index:idx_notifications_user_read"`
	Type        string `gorm:"not null;size:64"`
	Title       string `gorm:"not null"`
	Body        string `gorm:"not null"`
	Data        string `gorm:"type:text"`
	IsRead      bool   `gorm:"not null;default:false;index:idx_notifications_user_read"`
	IsDelivered bool   `gorm:"not null;default:false"`
	ReadAt      *time.Time
	DeliveredAt *time.Time
}

// TableName overrides the table name
func (NotificationModel) TableName() string { return "notifications" }

// ScheduledEventModel represents a deferred event in the database
type ScheduledEventModel struct {
	BaseModel
	EventType    string    `gorm:"not null;size:64"`
	EventData    string    `gorm:"type:text;not null"`
	ScheduledFor time.Time `gorm:"not null;index:idx_scheduled_due"`
	Status       string    `gorm:"not null;size:16;default:'pending';index:idx_scheduled_due"`
	Attempts     int       `gorm:"not null;default:0"`
	LastError    string    `gorm:"type:text"`
}

// TableName overrides the table name
func (ScheduledEventModel) TableName() string { return "scheduled_events" }

// EventModel represents an event store row in the database
type EventModel struct {
	ID            string    `gorm:"primaryKey;size:36"`
	EventID       string    `gorm:"not null;size:36;index"`
	EventType     string    `gorm:"not null;size:64;index"`
	AggregateID   string    `gorm:"not null;size:64;index:idx_event_store_aggregate"`
	AggregateType string    `gorm:"not null;size:32;index:idx_event_store_aggregate"`
	Version       int       `gorm:"not null;default:1"`
	EventData     string    `gorm:"type:text;not null"`
	Metadata      string    `gorm:"type:text"`
	Timestamp     time.Time `gorm:"column:occurred_at;not null;index"`
	CreatedAt     time.Time `gorm:"not null"`
}

// TableName overrides the table name
func (EventModel) TableName() string { return "event_store" }

// BeforeCreate assigns a UUID when the caller did not.
func (m *EventModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Models lists every table this service owns, in migration order.
func Models() []interface{} {
	return []interface{}{
		&DeviceModel{},
		&NotificationModel{},
		&ScheduledEventModel{},
		&EventModel{},
	}
}

// ToDomain converts a DeviceModel to a domain Device
func (m *DeviceModel) ToDomain() *device.Device {
	return &device.Device{
		ID:               m.ID,
		UserID:           m.UserID,
		Token:            m.Token,
		Platform:         device.Platform(m.Platform),
		DeviceID:         m.DeviceID,
		AppVersion:       m.AppVersion,
		ExpoVersion:      m.ExpoVersion,
		IsActive:         m.IsActive,
		LastSeen:         m.LastSeen,
		LastTokenRefresh: m.LastTokenRefresh,
		Status:           device.TokenStatus(m.Status),
		FailureCount:     m.FailureCount,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// ToDomain converts a NotificationModel to a domain Record
func (m *NotificationModel) ToDomain() *notification.Record {
	var data map[string]interface{}
	if m.Data != "" {
		// A corrupt data column still yields a readable notification.
		_ = json.Unmarshal([]byte(m.Data), &data)
	}
	return &notification.Record{
		ID:          m.ID,
		UserID:      m.UserID,
		Type:        events.EventType(m.Type),
		Title:       m.Title,
		Body:        m.Body,
		Data:        data,
		IsRead:      m.IsRead,
		IsDelivered: m.IsDelivered,
		ReadAt:      m.ReadAt,
		DeliveredAt: m.DeliveredAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// FromDomain populates a NotificationModel from a domain Record
func (m *NotificationModel) FromDomain(r *notification.Record) error {
	data := ""
	if len(r.Data) > 0 {
		raw, err := json.Marshal(r.Data)
		if err != nil {
			return err
		}
		data = string(raw)
	}
	m.ID = r.ID
	m.UserID = r.UserID
	m.Type = string(r.Type)
	m.Title = r.Title
	m.Body = r.Body
	m.Data = data
	m.IsRead = r.IsRead
	m.IsDelivered = r.IsDelivered
	m.ReadAt = r.ReadAt
	m.DeliveredAt = r.DeliveredAt
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt
	return nil
}

// ToDomain converts a ScheduledEventModel to a domain ScheduledEvent
func (m *ScheduledEventModel) ToDomain() *scheduling.ScheduledEvent {
	return &scheduling.ScheduledEvent{
		ID:           m.ID,
		EventData:    []byte(m.EventData),
		EventType:    events.EventType(m.EventType),
		ScheduledFor: m.ScheduledFor,
		Status:       scheduling.Status(m.Status),
		Attempts:     m.Attempts,
		LastError:    m.LastError,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// FromDomain populates a ScheduledEventModel from a domain ScheduledEvent
func (m *ScheduledEventModel) FromDomain(s *scheduling.ScheduledEvent) {
	m.ID = s.ID
	m.EventType = string(s.EventType)
	m.EventData = string(s.EventData)
	m.ScheduledFor = s.ScheduledFor.UTC()
	m.Status = string(s.Status)
	m.Attempts = s.Attempts
	m.LastError = s.LastError
	m.CreatedAt = s.CreatedAt
	m.UpdatedAt = s.UpdatedAt
}

// ToDomain converts an EventModel to a domain StoredEvent
func (m *EventModel) ToDomain() *events.StoredEvent {
	var meta events.Metadata
	if m.Metadata != "" {
		_ = json.Unmarshal([]byte(m.Metadata), &meta)
	}
	return &events.StoredEvent{
		ID:            m.ID,
		EventID:       m.EventID,
		EventType:     events.EventType(m.EventType),
		AggregateID:   m.AggregateID,
		AggregateType: events.AggregateType(m.AggregateType),
		Version:       m.Version,
		EventData:     []byte(m.EventData),
		Metadata:      meta,
		Timestamp:     m.Timestamp,
		CreatedAt:     m.CreatedAt,
	}
}
