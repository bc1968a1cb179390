package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/momentapp/notifier/internal/domain/device"
	"github.com/momentapp/notifier/internal/domain/events"
)

// TestToken returns a unique Expo style push token.
func TestToken() string {
	return fmt.Sprintf("ExponentPushToken[%s]", uuid.NewString()[:22])
}

// CreateTestRegistration creates an iOS registration with a fresh token.
func CreateTestRegistration(deviceID string) device.Registration {
	return device.Registration{
		PushToken:   TestToken(),
		DeviceID:    deviceID,
		Platform:    device.PlatformIOS,
		AppVersion:  "1.4.0",
		ExpoVersion: "52.0.0",
	}
}

// CreateRequestCreatedEvent builds a moment request from sender to receiver.
func CreateRequestCreatedEvent(senderID, receiverID string) *events.Event {
	requestID := uuid.NewString()
	return events.New(events.MomentRequestCreated, events.AggregateMomentRequest, requestID, 1, time.Now(),
		events.Payload{
			"momentRequestId": requestID,
			"senderId":        senderID,
			"receiverId":      receiverID,
			"senderName":      "Sender " + senderID,
			"title":           "Coffee",
			"startTime":       time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
			"endTime":         time.Now().Add(25 * time.Hour).UTC().Format(time.RFC3339),
		},
		events.Metadata{Source: "moment-request-service", UserID: receiverID, Priority: events.PriorityHigh},
	)
}

// CreateTestEvent builds an event of type t addressed to userID.
func CreateTestEvent(t events.EventType, userID string, payload events.Payload) *events.Event {
	return events.New(t, events.AggregateFor(t), uuid.NewString(), 1, time.Now(), payload,
		events.Metadata{Source: "test", UserID: userID, Priority: events.PriorityNormal})
}
