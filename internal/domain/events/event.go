package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope every component exchanges. The payload shape
// depends on Type; consumers read it through the fail soft accessors on
// Payload.
type Event struct {
	ID            string        `json:"id"`
	Type          EventType     `json:"type"`
	AggregateID   string        `json:"aggregateId"`
	AggregateType AggregateType `json:"aggregateType"`
	Version       int           `json:"version"`
	Timestamp     time.Time     `json:"timestamp"`
	Payload       Payload       `json:"payload"`
	Metadata      Metadata      `json:"metadata"`
}

// Metadata describes where an event came from and who it is for.
type Metadata struct {
	Source        string   `json:"source"`
	CorrelationID string   `json:"correlationId,omitempty"`
	CausationID   string   `json:"causationId,omitempty"`
	UserID        string   `json:"userId,omitempty"`
	RetryCount    int      `json:"retryCount,omitempty"`
	Priority      Priority `json:"priority,omitempty"`
}

// Handler processes a single event. Returned errors are logged by the bus
// and never reach the publisher.
type Handler func(ctx context.Context, event *Event) error

// New creates an event with a fresh id and the given timestamp.
func New(eventType EventType, aggregateType AggregateType, aggregateID string, version int, at time.Time, payload Payload, metadata Metadata) *Event {
	if payload == nil {
		payload = Payload{}
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       version,
		Timestamp:     at.UTC(),
		Payload:       payload,
		Metadata:      metadata,
	}
}

// Validate checks the fields every transport relies on.
func (e *Event) Validate() error {
	if e == nil {
		return errors.New("event is nil")
	}
	if e.ID == "" {
		return errors.New("event id is required")
	}
	if e.Type == "" {
		return errors.New("event type is required")
	}
	if e.AggregateType == "" {
		return errors.New("aggregate type is required")
	}
	return nil
}

// Topic returns the broker topic for the event: {namespace}.{aggregateType}.{category}.
func (e *Event) Topic(namespace string) string {
	return TopicFor(namespace, e.AggregateType, e.Type)
}

// TopicFor builds the broker topic for an aggregate type and event type.
func TopicFor(namespace string, aggregateType AggregateType, eventType EventType) string {
	return fmt.Sprintf("%s.%s.%s", namespace, aggregateType, eventType.Category())
}

// RecipientID returns the default fan out target.
func (e *Event) RecipientID() string {
	return e.Metadata.UserID
}

// Marshal serializes the event to JSON.
func (e *Event) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshaling event %s: %w", e.ID, err)
	}
	return data, nil
}

// Unmarshal decodes an event previously produced by Marshal.
func Unmarshal(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshaling event: %w", err)
	}
	if e.Payload == nil {
		e.Payload = Payload{}
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
