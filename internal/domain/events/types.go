package events

import "strings"

// EventType identifies a kind of domain occurrence.
type EventType string

const (
	// User events
	UserRegistered     EventType = "user.registered"
	UserVerified       EventType = "user.verified"
	UserProfileUpdated EventType = "user.profile.updated"

	// Moment events
	MomentCreated EventType = "moment.created"
	MomentUpdated EventType = "moment.updated"
	MomentDeleted EventType = "moment.deleted"
	MomentShared  EventType = "moment.shared"

	// Moment request lifecycle
	MomentRequestCreated  EventType = "moment.request.created"
	MomentRequestApproved EventType = "moment.request.approved"
	MomentRequestRejected EventType = "moment.request.rejected"
	MomentRequestCanceled EventType = "moment.request.canceled"

	// Contact events
	ContactAdded      EventType = "contact.added"
	ContactRegistered EventType = "contact.registered"

	// Reminders
	MomentReminderDue EventType = "moment.reminder.due"
)

// AllTypes lists every event type the system emits.
func AllTypes() []EventType {
	return []EventType{
		UserRegistered, UserVerified, UserProfileUpdated,
		MomentCreated, MomentUpdated, MomentDeleted, MomentShared,
		MomentRequestCreated, MomentRequestApproved, MomentRequestRejected, MomentRequestCanceled,
		ContactAdded, ContactRegistered,
		MomentReminderDue,
	}
}

// String returns the wire form of the type.
func (t EventType) String() string {
	return string(t)
}

// Category is the final dot segment, e.g. "created" for moment.request.created.
func (t EventType) Category() string {
	s := string(t)
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}

// AggregateType names the entity an event is about.
type AggregateType string

const (
	AggregateUser          AggregateType = "user"
	AggregateMoment        AggregateType = "moment"
	AggregateContact       AggregateType = "contact"
	AggregateMomentRequest AggregateType = "moment_request"
)

// Priority orders events for delivery. Higher is more urgent.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 5
	PriorityHigh     Priority = 8
	PriorityCritical Priority = 10
)

// String returns the lower case name of the priority.
func (p Priority) String() string {
	switch {
	case p >= PriorityCritical:
		return "critical"
	case p >= PriorityHigh:
		return "high"
	case p >= PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// AggregateFor returns the aggregate type an event type is published under.
func AggregateFor(t EventType) AggregateType {
	s := string(t)
	switch {
	case strings.HasPrefix(s, "moment.request."):
		return AggregateMomentRequest
	case strings.HasPrefix(s, "moment."):
		return AggregateMoment
	case strings.HasPrefix(s, "contact."):
		return AggregateContact
	default:
		return AggregateUser
	}
}

// Topics returns the broker topic of every known event type under namespace,
// without duplicates.
func Topics(namespace string) []string {
	seen := make(map[string]struct{})
	var topics []string
	for _, t := range AllTypes() {
		topic := TopicFor(namespace, AggregateFor(t), t)
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}
	return topics
}
