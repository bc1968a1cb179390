package notification

import (
	"sort"
	"strings"

	"github.com/momentapp/notifier/internal/domain/events"
)

// TargetRule extracts the user a notification is addressed to.
type TargetRule func(e *events.Event) string

// PayloadField targets the user id stored under key.
func PayloadField(key string) TargetRule {
	return func(e *events.Event) string {
		return e.Payload.String(key)
	}
}

// PayloadFieldOrRecipient targets the user under key, falling back to metadata.userId.
func PayloadFieldOrRecipient(key string) TargetRule {
	return func(e *events.Event) string {
		if id := e.Payload.String(key); id != "" {
			return id
		}
		return e.RecipientID()
	}
}

// Template describes how one event type becomes a user facing notification.
// Body placeholders have the form {payloadKey}. When any placeholder of Body
// is missing from the payload, Fallback is rendered instead.
type Template struct {
	Title    string
	Body     string
	Fallback string
	// DataKeys are copied from the payload into the structured data.
	DataKeys []string
	// Extra is merged into the structured data as is.
	Extra  map[string]interface{}
	Target TargetRule
	// Persist marks types that also produce an in-app notification row.
	Persist bool
}

// Message is a rendered notification for one user.
type Message struct {
	UserID string
	Type   events.EventType
	Title  string
	Body   string
	Data   map[string]interface{}
}

// defaults replace absent values referenced by a Fallback body.
var defaults = map[string]string{
	"title":          "Moment",
	"senderName":     "Someone",
	"receiverName":   "Someone",
	"canceledByName": "Someone",
	"contactName":    "A contact",
}

var catalog = map[events.EventType]Template{
	events.MomentRequestCreated: {
		Title:    "New Moment Request",
		Body:     `{senderName} invited you to "{title}"`,
		Fallback: `{senderName} sent you a moment request`,
		DataKeys: []string{"momentRequestId", "senderName", "title", "startTime", "endTime"},
		Extra:    map[string]interface{}{"categoryId": "MOMENT_REQUEST"},
		Target:   PayloadField("receiverId"),
		Persist:  true,
	},
	events.MomentRequestApproved: {
		Title:    "Moment Request Approved",
		Body:     "{receiverName} approved your moment request",
		Fallback: "Your moment request was approved",
		DataKeys: []string{"momentRequestId", "momentId", "startTime", "endTime"},
		Target:   PayloadField("senderId"),
		Persist:  true,
	},
	events.MomentRequestRejected: {
		Title:    "Moment Request Declined",
		Body:     "Your moment request was declined",
		DataKeys: []string{"momentRequestId", "startTime", "endTime"},
		Target:   PayloadField("senderId"),
		Persist:  true,
	},
	events.MomentRequestCanceled: {
		Title:    "Meeting Canceled",
		Body:     "{canceledByName} canceled the meeting",
		Fallback: "A meeting was canceled",
		DataKeys: []string{"momentRequestId", "startTime", "endTime"},
		Target:   PayloadField("notifyUserId"),
		Persist:  true,
	},
	events.MomentReminderDue: {
		Title:    "Moment Reminder",
		Body:     `"{title}" is starting in {minutesBefore} minutes`,
		Fallback: `"{title}" is starting soon`,
		DataKeys: []string{"momentId", "startTime", "minutesBefore"},
		Target:   PayloadField("userId"),
		Persist:  true,
	},
	events.ContactRegistered: {
		Title:    "Contact Joined Moment",
		Body:     "{contactName} just joined Moment!",
		Fallback: "{contactName} just joined Moment!",
		DataKeys: []string{"contactUserId", "contactName"},
		Target:   PayloadField("contactOwnerId"),
		Persist:  true,
	},
	events.MomentUpdated: {
		Title:    "Meeting Updated",
		Body:     `"{title}" has been updated`,
		Fallback: `"{title}" has been updated`,
		DataKeys: []string{"momentId", "momentRequestId", "userId", "startTime", "endTime"},
		Target:   PayloadFieldOrRecipient("otherUserId"),
	},
	events.MomentDeleted: {
		Title:    "Meeting Canceled",
		Body:     `"{title}" has been canceled`,
		Fallback: `"{title}" has been canceled`,
		DataKeys: []string{"momentId", "momentRequestId", "userId", "startTime", "endTime"},
		Target:   PayloadFieldOrRecipient("otherUserId"),
	},
}

// Lookup returns the template for t.
func Lookup(t events.EventType) (Template, bool) {
	tmpl, ok := catalog[t]
	return tmpl, ok
}

// Types lists every event type that produces a push, sorted.
func Types() []events.EventType {
	out := make([]events.EventType, 0, len(catalog))
	for t := range catalog {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PersistedTypes lists the event types that produce an in-app notification row, sorted.
func PersistedTypes() []events.EventType {
	var out []events.EventType
	for _, t := range Types() {
		if catalog[t].Persist {
			out = append(out, t)
		}
	}
	return out
}

// Render builds the message for e. It returns false when the type is not
// mapped or no target user can be resolved.
func Render(e *events.Event) (Message, bool) {
	tmpl, ok := catalog[e.Type]
	if !ok {
		return Message{}, false
	}
	userID := tmpl.Target(e)
	if userID == "" {
		return Message{}, false
	}

	body, complete := fill(tmpl.Body, e.Payload, false)
	if !complete && tmpl.Fallback != "" {
		body, _ = fill(tmpl.Fallback, e.Payload, true)
	}

	data := make(map[string]interface{}, len(tmpl.DataKeys)+len(tmpl.Extra)+2)
	for _, key := range tmpl.DataKeys {
		if e.Payload.Has(key) {
			data[key] = e.Payload[key]
		}
	}
	for k, v := range tmpl.Extra {
		data[k] = v
	}
	if e.Type == events.MomentRequestCreated {
		if id := e.Payload.String("momentRequestId"); id != "" {
			data["actions"] = []map[string]string{
				{"action": "accept", "title": "Accept", "requestId": id},
				{"action": "reject", "title": "Reject", "requestId": id},
			}
		}
	}
	data["eventType"] = string(e.Type)
	data["eventId"] = e.ID

	return Message{
		UserID: userID,
		Type:   e.Type,
		Title:  tmpl.Title,
		Body:   body,
		Data:   data,
	}, true
}

// fill substitutes {key} placeholders from payload. It reports whether
// every placeholder had a value. With useDefaults, missing keys take their
// entry from defaults.
func fill(tmpl string, payload events.Payload, useDefaults bool) (string, bool) {
	var b strings.Builder
	complete := true
	rest := tmpl
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			b.WriteString(rest)
			break
		}
		key := rest[start+1 : start+end]
		b.WriteString(rest[:start])

		value := payload.String(key)
		if value == "" {
			complete = false
			if useDefaults {
				value = defaults[key]
			}
		}
		b.WriteString(value)
		rest = rest[start+end+1:]
	}
	return b.String(), complete
}
