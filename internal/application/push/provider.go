package push

import (
	"context"
	"time"
)

// Message is one push addressed to a single device token
type Message struct {
	To         string                 `json:"to"`
	Title      string                 `json:"title,omitempty"`
	Body       string                 `json:"body,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Sound      string                 `json:"sound,omitempty"`
	Priority   string                 `json:"priority,omitempty"`
	CategoryID string                 `json:"categoryId,omitempty"`
	// ContentAvailable marks a silent push that wakes the app without an alert.
	ContentAvailable bool `json:"_contentAvailable,omitempty"`
}

// Outcome classifies a ticket or receipt
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomePermanent Outcome = "permanent"
	OutcomeError     Outcome = "error"
)

// Ticket is the provider's immediate answer for one message. An ok ticket
// is provisional until its receipt confirms delivery.
type Ticket struct {
	ID      string
	Outcome Outcome
	Code    string
	Message string
}

// Receipt is the provider's later delivery confirmation for one ticket
type Receipt struct {
	Outcome Outcome
	Code    string
	Message string
}

// Provider sends pushes and resolves their receipts
type Provider interface {
	// Send delivers at most ChunkSize messages and returns one ticket per
	// message in order.
	Send(ctx context.Context, messages []Message) ([]Ticket, error)
	// Receipts resolves ticket ids. Tickets the provider does not know yet
	// are absent from the result.
	Receipts(ctx context.Context, ticketIDs []string) (map[string]Receipt, error)
}

// PendingTicket is a provisional ticket awaiting its receipt
type PendingTicket struct {
	TicketID string    `json:"ticketId"`
	Token    string    `json:"token"`
	UserID   string    `json:"userId"`
	DueAt    time.Time `json:"dueAt"`
}

// TicketStore remembers pending tickets until their receipts are due
type TicketStore interface {
	Add(ctx context.Context, tickets ...PendingTicket) error
	// Due returns up to limit tickets whose receipt check is due at now,
	// ordered by due time then ticket id, skipping the first offset.
	Due(ctx context.Context, now time.Time, offset, limit int) ([]PendingTicket, error)
	Remove(ctx context.Context, ticketIDs ...string) error
}
