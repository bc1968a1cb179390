package push

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryTicketStore keeps pending tickets in process. Tickets are lost on restart.
type MemoryTicketStore struct {
	mu      sync.Mutex
	tickets map[string]PendingTicket
}

// NewMemoryTicketStore creates an empty store
func NewMemoryTicketStore() *MemoryTicketStore {
	return &MemoryTicketStore{tickets: make(map[string]PendingTicket)}
}

var _ TicketStore = (*MemoryTicketStore)(nil)

// Add remembers tickets, replacing any with the same id.
func (s *MemoryTicketStore) Add(ctx context.Context, tickets ...PendingTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tickets {
		s.tickets[t.TicketID] = t
	}
	return nil
}

// Due returns up to limit due tickets after offset, earliest first.
func (s *MemoryTicketStore) Due(ctx context.Context, now time.Time, offset, limit int) ([]PendingTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []PendingTicket
	for _, t := range s.tickets {
		if !t.DueAt.After(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].DueAt.Equal(due[j].DueAt) {
			return due[i].TicketID < due[j].TicketID
		}
		return due[i].DueAt.Before(due[j].DueAt)
	})
	if offset >= len(due) {
		return nil, nil
	}
	due = due[offset:]
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Remove forgets tickets.
func (s *MemoryTicketStore) Remove(ctx context.Context, ticketIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ticketIDs {
		delete(s.tickets, id)
	}
	return nil
}

// Len returns the number of pending tickets.
func (s *MemoryTicketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}
