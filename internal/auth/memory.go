package auth

import (
	"context"
	"sync"
	"time"

	"github.com/pkolbe/ontograph-go/internal/models"
)

// MemoryStore is an in-process ticket store. Suitable for single-node
// deployments and tests; the SurrealDB store covers everything else.
type MemoryStore struct {
	mu      sync.Mutex
	tickets map[string]models.TicketRecord
}

// NewMemoryStore creates an empty in-memory ticket store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tickets: make(map[string]models.TicketRecord)}
}

// PutTicket stores a record keyed by token.
func (s *MemoryStore) PutTicket(_ context.Context, token string, rec models.TicketRecord) error {
	s.mu.Lock()
	s.tickets[token] = rec
	s.mu.Unlock()
	return nil
}

// TakeTicket atomically removes and returns the record for token.
// Returns nil when absent.
func (s *MemoryStore) TakeTicket(_ context.Context, token string) (*models.TicketRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tickets[token]
	if !ok {
		return nil, nil
	}
	delete(s.tickets, token)
	return &rec, nil
}

// SweepExpired drops records past their expiry. Returns the number removed.
func (s *MemoryStore) SweepExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, rec := range s.tickets {
		if now.After(rec.ExpiresAt) {
			delete(s.tickets, token)
			removed++
		}
	}
	return removed
}
