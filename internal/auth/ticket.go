// Package auth implements the ticket authority: short-lived, single-use
// access credentials scoped to one ontology, used to authorize streaming
// connections.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pkolbe/ontograph-go/internal/models"
)

// Sentinel errors for ticket validation. Surfaced to callers as
// access-denied; never retried automatically.
var (
	// ErrTicketNotFound indicates the token is unknown. Because validation
	// destroys the record, a reused token also reports not-found.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrTicketExpired indicates the token was presented after expiresAt.
	ErrTicketExpired = errors.New("ticket expired")
)

// Ticket is an issued access credential. The token is the caller's only
// handle; the record behind it lives in the store until first validation
// or expiry.
type Ticket struct {
	Token      string    `json:"ticket"`
	OntologyID string    `json:"ontology_id"`
	APIKey     string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Scope is what a successful validation returns.
type Scope struct {
	OntologyID string `json:"ontology_id"`
	APIKey     string `json:"api_key"`
}

// Store persists ticket records keyed by token. TakeTicket must atomically
// remove and return the record so concurrent validations of the same token
// resolve to exactly one winner.
type Store interface {
	PutTicket(ctx context.Context, token string, rec models.TicketRecord) error
	// TakeTicket returns nil (no error) when the token is absent.
	TakeTicket(ctx context.Context, token string) (*models.TicketRecord, error)
}

// Authority issues and validates single-use, time-bound tickets.
type Authority struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewAuthority creates a ticket authority with the given TTL.
func NewAuthority(store Store, ttl time.Duration) *Authority {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Authority{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

// TTLSeconds returns the configured ticket lifetime in seconds.
func (a *Authority) TTLSeconds() int {
	return int(a.ttl / time.Second)
}

// Issue generates an unpredictable token scoped to one ontology and persists
// the record. Tickets are not renewable; consumption or expiry requires a
// new one.
func (a *Authority) Issue(ctx context.Context, ontologyID, apiKey string) (Ticket, error) {
	now := a.now()
	ticket := Ticket{
		Token:      uuid.NewString(),
		OntologyID: ontologyID,
		APIKey:     apiKey,
		CreatedAt:  now,
		ExpiresAt:  now.Add(a.ttl),
	}

	rec := models.TicketRecord{
		OntologyID: ticket.OntologyID,
		APIKey:     ticket.APIKey,
		CreatedAt:  ticket.CreatedAt,
		ExpiresAt:  ticket.ExpiresAt,
	}
	if err := a.store.PutTicket(ctx, ticket.Token, rec); err != nil {
		return Ticket{}, fmt.Errorf("persist ticket: %w", err)
	}

	return ticket, nil
}

// Validate consumes a token. The delete-on-read in the store is the
// single-use contract: the record is destroyed before the scope is returned,
// so a second validation of the same token fails with ErrTicketNotFound.
func (a *Authority) Validate(ctx context.Context, token string) (Scope, error) {
	rec, err := a.store.TakeTicket(ctx, token)
	if err != nil {
		return Scope{}, fmt.Errorf("take ticket: %w", err)
	}
	if rec == nil {
		return Scope{}, ErrTicketNotFound
	}
	if a.now().After(rec.ExpiresAt) {
		return Scope{}, ErrTicketExpired
	}

	return Scope{OntologyID: rec.OntologyID, APIKey: rec.APIKey}, nil
}
