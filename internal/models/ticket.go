package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// TicketRecord is the persisted form of an access ticket, keyed by token.
// The record is destroyed on first successful validation or on expiry.
type TicketRecord struct {
	ID         surrealmodels.RecordID `json:"id"`
	OntologyID string                 `json:"ontology_id"`
	APIKey     string                 `json:"api_key"`
	CreatedAt  time.Time              `json:"created_at"`
	ExpiresAt  time.Time              `json:"expires_at"`
}
