// Package db provides SurrealDB query functions for tickets, batches, and
// extracted graphs.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/pkolbe/ontograph-go/internal/models"
)

// --------------------------------------------------------------------------
// Tickets
// --------------------------------------------------------------------------

// PutTicket persists a ticket record keyed by token.
func (c *Client) PutTicket(ctx context.Context, token string, rec models.TicketRecord) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("ticket", $token) SET
			ontology_id = $ontology_id,
			api_key = $api_key,
			created_at = <datetime>$created_at,
			expires_at = <datetime>$expires_at
	`, map[string]any{
		"token":       token,
		"ontology_id": rec.OntologyID,
		"api_key":     rec.APIKey,
		"created_at":  rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		"expires_at":  rec.ExpiresAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("put ticket: %w", wrapQueryError(err))
	}
	return nil
}

// TakeTicket atomically deletes and returns the ticket record for token.
// The single DELETE ... RETURN BEFORE statement is what makes concurrent
// validations of the same token resolve to exactly one winner.
// Returns nil (no error) when the token is absent.
func (c *Client) TakeTicket(ctx context.Context, token string) (*models.TicketRecord, error) {
	results, err := surrealdb.Query[[]models.TicketRecord](ctx, c.db, `
		DELETE type::record("ticket", $token) RETURN BEFORE
	`, map[string]any{"token": token})
	if err != nil {
		return nil, fmt.Errorf("take ticket: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// SweepExpiredTickets removes tickets past their expiry.
func (c *Client) SweepExpiredTickets(ctx context.Context) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE ticket WHERE expires_at < time::now()
	`, nil)
	if err != nil {
		return fmt.Errorf("sweep expired tickets: %w", wrapQueryError(err))
	}
	return nil
}

// --------------------------------------------------------------------------
// Batches
// --------------------------------------------------------------------------

// CreateBatch persists a new batch record.
func (c *Client) CreateBatch(ctx context.Context, id string, rec models.BatchRecord) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("batch", $id) SET
			ontology_id = $ontology_id,
			vocabulary_version = $vocabulary_version,
			phase = $phase,
			items = $items,
			run_config = $run_config,
			state = $state,
			cause = $cause,
			can_resume = $can_resume,
			started_at = time::now()
	`, map[string]any{
		"id":                 id,
		"ontology_id":        rec.OntologyID,
		"vocabulary_version": rec.VocabularyVersion,
		"phase":              string(rec.Phase),
		"items":              rec.Items,
		"run_config":         rec.Config,
		"state":              rec.State,
		"cause":              rec.Cause,
		"can_resume":         rec.CanResume,
	})
	if err != nil {
		return fmt.Errorf("create batch: %w", wrapQueryError(err))
	}
	return nil
}

// GetBatch retrieves a batch by id. Returns nil if not found.
func (c *Client) GetBatch(ctx context.Context, id string) (*models.BatchRecord, error) {
	results, err := surrealdb.Query[[]models.BatchRecord](ctx, c.db, `
		SELECT * FROM type::record("batch", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// UpdateBatchState persists the latest progress snapshot of an active batch.
func (c *Client) UpdateBatchState(ctx context.Context, id string, state models.BatchState) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("batch", $id) SET state = $state
	`, map[string]any{"id": id, "state": state})
	if err != nil {
		return fmt.Errorf("update batch state: %w", wrapQueryError(err))
	}
	return nil
}

// SetBatchPhase transitions a batch's persisted phase, recording the cause
// and resumability for suspensions.
func (c *Client) SetBatchPhase(ctx context.Context, id string, phase models.BatchPhase, cause *string, canResume bool, state models.BatchState) error {
	sql := `
		UPDATE type::record("batch", $id) SET
			phase = $phase,
			cause = $cause,
			can_resume = $can_resume,
			state = $state
	`
	if phase == models.BatchPhaseCompleted {
		sql = `
		UPDATE type::record("batch", $id) SET
			phase = $phase,
			cause = $cause,
			can_resume = $can_resume,
			state = $state,
			completed_at = time::now()
	`
	}

	_, err := surrealdb.Query[any](ctx, c.db, sql, map[string]any{
		"id":         id,
		"phase":      string(phase),
		"cause":      cause,
		"can_resume": canResume,
		"state":      state,
	})
	if err != nil {
		return fmt.Errorf("set batch phase: %w", wrapQueryError(err))
	}
	return nil
}

// ListUnfinishedBatches returns batches that were active or suspended when
// the process last stopped. Used for crash recovery on startup.
func (c *Client) ListUnfinishedBatches(ctx context.Context) ([]models.BatchRecord, error) {
	results, err := surrealdb.Query[[]models.BatchRecord](ctx, c.db, `
		SELECT * FROM batch WHERE phase IN ["active", "suspended"]
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list unfinished batches: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.BatchRecord{}, nil
	}
	return (*results)[0].Result, nil
}

// --------------------------------------------------------------------------
// Processed items (idempotency keys)
// --------------------------------------------------------------------------

// MarkItemProcessed records an item's idempotency key. A duplicate key
// surfaces ErrAlreadyExists via the unique index.
func (c *Client) MarkItemProcessed(ctx context.Context, batchID, key string, index int) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE processed_item SET
			batch_id = $batch_id,
			key = $key,
			index = $index
	`, map[string]any{
		"batch_id": batchID,
		"key":      key,
		"index":    index,
	})
	if err != nil {
		return fmt.Errorf("mark item processed: %w", wrapQueryError(err))
	}
	return nil
}

// GetProcessedKeys returns the idempotency keys already recorded for a batch.
func (c *Client) GetProcessedKeys(ctx context.Context, batchID string) ([]string, error) {
	type row struct {
		Key string `json:"key"`
	}
	results, err := surrealdb.Query[[]row](ctx, c.db, `
		SELECT key FROM processed_item WHERE batch_id = $batch_id
	`, map[string]any{"batch_id": batchID})
	if err != nil {
		return nil, fmt.Errorf("get processed keys: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []string{}, nil
	}
	keys := make([]string, 0, len((*results)[0].Result))
	for _, r := range (*results)[0].Result {
		keys = append(keys, r.Key)
	}
	return keys, nil
}

// --------------------------------------------------------------------------
// Extracted graphs
// --------------------------------------------------------------------------

// entityRow is the persisted shape of an extracted entity.
type entityRow struct {
	ID surrealmodels.RecordID `json:"id"`
}

// SaveGraph persists one extraction result under its batch: entities first,
// then predicate edges between them.
func (c *Client) SaveGraph(ctx context.Context, batchID string, graph models.KnowledgeGraph) error {
	idByName := make(map[string]surrealmodels.RecordID, len(graph.Entities))

	for _, e := range graph.Entities {
		results, err := surrealdb.Query[[]entityRow](ctx, c.db, `
			CREATE entity SET
				class = $class,
				name = $name,
				properties = $properties,
				embedding = $embedding,
				batch_id = $batch_id
			RETURN id
		`, map[string]any{
			"class":      e.Class,
			"name":       e.Name,
			"properties": e.Properties,
			"embedding":  e.Embedding,
			"batch_id":   batchID,
		})
		if err != nil {
			return fmt.Errorf("create entity %q: %w", e.Name, wrapQueryError(err))
		}
		if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
			return fmt.Errorf("create entity %q: no record returned", e.Name)
		}
		idByName[e.Name] = (*results)[0].Result[0].ID
	}

	for _, r := range graph.Relations {
		fromID, ok := idByName[r.From]
		if !ok {
			return fmt.Errorf("relation %q references unknown entity %q", r.Predicate, r.From)
		}
		toID, ok := idByName[r.To]
		if !ok {
			return fmt.Errorf("relation %q references unknown entity %q", r.Predicate, r.To)
		}

		_, err := surrealdb.Query[any](ctx, c.db, `
			RELATE $from->relates->$to SET
				predicate = $predicate,
				batch_id = $batch_id
		`, map[string]any{
			"from":      fromID,
			"to":        toID,
			"predicate": r.Predicate,
			"batch_id":  batchID,
		})
		if err != nil {
			return fmt.Errorf("relate %s -[%s]-> %s: %w", r.From, r.Predicate, r.To, wrapQueryError(err))
		}
	}

	return nil
}

// CountBatchEntities returns how many entities a batch has persisted.
func (c *Client) CountBatchEntities(ctx context.Context, batchID string) (int, error) {
	type row struct {
		Count int `json:"count"`
	}
	results, err := surrealdb.Query[[]row](ctx, c.db, `
		SELECT count() AS count FROM entity WHERE batch_id = $batch_id GROUP ALL
	`, map[string]any{"batch_id": batchID})
	if err != nil {
		return 0, fmt.Errorf("count batch entities: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].Count, nil
}
