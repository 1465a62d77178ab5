package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// BatchPhase is the persisted lifecycle phase of a batch.
type BatchPhase string

const (
	BatchPhaseActive    BatchPhase = "active"
	BatchPhaseSuspended BatchPhase = "suspended"
	BatchPhaseCompleted BatchPhase = "completed"
)

// BatchState is the progress snapshot of a batch. The workflow engine is the
// sole writer; everyone else gets copies.
type BatchState struct {
	Processed int `json:"processed"`
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
	Cursor    int `json:"cursor"`
}

// BatchRecord is the persisted form of a batch.
type BatchRecord struct {
	ID                surrealmodels.RecordID `json:"id"`
	OntologyID        string                 `json:"ontology_id"`
	VocabularyVersion string                 `json:"vocabulary_version"`
	Phase             BatchPhase             `json:"phase"`
	Items             []string               `json:"items"`
	Config            RunConfig              `json:"run_config"`
	State             BatchState             `json:"state"`
	Cause             *string                `json:"cause,omitempty"`
	CanResume         bool                   `json:"can_resume"`
	StartedAt         time.Time              `json:"started_at"`
	CompletedAt       *time.Time             `json:"completed_at,omitempty"`
}

// ProcessedItem records one item's idempotency key after successful
// processing. Its presence makes reprocessing a no-op on resume.
type ProcessedItem struct {
	ID        surrealmodels.RecordID `json:"id"`
	BatchID   string                 `json:"batch_id"`
	Key       string                 `json:"key"`
	Index     int                    `json:"index"`
	CreatedAt time.Time              `json:"created_at"`
}

// RunConfig carries per-invocation extraction parameters. Read-only.
type RunConfig struct {
	OntologyID  string        `json:"ontology_id"`
	Model       string        `json:"model,omitempty"`
	Concurrency int           `json:"concurrency,omitempty"`
	RetryBudget int           `json:"retry_budget,omitempty"`
	RetryBase   time.Duration `json:"retry_base,omitempty"`
}
