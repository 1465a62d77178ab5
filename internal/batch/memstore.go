package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/pkolbe/ontograph-go/internal/db"
	"github.com/pkolbe/ontograph-go/internal/models"
)

// MemoryStore is an in-memory Store. It backs tests and the ephemeral mode
// where no database is configured; nothing survives a restart.
type MemoryStore struct {
	mu      sync.Mutex
	batches map[string]models.BatchRecord
	keys    map[string]map[string]struct{} // batch id -> idempotency keys
	graphs  map[string][]models.KnowledgeGraph
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batches: make(map[string]models.BatchRecord),
		keys:    make(map[string]map[string]struct{}),
		graphs:  make(map[string][]models.KnowledgeGraph),
	}
}

func (s *MemoryStore) CreateBatch(_ context.Context, id string, rec models.BatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[id]; ok {
		return fmt.Errorf("%w: batch %s", db.ErrAlreadyExists, id)
	}
	rec.ID = surrealmodels.NewRecordID("batch", id)
	s.batches[id] = rec
	s.keys[id] = make(map[string]struct{})
	return nil
}

func (s *MemoryStore) GetBatch(_ context.Context, id string) (*models.BatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.batches[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) UpdateBatchState(_ context.Context, id string, state models.BatchState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.batches[id]
	if !ok {
		return fmt.Errorf("%w: batch %s", db.ErrNotFound, id)
	}
	rec.State = state
	s.batches[id] = rec
	return nil
}

func (s *MemoryStore) SetBatchPhase(_ context.Context, id string, phase models.BatchPhase, cause *string, canResume bool, state models.BatchState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.batches[id]
	if !ok {
		return fmt.Errorf("%w: batch %s", db.ErrNotFound, id)
	}
	rec.Phase = phase
	rec.Cause = cause
	rec.CanResume = canResume
	rec.State = state
	if phase == models.BatchPhaseCompleted {
		now := time.Now()
		rec.CompletedAt = &now
	}
	s.batches[id] = rec
	return nil
}

func (s *MemoryStore) ListUnfinishedBatches(_ context.Context) ([]models.BatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BatchRecord
	for _, rec := range s.batches {
		if rec.Phase == models.BatchPhaseActive || rec.Phase == models.BatchPhaseSuspended {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkItemProcessed(_ context.Context, batchID, key string, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, ok := s.keys[batchID]
	if !ok {
		return fmt.Errorf("%w: batch %s", db.ErrNotFound, batchID)
	}
	if _, dup := keys[key]; dup {
		return fmt.Errorf("%w: key %s", db.ErrAlreadyExists, key)
	}
	keys[key] = struct{}{}
	return nil
}

func (s *MemoryStore) GetProcessedKeys(_ context.Context, batchID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.keys[batchID]))
	for k := range s.keys[batchID] {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *MemoryStore) SaveGraph(_ context.Context, batchID string, graph models.KnowledgeGraph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graphs[batchID] = append(s.graphs[batchID], graph)
	return nil
}

// Graphs returns the graphs persisted for a batch, in save order.
func (s *MemoryStore) Graphs(batchID string) []models.KnowledgeGraph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.KnowledgeGraph(nil), s.graphs[batchID]...)
}
