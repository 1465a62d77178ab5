package batch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkolbe/ontograph-go/internal/db"
	"github.com/pkolbe/ontograph-go/internal/llm"
	"github.com/pkolbe/ontograph-go/internal/models"
	"github.com/pkolbe/ontograph-go/internal/ontology"
	"github.com/pkolbe/ontograph-go/internal/schema"
)

const waitFor = 5 * time.Second
const tick = 10 * time.Millisecond

func testRegistry(t *testing.T) *ontology.Registry {
	t.Helper()
	reg := ontology.NewRegistry()
	err := reg.Register(&ontology.Vocabulary{
		OntologyID: "org",
		Version:    "1",
		Classes:    []ontology.Class{{Name: "Person"}},
		Predicates: []ontology.Predicate{{Name: "knows"}},
	})
	require.NoError(t, err)
	return reg
}

// fakeExtractor returns a one-entity graph per item, with configurable
// per-item failures. It records every item it was asked to process and the
// config each call ran under.
type fakeExtractor struct {
	mu    sync.Mutex
	calls []string
	cfgs  []models.RunConfig
	fail  map[string]error
}

func (f *fakeExtractor) Extract(ctx context.Context, text string, cfg models.RunConfig) (models.KnowledgeGraph, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.cfgs = append(f.cfgs, cfg)
	err := f.fail[text]
	f.mu.Unlock()

	if err != nil {
		return models.KnowledgeGraph{}, err
	}
	return models.KnowledgeGraph{
		Entities: []models.Entity{{Class: "Person", Name: text}},
	}, nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeExtractor) lastConfig() models.RunConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.cfgs) == 0 {
		return models.RunConfig{}
	}
	return f.cfgs[len(f.cfgs)-1]
}

// gatedExtractor blocks each call until released, so tests can suspend a
// batch mid-flight.
type gatedExtractor struct {
	started chan string
	release chan struct{}
}

func (g *gatedExtractor) Extract(ctx context.Context, text string, _ models.RunConfig) (models.KnowledgeGraph, error) {
	g.started <- text
	select {
	case <-g.release:
		return models.KnowledgeGraph{Entities: []models.Entity{{Class: "Person", Name: text}}}, nil
	case <-ctx.Done():
		return models.KnowledgeGraph{}, ctx.Err()
	}
}

func waitForPhase(t *testing.T, store *MemoryStore, id string, phase models.BatchPhase) *models.BatchRecord {
	t.Helper()
	var rec *models.BatchRecord
	require.Eventually(t, func() bool {
		var err error
		rec, err = store.GetBatch(context.Background(), id)
		return err == nil && rec != nil && rec.Phase == phase
	}, waitFor, tick, "batch %s never reached phase %s", id, phase)
	return rec
}

func TestSubmitProcessesAllItems(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	extractor := &fakeExtractor{}
	engine := NewEngine(store, extractor, testRegistry(t), nil, nil, 2)

	id, err := engine.Submit(ctx, []string{"a", "b", "c"}, models.RunConfig{OntologyID: "org"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec := waitForPhase(t, store, id, models.BatchPhaseCompleted)
	assert.Equal(t, 3, rec.State.Processed)
	assert.Equal(t, 0, rec.State.Pending)
	assert.Equal(t, 0, rec.State.Failed)
	assert.NotNil(t, rec.CompletedAt)

	// One graph persisted per item.
	assert.Len(t, store.Graphs(id), 3)

	// Completed batches stay queryable: terminal Active with zero pending.
	status, err := engine.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, TagActive, status.Tag)
	require.NotNil(t, status.State)
	assert.Equal(t, 0, status.State.Pending)
	assert.Equal(t, 3, status.State.Processed)
}

func TestSubmitDeduplicatesRepeatedItems(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	extractor := &fakeExtractor{}
	engine := NewEngine(store, extractor, testRegistry(t), nil, nil, 1)

	id, err := engine.Submit(ctx, []string{"same", "same", "other"}, models.RunConfig{OntologyID: "org"})
	require.NoError(t, err)

	// Duplicates share an idempotency key; the batch must still drain to
	// zero pending.
	rec := waitForPhase(t, store, id, models.BatchPhaseCompleted)
	assert.Equal(t, 2, rec.State.Processed)
	assert.Equal(t, 0, rec.State.Pending)
	assert.Equal(t, []string{"same", "other"}, rec.Items, "persisted items are deduplicated")
	assert.Equal(t, 2, extractor.callCount())
	assert.Len(t, store.Graphs(id), 2)

	status, err := engine.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, TagActive, status.Tag)
	require.NotNil(t, status.State)
	assert.Equal(t, 0, status.State.Pending)
}

// preclaimedStore rejects the first idempotency claim as already taken, the
// way a crash between claim and state persist looks to the next process.
type preclaimedStore struct {
	*MemoryStore
	mu       sync.Mutex
	rejected bool
}

func (s *preclaimedStore) MarkItemProcessed(ctx context.Context, batchID, key string, index int) error {
	s.mu.Lock()
	first := !s.rejected
	s.rejected = true
	s.mu.Unlock()
	if first {
		return db.ErrAlreadyExists
	}
	return s.MemoryStore.MarkItemProcessed(ctx, batchID, key, index)
}

func TestDuplicateClaimCountsTowardProgress(t *testing.T) {
	ctx := context.Background()
	store := &preclaimedStore{MemoryStore: NewMemoryStore()}
	extractor := &fakeExtractor{}
	engine := NewEngine(store, extractor, testRegistry(t), nil, nil, 1)

	id, err := engine.Submit(ctx, []string{"a", "b"}, models.RunConfig{OntologyID: "org"})
	require.NoError(t, err)

	rec := waitForPhase(t, store.MemoryStore, id, models.BatchPhaseCompleted)
	assert.Equal(t, 2, rec.State.Processed, "preclaimed item still advances progress")
	assert.Equal(t, 0, rec.State.Pending)
	assert.Len(t, store.Graphs(id), 1, "preclaimed item must not re-emit its graph")
}

func TestSubmitUnknownOntology(t *testing.T) {
	engine := NewEngine(NewMemoryStore(), &fakeExtractor{}, testRegistry(t), nil, nil, 1)

	_, err := engine.Submit(context.Background(), []string{"a"}, models.RunConfig{OntologyID: "nope"})
	assert.ErrorIs(t, err, ontology.ErrUnknownOntology)
}

func TestStatusNotFound(t *testing.T) {
	engine := NewEngine(NewMemoryStore(), &fakeExtractor{}, testRegistry(t), nil, nil, 1)

	status, err := engine.Status(context.Background(), "never-created")
	require.NoError(t, err)
	assert.Equal(t, TagNotFound, status.Tag)
	assert.Equal(t, "never-created", status.BatchID)
}

func TestItemFailureDoesNotAbortBatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	extractor := &fakeExtractor{
		fail: map[string]error{"bad": schema.NewValidationError("entity references undeclared class")},
	}
	engine := NewEngine(store, extractor, testRegistry(t), nil, nil, 1)

	id, err := engine.Submit(ctx, []string{"a", "bad", "c"}, models.RunConfig{OntologyID: "org"})
	require.NoError(t, err)

	rec := waitForPhase(t, store, id, models.BatchPhaseCompleted)
	assert.Equal(t, 2, rec.State.Processed)
	assert.Equal(t, 1, rec.State.Failed)
	assert.Equal(t, 0, rec.State.Pending)
	assert.Len(t, store.Graphs(id), 2, "failed item must not emit a graph")
}

func TestFatalExtractionErrorSuspendsBatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	extractor := &fakeExtractor{
		fail: map[string]error{"a": fmt.Errorf("extraction call: %w", llm.ErrFatalAPI)},
	}
	engine := NewEngine(store, extractor, testRegistry(t), nil, nil, 1)

	id, err := engine.Submit(ctx, []string{"a", "b", "c"}, models.RunConfig{OntologyID: "org"})
	require.NoError(t, err)

	rec := waitForPhase(t, store, id, models.BatchPhaseSuspended)
	require.NotNil(t, rec.Cause)
	assert.Contains(t, *rec.Cause, "extraction backend failure")
	assert.True(t, rec.CanResume)
	assert.Equal(t, 0, rec.State.Processed, "first item failed fatally before any progress")
}

func TestSuspendAndResume(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	gated := &gatedExtractor{started: make(chan string, 4), release: make(chan struct{})}
	engine := NewEngine(store, gated, testRegistry(t), nil, nil, 1)

	id, err := engine.Submit(ctx, []string{"a", "b"}, models.RunConfig{OntologyID: "org", Concurrency: 1})
	require.NoError(t, err)

	// First item is in flight; suspend while it blocks.
	<-gated.started
	require.NoError(t, engine.Suspend(ctx, id, "operator pause"))

	rec := waitForPhase(t, store, id, models.BatchPhaseSuspended)
	require.NotNil(t, rec.Cause)
	assert.Equal(t, "operator pause", *rec.Cause)
	assert.True(t, rec.CanResume)
	assert.Equal(t, 2, rec.State.Pending, "interrupted item stays pending")

	status, err := engine.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, TagSuspended, status.Tag)

	// Resume with the gate open: both items complete. The started channel
	// is buffered wide enough to absorb the remaining notifications.
	close(gated.release)
	require.NoError(t, engine.Resume(ctx, id))

	rec = waitForPhase(t, store, id, models.BatchPhaseCompleted)
	assert.Equal(t, 2, rec.State.Processed)
	assert.Equal(t, 0, rec.State.Pending)
}

func TestResumeSkipsProcessedItems(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	extractor := &fakeExtractor{}
	engine := NewEngine(store, extractor, testRegistry(t), nil, nil, 1)

	id := "resume-test"
	cause := "process restart"
	require.NoError(t, store.CreateBatch(ctx, id, models.BatchRecord{
		OntologyID:        "org",
		VocabularyVersion: "1",
		Phase:             models.BatchPhaseSuspended,
		Items:             []string{"done", "todo"},
		State:             models.BatchState{Processed: 1, Pending: 1, Cursor: 1},
		Cause:             &cause,
		CanResume:         true,
	}))
	require.NoError(t, store.MarkItemProcessed(ctx, id, ItemKey(id, "done"), 0))

	require.NoError(t, engine.Resume(ctx, id))

	rec := waitForPhase(t, store, id, models.BatchPhaseCompleted)
	assert.Equal(t, 2, rec.State.Processed)

	// The processed item was never re-extracted.
	assert.Equal(t, 1, extractor.callCount())
	assert.Equal(t, []string{"todo"}, extractor.calls)
}

func TestResumeRestoresSubmitConfig(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	extractor := &fakeExtractor{}
	engine := NewEngine(store, extractor, testRegistry(t), nil, nil, 1)

	cfg := models.RunConfig{OntologyID: "org", Model: "mistral-large", Concurrency: 2, RetryBudget: 1}
	id, err := engine.Submit(ctx, []string{"a"}, cfg)
	require.NoError(t, err)

	rec := waitForPhase(t, store, id, models.BatchPhaseCompleted)
	assert.Equal(t, cfg, rec.Config, "submit-time config is persisted with the batch")

	// A resumed batch runs under the submitted overrides, not engine defaults.
	cause := "operator pause"
	require.NoError(t, store.CreateBatch(ctx, "paused", models.BatchRecord{
		OntologyID:        "org",
		VocabularyVersion: "1",
		Phase:             models.BatchPhaseSuspended,
		Items:             []string{"x"},
		Config:            cfg,
		Cause:             &cause,
		CanResume:         true,
	}))
	require.NoError(t, engine.Resume(ctx, "paused"))
	waitForPhase(t, store, "paused", models.BatchPhaseCompleted)

	got := extractor.lastConfig()
	assert.Equal(t, "mistral-large", got.Model)
	assert.Equal(t, 1, got.RetryBudget)
}

func TestResumeRejectedWhenNotResumable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	engine := NewEngine(store, &fakeExtractor{}, testRegistry(t), nil, nil, 1)

	cause := "vocabulary changed"
	require.NoError(t, store.CreateBatch(ctx, "stuck", models.BatchRecord{
		OntologyID:        "org",
		VocabularyVersion: "1",
		Phase:             models.BatchPhaseSuspended,
		Items:             []string{"a"},
		Cause:             &cause,
		CanResume:         false,
	}))

	assert.ErrorIs(t, engine.Resume(ctx, "stuck"), ErrResumeRejected)
}

func TestResumeRejectsVocabularyChange(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	engine := NewEngine(store, &fakeExtractor{}, testRegistry(t), nil, nil, 1)

	cause := "process restart"
	require.NoError(t, store.CreateBatch(ctx, "old", models.BatchRecord{
		OntologyID:        "org",
		VocabularyVersion: "0", // registry now carries version 1
		Phase:             models.BatchPhaseSuspended,
		Items:             []string{"a"},
		Cause:             &cause,
		CanResume:         true,
	}))

	assert.ErrorIs(t, engine.Resume(ctx, "old"), ErrResumeRejected)

	// The rejection is persisted so later attempts fail fast.
	rec, err := store.GetBatch(ctx, "old")
	require.NoError(t, err)
	assert.False(t, rec.CanResume)
}

func TestResumeErrors(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	engine := NewEngine(store, &fakeExtractor{}, testRegistry(t), nil, nil, 1)

	assert.ErrorIs(t, engine.Resume(ctx, "missing"), ErrBatchNotFound)

	require.NoError(t, store.CreateBatch(ctx, "done", models.BatchRecord{
		OntologyID:        "org",
		VocabularyVersion: "1",
		Phase:             models.BatchPhaseCompleted,
		Items:             []string{"a"},
	}))
	assert.ErrorIs(t, engine.Resume(ctx, "done"), ErrBatchNotSuspended)
}

func TestRecoverInterrupted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	engine := NewEngine(store, &fakeExtractor{}, testRegistry(t), nil, nil, 1)

	// Left active by a crashed process, vocabulary unchanged.
	require.NoError(t, store.CreateBatch(ctx, "crashed", models.BatchRecord{
		OntologyID:        "org",
		VocabularyVersion: "1",
		Phase:             models.BatchPhaseActive,
		Items:             []string{"a", "b"},
		State:             models.BatchState{Processed: 1, Pending: 1},
	}))
	// Left active, but the vocabulary has moved on since.
	require.NoError(t, store.CreateBatch(ctx, "stale", models.BatchRecord{
		OntologyID:        "org",
		VocabularyVersion: "0",
		Phase:             models.BatchPhaseActive,
		Items:             []string{"x"},
	}))

	require.NoError(t, engine.RecoverInterrupted(ctx))

	rec, err := store.GetBatch(ctx, "crashed")
	require.NoError(t, err)
	assert.Equal(t, models.BatchPhaseSuspended, rec.Phase)
	require.NotNil(t, rec.Cause)
	assert.Equal(t, "process restart", *rec.Cause)
	assert.True(t, rec.CanResume)
	assert.Equal(t, 1, rec.State.Processed, "progress snapshot survives recovery")

	rec, err = store.GetBatch(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, models.BatchPhaseSuspended, rec.Phase)
	assert.False(t, rec.CanResume)
}

func TestEventsPublishedDuringRun(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	events := NewBroadcaster()
	engine := NewEngine(store, &fakeExtractor{}, testRegistry(t), events, nil, 1)

	ch, cancel := events.Subscribe()
	defer cancel()

	id, err := engine.Submit(ctx, []string{"a"}, models.RunConfig{OntologyID: "org"})
	require.NoError(t, err)

	var got []EventType
	deadline := time.After(waitFor)
	for len(got) < 2 {
		select {
		case ev := <-ch:
			assert.Equal(t, id, ev.BatchID)
			got = append(got, ev.Type)
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %v", got)
		}
	}

	assert.Equal(t, []EventType{EventItemProcessed, EventBatchCompleted}, got)
}
