package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkolbe/ontograph-go/internal/db"
	"github.com/pkolbe/ontograph-go/internal/llm"
	"github.com/pkolbe/ontograph-go/internal/metrics"
	"github.com/pkolbe/ontograph-go/internal/models"
	"github.com/pkolbe/ontograph-go/internal/ontology"
)

// Store persists batch records, idempotency keys, and extracted graphs.
// *db.Client satisfies it; MemoryStore covers tests.
type Store interface {
	CreateBatch(ctx context.Context, id string, rec models.BatchRecord) error
	GetBatch(ctx context.Context, id string) (*models.BatchRecord, error)
	UpdateBatchState(ctx context.Context, id string, state models.BatchState) error
	SetBatchPhase(ctx context.Context, id string, phase models.BatchPhase, cause *string, canResume bool, state models.BatchState) error
	ListUnfinishedBatches(ctx context.Context) ([]models.BatchRecord, error)
	MarkItemProcessed(ctx context.Context, batchID, key string, index int) error
	GetProcessedKeys(ctx context.Context, batchID string) ([]string, error)
	SaveGraph(ctx context.Context, batchID string, graph models.KnowledgeGraph) error
}

// Extractor is the per-item extraction capability the engine delegates to.
type Extractor interface {
	Extract(ctx context.Context, text string, cfg models.RunConfig) (models.KnowledgeGraph, error)
}

// Engine drives batches of extraction work through the lifecycle state
// machine. It is the sole writer of batch state; status queries never
// mutate anything.
type Engine struct {
	store       Store
	extractor   Extractor
	registry    *ontology.Registry
	events      *Broadcaster
	metrics     *metrics.Collector
	concurrency int

	mu   sync.Mutex
	runs map[string]*run
}

// NewEngine creates a batch workflow engine. metrics may be nil.
func NewEngine(store Store, extractor Extractor, registry *ontology.Registry, events *Broadcaster, collector *metrics.Collector, concurrency int) *Engine {
	if concurrency <= 0 {
		concurrency = 4
	}
	if events == nil {
		events = NewBroadcaster()
	}
	return &Engine{
		store:       store,
		extractor:   extractor,
		registry:    registry,
		events:      events,
		metrics:     collector,
		concurrency: concurrency,
		runs:        make(map[string]*run),
	}
}

// Events returns the engine's progress broadcaster.
func (e *Engine) Events() *Broadcaster {
	return e.events
}

// run is the in-memory side of an active batch. Its mutex linearizes state
// mutation for this one batch; distinct batches proceed independently.
type run struct {
	id    string
	cfg   models.RunConfig
	items []string

	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     models.BatchState
	processed map[string]struct{}
	cause     *string
	canResume bool
}

func (r *run) snapshot() models.BatchState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *run) requestSuspend(cause string, canResume bool) {
	r.mu.Lock()
	if r.cause == nil {
		c := cause
		r.cause = &c
		r.canResume = canResume
	}
	r.mu.Unlock()
	r.cancel()
}

// Submit creates a new batch over the given items and starts processing.
func (e *Engine) Submit(ctx context.Context, items []string, cfg models.RunConfig) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("batch requires at least one item")
	}

	vocab, err := e.registry.Get(cfg.OntologyID)
	if err != nil {
		return "", err
	}

	// Duplicate texts collapse to one unit of work; otherwise the pending
	// counter could never drain to zero.
	items = dedupeItems(items)

	id := uuid.New().String()[:8] // Short ID for convenience

	rec := models.BatchRecord{
		OntologyID:        cfg.OntologyID,
		VocabularyVersion: vocab.Version,
		Phase:             models.BatchPhaseActive,
		Items:             items,
		Config:            cfg,
		State:             models.BatchState{Pending: len(items)},
		CanResume:         true,
		StartedAt:         time.Now(),
	}
	if err := e.store.CreateBatch(ctx, id, rec); err != nil {
		return "", fmt.Errorf("persist batch: %w", err)
	}

	e.start(id, items, cfg, rec.State, nil)

	slog.Info("batch submitted", "batch_id", id, "ontology_id", cfg.OntologyID, "items", len(items))
	return id, nil
}

// start registers an in-memory run and launches its worker pool.
func (e *Engine) start(id string, items []string, cfg models.RunConfig, state models.BatchState, processed map[string]struct{}) {
	if processed == nil {
		processed = make(map[string]struct{})
	}
	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:        id,
		cfg:       cfg,
		items:     items,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     state,
		processed: processed,
		canResume: true,
	}

	e.mu.Lock()
	e.runs[id] = r
	e.mu.Unlock()

	go e.process(runCtx, r)
}

// process drives a run's items through the extractor under the bounded
// concurrency limit, then finalizes the batch as completed or suspended.
func (e *Engine) process(ctx context.Context, r *run) {
	defer close(r.done)

	workers := r.cfg.Concurrency
	if workers <= 0 {
		workers = e.concurrency
	}

	type task struct {
		idx  int
		text string
	}
	tasks := make(chan task)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				if ctx.Err() != nil {
					continue // drain without processing
				}
				e.processItem(ctx, r, t.idx, t.text)
			}
		}()
	}

feed:
	for idx, text := range r.items {
		key := ItemKey(r.id, text)
		r.mu.Lock()
		_, already := r.processed[key]
		r.mu.Unlock()
		if already {
			continue
		}

		select {
		case tasks <- task{idx: idx, text: text}:
		case <-ctx.Done():
			break feed
		}
	}
	close(tasks)
	wg.Wait()

	e.finalize(ctx, r)
}

// processItem runs one item end to end: extract, claim the idempotency key,
// persist the graph, advance the state snapshot.
func (e *Engine) processItem(ctx context.Context, r *run, idx int, text string) {
	start := time.Now()

	graph, err := e.extractor.Extract(ctx, text, r.cfg)
	if err != nil {
		if ctx.Err() != nil {
			return // suspension in progress, item stays pending
		}
		// Fatal provider errors poison every remaining item; suspend the
		// batch instead of failing its way through them.
		if errors.Is(err, llm.ErrFatalAPI) {
			e.suspendFromFailure(r, fmt.Sprintf("extraction backend failure: %v", err))
			return
		}
		// Item-level failure: a single item must not abort the batch.
		e.markFailed(ctx, r, idx, err)
		return
	}

	key := ItemKey(r.id, text)

	// Claim the idempotency key before emitting anything. A duplicate claim
	// means a previous process already recorded the item; it still counts
	// toward progress, but its graph must not be emitted a second time.
	switch err := e.store.MarkItemProcessed(ctx, r.id, key, idx); {
	case err == nil:
		if err := e.store.SaveGraph(ctx, r.id, graph); err != nil {
			e.suspendFromFailure(r, fmt.Sprintf("graph persistence failed: %v", err))
			return
		}
	case errors.Is(err, db.ErrAlreadyExists):
		slog.Debug("idempotency key already claimed, not re-emitting", "batch_id", r.id, "index", idx)
	default:
		e.suspendFromFailure(r, fmt.Sprintf("idempotency store unreachable: %v", err))
		return
	}

	r.mu.Lock()
	r.processed[key] = struct{}{}
	r.state.Processed++
	r.state.Pending--
	if idx+1 > r.state.Cursor {
		r.state.Cursor = idx + 1
	}
	state := r.state
	r.mu.Unlock()

	if err := e.store.UpdateBatchState(ctx, r.id, state); err != nil {
		slog.Warn("failed to persist batch state", "batch_id", r.id, "error", err)
	}

	if e.metrics != nil {
		e.metrics.RecordTiming(metrics.OpBatchItem, time.Since(start))
	}
	e.events.Publish(Event{BatchID: r.id, Type: EventItemProcessed, State: state})
}

// markFailed records an item-level failure and moves on.
func (e *Engine) markFailed(ctx context.Context, r *run, idx int, cause error) {
	r.mu.Lock()
	r.state.Failed++
	r.state.Pending--
	if idx+1 > r.state.Cursor {
		r.state.Cursor = idx + 1
	}
	state := r.state
	r.mu.Unlock()

	if err := e.store.UpdateBatchState(ctx, r.id, state); err != nil {
		slog.Warn("failed to persist batch state", "batch_id", r.id, "error", err)
	}
	if e.metrics != nil {
		e.metrics.RecordFailure(metrics.OpBatchItem)
	}

	slog.Warn("item extraction failed", "batch_id", r.id, "index", idx, "error", cause)
	e.events.Publish(Event{BatchID: r.id, Type: EventItemFailed, State: state, Error: cause.Error()})
}

// suspendFromFailure requests suspension due to a batch-level fatal cause.
// The engine suspends rather than crashing; pending retries are cancelled
// through the run context.
func (e *Engine) suspendFromFailure(r *run, cause string) {
	slog.Error("batch-level failure, suspending", "batch_id", r.id, "cause", cause)
	r.requestSuspend(cause, true)
}

// finalize persists the terminal phase once the worker pool has drained.
func (e *Engine) finalize(ctx context.Context, r *run) {
	e.mu.Lock()
	delete(e.runs, r.id)
	e.mu.Unlock()

	r.mu.Lock()
	state := r.state
	cause := r.cause
	canResume := r.canResume
	r.mu.Unlock()

	// Persistence must outlive the cancelled run context.
	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if ctx.Err() != nil || cause != nil {
		if cause == nil {
			c := "operator pause"
			cause = &c
		}
		if err := e.store.SetBatchPhase(persistCtx, r.id, models.BatchPhaseSuspended, cause, canResume, state); err != nil {
			slog.Error("failed to persist batch suspension", "batch_id", r.id, "error", err)
		}
		slog.Info("batch suspended", "batch_id", r.id, "cause", *cause, "can_resume", canResume)
		e.events.Publish(Event{BatchID: r.id, Type: EventBatchSuspended, State: state, Error: *cause})
		return
	}

	if err := e.store.SetBatchPhase(persistCtx, r.id, models.BatchPhaseCompleted, nil, false, state); err != nil {
		slog.Error("failed to persist batch completion", "batch_id", r.id, "error", err)
	}
	slog.Info("batch completed", "batch_id", r.id, "processed", state.Processed, "failed", state.Failed)
	e.events.Publish(Event{BatchID: r.id, Type: EventBatchCompleted, State: state})
}

// Status returns the current BatchStatusResponse without side effects.
// Completed batches are retained and report a terminal Active status with
// zero pending items; NotFound is reserved for ids the engine has never seen.
func (e *Engine) Status(ctx context.Context, batchID string) (StatusResponse, error) {
	e.mu.Lock()
	r, running := e.runs[batchID]
	e.mu.Unlock()
	if running {
		return ActiveStatus(r.snapshot()), nil
	}

	rec, err := e.store.GetBatch(ctx, batchID)
	if err != nil {
		return StatusResponse{}, fmt.Errorf("load batch: %w", err)
	}
	if rec == nil {
		return NotFoundStatus(batchID), nil
	}

	switch rec.Phase {
	case models.BatchPhaseSuspended:
		state := rec.State
		return SuspendedStatus(batchID, rec.Cause, &state, rec.CanResume), nil
	default:
		// Active (transiently, between persistence and registration) or
		// completed: both report as Active; completed carries zero pending.
		return ActiveStatus(rec.State), nil
	}
}

// Suspend pauses an active batch. The run context is cancelled so pending
// retry delays abort promptly; the call returns once the pool has drained
// and the suspension is persisted.
func (e *Engine) Suspend(ctx context.Context, batchID, cause string) error {
	e.mu.Lock()
	r, running := e.runs[batchID]
	e.mu.Unlock()

	if running {
		if cause == "" {
			cause = "operator pause"
		}
		r.requestSuspend(cause, true)
		select {
		case <-r.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	rec, err := e.store.GetBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("load batch: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}

	switch rec.Phase {
	case models.BatchPhaseSuspended:
		return nil
	case models.BatchPhaseCompleted:
		return fmt.Errorf("batch %s already completed", batchID)
	default:
		c := cause
		if c == "" {
			c = "operator pause"
		}
		return e.store.SetBatchPhase(ctx, batchID, models.BatchPhaseSuspended, &c, true, rec.State)
	}
}

// Resume re-enters processing at the persisted state. Items whose
// idempotency keys are already recorded are skipped; previously failed items
// return to the pending pool and are retried.
func (e *Engine) Resume(ctx context.Context, batchID string) error {
	e.mu.Lock()
	_, running := e.runs[batchID]
	e.mu.Unlock()
	if running {
		return nil // already active
	}

	rec, err := e.store.GetBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("load batch: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	if rec.Phase != models.BatchPhaseSuspended {
		return fmt.Errorf("%w: %s is %s", ErrBatchNotSuspended, batchID, rec.Phase)
	}
	if !rec.CanResume {
		return fmt.Errorf("%w: batch %s", ErrResumeRejected, batchID)
	}

	// A vocabulary change since suspension invalidates the compiled schema
	// the batch was extracted under.
	vocab, err := e.registry.Get(rec.OntologyID)
	if err != nil || vocab.Version != rec.VocabularyVersion {
		cause := fmt.Sprintf("vocabulary for ontology %s changed since suspension", rec.OntologyID)
		if perr := e.store.SetBatchPhase(ctx, batchID, models.BatchPhaseSuspended, &cause, false, rec.State); perr != nil {
			slog.Warn("failed to persist resume rejection", "batch_id", batchID, "error", perr)
		}
		return fmt.Errorf("%w: %s", ErrResumeRejected, cause)
	}

	keys, err := e.store.GetProcessedKeys(ctx, batchID)
	if err != nil {
		return fmt.Errorf("load processed keys: %w", err)
	}
	processed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		processed[k] = struct{}{}
	}

	// Re-derive the snapshot from recorded keys, not the caller's view.
	state := models.BatchState{
		Processed: len(processed),
		Pending:   len(rec.Items) - len(processed),
		Cursor:    rec.State.Cursor,
	}

	if err := e.store.SetBatchPhase(ctx, batchID, models.BatchPhaseActive, nil, true, state); err != nil {
		return fmt.Errorf("persist resume: %w", err)
	}

	// Resume under the submit-time config so model, concurrency, and retry
	// overrides survive suspension. Records written before the config was
	// persisted fall back to the batch's ontology id.
	cfg := rec.Config
	if cfg.OntologyID == "" {
		cfg.OntologyID = rec.OntologyID
	}
	e.start(batchID, rec.Items, cfg, state, processed)

	slog.Info("batch resumed", "batch_id", batchID, "processed", state.Processed, "pending", state.Pending)
	e.events.Publish(Event{BatchID: batchID, Type: EventBatchResumed, State: state})
	return nil
}

// SuspendAll pauses every running batch. Used on graceful shutdown so the
// batches resume on next boot.
func (e *Engine) SuspendAll(ctx context.Context, cause string) {
	e.mu.Lock()
	active := make([]*run, 0, len(e.runs))
	for _, r := range e.runs {
		active = append(active, r)
	}
	e.mu.Unlock()

	for _, r := range active {
		r.requestSuspend(cause, true)
	}
	for _, r := range active {
		select {
		case <-r.done:
		case <-ctx.Done():
			return
		}
	}
}

// RecoverInterrupted sweeps batches left in the active phase by a previous
// process and suspends them with cause "process restart". A batch whose
// vocabulary has changed since is marked non-resumable.
func (e *Engine) RecoverInterrupted(ctx context.Context) error {
	recs, err := e.store.ListUnfinishedBatches(ctx)
	if err != nil {
		return fmt.Errorf("list unfinished batches: %w", err)
	}

	recovered := 0
	for _, rec := range recs {
		if rec.Phase != models.BatchPhaseActive {
			continue
		}
		id, err := models.RecordIDString(rec.ID)
		if err != nil {
			slog.Warn("failed to get batch ID", "error", err)
			continue
		}

		cause := "process restart"
		canResume := true
		if vocab, verr := e.registry.Get(rec.OntologyID); verr != nil || vocab.Version != rec.VocabularyVersion {
			cause = "process restart; vocabulary changed since"
			canResume = false
		}

		if err := e.store.SetBatchPhase(ctx, id, models.BatchPhaseSuspended, &cause, canResume, rec.State); err != nil {
			slog.Warn("failed to suspend interrupted batch", "batch_id", id, "error", err)
			continue
		}
		recovered++
		slog.Info("interrupted batch suspended", "batch_id", id, "can_resume", canResume)
	}

	if recovered > 0 {
		slog.Info("crash recovery complete", "batches", recovered)
	}
	return nil
}
