// Package extract orchestrates schema-guided knowledge graph extraction:
// resolve schema, call the extraction backend, validate the structured
// result, embed entities for dedup support, assemble the graph.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkolbe/ontograph-go/internal/metrics"
	"github.com/pkolbe/ontograph-go/internal/models"
	"github.com/pkolbe/ontograph-go/internal/resilience"
	"github.com/pkolbe/ontograph-go/internal/schema"
)

// Backend is the opaque extraction capability:
// schema-constrained text -> structured result.
type Backend interface {
	ExtractWithSchema(ctx context.Context, text string, toolSchema []byte) (models.KnowledgeGraph, error)
}

// Embedder is the opaque embedding capability: text -> vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SchemaResolver resolves the active compiled schema for an ontology.
type SchemaResolver interface {
	Resolve(ontologyID string) (*schema.OntologySchema, error)
}

// Workflow drives text through schema-guided extraction and embedding calls
// under a retry policy. Irrecoverable failures (schema violation, exhausted
// resilience) surface as errors; callers that need to keep a batch alive
// log-and-skip at a higher layer, not here.
type Workflow struct {
	resolver SchemaResolver
	backend  Backend
	embedder Embedder
	policy   resilience.Policy
	metrics  *metrics.Collector
}

// New creates an extraction workflow. metrics may be nil.
func New(resolver SchemaResolver, backend Backend, embedder Embedder, policy resilience.Policy, collector *metrics.Collector) *Workflow {
	return &Workflow{
		resolver: resolver,
		backend:  backend,
		embedder: embedder,
		policy:   policy,
		metrics:  collector,
	}
}

// Extract runs one extraction call and returns the assembled graph.
func (w *Workflow) Extract(ctx context.Context, text string, cfg models.RunConfig) (models.KnowledgeGraph, error) {
	compiled, err := w.resolver.Resolve(cfg.OntologyID)
	if err != nil {
		return models.KnowledgeGraph{}, fmt.Errorf("resolve schema: %w", err)
	}

	policy := w.policy
	if cfg.RetryBudget > 0 {
		policy.MaxRetries = cfg.RetryBudget
	}
	if cfg.RetryBase > 0 {
		policy.Base = cfg.RetryBase
	}

	start := time.Now()
	raw, err := resilience.Do(ctx, policy, "extract", func(ctx context.Context) (models.KnowledgeGraph, error) {
		return w.backend.ExtractWithSchema(ctx, text, compiled.ToolSchema)
	})
	if err != nil {
		w.recordFailure(metrics.OpExtraction)
		return models.KnowledgeGraph{}, fmt.Errorf("extraction call: %w", err)
	}
	w.recordTiming(metrics.OpExtraction, time.Since(start))

	graph, err := w.validate(raw, compiled)
	if err != nil {
		return models.KnowledgeGraph{}, err
	}

	if err := w.embedEntities(ctx, policy, graph.Entities); err != nil {
		return models.KnowledgeGraph{}, err
	}

	slog.Debug("extraction complete",
		"ontology_id", cfg.OntologyID,
		"entities", len(graph.Entities),
		"relations", len(graph.Relations))

	return graph, nil
}

// validate checks the raw result against the compiled schema. Entities or
// relations referencing undeclared classes or predicates are rejected.
func (w *Workflow) validate(raw models.KnowledgeGraph, compiled *schema.OntologySchema) (models.KnowledgeGraph, error) {
	classByName := make(map[string]string, len(raw.Entities))

	for _, e := range raw.Entities {
		if err := compiled.Entity.Validate(e); err != nil {
			return models.KnowledgeGraph{}, err
		}
		classByName[e.Name] = e.Class
	}

	for _, r := range raw.Relations {
		if err := compiled.Relation.Validate(r, classByName); err != nil {
			return models.KnowledgeGraph{}, err
		}
	}

	return raw, nil
}

// embedEntities attaches a similarity vector to every extracted entity.
func (w *Workflow) embedEntities(ctx context.Context, policy resilience.Policy, entities []models.Entity) error {
	for i := range entities {
		text := entities[i].Class + ": " + entities[i].Name

		start := time.Now()
		vector, err := resilience.Do(ctx, policy, "embed", func(ctx context.Context) ([]float32, error) {
			return w.embedder.Embed(ctx, text)
		})
		if err != nil {
			w.recordFailure(metrics.OpEmbedding)
			return fmt.Errorf("embed entity %q: %w", entities[i].Name, err)
		}
		w.recordTiming(metrics.OpEmbedding, time.Since(start))

		entities[i].Embedding = vector
	}
	return nil
}

func (w *Workflow) recordTiming(op string, d time.Duration) {
	if w.metrics != nil {
		w.metrics.RecordTiming(op, d)
	}
}

func (w *Workflow) recordFailure(op string) {
	if w.metrics != nil {
		w.metrics.RecordFailure(op)
	}
}
