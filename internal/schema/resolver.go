package schema

import (
	"github.com/pkolbe/ontograph-go/internal/ontology"
)

// Resolver resolves the active compiled schema for an ontology id by
// combining the vocabulary registry with the factory cache.
type Resolver struct {
	registry *ontology.Registry
	factory  *Factory
}

// NewResolver creates a resolver over a registry and factory.
func NewResolver(registry *ontology.Registry, factory *Factory) *Resolver {
	return &Resolver{registry: registry, factory: factory}
}

// Resolve returns the compiled schema for the ontology's active vocabulary.
func (r *Resolver) Resolve(ontologyID string) (*OntologySchema, error) {
	vocab, err := r.registry.Get(ontologyID)
	if err != nil {
		return nil, err
	}
	return r.factory.Compile(vocab)
}
