package ontology

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownOntology indicates the requested ontology id is not registered.
var ErrUnknownOntology = errors.New("unknown ontology")

// Registry holds the active vocabulary per ontology id.
// Registering a new version replaces the previous one.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Vocabulary
}

// NewRegistry creates an empty vocabulary registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Vocabulary)}
}

// Register adds or replaces the vocabulary for its ontology id.
func (r *Registry) Register(v *Vocabulary) error {
	if err := v.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.byID[v.OntologyID] = v
	r.mu.Unlock()
	return nil
}

// Get returns the active vocabulary for an ontology id.
func (r *Registry) Get(ontologyID string) (*Vocabulary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byID[ontologyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOntology, ontologyID)
	}
	return v, nil
}

// IDs returns all registered ontology ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	return ids
}
