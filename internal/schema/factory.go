package schema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkolbe/ontograph-go/internal/ontology"
)

// OntologySchema is the compiled pair of entity and relation schemas plus
// their combined tool-calling JSON-Schema export. Immutable once built.
type OntologySchema struct {
	OntologyID        string
	VocabularyVersion string
	Entity            *EntitySchema
	Relation          *RelationSchema
	ToolSchema        []byte
}

type cacheKey struct {
	ontologyID string
	version    string
}

// Factory compiles vocabularies into schemas, caching the result per
// (ontologyId, vocabularyVersion). A cache hit bypasses regeneration.
type Factory struct {
	mu    sync.RWMutex
	cache map[cacheKey]*OntologySchema
}

// NewFactory creates an empty schema factory.
func NewFactory() *Factory {
	return &Factory{cache: make(map[cacheKey]*OntologySchema)}
}

// Compile builds (or returns the cached) OntologySchema for a vocabulary.
func (f *Factory) Compile(vocab *ontology.Vocabulary) (*OntologySchema, error) {
	key := cacheKey{vocab.OntologyID, vocab.Version}

	f.mu.RLock()
	cached, ok := f.cache[key]
	f.mu.RUnlock()
	if ok {
		return cached, nil
	}

	entity, err := MakeEntitySchema(vocab)
	if err != nil {
		return nil, err
	}
	relation, err := MakeRelationSchema(vocab)
	if err != nil {
		return nil, err
	}

	tool, err := toolSchema(entity, relation)
	if err != nil {
		return nil, err
	}

	compiled := &OntologySchema{
		OntologyID:        vocab.OntologyID,
		VocabularyVersion: vocab.Version,
		Entity:            entity,
		Relation:          relation,
		ToolSchema:        tool,
	}

	f.mu.Lock()
	// Another goroutine may have compiled concurrently; keep the first entry
	// so callers always see one instance per key.
	if existing, ok := f.cache[key]; ok {
		compiled = existing
	} else {
		f.cache[key] = compiled
	}
	f.mu.Unlock()

	return compiled, nil
}

// toolSchema combines the entity and relation projections into the
// parameters document for a tool-calling extraction function.
func toolSchema(entity *EntitySchema, relation *RelationSchema) ([]byte, error) {
	entityDoc, err := entity.JSONSchema()
	if err != nil {
		return nil, err
	}
	relationDoc, err := relation.JSONSchema()
	if err != nil {
		return nil, err
	}

	// The two fragments are already marshaled deterministically; embed them
	// verbatim so the combined document stays byte-stable.
	combined := fmt.Sprintf(
		`{"type":"object","properties":{"entities":%s,"relations":%s},"required":["entities","relations"],"additionalProperties":false}`,
		entityDoc, relationDoc,
	)

	if !json.Valid([]byte(combined)) {
		return nil, fmt.Errorf("combined tool schema is not valid JSON")
	}
	return []byte(combined), nil
}
