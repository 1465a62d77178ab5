// Package models defines data structures for the ontograph extraction service.
package models

// Entity is a typed entity extracted from text. Class and property names are
// bounded by the ontology vocabulary the extraction ran against.
type Entity struct {
	Class      string         `json:"class"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
	Embedding  []float32      `json:"embedding,omitempty"`
}

// Relation is a typed edge between two extracted entities, referenced by name.
type Relation struct {
	Predicate string `json:"predicate"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// KnowledgeGraph is the immutable result of one extraction call.
// Batch-level aggregation merges graphs; it never mutates one in place.
type KnowledgeGraph struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}

// Merge returns a new graph combining g and other. Entities are deduplicated
// by (class, name), first occurrence wins; relations are deduplicated exactly.
func (g KnowledgeGraph) Merge(other KnowledgeGraph) KnowledgeGraph {
	type entityKey struct{ class, name string }
	type relationKey struct{ predicate, from, to string }

	merged := KnowledgeGraph{
		Entities:  make([]Entity, 0, len(g.Entities)+len(other.Entities)),
		Relations: make([]Relation, 0, len(g.Relations)+len(other.Relations)),
	}

	seenEntities := make(map[entityKey]struct{})
	for _, e := range append(append([]Entity{}, g.Entities...), other.Entities...) {
		k := entityKey{e.Class, e.Name}
		if _, dup := seenEntities[k]; dup {
			continue
		}
		seenEntities[k] = struct{}{}
		merged.Entities = append(merged.Entities, e)
	}

	seenRelations := make(map[relationKey]struct{})
	for _, r := range append(append([]Relation{}, g.Relations...), other.Relations...) {
		k := relationKey{r.Predicate, r.From, r.To}
		if _, dup := seenRelations[k]; dup {
			continue
		}
		seenRelations[k] = struct{}{}
		merged.Relations = append(merged.Relations, r)
	}

	return merged
}
