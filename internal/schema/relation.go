package schema

import (
	"fmt"

	"github.com/pkolbe/ontograph-go/internal/models"
	"github.com/pkolbe/ontograph-go/internal/ontology"
)

// RelationSchema is the compiled, immutable validator for relation extraction.
type RelationSchema struct {
	predicates map[string]ontology.Predicate
}

// MakeRelationSchema compiles the vocabulary's predicates into a relation
// schema, including domain/range constraints where declared.
// Fails with ErrEmptyVocabulary if no usable predicate is declared.
func MakeRelationSchema(vocab *ontology.Vocabulary) (*RelationSchema, error) {
	usable := vocab.UsablePredicates()
	if len(usable) == 0 {
		return nil, fmt.Errorf("%w: ontology %s declares no usable predicates", ErrEmptyVocabulary, vocab.OntologyID)
	}

	predicates := make(map[string]ontology.Predicate, len(usable))
	for _, p := range usable {
		predicates[p.Name] = p
	}
	return &RelationSchema{predicates: predicates}, nil
}

// Predicates returns the declared predicate names.
func (s *RelationSchema) Predicates() []string {
	return sortedKeys(s.predicates)
}

// Validate checks an extracted relation against the compiled schema.
// classByName maps entity names to their extracted class so domain/range
// constraints can be enforced.
func (s *RelationSchema) Validate(r models.Relation, classByName map[string]string) error {
	var violations []string

	pred, ok := s.predicates[r.Predicate]
	if !ok {
		return NewValidationError(fmt.Sprintf("relation references undeclared predicate %q", r.Predicate))
	}

	fromClass, ok := classByName[r.From]
	if !ok {
		violations = append(violations, fmt.Sprintf("relation %q references unknown entity %q", r.Predicate, r.From))
	} else if len(pred.Domain) > 0 && !contains(pred.Domain, fromClass) {
		violations = append(violations, fmt.Sprintf("predicate %q domain does not allow class %q", r.Predicate, fromClass))
	}

	toClass, ok := classByName[r.To]
	if !ok {
		violations = append(violations, fmt.Sprintf("relation %q references unknown entity %q", r.Predicate, r.To))
	} else if len(pred.Range) > 0 && !contains(pred.Range, toClass) {
		violations = append(violations, fmt.Sprintf("predicate %q range does not allow class %q", r.Predicate, toClass))
	}

	if len(violations) > 0 {
		return NewValidationError(violations...)
	}
	return nil
}
