// Package schema compiles ontology vocabularies into entity and relation
// extraction schemas, and projects them to JSON-Schema documents for
// tool-calling LLM APIs.
package schema

import (
	"fmt"

	"github.com/pkolbe/ontograph-go/internal/models"
	"github.com/pkolbe/ontograph-go/internal/ontology"
)

// EntitySchema is the compiled, immutable validator for entity extraction.
type EntitySchema struct {
	classes map[string]ontology.Class
}

// MakeEntitySchema compiles the vocabulary's classes into an entity schema.
// Fails with ErrEmptyVocabulary if no usable class is declared.
func MakeEntitySchema(vocab *ontology.Vocabulary) (*EntitySchema, error) {
	usable := vocab.UsableClasses()
	if len(usable) == 0 {
		return nil, fmt.Errorf("%w: ontology %s declares no usable classes", ErrEmptyVocabulary, vocab.OntologyID)
	}

	classes := make(map[string]ontology.Class, len(usable))
	for _, c := range usable {
		classes[c.Name] = c
	}
	return &EntitySchema{classes: classes}, nil
}

// Classes returns the declared class names.
func (s *EntitySchema) Classes() []string {
	return sortedKeys(s.classes)
}

// Class looks up a compiled class definition.
func (s *EntitySchema) Class(name string) (ontology.Class, bool) {
	c, ok := s.classes[name]
	return c, ok
}

// Validate checks an extracted entity against the compiled schema.
// Violations are collected, not short-circuited, so the error names
// everything wrong with the entity at once.
func (s *EntitySchema) Validate(e models.Entity) error {
	var violations []string

	if e.Name == "" {
		violations = append(violations, "entity with empty name")
	}

	class, ok := s.classes[e.Class]
	if !ok {
		violations = append(violations, fmt.Sprintf("entity %q references undeclared class %q", e.Name, e.Class))
		return NewValidationError(violations...)
	}

	declared := make(map[string]ontology.Property, len(class.Properties))
	for _, p := range class.Properties {
		declared[p.Name] = p
		if p.Required {
			if _, present := e.Properties[p.Name]; !present {
				violations = append(violations, fmt.Sprintf("entity %q missing required property %q", e.Name, p.Name))
			}
		}
	}

	for name, value := range e.Properties {
		prop, ok := declared[name]
		if !ok {
			violations = append(violations, fmt.Sprintf("entity %q has undeclared property %q", e.Name, name))
			continue
		}
		if msg := checkValue(prop, value); msg != "" {
			violations = append(violations, fmt.Sprintf("entity %q property %q: %s", e.Name, name, msg))
		}
	}

	if len(violations) > 0 {
		return NewValidationError(violations...)
	}
	return nil
}

// checkValue verifies a property value against its declared type and enum.
// Returns an empty string when the value conforms.
func checkValue(prop ontology.Property, value any) string {
	switch prop.Type {
	case ontology.ValueString, ontology.ValueDate:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("expected %s, got %T", prop.Type, value)
		}
		if len(prop.Enum) > 0 && !contains(prop.Enum, s) {
			return fmt.Sprintf("value %q not in enum %v", s, prop.Enum)
		}
	case ontology.ValueNumber:
		switch value.(type) {
		case float64, float32, int, int64:
		default:
			return fmt.Sprintf("expected number, got %T", value)
		}
	case ontology.ValueBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("expected boolean, got %T", value)
		}
	}
	return ""
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
