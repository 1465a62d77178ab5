package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pkolbe/ontograph-go/internal/ontology"
)

// The JSON-Schema projections below are pure functions of the compiled
// schemas: encoding/json sorts object keys and class/predicate lists are
// sorted explicitly, so the same vocabulary always yields byte-identical
// output. Callers rely on that for caching and reproducible fixtures.

// JSONSchema renders the entity schema as a JSON-Schema document describing
// an array of typed entities, one anyOf branch per class.
func (s *EntitySchema) JSONSchema() ([]byte, error) {
	names := sortedKeys(s.classes)
	branches := make([]map[string]any, 0, len(names))
	for _, name := range names {
		branches = append(branches, classBranch(s.classes[name]))
	}

	doc := map[string]any{
		"type":        "array",
		"description": "Entities extracted from the text, typed by ontology class.",
		"items":       map[string]any{"anyOf": branches},
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal entity schema: %w", err)
	}
	return out, nil
}

// classBranch builds the JSON-Schema object for one entity class.
func classBranch(c ontology.Class) map[string]any {
	props := map[string]any{}
	var required []string
	for _, p := range c.Properties {
		props[p.Name] = propertySchema(p)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	sort.Strings(required)

	propertiesSchema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		propertiesSchema["required"] = required
	}

	branch := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"class":      map[string]any{"const": c.Name},
			"name":       map[string]any{"type": "string"},
			"properties": propertiesSchema,
		},
		"required":             []string{"class", "name"},
		"additionalProperties": false,
	}
	if c.Description != "" {
		branch["description"] = c.Description
	}
	return branch
}

// propertySchema maps a vocabulary property to its JSON-Schema fragment.
func propertySchema(p ontology.Property) map[string]any {
	frag := map[string]any{}
	switch p.Type {
	case ontology.ValueNumber:
		frag["type"] = "number"
	case ontology.ValueBoolean:
		frag["type"] = "boolean"
	case ontology.ValueDate:
		frag["type"] = "string"
		frag["format"] = "date"
	default:
		frag["type"] = "string"
	}
	if len(p.Enum) > 0 {
		frag["enum"] = p.Enum
	}
	if p.Description != "" {
		frag["description"] = p.Description
	}
	return frag
}

// JSONSchema renders the relation schema as a JSON-Schema document describing
// an array of predicate edges between named entities.
func (s *RelationSchema) JSONSchema() ([]byte, error) {
	names := sortedKeys(s.predicates)

	doc := map[string]any{
		"type":        "array",
		"description": "Relations between extracted entities, typed by ontology predicate.",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"predicate": map[string]any{"enum": names},
				"from":      map[string]any{"type": "string", "description": "Name of the source entity."},
				"to":        map[string]any{"type": "string", "description": "Name of the target entity."},
			},
			"required":             []string{"predicate", "from", "to"},
			"additionalProperties": false,
		},
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal relation schema: %w", err)
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
