// Package ontology defines the vocabulary model that bounds what an
// extraction schema may represent: entity classes with typed properties and
// relation predicates with domain/range constraints.
package ontology

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValueType is the declared type of a class property.
type ValueType string

const (
	ValueString  ValueType = "string"
	ValueNumber  ValueType = "number"
	ValueBoolean ValueType = "boolean"
	ValueDate    ValueType = "date"
)

// Property describes a single attribute of an entity class.
type Property struct {
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Type        ValueType `yaml:"type" json:"type"`
	Enum        []string  `yaml:"enum,omitempty" json:"enum,omitempty"`
	Required    bool      `yaml:"required,omitempty" json:"required,omitempty"`
}

// Class describes one entity class in the vocabulary.
type Class struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Properties  []Property `yaml:"properties,omitempty" json:"properties,omitempty"`
	Deprecated  bool       `yaml:"deprecated,omitempty" json:"deprecated,omitempty"`
}

// Predicate describes one relation type, optionally constrained to
// source (domain) and target (range) classes.
type Predicate struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Domain      []string `yaml:"domain,omitempty" json:"domain,omitempty"`
	Range       []string `yaml:"range,omitempty" json:"range,omitempty"`
	Deprecated  bool     `yaml:"deprecated,omitempty" json:"deprecated,omitempty"`
}

// Vocabulary is a versioned declaration of classes and predicates for one ontology.
type Vocabulary struct {
	OntologyID string      `yaml:"ontology_id" json:"ontology_id"`
	Version    string      `yaml:"version" json:"version"`
	Classes    []Class     `yaml:"classes,omitempty" json:"classes,omitempty"`
	Predicates []Predicate `yaml:"predicates,omitempty" json:"predicates,omitempty"`
}

// UsableClasses returns the non-deprecated classes.
func (v *Vocabulary) UsableClasses() []Class {
	out := make([]Class, 0, len(v.Classes))
	for _, c := range v.Classes {
		if !c.Deprecated {
			out = append(out, c)
		}
	}
	return out
}

// UsablePredicates returns the non-deprecated predicates.
func (v *Vocabulary) UsablePredicates() []Predicate {
	out := make([]Predicate, 0, len(v.Predicates))
	for _, p := range v.Predicates {
		if !p.Deprecated {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks structural consistency: unique class names, and predicate
// domain/range referencing declared classes.
func (v *Vocabulary) Validate() error {
	if v.OntologyID == "" {
		return fmt.Errorf("vocabulary missing ontology_id")
	}
	if v.Version == "" {
		return fmt.Errorf("vocabulary %s missing version", v.OntologyID)
	}

	classes := make(map[string]struct{}, len(v.Classes))
	for _, c := range v.Classes {
		if c.Name == "" {
			return fmt.Errorf("vocabulary %s: class with empty name", v.OntologyID)
		}
		if _, dup := classes[c.Name]; dup {
			return fmt.Errorf("vocabulary %s: duplicate class %q", v.OntologyID, c.Name)
		}
		classes[c.Name] = struct{}{}
	}

	preds := make(map[string]struct{}, len(v.Predicates))
	for _, p := range v.Predicates {
		if p.Name == "" {
			return fmt.Errorf("vocabulary %s: predicate with empty name", v.OntologyID)
		}
		if _, dup := preds[p.Name]; dup {
			return fmt.Errorf("vocabulary %s: duplicate predicate %q", v.OntologyID, p.Name)
		}
		preds[p.Name] = struct{}{}

		for _, d := range p.Domain {
			if _, ok := classes[d]; !ok {
				return fmt.Errorf("vocabulary %s: predicate %q domain references undeclared class %q", v.OntologyID, p.Name, d)
			}
		}
		for _, r := range p.Range {
			if _, ok := classes[r]; !ok {
				return fmt.Errorf("vocabulary %s: predicate %q range references undeclared class %q", v.OntologyID, p.Name, r)
			}
		}
	}

	return nil
}

// LoadVocabulary reads and validates a YAML vocabulary document.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	return ParseVocabulary(data)
}

// ParseVocabulary parses and validates a YAML vocabulary document.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return &v, nil
}

// LoadDir loads every *.yaml / *.yml vocabulary found directly in dir.
func LoadDir(dir string) ([]*Vocabulary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary dir: %w", err)
	}

	var vocabs []*Vocabulary
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		v, err := LoadVocabulary(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		vocabs = append(vocabs, v)
	}

	return vocabs, nil
}
