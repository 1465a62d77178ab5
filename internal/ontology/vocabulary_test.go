package ontology

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const orgVocabYAML = `
ontology_id: org
version: "1"
classes:
  - name: Person
    properties:
      - name: role
        type: string
        required: true
      - name: seniority
        type: string
        enum: [junior, senior, principal]
  - name: Company
    properties:
      - name: founded
        type: number
  - name: Division
    deprecated: true
predicates:
  - name: works_at
    domain: [Person]
    range: [Company]
  - name: acquired
    domain: [Company]
    range: [Company]
  - name: reports_to
    deprecated: true
`

func TestParseVocabulary(t *testing.T) {
	v, err := ParseVocabulary([]byte(orgVocabYAML))
	if err != nil {
		t.Fatalf("ParseVocabulary() error = %v", err)
	}

	if v.OntologyID != "org" {
		t.Errorf("OntologyID = %q, want %q", v.OntologyID, "org")
	}
	if v.Version != "1" {
		t.Errorf("Version = %q, want %q", v.Version, "1")
	}
	if len(v.Classes) != 3 {
		t.Errorf("len(Classes) = %d, want 3", len(v.Classes))
	}
	if len(v.Predicates) != 3 {
		t.Errorf("len(Predicates) = %d, want 3", len(v.Predicates))
	}
}

func TestParseVocabularyRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			"missing ontology id",
			"version: \"1\"\nclasses:\n  - name: A\n",
			"missing ontology_id",
		},
		{
			"missing version",
			"ontology_id: x\nclasses:\n  - name: A\n",
			"missing version",
		},
		{
			"duplicate class",
			"ontology_id: x\nversion: \"1\"\nclasses:\n  - name: A\n  - name: A\n",
			"duplicate class",
		},
		{
			"duplicate predicate",
			"ontology_id: x\nversion: \"1\"\nclasses:\n  - name: A\npredicates:\n  - name: p\n  - name: p\n",
			"duplicate predicate",
		},
		{
			"domain references undeclared class",
			"ontology_id: x\nversion: \"1\"\nclasses:\n  - name: A\npredicates:\n  - name: p\n    domain: [B]\n",
			"undeclared class",
		},
		{
			"range references undeclared class",
			"ontology_id: x\nversion: \"1\"\nclasses:\n  - name: A\npredicates:\n  - name: p\n    range: [B]\n",
			"undeclared class",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseVocabulary([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestUsableFiltersDeprecated(t *testing.T) {
	v, err := ParseVocabulary([]byte(orgVocabYAML))
	if err != nil {
		t.Fatalf("ParseVocabulary() error = %v", err)
	}

	classes := v.UsableClasses()
	if len(classes) != 2 {
		t.Fatalf("len(UsableClasses()) = %d, want 2", len(classes))
	}
	for _, c := range classes {
		if c.Name == "Division" {
			t.Error("deprecated class Division should be excluded")
		}
	}

	preds := v.UsablePredicates()
	if len(preds) != 2 {
		t.Fatalf("len(UsablePredicates()) = %d, want 2", len(preds))
	}
	for _, p := range preds {
		if p.Name == "reports_to" {
			t.Error("deprecated predicate reports_to should be excluded")
		}
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "org.yaml"), orgVocabYAML)
	writeFile(t, filepath.Join(dir, "notes.txt"), "not a vocabulary")

	vocabs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if len(vocabs) != 1 {
		t.Fatalf("len(vocabs) = %d, want 1", len(vocabs))
	}
	if vocabs[0].OntologyID != "org" {
		t.Errorf("OntologyID = %q, want %q", vocabs[0].OntologyID, "org")
	}
}

func TestRegistryReplacesOnRegister(t *testing.T) {
	reg := NewRegistry()

	v1, _ := ParseVocabulary([]byte(orgVocabYAML))
	if err := reg.Register(v1); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	v2, _ := ParseVocabulary([]byte(orgVocabYAML))
	v2.Version = "2"
	if err := reg.Register(v2); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := reg.Get("org")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Version != "2" {
		t.Errorf("Version = %q, want %q (replacement)", got.Version, "2")
	}

	if _, err := reg.Get("nope"); err == nil {
		t.Error("Get(nope) expected ErrUnknownOntology")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
