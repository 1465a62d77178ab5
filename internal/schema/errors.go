package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyVocabulary indicates schema compilation was requested against a
// vocabulary with no usable classes or predicates. This is a hard
// precondition: a schema-less extraction call is meaningless.
var ErrEmptyVocabulary = errors.New("empty vocabulary")

// ValidationError reports that an extraction result violates the compiled
// schema. It is fatal for the item and never retried.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema validation failed: %s", strings.Join(e.Violations, "; "))
}

// NewValidationError builds a ValidationError from one or more violations.
func NewValidationError(violations ...string) *ValidationError {
	return &ValidationError{Violations: violations}
}
