package models

import (
	"fmt"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RecordIDString extracts the string key from a SurrealDB RecordID. Batch
// and ticket records are always created with string keys, so a non-string
// key means the row was written by something else.
func RecordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected record id type: %T (expected string)", id.ID)
	}
	return s, nil
}
