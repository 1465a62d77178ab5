package batch

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/pkolbe/ontograph-go/internal/models"
)

func TestStatusResponseJSON(t *testing.T) {
	cause := "rate limited"

	tests := []struct {
		name    string
		status  StatusResponse
		want    []string
		notWant []string
	}{
		{
			"active",
			ActiveStatus(models.BatchState{Processed: 2, Pending: 3}),
			[]string{`"_tag":"Active"`, `"processed":2`, `"pending":3`},
			[]string{"cause", "canResume"},
		},
		{
			"suspended",
			SuspendedStatus("b1", &cause, &models.BatchState{Processed: 5}, true),
			[]string{`"_tag":"Suspended"`, `"batchId":"b1"`, `"cause":"rate limited"`, `"lastKnownState"`, `"canResume":true`},
			nil,
		},
		{
			"suspended not resumable",
			SuspendedStatus("b2", nil, nil, false),
			[]string{`"_tag":"Suspended"`, `"canResume":false`},
			[]string{"cause", "lastKnownState"},
		},
		{
			"not found",
			NotFoundStatus("missing"),
			[]string{`"_tag":"NotFound"`, `"batchId":"missing"`},
			[]string{"state", "cause", "canResume"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.status)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(string(data), want) {
					t.Errorf("JSON %s missing %s", data, want)
				}
			}
			for _, notWant := range tt.notWant {
				if strings.Contains(string(data), notWant) {
					t.Errorf("JSON %s should not contain %s", data, notWant)
				}
			}
		})
	}
}

func TestItemKey(t *testing.T) {
	k1 := ItemKey("batch-a", "some text")
	k2 := ItemKey("batch-a", "some text")
	if k1 != k2 {
		t.Error("keys must be deterministic for the same batch and item")
	}

	if ItemKey("batch-a", "some text") == ItemKey("batch-b", "some text") {
		t.Error("the same item in different batches must get different keys")
	}
	if ItemKey("batch-a", "one") == ItemKey("batch-a", "two") {
		t.Error("different items must get different keys")
	}

	// Keys are positional-independent: derived from content, not offsets.
	if len(k1) != 64 {
		t.Errorf("len(key) = %d, want 64 hex chars", len(k1))
	}
}
