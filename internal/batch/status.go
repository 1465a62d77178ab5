// Package batch owns the lifecycle state machine for extraction batches:
// active / suspended / not-found, resumable across process interruption.
package batch

import (
	"github.com/pkolbe/ontograph-go/internal/models"
)

// StatusTag discriminates the BatchStatusResponse union.
type StatusTag string

const (
	TagActive    StatusTag = "Active"
	TagSuspended StatusTag = "Suspended"
	TagNotFound  StatusTag = "NotFound"
)

// StatusResponse is the tagged union returned by status queries. Consumers
// must switch on Tag; a NotFound is never a Suspended.
type StatusResponse struct {
	Tag StatusTag `json:"_tag"`

	// Active
	State *models.BatchState `json:"state,omitempty"`

	// Suspended / NotFound
	BatchID string `json:"batchId,omitempty"`

	// Suspended
	Cause          *string            `json:"cause,omitempty"`
	LastKnownState *models.BatchState `json:"lastKnownState,omitempty"`
	CanResume      *bool              `json:"canResume,omitempty"`
}

// ActiveStatus builds the Active variant.
func ActiveStatus(state models.BatchState) StatusResponse {
	return StatusResponse{Tag: TagActive, State: &state}
}

// SuspendedStatus builds the Suspended variant.
func SuspendedStatus(batchID string, cause *string, lastKnown *models.BatchState, canResume bool) StatusResponse {
	return StatusResponse{
		Tag:            TagSuspended,
		BatchID:        batchID,
		Cause:          cause,
		LastKnownState: lastKnown,
		CanResume:      &canResume,
	}
}

// NotFoundStatus builds the NotFound variant.
func NotFoundStatus(batchID string) StatusResponse {
	return StatusResponse{Tag: TagNotFound, BatchID: batchID}
}
