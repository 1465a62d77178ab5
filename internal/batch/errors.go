package batch

import "errors"

var (
	// ErrBatchNotFound indicates a status or resume operation against an
	// unknown batch id.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrResumeRejected indicates a resume attempt on a batch that cannot
	// be resumed. Terminal; a retry will not succeed.
	ErrResumeRejected = errors.New("resume rejected")

	// ErrBatchNotSuspended indicates a resume attempt on a batch that is
	// not in the suspended phase.
	ErrBatchNotSuspended = errors.New("batch is not suspended")
)
