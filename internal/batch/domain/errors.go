package batch

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBatch is returned when required batch fields are missing.
	ErrInvalidBatch = errors.New("batch: invalid batch")
	// ErrBatchNotFound is returned when a batch id is unknown.
	ErrBatchNotFound = errors.New("batch: not found")
)

// ConflictError is returned when a live batch already exists for the region
// and an overlapping financial year range.
type ConflictError struct {
	Region          string
	ExistingBatchID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("batch: live batch %s already exists for region %s", e.ExistingBatchID, e.Region)
}

// WrongStatusError is returned when a batch is not in an expected status.
// It is a non-retryable defect: the caller must not mutate the batch.
type WrongStatusError struct {
	BatchID  string
	Actual   Status
	Expected []Status
}

func (e *WrongStatusError) Error() string {
	return fmt.Sprintf("batch: %s has status %s, expected one of %v", e.BatchID, e.Actual, e.Expected)
}

// IsStatusError reports whether err is a status gate failure.
func IsStatusError(err error) bool {
	var statusErr *WrongStatusError
	return errors.As(err, &statusErr)
}

// IsConflict reports whether err is a batch creation conflict.
func IsConflict(err error) bool {
	var conflictErr *ConflictError
	return errors.As(err, &conflictErr)
}
