// Package jobs defines the job lifecycle state machine. Every status change
// in the system, whether driven by the worker, by a cancellation, or by a
// retry, is validated here before it reaches storage.
package jobs

import (
	"errors"
	"fmt"

	"github.com/repopulse/repopulse/pkg/models"
)

// Sentinel errors for rejected status changes.
var (
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrResultRequired    = errors.New("result is required to complete a job")
	ErrErrorRequired     = errors.New("error is required to fail a job")
	ErrRetriesExhausted  = errors.New("no attempts remaining to requeue a failed job")
)

// validTransitions maps each status to the statuses it may move to.
// Terminal statuses have no entries: any attempt to leave them fails with
// ErrInvalidTransition rather than silently succeeding.
var validTransitions = map[models.JobStatus][]models.JobStatus{
	models.JobStatusPending:    {models.JobStatusProcessing, models.JobStatusCancelled},
	models.JobStatusProcessing: {models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled},
	models.JobStatusFailed:     {models.JobStatusPending}, // retry path, only while attempts < max_attempts
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to models.JobStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition checks the status change and its guards: completing a
// job requires a result, failing one requires an error message, and a
// failed job can only go back to pending while attempts remain. A job
// failed at the attempts ceiling is terminal and stays that way.
func ValidateTransition(from, to models.JobStatus, hasResult, hasError bool, attempts, maxAttempts int) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if from == models.JobStatusFailed && to == models.JobStatusPending && attempts >= maxAttempts {
		return fmt.Errorf("%w: %d/%d attempts used", ErrRetriesExhausted, attempts, maxAttempts)
	}
	if to == models.JobStatusCompleted && !hasResult {
		return ErrResultRequired
	}
	if to == models.JobStatusFailed && !hasError {
		return ErrErrorRequired
	}
	return nil
}

// NextAttemptStatus returns the status a job lands on after one more
// attempt is consumed: pending when retries remain, failed once the
// ceiling is reached.
func NextAttemptStatus(attempts, maxAttempts int) models.JobStatus {
	if attempts >= maxAttempts {
		return models.JobStatusFailed
	}
	return models.JobStatusPending
}
