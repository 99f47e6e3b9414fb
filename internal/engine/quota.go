package engine

import (
	"errors"
	"fmt"
)

// QuotaEnforcer counts the steps of the objective a TakeActions call is
// working on and enforces a maximum.
//
// The count is reset when the call moves on to the next objective, so a
// batch touching many channels is bounded per objective only. A protocol
// that keeps producing
// actions without ever going quiet (for example because a collaborator
// never changes the state it waits on) is stopped here instead of looping
// forever.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{
		maxSteps: maxSteps,
		current:  0,
	}
}

// Check increments the step counter and validates against the limit.
// Returns StepsExceededError if the quota is exceeded.
func (q *QuotaEnforcer) Check(requestID string) error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{
			RequestID: requestID,
			Steps:     q.current,
			Limit:     q.maxSteps,
		}
	}
	return nil
}

// Reset resets the step counter to 0.
func (q *QuotaEnforcer) Reset() {
	q.current = 0
}

// Current returns the current step count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the maximum steps limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when an objective exceeds its step quota. Objectives not yet processed keep their status.
type StepsExceededError struct {
	RequestID string
	Steps     int
	Limit     int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("request %s exceeded max steps quota: %d steps > %d limit",
		e.RequestID, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
