package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while cranking objectives.
//
// Runtime errors include:
//   - Quota exceeded: a call took more steps than allowed
//   - Chain request failed: the chain rejected a deposit
//   - Missing channel: an objective targets a channel the store lacks
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RequestID identifies the TakeActions call.
	RequestID string

	// ObjectiveID identifies the objective being processed, if any.
	ObjectiveID string

	// Details contains additional context.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeQuotaExceeded indicates the call exceeded max steps.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeChainRequest indicates the chain collaborator failed.
	ErrCodeChainRequest RuntimeErrorCode = "CHAIN_REQUEST_FAILED"

	// ErrCodeMissingChannel indicates an objective's channel is unknown.
	ErrCodeMissingChannel RuntimeErrorCode = "MISSING_CHANNEL"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RequestID != "" && e.ObjectiveID != "" {
		msg = fmt.Sprintf("%s (request=%s, objective=%s)", msg, e.RequestID, e.ObjectiveID)
	} else if e.RequestID != "" {
		msg = fmt.Sprintf("%s (request=%s)", msg, e.RequestID)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// IsQuotaError returns true if the error is a quota exceeded error.
// Matches both RuntimeError with ErrCodeQuotaExceeded and StepsExceededError.
func IsQuotaError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) && re.Code == ErrCodeQuotaExceeded {
		return true
	}
	var se *StepsExceededError
	return errors.As(err, &se)
}

// IsChainError returns true if the error is a failed chain request.
func IsChainError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeChainRequest
	}
	return false
}

// NewQuotaError creates a RuntimeError for quota exceeded.
func NewQuotaError(requestID string, cause *StepsExceededError) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeQuotaExceeded,
		Message:   fmt.Sprintf("exceeded max steps (%d > %d)", cause.Steps, cause.Limit),
		RequestID: requestID,
		Details: map[string]string{
			"steps":     fmt.Sprintf("%d", cause.Steps),
			"max_steps": fmt.Sprintf("%d", cause.Limit),
		},
		Cause: cause,
	}
}

// NewChainError creates a RuntimeError for a failed chain request.
func NewChainError(requestID, objectiveID string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:        ErrCodeChainRequest,
		Message:     "chain request failed",
		RequestID:   requestID,
		ObjectiveID: objectiveID,
		Cause:       cause,
	}
}
