package channel

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	goerrors "github.com/go-errors/errors"
)

// InvariantError signals corrupted data or a programmer error. It is always
// fatal for the operation and carries the stack where it was raised.
type InvariantError struct {
	Message string
	stack   *goerrors.Error
}

// NewInvariantError builds an InvariantError capturing the caller's stack.
func NewInvariantError(format string, args ...any) *InvariantError {
	msg := fmt.Sprintf(format, args...)
	return &InvariantError{Message: msg, stack: goerrors.Wrap(errors.New(msg), 1)}
}

func (e *InvariantError) Error() string {
	return "invariant violated: " + e.Message
}

// ErrorStack returns the stack trace captured at construction.
func (e *InvariantError) ErrorStack() string {
	if e.stack == nil {
		return ""
	}
	return e.stack.ErrorStack()
}

// IsInvariantError returns true if err wraps an InvariantError.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

// ConflictingStateError is raised when a state arrives for a known turn with
// different content.
type ConflictingStateError struct {
	ChannelID common.Hash
	TurnNum   uint64
}

func (e *ConflictingStateError) Error() string {
	return fmt.Sprintf("conflicting state for channel %s at turn %d", e.ChannelID.Hex(), e.TurnNum)
}

// IsConflictingStateError returns true if err wraps a ConflictingStateError.
func IsConflictingStateError(err error) bool {
	var ce *ConflictingStateError
	return errors.As(err, &ce)
}

// SignatureError is raised for signatures that do not recover to a
// participant of the channel.
type SignatureError struct {
	ChannelID common.Hash
	TurnNum   uint64
	Signer    common.Address
	Reason    string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("invalid signature on channel %s turn %d by %s: %s",
		e.ChannelID.Hex(), e.TurnNum, e.Signer.Hex(), e.Reason)
}

// IsSignatureError returns true if err wraps a SignatureError.
func IsSignatureError(err error) bool {
	var se *SignatureError
	return errors.As(err, &se)
}
