package handlers

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// JoinReason categorizes JoinChannel failures.
type JoinReason string

const (
	JoinChannelNotFound   JoinReason = "channelNotFound"
	JoinInvalidTurnNum    JoinReason = "invalidTurnNum"
	JoinAlreadySignedByMe JoinReason = "alreadySignedByMe"
)

// JoinChannelError is returned when a proposed channel cannot be joined.
type JoinChannelError struct {
	Reason    JoinReason
	ChannelID common.Hash
}

func (e *JoinChannelError) Error() string {
	return fmt.Sprintf("join channel %s: %s", e.ChannelID.Hex(), e.Reason)
}

// IsJoinChannelError returns true if err wraps a JoinChannelError with the
// given reason. An empty reason matches any.
func IsJoinChannelError(err error, reason JoinReason) bool {
	var je *JoinChannelError
	if errors.As(err, &je) {
		return reason == "" || je.Reason == reason
	}
	return false
}

// UpdateReason categorizes UpdateChannel failures.
type UpdateReason string

const (
	UpdateChannelNotFound    UpdateReason = "channelNotFound"
	UpdateInvalidLatestState UpdateReason = "invalidLatestState"
	UpdateInvalidTransition  UpdateReason = "invalidTransition"
	UpdateNotInRunningStage  UpdateReason = "notInRunningStage"
	UpdateNotMyTurn          UpdateReason = "notMyTurn"
)

// UpdateChannelError is returned when an application update is rejected.
type UpdateChannelError struct {
	Reason    UpdateReason
	ChannelID common.Hash
}

func (e *UpdateChannelError) Error() string {
	return fmt.Sprintf("update channel %s: %s", e.ChannelID.Hex(), e.Reason)
}

// IsUpdateChannelError returns true if err wraps an UpdateChannelError
// with the given reason. An empty reason matches any.
func IsUpdateChannelError(err error, reason UpdateReason) bool {
	var ue *UpdateChannelError
	if errors.As(err, &ue) {
		return reason == "" || ue.Reason == reason
	}
	return false
}

// CloseReason categorizes CloseChannel failures.
type CloseReason string

const (
	CloseChannelMissing     CloseReason = "channelMissing"
	CloseInvalidLatestState CloseReason = "invalidLatestState"
	CloseNotInRunningStage  CloseReason = "notInRunningStage"
	CloseNotMyTurn          CloseReason = "notMyTurn"
	CloseChannelFinalized   CloseReason = "channelFinalized"
)

// CloseChannelError is returned when a close request is rejected.
type CloseChannelError struct {
	Reason    CloseReason
	ChannelID common.Hash
}

func (e *CloseChannelError) Error() string {
	return fmt.Sprintf("close channel %s: %s", e.ChannelID.Hex(), e.Reason)
}

// IsCloseChannelError returns true if err wraps a CloseChannelError with
// the given reason. An empty reason matches any.
func IsCloseChannelError(err error, reason CloseReason) bool {
	var ce *CloseChannelError
	if errors.As(err, &ce) {
		return reason == "" || ce.Reason == reason
	}
	return false
}

// ApproveReason categorizes ApproveObjective failures.
type ApproveReason string

const (
	ApproveObjectiveNotFound ApproveReason = "objectiveNotFound"
	ApproveUnimplemented     ApproveReason = "unimplemented"
)

// ApproveObjectiveError is returned when an objective cannot be approved.
type ApproveObjectiveError struct {
	Reason      ApproveReason
	ObjectiveID string
}

func (e *ApproveObjectiveError) Error() string {
	return fmt.Sprintf("approve objective %s: %s", e.ObjectiveID, e.Reason)
}

// IsApproveObjectiveError returns true if err wraps an
// ApproveObjectiveError with the given reason. An empty reason matches any.
func IsApproveObjectiveError(err error, reason ApproveReason) bool {
	var ae *ApproveObjectiveError
	if errors.As(err, &ae) {
		return reason == "" || ae.Reason == reason
	}
	return false
}
