package handlers

import (
	"github.com/roach88/chanwallet/internal/channel"
)

// ApproveObjective returns obj marked approved. A nil objective is
// reported as not found; a succeeded objective is returned unchanged.
func ApproveObjective(id string, obj channel.Objective) (channel.Objective, error) {
	if obj == nil {
		return nil, &ApproveObjectiveError{Reason: ApproveObjectiveNotFound, ObjectiveID: id}
	}
	if !obj.Header().Status.Active() {
		return obj, nil
	}
	switch obj.Type() {
	case channel.OpenChannelType, channel.CloseChannelType:
		return obj.WithStatus(channel.StatusApproved), nil
	default:
		return nil, &ApproveObjectiveError{Reason: ApproveUnimplemented, ObjectiveID: id}
	}
}
