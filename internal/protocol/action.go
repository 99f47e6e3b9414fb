// Package protocol decides the next side effect an objective needs.
//
// Decide is a pure function of a channel record and an objective. It never
// touches storage or the network; the engine applies the returned Action
// inside the channel's critical section and asks again. Because the
// decision is re-derived from persisted state, repeating it on an unchanged
// record yields the same action.
package protocol

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/chanwallet/internal/channel"
)

// Action is a side effect requested by a protocol. The variants are
// SignState, FundChannel and CompleteObjective.
type Action interface {
	fmt.Stringer
	isAction()
}

// SignState asks the engine to sign vars on the channel as my participant.
type SignState struct {
	ChannelID common.Hash
	Vars      channel.Vars
}

// FundChannel asks the engine to deposit Amount of an asset once ExpectedHeld
// is already held.
type FundChannel struct {
	ChannelID    common.Hash
	AssetHolder  common.Address
	ExpectedHeld *big.Int
	Amount       *big.Int
}

// CompleteObjective marks the objective succeeded.
type CompleteObjective struct {
	ObjectiveID string
}

func (SignState) isAction()         {}
func (FundChannel) isAction()       {}
func (CompleteObjective) isAction() {}

func (a SignState) String() string {
	return fmt.Sprintf("SignState(%s, turn=%d, final=%t)", a.ChannelID.Hex(), a.Vars.TurnNum, a.Vars.IsFinal)
}

func (a FundChannel) String() string {
	return fmt.Sprintf("FundChannel(%s, asset=%s, expectedHeld=%s, amount=%s)",
		a.ChannelID.Hex(), a.AssetHolder.Hex(), a.ExpectedHeld, a.Amount)
}

func (a CompleteObjective) String() string {
	return fmt.Sprintf("CompleteObjective(%s)", a.ObjectiveID)
}

// Decide returns the next action for obj on rec, or nil when the objective
// has nothing to do until something external changes.
func Decide(rec *channel.Record, obj channel.Objective) Action {
	if obj.Header().Status != channel.StatusApproved {
		return nil
	}
	switch o := obj.(type) {
	case channel.OpenChannel:
		return decideOpen(rec, o)
	case channel.CloseChannel:
		return decideClose(rec, o)
	default:
		return nil
	}
}
