package handlers

import (
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/roach88/chanwallet/internal/channel"
)

// UpdateArgs is the application payload of an update.
type UpdateArgs struct {
	Outcome channel.Outcome
	AppData hexutil.Bytes
}

// UpdateChannel returns the next running state carrying args.
func UpdateChannel(rec *channel.Record, args UpdateArgs) (channel.Vars, error) {
	supported, reason := checkRunningTurn(rec)
	if reason != "" {
		return channel.Vars{}, &UpdateChannelError{Reason: reason, ChannelID: rec.ChannelID}
	}
	return channel.Vars{
		TurnNum: supported.TurnNum + 1,
		IsFinal: false,
		Outcome: args.Outcome.Clone(),
		AppData: append(hexutil.Bytes(nil), args.AppData...),
	}, nil
}

// checkRunningTurn applies the checks shared by update and close: a
// supported running state exists, it is my turn, and I have not already
// signed past it.
func checkRunningTurn(rec *channel.Record) (*channel.SignedState, UpdateReason) {
	supported := rec.Supported()
	if supported == nil {
		return nil, UpdateInvalidLatestState
	}
	n := uint64(rec.N())
	if supported.TurnNum < n {
		return supported, UpdateNotInRunningStage
	}
	if (supported.TurnNum+1)%n != uint64(rec.MyIndex) {
		return supported, UpdateNotMyTurn
	}
	if mine := rec.LatestSignedByMe(); mine != nil && mine.TurnNum > supported.TurnNum {
		return supported, UpdateInvalidTransition
	}
	return supported, ""
}
