package handlers

import (
	"github.com/roach88/chanwallet/internal/channel"
)

// CloseChannel returns the final state I should sign to conclude a running
// channel. The supported outcome and app data are carried over unchanged.
func CloseChannel(rec *channel.Record) (channel.Vars, error) {
	fail := func(r CloseReason) (channel.Vars, error) {
		return channel.Vars{}, &CloseChannelError{Reason: r, ChannelID: rec.ChannelID}
	}

	supported := rec.Supported()
	if supported == nil {
		return fail(CloseInvalidLatestState)
	}
	n := uint64(rec.N())
	if supported.TurnNum < n {
		return fail(CloseNotInRunningStage)
	}
	if supported.IsFinal {
		return fail(CloseChannelFinalized)
	}
	mine := rec.LatestSignedByMe()
	if mine != nil && mine.IsFinal {
		return fail(CloseChannelFinalized)
	}
	if (supported.TurnNum+1)%n != uint64(rec.MyIndex) {
		return fail(CloseNotMyTurn)
	}
	if mine != nil && mine.TurnNum > supported.TurnNum {
		return fail(CloseNotMyTurn)
	}

	v := supported.Vars.Clone()
	v.TurnNum = supported.TurnNum + 1
	v.IsFinal = true
	return v, nil
}
