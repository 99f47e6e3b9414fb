package handlers

import (
	"github.com/roach88/chanwallet/internal/channel"
)

// JoinChannel returns the prefund state I should countersign for a channel
// proposed by a peer.
func JoinChannel(rec *channel.Record) (channel.Vars, error) {
	if rec.LatestSignedByMe() != nil {
		return channel.Vars{}, &JoinChannelError{Reason: JoinAlreadySignedByMe, ChannelID: rec.ChannelID}
	}
	latest := rec.Latest()
	if latest == nil || latest.TurnNum >= uint64(rec.N()) {
		return channel.Vars{}, &JoinChannelError{Reason: JoinInvalidTurnNum, ChannelID: rec.ChannelID}
	}

	v := latest.Vars.Clone()
	v.TurnNum = uint64(rec.MyIndex)
	return v, nil
}
