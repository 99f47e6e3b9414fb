package protocol

import (
	"github.com/roach88/chanwallet/internal/channel"
)

func decideClose(rec *channel.Record, obj channel.CloseChannel) Action {
	if rec.HasConclusionProof() {
		return CompleteObjective{ObjectiveID: obj.ObjectiveID}
	}

	if final := latestFinal(rec); final != nil {
		if final.SignedBy(rec.MyIndex) {
			return nil
		}
		mine := rec.LatestSignedByMe()
		if mine != nil && mine.TurnNum >= final.TurnNum {
			return nil
		}
		return SignState{ChannelID: rec.ChannelID, Vars: final.Vars.Clone()}
	}

	supported := rec.Supported()
	if supported == nil || !rec.Running() || !rec.MyTurn() {
		return nil
	}
	v := supported.Vars.Clone()
	v.TurnNum = supported.TurnNum + 1
	v.IsFinal = true
	return SignState{ChannelID: rec.ChannelID, Vars: v}
}

func latestFinal(rec *channel.Record) *channel.SignedState {
	for _, s := range rec.SortedStates() {
		if s.IsFinal {
			return s
		}
	}
	return nil
}
