package protocol

import (
	"math/big"

	"github.com/roach88/chanwallet/internal/channel"
)

// decideOpen walks the open-channel stages: prefund signatures, funding,
// postfund signatures.
func decideOpen(rec *channel.Record, obj channel.OpenChannel) Action {
	n := uint64(rec.N())
	me := uint64(rec.MyIndex)

	if rec.Running() {
		return CompleteObjective{ObjectiveID: obj.ObjectiveID}
	}

	mine := rec.LatestSignedByMe()
	if mine == nil {
		setup := latestSetupState(rec)
		if setup == nil {
			return nil
		}
		v := setup.Vars.Clone()
		v.TurnNum = me
		return SignState{ChannelID: rec.ChannelID, Vars: v}
	}
	if !rec.PrefundSupported() {
		return nil
	}

	prefund := rec.Supported()
	if !fundingComplete(rec, obj.FundingStrategy, prefund.Outcome) {
		if obj.FundingStrategy == channel.Direct {
			if a := directDeposit(rec, prefund.Outcome); a != nil {
				return a
			}
		}
		return nil
	}

	if mine.TurnNum < n+me {
		v := prefund.Vars.Clone()
		v.TurnNum = n + me
		v.IsFinal = false
		return SignState{ChannelID: rec.ChannelID, Vars: v}
	}
	return nil
}

// latestSetupState is the highest prefund state, whose content I adopt
// when joining.
func latestSetupState(rec *channel.Record) *channel.SignedState {
	n := uint64(rec.N())
	for _, s := range rec.SortedStates() {
		if s.TurnNum < n {
			return s
		}
	}
	return nil
}

func fundingComplete(rec *channel.Record, strategy channel.FundingStrategy, outcome channel.Outcome) bool {
	if !strategy.RequiresFunding() {
		return true
	}
	return rec.FullyFunded(outcome)
}

// directDeposit returns my deposit for the first asset where it is my turn
// to deposit: everything allocated ahead of me is held, my own share is not,
// and no deposit has been requested yet.
func directDeposit(rec *channel.Record, outcome channel.Outcome) Action {
	dest := rec.Me().Destination
	for _, asset := range outcome {
		expectedHeld := new(big.Int)
		amount := new(big.Int)
		seenMine := false
		for _, a := range asset.Allocations {
			if a.Amount == nil {
				continue
			}
			if a.Destination == dest {
				seenMine = true
				amount.Add(amount, a.Amount)
				continue
			}
			if !seenMine {
				expectedHeld.Add(expectedHeld, a.Amount)
			}
		}
		if amount.Sign() == 0 {
			continue
		}
		if rec.HasChainRequest(channel.ChainRequestFund, asset.AssetHolder) {
			continue
		}
		held := rec.Holdings(asset.AssetHolder)
		target := new(big.Int).Add(expectedHeld, amount)
		if held.Cmp(expectedHeld) >= 0 && held.Cmp(target) < 0 {
			return FundChannel{
				ChannelID:    rec.ChannelID,
				AssetHolder:  asset.AssetHolder,
				ExpectedHeld: expectedHeld,
				Amount:       amount,
			}
		}
	}
	return nil
}
