package channel

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Status is the externally reported phase of a channel.
type Status string

const (
	Proposed Status = "proposed"
	Opening  Status = "opening"
	Funding  Status = "funding"
	Running  Status = "running"
	Closing  Status = "closing"
	Closed   Status = "closed"
)

// Result is the derived snapshot of a channel returned to callers. It is
// never stored.
type Result struct {
	ChannelID    common.Hash   `json:"channelId"`
	Status       Status        `json:"status"`
	TurnNum      uint64        `json:"turnNum"`
	Participants []Participant `json:"participants"`
	Outcome      Outcome       `json:"outcome"`
	AppData      hexutil.Bytes `json:"appData"`
}

// Result derives the channel result from the record.
func (r *Record) Result() Result {
	status, turn := r.status()
	res := Result{
		ChannelID:    r.ChannelID,
		Status:       status,
		TurnNum:      turn,
		Participants: r.Participants,
	}
	if s, ok := r.States[turn]; ok {
		res.Outcome = s.Outcome.Clone()
		res.AppData = s.AppData
	} else if latest := r.Latest(); latest != nil {
		res.Outcome = latest.Outcome.Clone()
		res.AppData = latest.AppData
	}
	return res
}

func (r *Record) status() (Status, uint64) {
	supported := r.Supported()
	latest := r.Latest()

	switch {
	case r.HasConclusionProof():
		return Closed, supported.TurnNum
	case latest != nil && latest.IsFinal:
		return Closing, latest.TurnNum
	case r.Running():
		return Running, supported.TurnNum
	case r.LatestSignedByMe() == nil:
		return Proposed, 0
	case r.PrefundSupported() && r.FundingStrategy.RequiresFunding() && r.partiallyFunded(supported.Outcome):
		return Funding, 0
	default:
		return Opening, 0
	}
}

func (r *Record) partiallyFunded(outcome Outcome) bool {
	held := new(big.Int)
	for _, asset := range outcome.AssetHolders() {
		held.Add(held, r.Holdings(asset))
	}
	return held.Sign() > 0 && !r.FullyFunded(outcome)
}
