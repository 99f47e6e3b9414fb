package channel

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RequestGetChannel asks the recipient for the full state history of a
// channel.
const RequestGetChannel = "GetChannel"

// Payload is the wire format exchanged between wallets.
type Payload struct {
	SignedStates []WireState     `json:"signedStates"`
	Objectives   []WireObjective `json:"objectives,omitempty"`
	Requests     []Request       `json:"requests,omitempty"`
}

// Empty reports whether the payload carries nothing.
func (p Payload) Empty() bool {
	return len(p.SignedStates) == 0 && len(p.Objectives) == 0 && len(p.Requests) == 0
}

// WireObjective announces an objective to peers. Receivers use it to learn
// the funding strategy of a channel they have not seen yet.
type WireObjective struct {
	Type            ObjectiveType   `json:"type"`
	ChannelID       common.Hash     `json:"targetChannelId"`
	FundingStrategy FundingStrategy `json:"fundingStrategy,omitempty"`
}

// Request is an embedded ask from a peer.
type Request struct {
	Type      string      `json:"type"`
	ChannelID common.Hash `json:"channelId"`
}

// WireSignature pairs a signature with the address that produced it.
type WireSignature struct {
	Signer    common.Address `json:"signer"`
	Signature hexutil.Bytes  `json:"signature"`
}

// WireState is a self-contained signed state: constants, variables and
// signatures.
type WireState struct {
	ChannelID         common.Hash     `json:"channelId"`
	ChainID           *big.Int        `json:"chainId"`
	ChannelNonce      uint64          `json:"channelNonce"`
	Participants      []Participant   `json:"participants"`
	AppDefinition     common.Address  `json:"appDefinition"`
	ChallengeDuration uint64          `json:"challengeDuration"`
	TurnNum           uint64          `json:"turnNum"`
	IsFinal           bool            `json:"isFinal"`
	Outcome           Outcome         `json:"outcome"`
	AppData           hexutil.Bytes   `json:"appData"`
	Signatures        []WireSignature `json:"signatures"`
}

// Constants extracts the channel constants.
func (w WireState) Constants() Constants {
	return Constants{
		ChainID:           w.ChainID,
		ChannelNonce:      w.ChannelNonce,
		Participants:      w.Participants,
		AppDefinition:     w.AppDefinition,
		ChallengeDuration: w.ChallengeDuration,
	}
}

// Vars extracts the state variables.
func (w WireState) Vars() Vars {
	return Vars{TurnNum: w.TurnNum, IsFinal: w.IsFinal, Outcome: w.Outcome, AppData: w.AppData}
}

// ToWire renders one state of a record for the wire.
func (r *Record) ToWire(s *SignedState) WireState {
	sigs := make([]WireSignature, 0, len(s.Signatures))
	for _, i := range s.Signers() {
		sigs = append(sigs, WireSignature{
			Signer:    r.Participants[i].SigningAddress,
			Signature: s.Signatures[i],
		})
	}
	return WireState{
		ChannelID:         r.ChannelID,
		ChainID:           r.ChainID,
		ChannelNonce:      r.ChannelNonce,
		Participants:      r.Participants,
		AppDefinition:     r.AppDefinition,
		ChallengeDuration: r.ChallengeDuration,
		TurnNum:           s.TurnNum,
		IsFinal:           s.IsFinal,
		Outcome:           s.Outcome,
		AppData:           s.AppData,
		Signatures:        sigs,
	}
}

// History renders every state of the record, ascending by turn.
func (r *Record) History() []WireState {
	states := r.SortedStates()
	sort.Slice(states, func(i, j int) bool { return states[i].TurnNum < states[j].TurnNum })
	out := make([]WireState, 0, len(states))
	for _, s := range states {
		out = append(out, r.ToWire(s))
	}
	return out
}

// Message is one outbox entry, addressed by participant id.
type Message struct {
	To   string  `json:"to"`
	From string  `json:"from"`
	Data Payload `json:"data"`
}

// MessagesToPeers addresses the payload to every participant except me.
func (r *Record) MessagesToPeers(p Payload) []Message {
	me := r.Me().ParticipantID
	out := make([]Message, 0, r.N()-1)
	for i, part := range r.Participants {
		if i == r.MyIndex {
			continue
		}
		out = append(out, Message{To: part.ParticipantID, From: me, Data: p})
	}
	return out
}
