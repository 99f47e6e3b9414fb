// Package channel defines the channel data model: constants, per-turn state
// variables, signed states and the channel record with its derived views.
//
// Everything here is plain data. Hashing and signing live in internal/nitro,
// persistence in internal/store.
package channel

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Participant is one party of a channel. Order within a channel is fixed at
// creation and determines turn ownership.
type Participant struct {
	ParticipantID  string         `json:"participantId"`
	SigningAddress common.Address `json:"signingAddress"`
	Destination    common.Hash    `json:"destination"`
}

// Allocation assigns an amount of one asset to a destination.
type Allocation struct {
	Destination common.Hash `json:"destination"`
	Amount      *big.Int    `json:"amount"`
}

// AssetOutcome is the allocation of the asset held by one asset holder.
type AssetOutcome struct {
	AssetHolder common.Address `json:"assetHolder"`
	Allocations []Allocation   `json:"allocations"`
}

// Outcome is the full allocation of value across assets.
type Outcome []AssetOutcome

// Total returns the sum of all allocations for the given asset holder.
func (o Outcome) Total(assetHolder common.Address) *big.Int {
	total := new(big.Int)
	for _, ao := range o {
		if ao.AssetHolder != assetHolder {
			continue
		}
		for _, a := range ao.Allocations {
			if a.Amount != nil {
				total.Add(total, a.Amount)
			}
		}
	}
	return total
}

// AssetHolders returns the distinct asset holders in outcome order.
func (o Outcome) AssetHolders() []common.Address {
	seen := make(map[common.Address]bool, len(o))
	out := make([]common.Address, 0, len(o))
	for _, ao := range o {
		if seen[ao.AssetHolder] {
			continue
		}
		seen[ao.AssetHolder] = true
		out = append(out, ao.AssetHolder)
	}
	return out
}

// Equal reports whether two outcomes allocate identically.
func (o Outcome) Equal(other Outcome) bool {
	if len(o) != len(other) {
		return false
	}
	for i := range o {
		if o[i].AssetHolder != other[i].AssetHolder {
			return false
		}
		if len(o[i].Allocations) != len(other[i].Allocations) {
			return false
		}
		for j, a := range o[i].Allocations {
			b := other[i].Allocations[j]
			if a.Destination != b.Destination {
				return false
			}
			if amountOrZero(a.Amount).Cmp(amountOrZero(b.Amount)) != 0 {
				return false
			}
		}
	}
	return true
}

// Clone returns a deep copy of the outcome.
func (o Outcome) Clone() Outcome {
	if o == nil {
		return nil
	}
	out := make(Outcome, len(o))
	for i, ao := range o {
		allocs := make([]Allocation, len(ao.Allocations))
		for j, a := range ao.Allocations {
			allocs[j] = Allocation{Destination: a.Destination, Amount: new(big.Int).Set(amountOrZero(a.Amount))}
		}
		out[i] = AssetOutcome{AssetHolder: ao.AssetHolder, Allocations: allocs}
	}
	return out
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// Constants are the immutable parameters of a channel. Together they
// determine the channel id.
type Constants struct {
	ChainID           *big.Int       `json:"chainId"`
	ChannelNonce      uint64         `json:"channelNonce"`
	Participants      []Participant  `json:"participants"`
	AppDefinition     common.Address `json:"appDefinition"`
	ChallengeDuration uint64         `json:"challengeDuration"`
}

// SigningAddresses returns participant signing addresses in channel order.
func (c Constants) SigningAddresses() []common.Address {
	out := make([]common.Address, len(c.Participants))
	for i, p := range c.Participants {
		out[i] = p.SigningAddress
	}
	return out
}

// IndexOf returns the participant index for a signing address, or -1.
func (c Constants) IndexOf(addr common.Address) int {
	for i, p := range c.Participants {
		if p.SigningAddress == addr {
			return i
		}
	}
	return -1
}

// SignerSetKey identifies the ordered participant set for nonce allocation.
func (c Constants) SignerSetKey() string {
	parts := make([]string, len(c.Participants))
	for i, p := range c.Participants {
		parts[i] = strings.ToLower(p.SigningAddress.Hex())
	}
	return c.ChainID.String() + ":" + strings.Join(parts, ",")
}

// Vars are the per-turn state variables.
type Vars struct {
	TurnNum uint64        `json:"turnNum"`
	IsFinal bool          `json:"isFinal"`
	Outcome Outcome       `json:"outcome"`
	AppData hexutil.Bytes `json:"appData"`
}

// Equal reports whether two Vars carry identical content.
func (v Vars) Equal(other Vars) bool {
	return v.TurnNum == other.TurnNum &&
		v.IsFinal == other.IsFinal &&
		bytes.Equal(v.AppData, other.AppData) &&
		v.Outcome.Equal(other.Outcome)
}

// Clone returns a deep copy.
func (v Vars) Clone() Vars {
	return Vars{
		TurnNum: v.TurnNum,
		IsFinal: v.IsFinal,
		Outcome: v.Outcome.Clone(),
		AppData: append(hexutil.Bytes(nil), v.AppData...),
	}
}

// SignedState is a Vars slot with the signatures collected for it, keyed by
// participant index.
type SignedState struct {
	Vars
	Hash       common.Hash
	Signatures map[int]hexutil.Bytes
}

// SignedBy reports whether participant i has signed this state.
func (s *SignedState) SignedBy(i int) bool {
	_, ok := s.Signatures[i]
	return ok
}

// Signers returns the indices that signed, ascending.
func (s *SignedState) Signers() []int {
	out := make([]int, 0, len(s.Signatures))
	for i := range s.Signatures {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Clone returns a deep copy of the signed state.
func (s *SignedState) Clone() *SignedState {
	sigs := make(map[int]hexutil.Bytes, len(s.Signatures))
	for i, sig := range s.Signatures {
		sigs[i] = append(hexutil.Bytes(nil), sig...)
	}
	return &SignedState{Vars: s.Vars.Clone(), Hash: s.Hash, Signatures: sigs}
}

func (s *SignedState) String() string {
	return fmt.Sprintf("turn=%d final=%t signers=%v", s.TurnNum, s.IsFinal, s.Signers())
}

// FundingStrategy selects how funding gates the channel past its setup
// phase.
type FundingStrategy string

const (
	Unfunded FundingStrategy = "Unfunded"
	Direct   FundingStrategy = "Direct"
	Fake     FundingStrategy = "Fake"
	Ledger   FundingStrategy = "Ledger"
	Virtual  FundingStrategy = "Virtual"
)

// Valid reports whether s is a known strategy.
func (s FundingStrategy) Valid() bool {
	switch s {
	case Unfunded, Direct, Fake, Ledger, Virtual:
		return true
	}
	return false
}

// RequiresFunding reports whether recorded holdings must cover the outcome
// before post-fund states are signed.
func (s FundingStrategy) RequiresFunding() bool {
	switch s {
	case Direct, Ledger, Virtual:
		return true
	}
	return false
}
