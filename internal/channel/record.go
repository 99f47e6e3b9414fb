package channel

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// ChainRequest is a funding request already handed to the chain service.
// It is recorded so a resumed protocol never re-sends it.
type ChainRequest struct {
	Kind         string         `json:"kind"`
	AssetHolder  common.Address `json:"assetHolder"`
	ExpectedHeld *big.Int       `json:"expectedHeld"`
	Amount       *big.Int       `json:"amount"`
}

// ChainRequestFund is the kind recorded for deposit requests.
const ChainRequestFund = "fund"

// Record is the full persisted view of one channel.
//
// States is append-only: entries are added or gain signatures, never
// rewritten or removed.
type Record struct {
	ChannelID common.Hash
	Constants
	MyIndex         int
	FundingStrategy FundingStrategy
	LedgerChannelID common.Hash

	States        map[uint64]*SignedState
	Funding       map[common.Address]*big.Int
	ChainRequests []ChainRequest
}

// N returns the number of participants.
func (r *Record) N() int {
	return len(r.Participants)
}

// Me returns my participant entry.
func (r *Record) Me() Participant {
	return r.Participants[r.MyIndex]
}

// SortedStates returns the states ordered by descending turn number.
func (r *Record) SortedStates() []*SignedState {
	out := make([]*SignedState, 0, len(r.States))
	for _, s := range r.States {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TurnNum > out[j].TurnNum })
	return out
}

// Latest returns the highest-turn state with at least one signature.
func (r *Record) Latest() *SignedState {
	for _, s := range r.SortedStates() {
		if len(s.Signatures) > 0 {
			return s
		}
	}
	return nil
}

// LatestSignedByMe returns the highest-turn state I have signed.
func (r *Record) LatestSignedByMe() *SignedState {
	for _, s := range r.SortedStates() {
		if s.SignedBy(r.MyIndex) {
			return s
		}
	}
	return nil
}

// LatestNotSignedByMe returns the highest-turn state lacking my signature.
func (r *Record) LatestNotSignedByMe() *SignedState {
	for _, s := range r.SortedStates() {
		if !s.SignedBy(r.MyIndex) {
			return s
		}
	}
	return nil
}

// Support returns the chain of states that together carry every
// participant's signature, highest turn first. It is empty when no such
// chain exists.
//
// A state joins the chain only if signed by its mover (turnNum % n). The
// chain restarts whenever two neighbouring states are not a valid step.
func (r *Record) Support() []*SignedState {
	n := r.N()
	if n == 0 {
		return nil
	}
	var (
		support  []*SignedState
		missing  = r.allSigners()
		previous *SignedState
	)
	for _, s := range r.SortedStates() {
		if previous != nil && !r.validStep(s, previous) {
			support = nil
			missing = r.allSigners()
		}
		if s.SignedBy(int(s.TurnNum % uint64(n))) {
			support = append(support, s)
			for i := range s.Signatures {
				delete(missing, i)
			}
			if len(missing) == 0 {
				return support
			}
		}
		previous = s
	}
	return nil
}

func (r *Record) allSigners() map[int]bool {
	m := make(map[int]bool, r.N())
	for i := 0; i < r.N(); i++ {
		m[i] = true
	}
	return m
}

// validStep checks the generic envelope rules between consecutive states.
// Application validity is outside the engine.
func (r *Record) validStep(first, second *SignedState) bool {
	if first.TurnNum+1 != second.TurnNum {
		return false
	}
	if second.IsFinal {
		return first.Outcome.Equal(second.Outcome)
	}
	if second.TurnNum < uint64(2*r.N()) {
		return first.Outcome.Equal(second.Outcome) && string(first.AppData) == string(second.AppData)
	}
	return true
}

// Supported returns the head of the support chain, or nil.
func (r *Record) Supported() *SignedState {
	support := r.Support()
	if len(support) == 0 {
		return nil
	}
	return support[0]
}

// HasConclusionProof reports whether every state in the support is final.
func (r *Record) HasConclusionProof() bool {
	support := r.Support()
	if len(support) == 0 {
		return false
	}
	for _, s := range support {
		if !s.IsFinal {
			return false
		}
	}
	return true
}

// MyTurn reports whether I move next.
func (r *Record) MyTurn() bool {
	supported := r.Supported()
	if supported == nil {
		return r.MyIndex == 0
	}
	return int((supported.TurnNum+1)%uint64(r.N())) == r.MyIndex
}

// PrefundSupported reports whether the setup phase (turns 0..n-1) is done.
func (r *Record) PrefundSupported() bool {
	s := r.Supported()
	return s != nil && s.TurnNum >= uint64(r.N()-1)
}

// Running reports whether the post-fund phase (turns n..2n-1) is done.
func (r *Record) Running() bool {
	s := r.Supported()
	return s != nil && s.TurnNum >= uint64(2*r.N()-1)
}

// Holdings returns the recorded funding for an asset holder.
func (r *Record) Holdings(assetHolder common.Address) *big.Int {
	if v, ok := r.Funding[assetHolder]; ok && v != nil {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// FullyFunded reports whether recorded holdings cover every asset of the
// given outcome.
func (r *Record) FullyFunded(outcome Outcome) bool {
	for _, asset := range outcome.AssetHolders() {
		if r.Holdings(asset).Cmp(outcome.Total(asset)) < 0 {
			return false
		}
	}
	return true
}

// HasChainRequest reports whether a request of the kind was recorded for
// the asset holder.
func (r *Record) HasChainRequest(kind string, assetHolder common.Address) bool {
	for _, req := range r.ChainRequests {
		if req.Kind == kind && req.AssetHolder == assetHolder {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	out := *r
	out.Participants = append([]Participant(nil), r.Participants...)
	if r.ChainID != nil {
		out.ChainID = new(big.Int).Set(r.ChainID)
	}
	out.States = make(map[uint64]*SignedState, len(r.States))
	for t, s := range r.States {
		out.States[t] = s.Clone()
	}
	out.Funding = make(map[common.Address]*big.Int, len(r.Funding))
	for a, v := range r.Funding {
		out.Funding[a] = new(big.Int).Set(v)
	}
	out.ChainRequests = append([]ChainRequest(nil), r.ChainRequests...)
	return &out
}
