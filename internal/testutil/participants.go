// Package testutil provides deterministic fixtures shared by package tests:
// participants with fixed keys, outcome builders and request id generators.
package testutil

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/nitro"
)

// ChainID is the chain id used by fixtures.
var ChainID = big.NewInt(9001)

// AssetHolder is the asset holder used by fixture outcomes.
var AssetHolder = common.HexToAddress("0x00000000000000000000000000000000000000aa")

// Actor is a participant together with its signer.
type Actor struct {
	Signer      *nitro.Signer
	Participant channel.Participant
}

var actorKeys = map[string]string{
	"alice": "7ab741b57e8d94dd7e1a29055646bafde7010f38a900f55bbd7647880faa6ee8",
	"bob":   "2030b463177db2da82908ef90fa55ddfcef56e8183caf60db464bc398e736e6f",
	"carol": "62ecd49c4ccb41a70ad46532aed63cf815de15864bc415c87d507afd6a5e8da2",
}

// IsActor reports whether name is a fixture actor.
func IsActor(name string) bool {
	_, ok := actorKeys[name]
	return ok
}

// NewActor returns the fixture actor with the given name.
// Panics for unknown names.
func NewActor(name string) Actor {
	key, ok := actorKeys[name]
	if !ok {
		panic(fmt.Sprintf("testutil: unknown actor %q", name))
	}
	signer, err := nitro.SignerFromHex(key)
	if err != nil {
		panic(err)
	}
	return Actor{
		Signer: signer,
		Participant: channel.Participant{
			ParticipantID:  name,
			SigningAddress: signer.Address(),
			Destination:    common.BytesToHash(signer.Address().Bytes()),
		},
	}
}

// Alice is participant 0 in most fixtures.
func Alice() Actor { return NewActor("alice") }

// Bob is participant 1 in most fixtures.
func Bob() Actor { return NewActor("bob") }

// Carol is a third participant for n > 2 fixtures.
func Carol() Actor { return NewActor("carol") }

// Participants returns the participants of the actors in order.
func Participants(actors ...Actor) []channel.Participant {
	out := make([]channel.Participant, len(actors))
	for i, a := range actors {
		out[i] = a.Participant
	}
	return out
}

// Outcome builds a single-asset outcome allocating amounts[i] to actors[i].
func Outcome(actors []Actor, amounts ...int64) channel.Outcome {
	allocs := make([]channel.Allocation, len(actors))
	for i, a := range actors {
		allocs[i] = channel.Allocation{Destination: a.Participant.Destination, Amount: big.NewInt(amounts[i])}
	}
	return channel.Outcome{{AssetHolder: AssetHolder, Allocations: allocs}}
}

// Constants builds channel constants for the actors.
func Constants(nonce uint64, actors ...Actor) channel.Constants {
	return channel.Constants{
		ChainID:           new(big.Int).Set(ChainID),
		ChannelNonce:      nonce,
		Participants:      Participants(actors...),
		ChallengeDuration: 86400,
	}
}

// NewRecord builds an empty record for the actors as seen by actors[myIndex].
func NewRecord(nonce uint64, myIndex int, strategy channel.FundingStrategy, actors ...Actor) *channel.Record {
	c := Constants(nonce, actors...)
	id, err := nitro.ChannelID(c)
	if err != nil {
		panic(err)
	}
	return &channel.Record{
		ChannelID:       id,
		Constants:       c,
		MyIndex:         myIndex,
		FundingStrategy: strategy,
		States:          map[uint64]*channel.SignedState{},
		Funding:         map[common.Address]*big.Int{},
	}
}

// SignWire produces a wire state for vars on rec signed by the actors.
func SignWire(rec *channel.Record, vars channel.Vars, signers ...Actor) channel.WireState {
	hash, err := nitro.HashState(rec.Constants, vars)
	if err != nil {
		panic(err)
	}
	sigs := make([]channel.WireSignature, 0, len(signers))
	for _, a := range signers {
		sig, err := a.Signer.Sign(hash)
		if err != nil {
			panic(err)
		}
		sigs = append(sigs, channel.WireSignature{Signer: a.Signer.Address(), Signature: sig})
	}
	return channel.WireState{
		ChannelID:         rec.ChannelID,
		ChainID:           rec.ChainID,
		ChannelNonce:      rec.ChannelNonce,
		Participants:      rec.Participants,
		AppDefinition:     rec.AppDefinition,
		ChallengeDuration: rec.ChallengeDuration,
		TurnNum:           vars.TurnNum,
		IsFinal:           vars.IsFinal,
		Outcome:           vars.Outcome,
		AppData:           vars.AppData,
		Signatures:        sigs,
	}
}
