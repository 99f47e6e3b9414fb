// Package nitro implements the channel hashing and signing contract shared
// with the on-chain adjudicator. Every encoding here must byte-match the
// adjudicator, since a dispute settles on the same hashes.
package nitro

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/chanwallet/internal/channel"
)

// outcomeTypeAllocation tags an allocation in the outcome content.
const outcomeTypeAllocation uint8 = 0

var (
	tUint256   = mustType("uint256", nil)
	tAddress   = mustType("address", nil)
	tAddresses = mustType("address[]", nil)
	tBytes     = mustType("bytes", nil)

	tAllocation = mustType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "destination", Type: "bytes32"},
		{Name: "amount", Type: "uint256"},
	})
	tOutcomeContent = mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "outcomeType", Type: "uint8"},
		{Name: "allocationOrGuarantee", Type: "bytes"},
	})
	tOutcome = mustType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "assetHolderAddress", Type: "address"},
		{Name: "outcomeContent", Type: "bytes"},
	})
	tVariablePart = mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "turnNum", Type: "uint256"},
		{Name: "isFinal", Type: "bool"},
		{Name: "channelId", Type: "bytes32"},
		{Name: "appPartHash", Type: "bytes32"},
		{Name: "outcomeHash", Type: "bytes32"},
	})
)

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(fmt.Sprintf("nitro: abi type %s: %v", t, err))
	}
	return typ
}

func args(types ...abi.Type) abi.Arguments {
	out := make(abi.Arguments, len(types))
	for i, t := range types {
		out[i] = abi.Argument{Type: t}
	}
	return out
}

type allocationItem struct {
	Destination [32]byte `abi:"destination"`
	Amount      *big.Int `abi:"amount"`
}

type outcomeContent struct {
	OutcomeType           uint8  `abi:"outcomeType"`
	AllocationOrGuarantee []byte `abi:"allocationOrGuarantee"`
}

type assetOutcome struct {
	AssetHolderAddress common.Address `abi:"assetHolderAddress"`
	OutcomeContent     []byte         `abi:"outcomeContent"`
}

type variablePart struct {
	TurnNum     *big.Int `abi:"turnNum"`
	IsFinal     bool     `abi:"isFinal"`
	ChannelId   [32]byte `abi:"channelId"`
	AppPartHash [32]byte `abi:"appPartHash"`
	OutcomeHash [32]byte `abi:"outcomeHash"`
}

// EncodeAllocation ABI-encodes a list of allocation items.
func EncodeAllocation(allocs []channel.Allocation) ([]byte, error) {
	items := make([]allocationItem, len(allocs))
	for i, a := range allocs {
		amount := a.Amount
		if amount == nil {
			amount = new(big.Int)
		}
		items[i] = allocationItem{Destination: a.Destination, Amount: amount}
	}
	out, err := args(tAllocation).Pack(items)
	if err != nil {
		return nil, fmt.Errorf("encode allocation: %w", err)
	}
	return out, nil
}

// EncodeOutcome ABI-encodes an outcome as a list of
// (assetHolder, outcomeContent) pairs.
func EncodeOutcome(o channel.Outcome) ([]byte, error) {
	assets := make([]assetOutcome, len(o))
	for i, ao := range o {
		alloc, err := EncodeAllocation(ao.Allocations)
		if err != nil {
			return nil, err
		}
		content, err := args(tOutcomeContent).Pack(outcomeContent{
			OutcomeType:           outcomeTypeAllocation,
			AllocationOrGuarantee: alloc,
		})
		if err != nil {
			return nil, fmt.Errorf("encode outcome content: %w", err)
		}
		assets[i] = assetOutcome{AssetHolderAddress: ao.AssetHolder, OutcomeContent: content}
	}
	out, err := args(tOutcome).Pack(assets)
	if err != nil {
		return nil, fmt.Errorf("encode outcome: %w", err)
	}
	return out, nil
}
