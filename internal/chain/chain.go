// Package chain connects the wallet to the adjudicator's asset holders.
//
// The wallet only needs two things from a chain: a way to deposit into a
// channel and a feed of absolute holdings. Service covers both. Memory is
// an in-process chain used by tests and the local CLI; RPCService talks to
// a JSON-RPC gateway.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FundChannelArg describes a deposit. The deposit only proceeds once at
// least ExpectedHeld is held for the asset.
type FundChannelArg struct {
	ChannelID    common.Hash    `json:"channelId"`
	AssetHolder  common.Address `json:"assetHolderAddress"`
	ExpectedHeld *big.Int       `json:"expectedHeld"`
	Amount       *big.Int       `json:"amount"`
}

// HoldingUpdatedArg reports the absolute amount an asset holder holds for
// a channel.
type HoldingUpdatedArg struct {
	ChannelID   common.Hash    `json:"channelId"`
	AssetHolder common.Address `json:"assetHolderAddress"`
	Amount      *big.Int       `json:"amount"`
}

func (a HoldingUpdatedArg) String() string {
	return fmt.Sprintf("%s/%s=%s", a.ChannelID.Hex(), a.AssetHolder.Hex(), a.Amount)
}

// ChainEventSubscriber receives holding updates. Delivery is at least
// once; amounts are absolute.
type ChainEventSubscriber interface {
	HoldingUpdated(ctx context.Context, arg HoldingUpdatedArg) error
}

// Service is the chain collaborator of the engine and wallet.
type Service interface {
	FundChannel(ctx context.Context, arg FundChannelArg) error
	RegisterChannel(ctx context.Context, channelID common.Hash, assetHolders []common.Address) error
	Subscribe(sub ChainEventSubscriber)
}
