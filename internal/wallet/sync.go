package wallet

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/nitro"
	"github.com/roach88/chanwallet/internal/pool"
)

// SyncChannel re-sends the channel's states to every peer together with
// a GetChannel request, so both sides converge after a lost message.
func (w *Wallet) SyncChannel(ctx context.Context, channelID common.Hash) (*Response, error) {
	rec, err := w.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("sync channel: %w", err)
	}
	resp := NewResponse()
	resp.AddChannelResult(rec.Result())
	resp.QueueMessages(rec.MessagesToPeers(channel.Payload{
		SignedStates: rec.History(),
		Requests:     []channel.Request{{Type: channel.RequestGetChannel, ChannelID: channelID}},
	})...)
	return resp, nil
}

// HashState computes the Nitro state hash on a pool worker.
func (w *Wallet) HashState(ctx context.Context, c channel.Constants, v channel.Vars) (common.Hash, error) {
	return pool.Run(ctx, w.pool, func(context.Context) (common.Hash, error) {
		return nitro.HashState(c, v)
	})
}

// SignState signs a state hash with the wallet key on a pool worker.
func (w *Wallet) SignState(ctx context.Context, stateHash common.Hash) ([]byte, error) {
	return pool.Run(ctx, w.pool, func(context.Context) ([]byte, error) {
		return w.signer.Sign(stateHash)
	})
}

// RecoverAddress recovers the signer of a state hash on a pool worker.
func (w *Wallet) RecoverAddress(ctx context.Context, stateHash common.Hash, sig []byte) (common.Address, error) {
	return pool.Run(ctx, w.pool, func(context.Context) (common.Address, error) {
		return nitro.RecoverAddress(stateHash, sig)
	})
}
