package wallet

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/handlers"
	"github.com/roach88/chanwallet/internal/pool"
	"github.com/roach88/chanwallet/internal/store"
)

// UpdateChannel signs the next application state of a running channel on
// my turn. It does not crank objectives: an update never advances one.
func (w *Wallet) UpdateChannel(ctx context.Context, channelID common.Hash, args handlers.UpdateArgs) (*Response, error) {
	return pool.Run(ctx, w.pool, func(ctx context.Context) (*Response, error) {
		out, err := store.LockApp(ctx, w.store, channelID,
			func(tx *store.Tx, rec *channel.Record) (sectionOutput, error) {
				vars, err := handlers.UpdateChannel(rec, args)
				if err != nil {
					return sectionOutput{}, err
				}
				s, err := tx.SignState(ctx, rec, vars, w.signer)
				if err != nil {
					return sectionOutput{}, err
				}
				return sectionOutput{
					result:   rec.Result(),
					messages: rec.MessagesToPeers(channel.Payload{SignedStates: []channel.WireState{rec.ToWire(s)}}),
				}, nil
			},
			func(tx *store.Tx) (sectionOutput, error) {
				return sectionOutput{}, &handlers.UpdateChannelError{Reason: handlers.UpdateChannelNotFound, ChannelID: channelID}
			})
		if err != nil {
			return nil, err
		}

		w.logger.Debug("channel updated",
			"channel_id", channelID.Hex(),
			"turn_num", out.result.TurnNum,
		)

		resp := NewResponse()
		out.apply(resp)
		return resp, nil
	})
}
