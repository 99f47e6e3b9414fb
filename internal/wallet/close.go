package wallet

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/handlers"
	"github.com/roach88/chanwallet/internal/store"
)

// CloseChannel signs a final state on my turn and registers an approved
// CloseChannel objective. If a close is already under way it only cranks
// the existing objective.
func (w *Wallet) CloseChannel(ctx context.Context, channelID common.Hash) (*Response, error) {
	objectiveID := channel.ObjectiveID(channel.CloseChannelType, channelID)

	out, err := store.LockApp(ctx, w.store, channelID,
		func(tx *store.Tx, rec *channel.Record) (sectionOutput, error) {
			existing, err := tx.GetObjective(ctx, objectiveID)
			switch {
			case err == nil && existing.Header().Status.Active():
				return sectionOutput{result: rec.Result()}, nil
			case err != nil && !errors.Is(err, store.ErrObjectiveNotFound):
				return sectionOutput{}, err
			}

			vars, err := handlers.CloseChannel(rec)
			if err != nil {
				return sectionOutput{}, err
			}
			s, err := tx.SignState(ctx, rec, vars, w.signer)
			if err != nil {
				return sectionOutput{}, err
			}
			if _, err := tx.InsertObjective(ctx, channel.NewCloseChannel(rec, channel.StatusApproved)); err != nil {
				return sectionOutput{}, err
			}
			return sectionOutput{
				result:   rec.Result(),
				messages: rec.MessagesToPeers(channel.Payload{SignedStates: []channel.WireState{rec.ToWire(s)}}),
			}, nil
		},
		func(tx *store.Tx) (sectionOutput, error) {
			return sectionOutput{}, &handlers.CloseChannelError{Reason: handlers.CloseChannelMissing, ChannelID: channelID}
		})
	if err != nil {
		return nil, err
	}

	w.logger.Info("channel closing",
		"channel_id", channelID.Hex(),
		"objective_id", objectiveID,
		"turn_num", out.result.TurnNum,
	)

	resp := NewResponse()
	out.apply(resp)
	if err := w.takeActions(ctx, []common.Hash{channelID}, resp); err != nil {
		return resp, err
	}
	return resp, nil
}
