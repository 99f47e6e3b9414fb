package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/handlers"
	"github.com/roach88/chanwallet/internal/store"
)

// JoinChannel approves the OpenChannel objective of a proposed channel and
// signs my prefund state.
func (w *Wallet) JoinChannel(ctx context.Context, channelID common.Hash) (*Response, error) {
	if _, err := w.store.GetChannel(ctx, channelID); errors.Is(err, store.ErrChannelNotFound) {
		return nil, &handlers.JoinChannelError{Reason: handlers.JoinChannelNotFound, ChannelID: channelID}
	} else if err != nil {
		return nil, fmt.Errorf("join channel: %w", err)
	}
	return w.ApproveObjective(ctx, channel.ObjectiveID(channel.OpenChannelType, channelID))
}

// ApproveObjective approves a pending objective. Approving an OpenChannel
// I have not signed yet also signs my prefund state. Approving a
// succeeded objective changes nothing.
func (w *Wallet) ApproveObjective(ctx context.Context, objectiveID string) (*Response, error) {
	obj, err := w.store.GetObjective(ctx, objectiveID)
	if errors.Is(err, store.ErrObjectiveNotFound) {
		obj = nil
	} else if err != nil {
		return nil, fmt.Errorf("approve objective: %w", err)
	}
	if _, err := handlers.ApproveObjective(objectiveID, obj); err != nil {
		return nil, err
	}
	channelID := obj.Header().ChannelID

	resp := NewResponse()
	out, err := store.LockApp(ctx, w.store, channelID,
		func(tx *store.Tx, rec *channel.Record) (sectionOutput, error) {
			current, err := tx.GetObjective(ctx, objectiveID)
			if err != nil {
				return sectionOutput{}, err
			}
			approved, err := handlers.ApproveObjective(objectiveID, current)
			if err != nil {
				return sectionOutput{}, err
			}
			if !current.Header().Status.Active() {
				return sectionOutput{result: rec.Result()}, nil
			}
			if err := tx.SetObjectiveStatus(ctx, objectiveID, approved.Header().Status); err != nil {
				return sectionOutput{}, err
			}

			var msgs []channel.Message
			if approved.Type() == channel.OpenChannelType {
				vars, err := handlers.JoinChannel(rec)
				if err != nil {
					return sectionOutput{}, err
				}
				s, err := tx.SignState(ctx, rec, vars, w.signer)
				if err != nil {
					return sectionOutput{}, err
				}
				msgs = rec.MessagesToPeers(channel.Payload{SignedStates: []channel.WireState{rec.ToWire(s)}})
			}
			return sectionOutput{result: rec.Result(), messages: msgs}, nil
		},
		func(tx *store.Tx) (sectionOutput, error) {
			return sectionOutput{}, &handlers.JoinChannelError{Reason: handlers.JoinChannelNotFound, ChannelID: channelID}
		})
	if err != nil {
		return nil, err
	}

	w.logger.Info("objective approved",
		"objective_id", objectiveID,
		"channel_id", channelID.Hex(),
		"status", out.result.Status,
	)

	out.apply(resp)
	if err := w.takeActions(ctx, []common.Hash{channelID}, resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// sectionOutput is what a wallet critical section hands back.
type sectionOutput struct {
	result   channel.Result
	messages []channel.Message
}

func (o sectionOutput) apply(resp *Response) {
	resp.AddChannelResult(o.result)
	resp.QueueMessages(o.messages...)
}
