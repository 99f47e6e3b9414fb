package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/nitro"
	"github.com/roach88/chanwallet/internal/pool"
	"github.com/roach88/chanwallet/internal/store"
)

// PayloadError is returned when an inbound payload is malformed. Nothing
// from the payload is applied.
type PayloadError struct {
	Reason string
}

func (e *PayloadError) Error() string {
	return "invalid payload: " + e.Reason
}

// IsPayloadError returns true if err wraps a PayloadError.
func IsPayloadError(err error) bool {
	var pe *PayloadError
	return errors.As(err, &pe)
}

// inbound is the validated part of a payload for one channel.
type inbound struct {
	channelID common.Hash
	constants channel.Constants
	states    []channel.WireState
	strategy  channel.FundingStrategy
}

// PushMessage applies a message received from a peer: it folds in the
// signed states, cranks the touched channels and answers GetChannel
// requests to the sender.
func (w *Wallet) PushMessage(ctx context.Context, msg channel.Message) (*Response, error) {
	return pool.Run(ctx, w.pool, func(ctx context.Context) (*Response, error) {
		return w.pushMessage(ctx, msg)
	})
}

func (w *Wallet) pushMessage(ctx context.Context, msg channel.Message) (*Response, error) {
	groups, err := w.validatePayload(msg.Data)
	if err != nil {
		return nil, err
	}

	resp := NewResponse()
	touched := make([]common.Hash, 0, len(groups))
	for _, g := range groups {
		res, discovered, err := w.applyInbound(ctx, g)
		if err != nil {
			return resp, err
		}
		resp.AddChannelResult(res)
		touched = append(touched, g.channelID)

		if discovered != nil {
			if err := w.registerChannel(ctx, discovered); err != nil {
				return resp, err
			}
		}
	}

	if len(touched) > 0 {
		if err := w.takeActions(ctx, touched, resp); err != nil {
			return resp, err
		}
	}

	for _, req := range msg.Data.Requests {
		if err := w.answerRequest(ctx, msg.From, req, resp); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// validatePayload checks every state before any is applied and groups
// them by channel in order of first appearance, ascending by turn.
func (w *Wallet) validatePayload(p channel.Payload) ([]*inbound, error) {
	strategies := make(map[common.Hash]channel.FundingStrategy)
	for _, o := range p.Objectives {
		if o.Type != channel.OpenChannelType {
			continue
		}
		if o.FundingStrategy != "" && !o.FundingStrategy.Valid() {
			return nil, &PayloadError{Reason: fmt.Sprintf("unknown funding strategy %q", o.FundingStrategy)}
		}
		strategies[o.ChannelID] = o.FundingStrategy
	}

	byID := make(map[common.Hash]*inbound)
	var order []*inbound
	for i, ws := range p.SignedStates {
		if ws.ChainID == nil {
			return nil, &PayloadError{Reason: fmt.Sprintf("signedStates[%d]: missing chain id", i)}
		}
		if len(ws.Participants) < 2 {
			return nil, &PayloadError{Reason: fmt.Sprintf("signedStates[%d]: need at least 2 participants", i)}
		}
		if len(ws.Signatures) == 0 {
			return nil, &PayloadError{Reason: fmt.Sprintf("signedStates[%d]: no signatures", i)}
		}
		id, err := nitro.ChannelID(ws.Constants())
		if err != nil {
			return nil, &PayloadError{Reason: fmt.Sprintf("signedStates[%d]: %v", i, err)}
		}
		if id != ws.ChannelID {
			return nil, &PayloadError{Reason: fmt.Sprintf("signedStates[%d]: channel id %s does not match constants (%s)",
				i, ws.ChannelID.Hex(), id.Hex())}
		}

		g, ok := byID[id]
		if !ok {
			g = &inbound{channelID: id, constants: ws.Constants(), strategy: strategies[id]}
			if g.strategy == "" {
				g.strategy = w.defaultStrategy
			}
			byID[id] = g
			order = append(order, g)
		}
		g.states = append(g.states, ws)
	}

	for _, g := range order {
		sort.SliceStable(g.states, func(i, j int) bool { return g.states[i].TurnNum < g.states[j].TurnNum })
	}
	return order, nil
}

// applyInbound folds one channel's states under its lock. A channel seen
// for the first time is created with a pending OpenChannel objective and
// returned as discovered.
func (w *Wallet) applyInbound(ctx context.Context, g *inbound) (channel.Result, *channel.Record, error) {
	type applied struct {
		result     channel.Result
		discovered *channel.Record
	}

	out, err := store.LockApp(ctx, w.store, g.channelID,
		func(tx *store.Tx, rec *channel.Record) (applied, error) {
			if err := w.foldStates(ctx, tx, rec, g.states); err != nil {
				return applied{}, err
			}
			return applied{result: rec.Result()}, nil
		},
		func(tx *store.Tx) (applied, error) {
			myIndex := g.constants.IndexOf(w.signer.Address())
			if myIndex < 0 {
				return applied{}, fmt.Errorf("channel %s: %w: %s", g.channelID.Hex(), ErrNotParticipant, w.signer.Address().Hex())
			}
			rec := &channel.Record{
				ChannelID:       g.channelID,
				Constants:       g.constants,
				MyIndex:         myIndex,
				FundingStrategy: g.strategy,
			}
			if err := tx.InsertChannel(ctx, rec); err != nil {
				return applied{}, err
			}
			if err := tx.UseNonce(ctx, rec.SignerSetKey(), rec.ChannelNonce); err != nil {
				return applied{}, err
			}
			if _, err := tx.InsertObjective(ctx, channel.NewOpenChannel(rec, channel.StatusPending)); err != nil {
				return applied{}, err
			}
			if err := w.foldStates(ctx, tx, rec, g.states); err != nil {
				return applied{}, err
			}
			w.logger.Info("channel discovered",
				"channel_id", rec.ChannelID.Hex(),
				"my_index", myIndex,
				"funding_strategy", string(rec.FundingStrategy),
			)
			return applied{result: rec.Result(), discovered: rec}, nil
		})
	if err != nil {
		return channel.Result{}, nil, err
	}
	return out.result, out.discovered, nil
}

// foldStates adds the states in order. A final state registers an
// approved CloseChannel objective so this wallet countersigns it.
func (w *Wallet) foldStates(ctx context.Context, tx *store.Tx, rec *channel.Record, states []channel.WireState) error {
	sawFinal := false
	for _, ws := range states {
		added, err := tx.AddSignedState(ctx, rec, ws)
		if err != nil {
			return err
		}
		if ws.IsFinal {
			sawFinal = true
		}
		w.logger.Debug("state received",
			"channel_id", rec.ChannelID.Hex(),
			"turn_num", ws.TurnNum,
			"signatures_added", added,
		)
	}
	if !sawFinal {
		return nil
	}
	inserted, err := tx.InsertObjective(ctx, channel.NewCloseChannel(rec, channel.StatusApproved))
	if err != nil {
		return err
	}
	if inserted {
		w.logger.Info("close requested by peer",
			"channel_id", rec.ChannelID.Hex(),
			"objective_id", channel.ObjectiveID(channel.CloseChannelType, rec.ChannelID),
		)
	}
	return nil
}

// answerRequest replies to a GetChannel request with the full history.
// Requests for unknown channels are ignored.
func (w *Wallet) answerRequest(ctx context.Context, from string, req channel.Request, resp *Response) error {
	if req.Type != channel.RequestGetChannel {
		w.logger.Warn("ignoring unknown request", "type", req.Type, "channel_id", req.ChannelID.Hex())
		return nil
	}
	rec, err := w.store.GetChannel(ctx, req.ChannelID)
	if errors.Is(err, store.ErrChannelNotFound) {
		w.logger.Debug("ignoring request for unknown channel", "channel_id", req.ChannelID.Hex())
		return nil
	}
	if err != nil {
		return fmt.Errorf("answer request: %w", err)
	}

	payload := channel.Payload{SignedStates: rec.History()}
	if from == "" {
		resp.QueueMessages(rec.MessagesToPeers(payload)...)
		return nil
	}
	resp.QueueMessages(channel.Message{To: from, From: rec.Me().ParticipantID, Data: payload})
	return nil
}
