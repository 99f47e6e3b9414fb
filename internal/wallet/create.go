package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/nitro"
	"github.com/roach88/chanwallet/internal/store"
)

// ErrNotParticipant is returned when the wallet's signing address is not
// among a channel's participants.
var ErrNotParticipant = errors.New("signing address is not a participant")

// CreateChannelArgs describes a new channel.
type CreateChannelArgs struct {
	ChainID           *big.Int
	Participants      []channel.Participant
	Outcome           channel.Outcome
	AppDefinition     common.Address
	AppData           hexutil.Bytes
	ChallengeDuration uint64
	FundingStrategy   channel.FundingStrategy
	// LedgerChannelID names the funding ledger for the Ledger strategy.
	LedgerChannelID common.Hash
}

func (a CreateChannelArgs) validate(me common.Address) (int, error) {
	if a.ChainID == nil {
		return 0, fmt.Errorf("create channel: chain id is required")
	}
	if len(a.Participants) < 2 {
		return 0, fmt.Errorf("create channel: need at least 2 participants, got %d", len(a.Participants))
	}
	if !a.FundingStrategy.Valid() {
		return 0, fmt.Errorf("create channel: unknown funding strategy %q", a.FundingStrategy)
	}
	if a.FundingStrategy == channel.Ledger && a.LedgerChannelID == (common.Hash{}) {
		return 0, fmt.Errorf("create channel: ledger strategy needs a ledger channel id")
	}
	c := channel.Constants{Participants: a.Participants}
	idx := c.IndexOf(me)
	if idx < 0 {
		return 0, fmt.Errorf("create channel: %w: %s", ErrNotParticipant, me.Hex())
	}
	return idx, nil
}

// CreateChannel proposes a channel: it allocates a nonce, signs the
// turn-0 state and registers an approved OpenChannel objective. It returns
// once the proposal is queued for peers.
func (w *Wallet) CreateChannel(ctx context.Context, args CreateChannelArgs) (*Response, error) {
	myIndex, err := args.validate(w.signer.Address())
	if err != nil {
		return nil, err
	}

	constants := channel.Constants{
		ChainID:           new(big.Int).Set(args.ChainID),
		Participants:      args.Participants,
		AppDefinition:     args.AppDefinition,
		ChallengeDuration: args.ChallengeDuration,
	}
	nonce, err := w.store.NextNonce(ctx, constants.SignerSetKey())
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	constants.ChannelNonce = nonce

	id, err := nitro.ChannelID(constants)
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}

	rec := &channel.Record{
		ChannelID:       id,
		Constants:       constants,
		MyIndex:         myIndex,
		FundingStrategy: args.FundingStrategy,
		LedgerChannelID: args.LedgerChannelID,
	}
	vars := channel.Vars{TurnNum: 0, Outcome: args.Outcome.Clone(), AppData: args.AppData}

	resp := NewResponse()
	created, err := store.LockApp(ctx, w.store, id,
		func(tx *store.Tx, _ *channel.Record) (*channel.Record, error) {
			return nil, &store.NonceError{SignerSet: constants.SignerSetKey(), Nonce: nonce}
		},
		func(tx *store.Tx) (*channel.Record, error) {
			if err := tx.InsertChannel(ctx, rec); err != nil {
				return nil, err
			}
			if _, err := tx.SignState(ctx, rec, vars, w.signer); err != nil {
				return nil, err
			}
			if _, err := tx.InsertObjective(ctx, channel.NewOpenChannel(rec, channel.StatusApproved)); err != nil {
				return nil, err
			}
			return rec, nil
		})
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}

	w.logger.Info("channel created",
		"channel_id", id.Hex(),
		"nonce", nonce,
		"my_index", myIndex,
		"funding_strategy", string(args.FundingStrategy),
	)

	resp.AddChannelResult(created.Result())
	resp.QueueMessages(created.MessagesToPeers(channel.Payload{
		SignedStates: created.History(),
		Objectives: []channel.WireObjective{{
			Type:            channel.OpenChannelType,
			ChannelID:       id,
			FundingStrategy: args.FundingStrategy,
		}},
	})...)

	if err := w.registerChannel(ctx, created); err != nil {
		return resp, err
	}
	if err := w.takeActions(ctx, []common.Hash{id}, resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// registerChannel asks the chain service to watch the channel's assets.
func (w *Wallet) registerChannel(ctx context.Context, rec *channel.Record) error {
	if w.chain == nil || !rec.FundingStrategy.RequiresFunding() {
		return nil
	}
	latest := rec.Latest()
	if latest == nil {
		return nil
	}
	if err := w.chain.RegisterChannel(ctx, rec.ChannelID, latest.Outcome.AssetHolders()); err != nil {
		return fmt.Errorf("register channel %s: %w", rec.ChannelID.Hex(), err)
	}
	return nil
}
