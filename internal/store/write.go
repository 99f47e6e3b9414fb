package store

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/nitro"
)

// InsertChannel writes the channel row for a new record. States are added
// afterwards through SignState or AddSignedState.
func (t *Tx) InsertChannel(ctx context.Context, rec *channel.Record) error {
	participants, err := marshalParticipants(rec.Participants)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	_, err = t.exec(ctx, `
		INSERT INTO channels
		(channel_id, chain_id, channel_nonce, participants, app_definition, challenge_duration,
		 my_index, funding_strategy, ledger_channel_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ChannelID.Hex(),
		marshalBig(rec.ChainID),
		rec.ChannelNonce,
		participants,
		rec.AppDefinition.Hex(),
		rec.ChallengeDuration,
		rec.MyIndex,
		string(rec.FundingStrategy),
		marshalHash(rec.LedgerChannelID),
	)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	if rec.States == nil {
		rec.States = make(map[uint64]*channel.SignedState)
	}
	if rec.Funding == nil {
		rec.Funding = make(map[common.Address]*big.Int)
	}
	return nil
}

// SignState signs vars as my participant, persists the signature and
// updates rec in place. Signing at or below my latest signed turn is an
// invariant violation.
func (t *Tx) SignState(ctx context.Context, rec *channel.Record, vars channel.Vars, signer *nitro.Signer) (*channel.SignedState, error) {
	if rec.Me().SigningAddress != signer.Address() {
		return nil, channel.NewInvariantError("signer %s is not participant %d of channel %s",
			signer.Address().Hex(), rec.MyIndex, rec.ChannelID.Hex())
	}
	if mine := rec.LatestSignedByMe(); mine != nil && vars.TurnNum <= mine.TurnNum {
		return nil, channel.NewInvariantError("refusing to sign turn %d on channel %s: already signed turn %d",
			vars.TurnNum, rec.ChannelID.Hex(), mine.TurnNum)
	}

	hash, err := nitro.HashState(rec.Constants, vars)
	if err != nil {
		return nil, fmt.Errorf("sign state: %w", err)
	}
	sig, err := signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("sign state: %w", err)
	}

	s, _, err := t.appendSignatures(ctx, rec, vars, hash, map[int]hexutil.Bytes{rec.MyIndex: sig})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// AddSignedState folds an inbound wire state into rec. Every signature is
// recovered against the participant set. A signer's signature on a turn
// below one it has already signed is ignored. It returns the number of
// signatures added.
func (t *Tx) AddSignedState(ctx context.Context, rec *channel.Record, ws channel.WireState) (int, error) {
	vars := ws.Vars()
	hash, err := nitro.HashState(rec.Constants, vars)
	if err != nil {
		return 0, fmt.Errorf("add signed state: %w", err)
	}

	if existing, ok := rec.States[vars.TurnNum]; ok && existing.Hash != hash {
		return 0, &channel.ConflictingStateError{ChannelID: rec.ChannelID, TurnNum: vars.TurnNum}
	}

	sigs := make(map[int]hexutil.Bytes)
	for _, sig := range ws.Signatures {
		addr, err := nitro.RecoverAddress(hash, sig.Signature)
		if err != nil {
			return 0, &channel.SignatureError{ChannelID: rec.ChannelID, TurnNum: vars.TurnNum, Signer: sig.Signer, Reason: err.Error()}
		}
		if addr != sig.Signer {
			return 0, &channel.SignatureError{ChannelID: rec.ChannelID, TurnNum: vars.TurnNum, Signer: sig.Signer, Reason: "recovered " + addr.Hex()}
		}
		idx := rec.IndexOf(addr)
		if idx < 0 {
			return 0, &channel.SignatureError{ChannelID: rec.ChannelID, TurnNum: vars.TurnNum, Signer: addr, Reason: "not a participant"}
		}
		if existing, ok := rec.States[vars.TurnNum]; ok && existing.SignedBy(idx) {
			continue
		}
		if latest := latestSignedBy(rec, idx); latest != nil && latest.TurnNum > vars.TurnNum {
			t.logger.Debug("ignoring stale signature",
				"channel_id", rec.ChannelID.Hex(),
				"turn_num", vars.TurnNum,
				"signer_index", idx,
				"signer_latest", latest.TurnNum,
			)
			continue
		}
		sigs[idx] = sig.Signature
	}
	if len(sigs) == 0 {
		return 0, nil
	}

	_, added, err := t.appendSignatures(ctx, rec, vars, hash, sigs)
	return added, err
}

func latestSignedBy(rec *channel.Record, idx int) *channel.SignedState {
	for _, s := range rec.SortedStates() {
		if s.SignedBy(idx) {
			return s
		}
	}
	return nil
}

// appendSignatures creates the state slot if needed and adds signatures.
// Existing content at the turn must hash identically.
func (t *Tx) appendSignatures(ctx context.Context, rec *channel.Record, vars channel.Vars, hash common.Hash, sigs map[int]hexutil.Bytes) (*channel.SignedState, int, error) {
	before := rec.Supported()

	s, ok := rec.States[vars.TurnNum]
	if ok && s.Hash != hash {
		return nil, 0, &channel.ConflictingStateError{ChannelID: rec.ChannelID, TurnNum: vars.TurnNum}
	}
	if !ok {
		outcome, err := marshalOutcome(vars.Outcome)
		if err != nil {
			return nil, 0, err
		}
		_, err = t.exec(ctx, `
			INSERT INTO states (channel_id, turn_num, state_hash, is_final, outcome, app_data)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rec.ChannelID.Hex(), vars.TurnNum, hash.Hex(), vars.IsFinal, outcome, marshalBytes(vars.AppData))
		if err != nil {
			return nil, 0, fmt.Errorf("insert state: %w", err)
		}
		s = &channel.SignedState{Vars: vars.Clone(), Hash: hash, Signatures: make(map[int]hexutil.Bytes)}
		rec.States[vars.TurnNum] = s
	}

	signers := make([]int, 0, len(sigs))
	for i := range sigs {
		signers = append(signers, i)
	}
	sort.Ints(signers)

	added := 0
	for _, i := range signers {
		if s.SignedBy(i) {
			continue
		}
		_, err := t.exec(ctx, `
			INSERT INTO signatures (channel_id, turn_num, signer_index, signature)
			VALUES (?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, rec.ChannelID.Hex(), vars.TurnNum, i, marshalBytes(sigs[i]))
		if err != nil {
			return nil, 0, fmt.Errorf("insert signature: %w", err)
		}
		s.Signatures[i] = sigs[i]
		added++
	}

	after := rec.Supported()
	if before != nil && (after == nil || after.TurnNum < before.TurnNum) {
		return nil, 0, channel.NewInvariantError("supported turn regressed on channel %s", rec.ChannelID.Hex())
	}
	return s, added, nil
}

// UpdateFunding records the absolute amount held for an asset. Replaying
// the same amount is a no-op.
func (t *Tx) UpdateFunding(ctx context.Context, rec *channel.Record, assetHolder common.Address, amount *big.Int) error {
	_, err := t.exec(ctx, `
		INSERT INTO funding (channel_id, asset_holder, amount)
		VALUES (?, ?, ?)
		ON CONFLICT (channel_id, asset_holder) DO UPDATE SET amount = excluded.amount
	`, rec.ChannelID.Hex(), assetHolder.Hex(), marshalBig(amount))
	if err != nil {
		return fmt.Errorf("update funding: %w", err)
	}
	rec.Funding[assetHolder] = new(big.Int).Set(amount)
	return nil
}

// RecordChainRequest stores a request handed to the chain service.
func (t *Tx) RecordChainRequest(ctx context.Context, rec *channel.Record, req channel.ChainRequest) error {
	_, err := t.exec(ctx, `
		INSERT INTO chain_requests (channel_id, kind, asset_holder, expected_held, amount)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, rec.ChannelID.Hex(), req.Kind, req.AssetHolder.Hex(), marshalBig(req.ExpectedHeld), marshalBig(req.Amount))
	if err != nil {
		return fmt.Errorf("record chain request: %w", err)
	}
	if !rec.HasChainRequest(req.Kind, req.AssetHolder) {
		rec.ChainRequests = append(rec.ChainRequests, req)
	}
	return nil
}
