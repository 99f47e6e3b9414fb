package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/roach88/chanwallet/internal/channel"
)

// Tx is a store transaction. All reads and writes inside a critical
// section go through it; using the Store directly there would deadlock on
// SQLite's single connection.
type Tx struct {
	tx      *sql.Tx
	dialect dialect
	logger  *slog.Logger
}

func (t *Tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.rebind(query), args...)
}

func (t *Tx) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.dialect.rebind(query), args...)
}

func (t *Tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.dialect.rebind(query), args...)
}

// GetChannel loads the full record for a channel.
// Returns ErrChannelNotFound if it does not exist.
func (t *Tx) GetChannel(ctx context.Context, id common.Hash) (*channel.Record, error) {
	var (
		chainID, participants, appDef, strategy, ledger string
		nonce, challenge                                uint64
		myIndex                                         int
	)
	err := t.queryRow(ctx, `
		SELECT chain_id, channel_nonce, participants, app_definition, challenge_duration,
		       my_index, funding_strategy, ledger_channel_id
		FROM channels WHERE channel_id = ?
	`, id.Hex()).Scan(&chainID, &nonce, &participants, &appDef, &challenge, &myIndex, &strategy, &ledger)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get channel %s: %w", id.Hex(), err)
	}

	cid, err := unmarshalBig(chainID)
	if err != nil {
		return nil, fmt.Errorf("get channel %s: chain id: %w", id.Hex(), err)
	}
	parts, err := unmarshalParticipants(participants)
	if err != nil {
		return nil, fmt.Errorf("get channel %s: %w", id.Hex(), err)
	}

	rec := &channel.Record{
		ChannelID: id,
		Constants: channel.Constants{
			ChainID:           cid,
			ChannelNonce:      nonce,
			Participants:      parts,
			AppDefinition:     common.HexToAddress(appDef),
			ChallengeDuration: challenge,
		},
		MyIndex:         myIndex,
		FundingStrategy: channel.FundingStrategy(strategy),
		LedgerChannelID: unmarshalHash(ledger),
		States:          make(map[uint64]*channel.SignedState),
		Funding:         make(map[common.Address]*big.Int),
		ChainRequests:   []channel.ChainRequest{},
	}

	if err := t.loadStates(ctx, rec); err != nil {
		return nil, err
	}
	if err := t.loadFunding(ctx, rec); err != nil {
		return nil, err
	}
	if err := t.loadChainRequests(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (t *Tx) loadStates(ctx context.Context, rec *channel.Record) error {
	rows, err := t.query(ctx, `
		SELECT turn_num, state_hash, is_final, outcome, app_data
		FROM states WHERE channel_id = ?
		ORDER BY turn_num ASC
	`, rec.ChannelID.Hex())
	if err != nil {
		return fmt.Errorf("load states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			turn                   uint64
			hash, outcome, appData string
			isFinal                bool
		)
		if err := rows.Scan(&turn, &hash, &isFinal, &outcome, &appData); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}
		o, err := unmarshalOutcome(outcome)
		if err != nil {
			return err
		}
		data, err := unmarshalBytes(appData)
		if err != nil {
			return err
		}
		rec.States[turn] = &channel.SignedState{
			Vars:       channel.Vars{TurnNum: turn, IsFinal: isFinal, Outcome: o, AppData: data},
			Hash:       common.HexToHash(hash),
			Signatures: make(map[int]hexutil.Bytes),
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate states: %w", err)
	}

	sigRows, err := t.query(ctx, `
		SELECT turn_num, signer_index, signature
		FROM signatures WHERE channel_id = ?
	`, rec.ChannelID.Hex())
	if err != nil {
		return fmt.Errorf("load signatures: %w", err)
	}
	defer sigRows.Close()

	for sigRows.Next() {
		var (
			turn   uint64
			signer int
			sig    string
		)
		if err := sigRows.Scan(&turn, &signer, &sig); err != nil {
			return fmt.Errorf("scan signature: %w", err)
		}
		s, ok := rec.States[turn]
		if !ok {
			return channel.NewInvariantError("signature for missing state %d on channel %s", turn, rec.ChannelID.Hex())
		}
		b, err := unmarshalBytes(sig)
		if err != nil {
			return err
		}
		s.Signatures[signer] = b
	}
	return sigRows.Err()
}

func (t *Tx) loadFunding(ctx context.Context, rec *channel.Record) error {
	rows, err := t.query(ctx, `
		SELECT asset_holder, amount FROM funding WHERE channel_id = ?
	`, rec.ChannelID.Hex())
	if err != nil {
		return fmt.Errorf("load funding: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var asset, amount string
		if err := rows.Scan(&asset, &amount); err != nil {
			return fmt.Errorf("scan funding: %w", err)
		}
		v, err := unmarshalBig(amount)
		if err != nil {
			return err
		}
		rec.Funding[common.HexToAddress(asset)] = v
	}
	return rows.Err()
}

func (t *Tx) loadChainRequests(ctx context.Context, rec *channel.Record) error {
	rows, err := t.query(ctx, `
		SELECT kind, asset_holder, expected_held, amount
		FROM chain_requests WHERE channel_id = ?
		ORDER BY kind, asset_holder
	`, rec.ChannelID.Hex())
	if err != nil {
		return fmt.Errorf("load chain requests: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, asset, expected, amount string
		if err := rows.Scan(&kind, &asset, &expected, &amount); err != nil {
			return fmt.Errorf("scan chain request: %w", err)
		}
		e, err := unmarshalBig(expected)
		if err != nil {
			return err
		}
		a, err := unmarshalBig(amount)
		if err != nil {
			return err
		}
		rec.ChainRequests = append(rec.ChainRequests, channel.ChainRequest{
			Kind:         kind,
			AssetHolder:  common.HexToAddress(asset),
			ExpectedHeld: e,
			Amount:       a,
		})
	}
	return rows.Err()
}

// ChannelExists reports whether a channel row exists.
func (t *Tx) ChannelExists(ctx context.Context, id common.Hash) (bool, error) {
	var n int
	if err := t.queryRow(ctx, `SELECT COUNT(*) FROM channels WHERE channel_id = ?`, id.Hex()).Scan(&n); err != nil {
		return false, fmt.Errorf("channel exists: %w", err)
	}
	return n > 0, nil
}
