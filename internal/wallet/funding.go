package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/store"
)

// FundingUpdate is the absolute amount of one asset held for a channel.
type FundingUpdate struct {
	ChannelID   common.Hash    `json:"channelId"`
	AssetHolder common.Address `json:"assetHolder"`
	Amount      *big.Int       `json:"amount"`
}

// UpdateFundingForChannels records holdings and cranks the affected
// channels. Amounts are absolute, so replays are harmless. Updates for
// channels this wallet does not know are ignored.
func (w *Wallet) UpdateFundingForChannels(ctx context.Context, updates []FundingUpdate) (*Response, error) {
	resp := NewResponse()
	var touched []common.Hash
	seen := make(map[common.Hash]bool)

	for _, u := range updates {
		if u.Amount == nil || u.Amount.Sign() < 0 {
			return resp, fmt.Errorf("update funding for %s: invalid amount %v", u.ChannelID.Hex(), u.Amount)
		}
		known, err := store.LockApp(ctx, w.store, u.ChannelID,
			func(tx *store.Tx, rec *channel.Record) (bool, error) {
				if rec.Holdings(u.AssetHolder).Cmp(u.Amount) != 0 {
					if err := tx.UpdateFunding(ctx, rec, u.AssetHolder, u.Amount); err != nil {
						return false, err
					}
				}
				resp.AddChannelResult(rec.Result())
				return true, nil
			},
			func(tx *store.Tx) (bool, error) {
				return false, nil
			})
		if err != nil {
			return resp, fmt.Errorf("update funding for %s: %w", u.ChannelID.Hex(), err)
		}
		if !known {
			w.logger.Debug("ignoring funding for unknown channel",
				"channel_id", u.ChannelID.Hex(),
				"asset_holder", u.AssetHolder.Hex(),
			)
			continue
		}

		w.logger.Debug("funding updated",
			"channel_id", u.ChannelID.Hex(),
			"asset_holder", u.AssetHolder.Hex(),
			"amount", u.Amount.String(),
		)
		if !seen[u.ChannelID] {
			seen[u.ChannelID] = true
			touched = append(touched, u.ChannelID)
		}
	}

	if len(touched) == 0 {
		return resp, nil
	}
	if err := w.takeActions(ctx, touched, resp); err != nil {
		return resp, err
	}
	return resp, nil
}
