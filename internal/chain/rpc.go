package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sort"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/ethereum/go-ethereum/common"
)

// JSON-RPC methods served by a chain gateway.
const (
	MethodFundChannel     = "chain_fundChannel"
	MethodRegisterChannel = "chain_registerChannel"
	MethodGetHoldings     = "chain_getHoldings"
)

// Caller issues one JSON-RPC call. *jrpc2.Client implements it.
type Caller interface {
	CallResult(ctx context.Context, method string, params, result any) error
}

type registerParams struct {
	ChannelID    common.Hash      `json:"channelId"`
	AssetHolders []common.Address `json:"assetHolders"`
}

type holdingsParams struct {
	ChannelID   common.Hash    `json:"channelId"`
	AssetHolder common.Address `json:"assetHolderAddress"`
}

type holdingsResult struct {
	Amount *big.Int `json:"amount"`
}

type fundResult struct {
	TxHash common.Hash `json:"txHash"`
}

// RPCService is a Service backed by a JSON-RPC chain gateway. Holdings are
// learned by polling registered channels with Poll.
type RPCService struct {
	caller Caller
	logger *slog.Logger

	mu         sync.Mutex
	subs       []ChainEventSubscriber
	registered map[common.Hash][]common.Address
	seen       map[holdingKey]*big.Int
}

// DialRPC connects to a gateway over HTTP.
func DialRPC(url string, logger *slog.Logger) *RPCService {
	ch := jhttp.NewChannel(url, nil)
	return NewRPCService(jrpc2.NewClient(ch, nil), logger)
}

// NewRPCService wraps an existing caller.
func NewRPCService(caller Caller, logger *slog.Logger) *RPCService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RPCService{
		caller:     caller,
		logger:     logger,
		registered: make(map[common.Hash][]common.Address),
		seen:       make(map[holdingKey]*big.Int),
	}
}

var _ Service = (*RPCService)(nil)

// FundChannel submits a deposit transaction.
func (r *RPCService) FundChannel(ctx context.Context, arg FundChannelArg) error {
	var res fundResult
	if err := r.caller.CallResult(ctx, MethodFundChannel, arg, &res); err != nil {
		return fmt.Errorf("fund channel %s: %w", arg.ChannelID.Hex(), err)
	}
	r.logger.Info("deposit submitted",
		"channel_id", arg.ChannelID.Hex(),
		"asset_holder", arg.AssetHolder.Hex(),
		"amount", arg.Amount,
		"tx_hash", res.TxHash.Hex(),
	)
	return nil
}

// RegisterChannel tells the gateway to watch a channel and adds it to the
// poll set.
func (r *RPCService) RegisterChannel(ctx context.Context, channelID common.Hash, assetHolders []common.Address) error {
	params := registerParams{ChannelID: channelID, AssetHolders: assetHolders}
	if err := r.caller.CallResult(ctx, MethodRegisterChannel, params, nil); err != nil {
		return fmt.Errorf("register channel %s: %w", channelID.Hex(), err)
	}
	r.mu.Lock()
	r.registered[channelID] = append([]common.Address(nil), assetHolders...)
	r.mu.Unlock()
	return nil
}

// Subscribe adds a subscriber for holding updates.
func (r *RPCService) Subscribe(sub ChainEventSubscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, sub)
}

// Poll fetches holdings for every registered channel and notifies
// subscribers of amounts that changed since the last poll.
func (r *RPCService) Poll(ctx context.Context) error {
	r.mu.Lock()
	keys := make([]holdingKey, 0, len(r.registered))
	for id, assets := range r.registered {
		for _, a := range assets {
			keys = append(keys, holdingKey{id, a})
		}
	}
	subs := append([]ChainEventSubscriber(nil), r.subs...)
	r.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].channel != keys[j].channel {
			return keys[i].channel.Hex() < keys[j].channel.Hex()
		}
		return keys[i].asset.Hex() < keys[j].asset.Hex()
	})

	var errs []error
	for _, k := range keys {
		var res holdingsResult
		if err := r.caller.CallResult(ctx, MethodGetHoldings, holdingsParams{k.channel, k.asset}, &res); err != nil {
			errs = append(errs, fmt.Errorf("get holdings %s: %w", k.channel.Hex(), err))
			continue
		}
		if res.Amount == nil {
			res.Amount = new(big.Int)
		}

		r.mu.Lock()
		prev, ok := r.seen[k]
		changed := !ok || prev.Cmp(res.Amount) != 0
		if changed {
			r.seen[k] = new(big.Int).Set(res.Amount)
		}
		r.mu.Unlock()
		if !changed {
			continue
		}

		ev := HoldingUpdatedArg{ChannelID: k.channel, AssetHolder: k.asset, Amount: res.Amount}
		for _, sub := range subs {
			if err := sub.HoldingUpdated(ctx, ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close releases the underlying client if it is closable.
func (r *RPCService) Close() error {
	if c, ok := r.caller.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
