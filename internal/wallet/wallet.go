// Package wallet is the public face of the state-channel engine.
//
// A Wallet owns one signing key and one store. Each operation validates
// its input, mutates channel records under the per-channel lock, then
// cranks the objectives it touched through the engine. Every operation
// returns a merged Response: the latest snapshot of each touched channel
// and the messages to deliver to peers. Transport is the caller's job.
//
// Chain events arrive through HoldingUpdated, which makes a Wallet a
// chain.ChainEventSubscriber. Responses produced by chain events have no
// caller to return to; they are handed to the function set with
// WithResponseHandler.
package wallet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/chanwallet/internal/chain"
	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/engine"
	"github.com/roach88/chanwallet/internal/nitro"
	"github.com/roach88/chanwallet/internal/pool"
	"github.com/roach88/chanwallet/internal/store"
)

// ResponseHandler receives responses that were not requested by a caller.
type ResponseHandler func(ctx context.Context, resp *Response)

// Wallet drives channels for a single signing key.
type Wallet struct {
	store  *store.Store
	signer *nitro.Signer
	chain  chain.Service
	engine *engine.Engine
	pool   *pool.Pool

	ownsPool        bool
	defaultStrategy channel.FundingStrategy
	engineOpts      []engine.Option
	onResponse      ResponseHandler
	logger          *slog.Logger
}

// Option configures a Wallet.
type Option func(*Wallet)

// WithPool routes the heavy operations through p. The caller keeps
// ownership and must close it.
func WithPool(p *pool.Pool) Option {
	return func(w *Wallet) {
		w.pool = p
	}
}

// WithEngineOptions passes options through to the engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(w *Wallet) {
		w.engineOpts = append(w.engineOpts, opts...)
	}
}

// WithResponseHandler sets where responses to chain events go.
func WithResponseHandler(h ResponseHandler) Option {
	return func(w *Wallet) {
		w.onResponse = h
	}
}

// WithDefaultFundingStrategy sets the strategy assumed for channels
// learned from peers that did not announce one. Default: Direct.
func WithDefaultFundingStrategy(s channel.FundingStrategy) Option {
	return func(w *Wallet) {
		w.defaultStrategy = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Wallet) {
		w.logger = l
	}
}

// New creates a Wallet and subscribes it to svc. svc may be nil when no
// channel needs direct funding.
func New(s *store.Store, signer *nitro.Signer, svc chain.Service, opts ...Option) *Wallet {
	w := &Wallet{
		store:           s,
		signer:          signer,
		chain:           svc,
		defaultStrategy: channel.Direct,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.pool == nil {
		w.pool = pool.New(0, pool.WithLogger(w.logger))
		w.ownsPool = true
	}
	engineOpts := append([]engine.Option{engine.WithLogger(w.logger)}, w.engineOpts...)
	w.engine = engine.New(s, signer, svc, engineOpts...)
	if svc != nil {
		svc.Subscribe(w)
	}
	return w
}

// Address returns the wallet's signing address.
func (w *Wallet) Address() common.Address {
	return w.signer.Address()
}

// Engine returns the engine cranking this wallet's objectives.
func (w *Wallet) Engine() *engine.Engine {
	return w.engine
}

// Close releases the pool if the wallet created it. The store and chain
// service belong to the caller.
func (w *Wallet) Close() error {
	if w.ownsPool {
		return w.pool.Close()
	}
	return nil
}

// GetChannel returns the current result for one channel.
func (w *Wallet) GetChannel(ctx context.Context, channelID common.Hash) (channel.Result, error) {
	rec, err := w.store.GetChannel(ctx, channelID)
	if err != nil {
		return channel.Result{}, err
	}
	return rec.Result(), nil
}

// GetChannels returns the current result for every channel.
func (w *Wallet) GetChannels(ctx context.Context) ([]channel.Result, error) {
	recs, err := w.store.GetChannels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]channel.Result, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Result())
	}
	return out, nil
}

// GetObjectives returns every objective in creation order.
func (w *Wallet) GetObjectives(ctx context.Context) ([]channel.Objective, error) {
	return w.store.ListObjectives(ctx)
}

// Crank re-runs the engine over every channel with an active objective.
// Used after a restart to resume interrupted work.
func (w *Wallet) Crank(ctx context.Context) (*Response, error) {
	ids, err := w.store.ChannelsWithActiveObjectives(ctx)
	if err != nil {
		return nil, fmt.Errorf("crank: %w", err)
	}
	resp := NewResponse()
	if len(ids) == 0 {
		return resp, nil
	}
	return resp, w.takeActions(ctx, ids, resp)
}

// takeActions cranks the channels and merges the engine output into resp,
// including partial output when the engine stops on an error.
func (w *Wallet) takeActions(ctx context.Context, ids []common.Hash, resp *Response) error {
	res, err := w.engine.TakeActions(ctx, ids)
	resp.mergeEngine(res)
	return err
}

// HoldingUpdated implements chain.ChainEventSubscriber.
func (w *Wallet) HoldingUpdated(ctx context.Context, arg chain.HoldingUpdatedArg) error {
	resp, err := w.UpdateFundingForChannels(ctx, []FundingUpdate{{
		ChannelID:   arg.ChannelID,
		AssetHolder: arg.AssetHolder,
		Amount:      arg.Amount,
	}})
	if resp != nil && w.onResponse != nil && (len(resp.ChannelResults) > 0 || len(resp.Outbox) > 0) {
		w.onResponse(ctx, resp)
	}
	return err
}
