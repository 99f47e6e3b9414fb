package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	pkgsync "polycry.pt/poly-go/sync"
)

// DepositError is returned when a deposit's precondition does not hold.
type DepositError struct {
	ChannelID    common.Hash
	AssetHolder  common.Address
	ExpectedHeld *big.Int
	Held         *big.Int
}

func (e *DepositError) Error() string {
	return fmt.Sprintf("deposit into %s on %s: expected %s held, found %s",
		e.ChannelID.Hex(), e.AssetHolder.Hex(), e.ExpectedHeld, e.Held)
}

// IsDepositError returns true if err wraps a DepositError.
func IsDepositError(err error) bool {
	var de *DepositError
	return errors.As(err, &de)
}

type holdingKey struct {
	channel common.Hash
	asset   common.Address
}

// Memory is an in-process chain. Deposits update holdings immediately and
// queue a HoldingUpdated event; events reach subscribers only through Run
// or Flush, never on the depositing goroutine.
type Memory struct {
	mu         sync.Mutex
	holdings   map[holdingKey]*big.Int
	registered map[common.Hash][]common.Address
	subs       []ChainEventSubscriber
	queue      *eventQueue
	closer     *pkgsync.Closer
	logger     *slog.Logger
}

// MemoryOption configures a Memory chain.
type MemoryOption func(*Memory)

// WithLogger sets the chain logger.
func WithLogger(l *slog.Logger) MemoryOption {
	return func(m *Memory) {
		m.logger = l
	}
}

// NewMemory creates an empty in-process chain.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		holdings:   make(map[holdingKey]*big.Int),
		registered: make(map[common.Hash][]common.Address),
		queue:      newEventQueue(),
		closer:     new(pkgsync.Closer),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ Service = (*Memory)(nil)

// FundChannel tops the holdings up to ExpectedHeld+Amount. A deposit whose
// target is already held is a no-op.
func (m *Memory) FundChannel(ctx context.Context, arg FundChannelArg) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := holdingKey{arg.ChannelID, arg.AssetHolder}
	held := m.held(key)
	if held.Cmp(arg.ExpectedHeld) < 0 {
		return &DepositError{
			ChannelID:    arg.ChannelID,
			AssetHolder:  arg.AssetHolder,
			ExpectedHeld: new(big.Int).Set(arg.ExpectedHeld),
			Held:         held,
		}
	}
	target := new(big.Int).Add(arg.ExpectedHeld, arg.Amount)
	if held.Cmp(target) >= 0 {
		m.logger.Debug("deposit already satisfied",
			"channel_id", arg.ChannelID.Hex(),
			"asset_holder", arg.AssetHolder.Hex(),
			"held", held,
		)
		return nil
	}
	m.setLocked(key, target)
	return nil
}

// Deposit adds amount to the holdings unconditionally, as a third party
// depositing into the channel would.
func (m *Memory) Deposit(channelID common.Hash, assetHolder common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := holdingKey{channelID, assetHolder}
	m.setLocked(key, new(big.Int).Add(m.held(key), amount))
}

// RegisterChannel records interest in a channel and replays its current
// non-zero holdings, so a late subscriber catches up.
func (m *Memory) RegisterChannel(ctx context.Context, channelID common.Hash, assetHolders []common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.registered[channelID] = append([]common.Address(nil), assetHolders...)
	for _, asset := range assetHolders {
		held := m.held(holdingKey{channelID, asset})
		if held.Sign() > 0 {
			m.enqueue(HoldingUpdatedArg{ChannelID: channelID, AssetHolder: asset, Amount: held})
		}
	}
	return nil
}

// Subscribe adds a subscriber for holding updates.
func (m *Memory) Subscribe(sub ChainEventSubscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, sub)
}

// Holdings returns the amount held for a channel and asset.
func (m *Memory) Holdings(channelID common.Hash, assetHolder common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held(holdingKey{channelID, assetHolder})
}

// Registered reports the asset holders registered for a channel.
func (m *Memory) Registered(channelID common.Hash) []common.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]common.Address(nil), m.registered[channelID]...)
}

// Pending returns the number of undelivered events.
func (m *Memory) Pending() int {
	return m.queue.Len()
}

// Flush delivers queued events on the calling goroutine until the queue is
// empty, including events caused by the deliveries themselves. Subscriber
// errors are collected; delivery continues past them.
func (m *Memory) Flush(ctx context.Context) error {
	var errs []error
	for {
		ev, ok := m.queue.TryDequeue()
		if !ok {
			return errors.Join(errs...)
		}
		if err := m.deliver(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
}

// Run delivers events as they arrive until ctx is cancelled or the chain
// is closed, then returns once the queue is drained. Subscriber errors are
// logged. The CLI and the scenario harness deliver with Flush instead, so
// their output stays deterministic; Run serves long-lived embedders.
func (m *Memory) Run(ctx context.Context) error {
	for {
		if ev, ok := m.queue.TryDequeue(); ok {
			m.deliverLogged(ctx, ev)
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.closer.Closed():
			for {
				ev, ok := m.queue.TryDequeue()
				if !ok {
					return nil
				}
				m.deliverLogged(ctx, ev)
			}
		case <-m.queue.Wait():
		}
	}
}

// Close stops Run once the queue drains. Later deposits still update
// holdings but queue nothing.
func (m *Memory) Close() error {
	return m.closer.Close()
}

// IsClosed reports whether Close was called.
func (m *Memory) IsClosed() bool {
	return m.closer.IsClosed()
}

func (m *Memory) enqueue(ev HoldingUpdatedArg) {
	if m.closer.IsClosed() {
		m.logger.Debug("chain closed, dropping holding update", "event", ev.String())
		return
	}
	m.queue.Enqueue(ev)
}

func (m *Memory) deliverLogged(ctx context.Context, ev HoldingUpdatedArg) {
	if err := m.deliver(ctx, ev); err != nil {
		m.logger.Warn("holding update delivery failed",
			"event", ev.String(),
			"error", err,
		)
	}
}

func (m *Memory) deliver(ctx context.Context, ev HoldingUpdatedArg) error {
	m.mu.Lock()
	subs := append([]ChainEventSubscriber(nil), m.subs...)
	m.mu.Unlock()

	m.logger.Debug("delivering holding update", "event", ev.String(), "subscribers", len(subs))

	var errs []error
	for _, sub := range subs {
		if err := sub.HoldingUpdated(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Memory) held(key holdingKey) *big.Int {
	if v, ok := m.holdings[key]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (m *Memory) setLocked(key holdingKey, amount *big.Int) {
	m.holdings[key] = new(big.Int).Set(amount)
	m.enqueue(HoldingUpdatedArg{ChannelID: key.channel, AssetHolder: key.asset, Amount: new(big.Int).Set(amount)})
}
