package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pkgsync "polycry.pt/poly-go/sync"
)

var (
	testChannel = common.HexToHash("0xc0ffee")
	testAsset   = common.HexToAddress("0xaa")
)

type recordingSubscriber struct {
	mu     sync.Mutex
	events []HoldingUpdatedArg
	err    error
	onEv   func(HoldingUpdatedArg)
}

func (s *recordingSubscriber) HoldingUpdated(_ context.Context, ev HoldingUpdatedArg) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	hook := s.onEv
	s.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
	return s.err
}

func (s *recordingSubscriber) amounts() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Amount.Int64()
	}
	return out
}

func fund(expected, amount int64) FundChannelArg {
	return FundChannelArg{
		ChannelID:    testChannel,
		AssetHolder:  testAsset,
		ExpectedHeld: big.NewInt(expected),
		Amount:       big.NewInt(amount),
	}
}

func TestMemory_FundChannelQueuesEvent(t *testing.T) {
	m := NewMemory()
	sub := &recordingSubscriber{}
	m.Subscribe(sub)

	require.NoError(t, m.FundChannel(context.Background(), fund(0, 5)))
	assert.Equal(t, int64(5), m.Holdings(testChannel, testAsset).Int64())
	assert.Empty(t, sub.amounts(), "events are not delivered on the depositing goroutine")
	assert.Equal(t, 1, m.Pending())

	require.NoError(t, m.Flush(context.Background()))
	assert.Equal(t, []int64{5}, sub.amounts())
}

func TestMemory_FundChannelPreconditions(t *testing.T) {
	m := NewMemory()

	err := m.FundChannel(context.Background(), fund(5, 5))
	require.Error(t, err)
	assert.True(t, IsDepositError(err))

	require.NoError(t, m.FundChannel(context.Background(), fund(0, 5)))
	require.NoError(t, m.FundChannel(context.Background(), fund(0, 5)), "satisfied deposit is a no-op")
	assert.Equal(t, int64(5), m.Holdings(testChannel, testAsset).Int64())
	assert.Equal(t, 1, m.Pending())
}

func TestMemory_FlushDeliversCascades(t *testing.T) {
	m := NewMemory()
	sub := &recordingSubscriber{}
	sub.onEv = func(ev HoldingUpdatedArg) {
		if ev.Amount.Int64() == 5 {
			_ = m.FundChannel(context.Background(), fund(5, 5))
		}
	}
	m.Subscribe(sub)

	require.NoError(t, m.FundChannel(context.Background(), fund(0, 5)))
	require.NoError(t, m.Flush(context.Background()))

	assert.Equal(t, []int64{5, 10}, sub.amounts())
	assert.Equal(t, 0, m.Pending())
}

func TestMemory_FlushCollectsErrors(t *testing.T) {
	m := NewMemory()
	boom := errors.New("boom")
	m.Subscribe(&recordingSubscriber{err: boom})
	ok := &recordingSubscriber{}
	m.Subscribe(ok)

	m.Deposit(testChannel, testAsset, big.NewInt(3))
	err := m.Flush(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int64{3}, ok.amounts())
}

func TestMemory_RegisterReplaysHoldings(t *testing.T) {
	m := NewMemory()
	m.Deposit(testChannel, testAsset, big.NewInt(7))
	require.NoError(t, m.Flush(context.Background()))

	sub := &recordingSubscriber{}
	m.Subscribe(sub)
	require.NoError(t, m.RegisterChannel(context.Background(), testChannel, []common.Address{testAsset}))
	require.NoError(t, m.Flush(context.Background()))

	assert.Equal(t, []int64{7}, sub.amounts())
	assert.Equal(t, []common.Address{testAsset}, m.Registered(testChannel))
}

func TestMemory_Run(t *testing.T) {
	m := NewMemory()
	delivered := make(chan HoldingUpdatedArg, 1)
	sub := &recordingSubscriber{onEv: func(ev HoldingUpdatedArg) { delivered <- ev }}
	m.Subscribe(sub)

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	m.Deposit(testChannel, testAsset, big.NewInt(2))
	select {
	case ev := <-delivered:
		assert.Equal(t, int64(2), ev.Amount.Int64())
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	require.NoError(t, m.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after Close")
	}
}

func TestMemory_RunStopsOnCancel(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestMemory_RunDrainsQueueOnClose(t *testing.T) {
	m := NewMemory()
	sub := &recordingSubscriber{}
	m.Subscribe(sub)

	m.Deposit(testChannel, testAsset, big.NewInt(1))
	m.Deposit(testChannel, testAsset, big.NewInt(2))
	require.NoError(t, m.Close())

	// Closed before Run started: queued events are still delivered.
	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, []int64{1, 3}, sub.amounts())
	assert.Zero(t, m.Pending())
}

func TestMemory_Close(t *testing.T) {
	m := NewMemory()
	assert.False(t, m.IsClosed())
	require.NoError(t, m.Close())
	assert.True(t, m.IsClosed())

	err := m.Close()
	require.Error(t, err)
	assert.True(t, pkgsync.IsAlreadyClosedError(err))

	// Holdings still move, but nothing is queued.
	m.Deposit(testChannel, testAsset, big.NewInt(4))
	assert.Equal(t, int64(4), m.Holdings(testChannel, testAsset).Int64())
	assert.Zero(t, m.Pending())
}
