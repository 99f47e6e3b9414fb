package engine

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chanwallet/internal/channel"
)

// stepLog is an Observer safe for concurrent TakeActions calls.
type stepLog struct {
	mu    sync.Mutex
	steps []Step
}

func (l *stepLog) observe(st Step) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, st)
}

func TestClock_StampsConcurrentCalls(t *testing.T) {
	const channels = 6
	s := setupTestStore(t)
	var ids []common.Hash
	for nonce := uint64(1); nonce <= channels; nonce++ {
		ids = append(ids, prefundedChannelWithNonce(t, s, channel.Unfunded, nonce).ChannelID)
	}

	log := &stepLog{}
	e := New(s, alice.Signer, nil, WithObserver(log.observe))

	var wg sync.WaitGroup
	errs := make([]error, channels)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id common.Hash) {
			defer wg.Done()
			_, errs[i] = e.TakeActions(context.Background(), []common.Hash{id})
		}(i, id)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	// Each channel takes a sign step and a wait step.
	require.Len(t, log.steps, 2*channels)

	seqs := make([]int64, 0, len(log.steps))
	byRequest := make(map[string][]int64)
	for _, st := range log.steps {
		seqs = append(seqs, st.Seq)
		byRequest[st.RequestID] = append(byRequest[st.RequestID], st.Seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for i, seq := range seqs {
		assert.Equal(t, int64(i+1), seq, "seqs are unique and gapless")
	}

	require.Len(t, byRequest, channels)
	for req, own := range byRequest {
		require.Len(t, own, 2, req)
		assert.Less(t, own[0], own[1], "steps of %s out of order", req)
	}
	assert.Equal(t, int64(2*channels), e.Clock().Current())
}

func TestClock_SharedBetweenEngines(t *testing.T) {
	clock := NewClockAt(100)
	log := &stepLog{}

	first := setupTestStore(t)
	second := setupTestStore(t)
	recA := prefundedChannel(t, first, channel.Unfunded)
	recB := prefundedChannel(t, second, channel.Unfunded)

	e1 := New(first, alice.Signer, nil, WithClock(clock), WithObserver(log.observe))
	e2 := New(second, alice.Signer, nil, WithClock(clock), WithObserver(log.observe))

	_, err := e1.TakeActions(context.Background(), []common.Hash{recA.ChannelID})
	require.NoError(t, err)
	_, err = e2.TakeActions(context.Background(), []common.Hash{recB.ChannelID})
	require.NoError(t, err)

	var seqs []int64
	for _, st := range log.steps {
		seqs = append(seqs, st.Seq)
	}
	assert.Equal(t, []int64{101, 102, 103, 104}, seqs)
	assert.Same(t, clock, e2.Clock())
}

func TestClock_QuietCallStampsNothing(t *testing.T) {
	s := setupTestStore(t)
	log := &stepLog{}
	e := New(s, alice.Signer, nil, WithObserver(log.observe))

	_, err := e.TakeActions(context.Background(), []common.Hash{{0x01}})
	require.NoError(t, err)
	assert.Empty(t, log.steps)
	assert.Equal(t, int64(0), e.Clock().Current())
}
