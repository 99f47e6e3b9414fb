package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chanwallet/internal/chain"
	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/store"
	"github.com/roach88/chanwallet/internal/testutil"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(dir + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// failingChain rejects every deposit.
type failingChain struct {
	calls int
}

func (f *failingChain) FundChannel(context.Context, chain.FundChannelArg) error {
	f.calls++
	return errors.New("insufficient gas")
}

func (f *failingChain) RegisterChannel(context.Context, common.Hash, []common.Address) error {
	return nil
}

func (f *failingChain) Subscribe(chain.ChainEventSubscriber) {}

var (
	alice = testutil.Alice()
	bob   = testutil.Bob()
)

// prefundedChannel stores Alice's view of a channel whose prefund round is
// complete, with an approved OpenChannel objective.
func prefundedChannel(t *testing.T, s *store.Store, strategy channel.FundingStrategy) *channel.Record {
	t.Helper()
	return prefundedChannelWithNonce(t, s, strategy, 1)
}

func prefundedChannelWithNonce(t *testing.T, s *store.Store, strategy channel.FundingStrategy, nonce uint64) *channel.Record {
	t.Helper()
	ctx := context.Background()
	rec := testutil.NewRecord(nonce, 0, strategy, alice, bob)
	outcome := testutil.Outcome([]testutil.Actor{alice, bob}, 5, 5)

	_, err := store.LockApp(ctx, s, rec.ChannelID, nil, func(tx *store.Tx) (struct{}, error) {
		if err := tx.InsertChannel(ctx, rec); err != nil {
			return struct{}{}, err
		}
		if _, err := tx.SignState(ctx, rec, channel.Vars{TurnNum: 0, Outcome: outcome}, alice.Signer); err != nil {
			return struct{}{}, err
		}
		ws := testutil.SignWire(rec, channel.Vars{TurnNum: 1, Outcome: outcome}, bob)
		if _, err := tx.AddSignedState(ctx, rec, ws); err != nil {
			return struct{}{}, err
		}
		_, err := tx.InsertObjective(ctx, channel.NewOpenChannel(rec, channel.StatusApproved))
		return struct{}{}, err
	})
	require.NoError(t, err)
	return rec
}

func addPeerState(t *testing.T, s *store.Store, rec *channel.Record, vars channel.Vars) {
	t.Helper()
	ctx := context.Background()
	_, err := store.LockApp(ctx, s, rec.ChannelID, func(tx *store.Tx, r *channel.Record) (int, error) {
		return tx.AddSignedState(ctx, r, testutil.SignWire(r, vars, bob))
	}, nil)
	require.NoError(t, err)
}

func TestEngine_New(t *testing.T) {
	s := setupTestStore(t)

	e1 := New(s, alice.Signer, nil)
	assert.Equal(t, DefaultMaxSteps, e1.MaxSteps())

	e2 := New(s, alice.Signer, nil, WithMaxSteps(500))
	assert.Equal(t, 500, e2.MaxSteps())
}

func TestTakeActions_NoObjectives(t *testing.T) {
	s := setupTestStore(t)
	e := New(s, alice.Signer, nil)

	res, err := e.TakeActions(context.Background(), []common.Hash{common.HexToHash("0x01")})
	require.NoError(t, err)
	assert.Empty(t, res.Channels)
	assert.Empty(t, res.Messages)
}

func TestTakeActions_UnfundedOpenRunsToCompletion(t *testing.T) {
	s := setupTestStore(t)
	rec := prefundedChannel(t, s, channel.Unfunded)
	e := New(s, alice.Signer, nil)

	res, err := e.TakeActions(context.Background(), []common.Hash{rec.ChannelID})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "bob", res.Messages[0].To)
	assert.Equal(t, uint64(2), res.Messages[0].Data.SignedStates[0].TurnNum)
	assert.Empty(t, res.Completed)

	obj, err := s.GetObjective(context.Background(), channel.ObjectiveID(channel.OpenChannelType, rec.ChannelID))
	require.NoError(t, err)
	assert.Equal(t, channel.StatusApproved, obj.Header().Status, "quiet objectives keep their status")

	addPeerState(t, s, rec, channel.Vars{TurnNum: 3, Outcome: rec.States[0].Outcome})

	res, err = e.TakeActions(context.Background(), []common.Hash{rec.ChannelID})
	require.NoError(t, err)
	assert.Equal(t, []string{obj.Header().ObjectiveID}, res.Completed)
	last := res.Channels[len(res.Channels)-1]
	assert.Equal(t, channel.Running, last.Status)
	assert.Equal(t, uint64(3), last.TurnNum)
}

func TestTakeActions_DirectFundingDepositsOnce(t *testing.T) {
	s := setupTestStore(t)
	rec := prefundedChannel(t, s, channel.Direct)
	mem := chain.NewMemory()
	e := New(s, alice.Signer, mem)

	for i := 0; i < 2; i++ {
		_, err := e.TakeActions(context.Background(), []common.Hash{rec.ChannelID})
		require.NoError(t, err)
	}

	assert.Equal(t, int64(5), mem.Holdings(rec.ChannelID, testutil.AssetHolder).Int64())
	assert.Equal(t, 1, mem.Pending(), "a single deposit was made")

	loaded, err := s.GetChannel(context.Background(), rec.ChannelID)
	require.NoError(t, err)
	assert.True(t, loaded.HasChainRequest(channel.ChainRequestFund, testutil.AssetHolder))
}

func TestTakeActions_ChainFailureRollsBack(t *testing.T) {
	s := setupTestStore(t)
	rec := prefundedChannel(t, s, channel.Direct)
	fc := &failingChain{}
	e := New(s, alice.Signer, fc)

	_, err := e.TakeActions(context.Background(), []common.Hash{rec.ChannelID})
	require.Error(t, err)
	assert.True(t, IsChainError(err))
	assert.Contains(t, err.Error(), "insufficient gas")

	loaded, err := s.GetChannel(context.Background(), rec.ChannelID)
	require.NoError(t, err)
	assert.Empty(t, loaded.ChainRequests)

	// The request was rolled back, so the next call tries again.
	_, err = e.TakeActions(context.Background(), []common.Hash{rec.ChannelID})
	require.Error(t, err)
	assert.Equal(t, 2, fc.calls)
}

func TestTakeActions_QuotaExceeded(t *testing.T) {
	s := setupTestStore(t)
	rec := prefundedChannel(t, s, channel.Unfunded)
	e := New(s, alice.Signer, nil, WithMaxSteps(1))

	_, err := e.TakeActions(context.Background(), []common.Hash{rec.ChannelID})
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))

	// The first step committed before the quota tripped.
	loaded, err := s.GetChannel(context.Background(), rec.ChannelID)
	require.NoError(t, err)
	assert.Contains(t, loaded.States, uint64(2))
}

func TestTakeActions_QuotaIsPerObjective(t *testing.T) {
	s := setupTestStore(t)
	var ids []common.Hash
	for nonce := uint64(1); nonce <= 5; nonce++ {
		ids = append(ids, prefundedChannelWithNonce(t, s, channel.Unfunded, nonce).ChannelID)
	}
	// Each objective takes a sign step and a wait step.
	e := New(s, alice.Signer, nil, WithMaxSteps(2))

	res, err := e.TakeActions(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, res.Channels, 10)
	assert.Len(t, res.Messages, 5)
}

func TestTakeActions_PendingObjectiveUntouched(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	rec := testutil.NewRecord(1, 1, channel.Unfunded, alice, bob)
	outcome := testutil.Outcome([]testutil.Actor{alice, bob}, 5, 5)
	_, err := store.LockApp(ctx, s, rec.ChannelID, nil, func(tx *store.Tx) (struct{}, error) {
		if err := tx.InsertChannel(ctx, rec); err != nil {
			return struct{}{}, err
		}
		if _, err := tx.AddSignedState(ctx, rec, testutil.SignWire(rec, channel.Vars{Outcome: outcome}, alice)); err != nil {
			return struct{}{}, err
		}
		_, err := tx.InsertObjective(ctx, channel.NewOpenChannel(rec, channel.StatusPending))
		return struct{}{}, err
	})
	require.NoError(t, err)

	e := New(s, bob.Signer, nil)
	res, err := e.TakeActions(ctx, []common.Hash{rec.ChannelID})
	require.NoError(t, err)
	assert.Empty(t, res.Messages)
	require.Len(t, res.Channels, 1)
	assert.Equal(t, channel.Proposed, res.Channels[0].Status)
}

func TestTakeActions_ObserverSeesOrderedSteps(t *testing.T) {
	s := setupTestStore(t)
	rec := prefundedChannel(t, s, channel.Unfunded)

	var steps []Step
	e := New(s, alice.Signer, nil,
		WithObserver(func(st Step) { steps = append(steps, st) }),
		WithRequestIDs(NewFixedGenerator("req-1")),
		WithClock(NewClockAt(10)),
	)

	_, err := e.TakeActions(context.Background(), []common.Hash{rec.ChannelID})
	require.NoError(t, err)

	require.Len(t, steps, 2)
	assert.Equal(t, int64(11), steps[0].Seq)
	assert.Equal(t, int64(12), steps[1].Seq)
	assert.Equal(t, "req-1", steps[0].RequestID)
	assert.Contains(t, steps[0].Action, "SignState")
	assert.Equal(t, "wait", steps[1].Action)
	assert.Equal(t, int64(12), e.Clock().Current())
}

func TestResult_Append(t *testing.T) {
	r := &Result{Completed: []string{"a"}}
	r.Append(&Result{Completed: []string{"b"}})
	r.Append(nil)
	assert.Equal(t, []string{"a", "b"}, r.Completed)
}

func TestRuntimeError_Unwrap(t *testing.T) {
	cause := errors.New("rpc down")
	err := NewChainError("req-1", "OpenChannel-0x01", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "request=req-1")
	assert.False(t, IsQuotaError(err))

	qe := NewQuotaError("req-2", &StepsExceededError{RequestID: "req-2", Steps: 65, Limit: 64})
	assert.True(t, IsQuotaError(qe))
	assert.Equal(t, "65", qe.Details["steps"])
}
