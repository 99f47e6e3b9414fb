package harness

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/store"
	"github.com/roach88/chanwallet/internal/testutil"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Kind: KindOp, Actor: "alice", Op: OpCreate, Status: "opening", Turn: turnPtr(0)},
		{Kind: KindStep, Actor: "bob", Action: "SignState(ch1, turn=3, final=false)", Objective: "OpenChannel-ch1"},
		{Kind: KindStep, Actor: "alice", Action: "SignState(ch1, turn=2, final=false)", Objective: "OpenChannel-ch1"},
		{Kind: KindStep, Actor: "alice", Action: "CompleteObjective(OpenChannel-ch1)", Objective: "OpenChannel-ch1"},
		{Kind: KindStep, Actor: "bob", Action: "CompleteObjective(OpenChannel-ch1)", Objective: "OpenChannel-ch1"},
		{Kind: KindPush, Actor: "bob", From: "alice", Status: "running", Turn: turnPtr(3)},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	t.Run("found", func(t *testing.T) {
		err := assertTraceContains(trace, Assertion{Action: "SignState(ch1, turn=2, final=false)"})
		assert.NoError(t, err)
	})

	t.Run("found for actor", func(t *testing.T) {
		err := assertTraceContains(trace, Assertion{Actor: "bob", Action: "SignState(ch1, turn=3, final=false)"})
		assert.NoError(t, err)
	})

	t.Run("wrong actor", func(t *testing.T) {
		err := assertTraceContains(trace, Assertion{Actor: "alice", Action: "SignState(ch1, turn=3, final=false)"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "by alice")
		assert.Contains(t, err.Error(), "not found in trace")
	})

	t.Run("ops are not steps", func(t *testing.T) {
		err := assertTraceContains(trace, Assertion{Action: OpCreate})
		assert.Error(t, err)
	})
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	t.Run("in order", func(t *testing.T) {
		err := assertTraceOrder(trace, Assertion{Actions: []string{
			"SignState(ch1, turn=3, final=false)",
			"CompleteObjective(OpenChannel-ch1)",
		}})
		assert.NoError(t, err)
	})

	t.Run("out of order", func(t *testing.T) {
		err := assertTraceOrder(trace, Assertion{Actions: []string{
			"CompleteObjective(OpenChannel-ch1)",
			"SignState(ch1, turn=2, final=false)",
		}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "should be before")
	})

	t.Run("missing", func(t *testing.T) {
		err := assertTraceOrder(trace, Assertion{Actions: []string{"SignState(ch1, turn=4, final=true)"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing action")
	})

	t.Run("per actor", func(t *testing.T) {
		err := assertTraceOrder(trace, Assertion{Actor: "alice", Actions: []string{
			"SignState(ch1, turn=2, final=false)",
			"CompleteObjective(OpenChannel-ch1)",
		}})
		assert.NoError(t, err)
	})
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "CompleteObjective(OpenChannel-ch1)", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Actor: "bob", Action: "CompleteObjective(OpenChannel-ch1)", Count: 1}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "SignState(ch1, turn=4, final=true)", Count: 0}))

	err := assertTraceCount(trace, Assertion{Action: "CompleteObjective(OpenChannel-ch1)", Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 occurrences")
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     "trace_contains",
		Expected: "X",
		Actual:   "not found in trace",
		Trace:    stepsFor(sampleTrace(), "alice"),
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_contains")
	assert.Contains(t, msg, "Engine steps:")
	assert.Contains(t, msg, "[1] alice SignState(ch1, turn=2, final=false)")
}

// fundedStore returns a store holding one channel with funding recorded.
func fundedStore(t *testing.T) (*store.Store, common.Hash) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	alice, bob := testutil.Alice(), testutil.Bob()
	rec := testutil.NewRecord(1, 0, channel.Direct, alice, bob)
	ctx := context.Background()
	_, err = store.LockApp(ctx, st, rec.ChannelID, nil,
		func(tx *store.Tx) (struct{}, error) {
			if err := tx.InsertChannel(ctx, rec); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, tx.UpdateFunding(ctx, rec, testutil.AssetHolder, big.NewInt(7))
		})
	require.NoError(t, err)
	return st, rec.ChannelID
}

func TestAssertFinalState(t *testing.T) {
	st, id := fundedStore(t)
	ctx := context.Background()

	t.Run("match with placeholders", func(t *testing.T) {
		err := assertFinalState(ctx, st, id, Assertion{
			Actor:  "alice",
			Table:  "funding",
			Where:  map[string]interface{}{"channel_id": "ch1", "asset_holder": "asset1"},
			Expect: map[string]interface{}{"amount": "7"},
		})
		assert.NoError(t, err)
	})

	t.Run("integer column", func(t *testing.T) {
		err := assertFinalState(ctx, st, id, Assertion{
			Actor:  "alice",
			Table:  "channels",
			Where:  map[string]interface{}{"channel_id": "ch1"},
			Expect: map[string]interface{}{"my_index": 0, "funding_strategy": "Direct"},
		})
		assert.NoError(t, err)
	})

	t.Run("value mismatch", func(t *testing.T) {
		err := assertFinalState(ctx, st, id, Assertion{
			Actor:  "alice",
			Table:  "funding",
			Where:  map[string]interface{}{"channel_id": "ch1"},
			Expect: map[string]interface{}{"amount": "8"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `field "amount"`)
	})

	t.Run("row not found", func(t *testing.T) {
		err := assertFinalState(ctx, st, id, Assertion{
			Actor:  "alice",
			Table:  "objectives",
			Where:  map[string]interface{}{"objective_id": "OpenChannel-ch1"},
			Expect: map[string]interface{}{"status": "succeeded"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "row not found")
	})

	t.Run("missing column", func(t *testing.T) {
		err := assertFinalState(ctx, st, id, Assertion{
			Actor:  "alice",
			Table:  "channels",
			Expect: map[string]interface{}{"colour": "red"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not present in result columns")
	})

	t.Run("invalid table", func(t *testing.T) {
		err := assertFinalState(ctx, st, id, Assertion{
			Actor:  "alice",
			Table:  "channels; DROP TABLE channels",
			Expect: map[string]interface{}{"my_index": 0},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid table name")
	})

	t.Run("invalid column", func(t *testing.T) {
		err := assertFinalState(ctx, st, id, Assertion{
			Actor:  "alice",
			Table:  "channels",
			Where:  map[string]interface{}{"1=1 OR channel_id": "x"},
			Expect: map[string]interface{}{"my_index": 0},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid column name")
	})
}

func TestBuildWhereClause(t *testing.T) {
	sql, args, err := buildWhereClause(map[string]interface{}{"b": 2, "a": "x"})
	require.NoError(t, err)
	assert.Equal(t, "a = ? AND b = ?", sql)
	assert.Equal(t, []interface{}{"x", 2}, args)

	sql, args, err = buildWhereClause(nil)
	require.NoError(t, err)
	assert.Empty(t, sql)
	assert.Nil(t, args)
}

func TestStateValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		expected interface{}
		actual   interface{}
		want     bool
	}{
		{"both nil", nil, nil, true},
		{"nil expected", nil, "x", false},
		{"string", "a", "a", true},
		{"string bytes", "a", []byte("a"), true},
		{"string mismatch", "a", "b", false},
		{"int vs int64", 2, int64(2), true},
		{"int64", int64(3), int64(3), true},
		{"bool", true, true, true},
		{"bool as int", true, int64(1), true},
		{"false as int", false, int64(0), true},
		{"int vs string", 1, "1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stateValuesEqual(tt.expected, tt.actual))
		})
	}
}

func TestEvaluateAssertions(t *testing.T) {
	st, id := fundedStore(t)
	result := &Result{Trace: sampleTrace()}
	actx := &AssertionContext{
		Ctx:       context.Background(),
		Stores:    map[string]*store.Store{"alice": st},
		ChannelID: id,
	}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Action: "CompleteObjective(OpenChannel-ch1)"},
		{Type: AssertTraceCount, Action: "CompleteObjective(OpenChannel-ch1)", Count: 5},
		{Type: AssertFinalState, Actor: "alice", Table: "funding", Expect: map[string]interface{}{"amount": "7"}},
		{Type: AssertFinalState, Actor: "bob", Table: "funding", Expect: map[string]interface{}{"amount": "7"}},
		{Type: "eventually"},
	}, actx)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "5 occurrences")
	assert.Contains(t, errs[1], `requires a database for "bob"`)
	assert.Contains(t, errs[2], "unknown assertion type")
}
