package handlers

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/testutil"
)

var actors = []testutil.Actor{testutil.Alice(), testutil.Bob()}

func record(myIndex int) *channel.Record {
	return testutil.NewRecord(1, myIndex, channel.Direct, actors...)
}

// addState puts a state signed by the given participant indices into rec.
// Signatures are placeholders; handlers never verify them.
func addState(rec *channel.Record, turn uint64, final bool, signers ...int) {
	s := &channel.SignedState{
		Vars: channel.Vars{
			TurnNum: turn,
			IsFinal: final,
			Outcome: testutil.Outcome(actors, 5, 5),
			AppData: hexutil.Bytes{0x01},
		},
		Signatures: map[int]hexutil.Bytes{},
	}
	for _, i := range signers {
		s.Signatures[i] = hexutil.Bytes{byte(i + 1)}
	}
	rec.States[turn] = s
}

// running returns a record whose supported state is turn 3.
func running(myIndex int) *channel.Record {
	rec := record(myIndex)
	addState(rec, 2, false, 0, 1)
	addState(rec, 3, false, 0, 1)
	return rec
}

func TestJoinChannel(t *testing.T) {
	t.Run("countersigns prefund", func(t *testing.T) {
		rec := record(1)
		addState(rec, 0, false, 0)

		v, err := JoinChannel(rec)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), v.TurnNum)
		assert.True(t, v.Outcome.Equal(rec.States[0].Outcome))
	})

	t.Run("already signed", func(t *testing.T) {
		rec := record(1)
		addState(rec, 0, false, 0, 1)

		_, err := JoinChannel(rec)
		assert.True(t, IsJoinChannelError(err, JoinAlreadySignedByMe))
	})

	t.Run("past setup", func(t *testing.T) {
		rec := record(1)
		addState(rec, 2, false, 0)

		_, err := JoinChannel(rec)
		assert.True(t, IsJoinChannelError(err, JoinInvalidTurnNum))
	})

	t.Run("no states", func(t *testing.T) {
		_, err := JoinChannel(record(1))
		assert.True(t, IsJoinChannelError(err, JoinInvalidTurnNum))
	})
}

func TestUpdateChannel(t *testing.T) {
	args := UpdateArgs{Outcome: testutil.Outcome(actors, 3, 7), AppData: hexutil.Bytes{0xbe, 0xef}}

	t.Run("next turn", func(t *testing.T) {
		v, err := UpdateChannel(running(0), args)
		require.NoError(t, err)
		assert.Equal(t, uint64(4), v.TurnNum)
		assert.False(t, v.IsFinal)
		assert.Equal(t, big.NewInt(3), v.Outcome[0].Allocations[0].Amount)
		assert.Equal(t, hexutil.Bytes{0xbe, 0xef}, v.AppData)
	})

	tests := []struct {
		name   string
		rec    func() *channel.Record
		reason UpdateReason
	}{
		{"no supported state", func() *channel.Record { return record(0) }, UpdateInvalidLatestState},
		{"still in setup", func() *channel.Record {
			rec := record(0)
			addState(rec, 0, false, 0, 1)
			return rec
		}, UpdateNotInRunningStage},
		{"not my turn", func() *channel.Record { return running(1) }, UpdateNotMyTurn},
		{"already signed ahead", func() *channel.Record {
			// Turn 5 is not signed by its mover so support stays at 3.
			rec := running(0)
			addState(rec, 5, false, 0)
			return rec
		}, UpdateInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UpdateChannel(tt.rec(), args)
			require.Error(t, err)
			assert.True(t, IsUpdateChannelError(err, tt.reason), "got %v", err)
		})
	}
}

func TestCloseChannel(t *testing.T) {
	t.Run("final copy of supported", func(t *testing.T) {
		rec := running(0)
		v, err := CloseChannel(rec)
		require.NoError(t, err)
		assert.Equal(t, uint64(4), v.TurnNum)
		assert.True(t, v.IsFinal)
		assert.True(t, v.Outcome.Equal(rec.States[3].Outcome))
		assert.Equal(t, rec.States[3].AppData, v.AppData)
	})

	tests := []struct {
		name   string
		rec    func() *channel.Record
		reason CloseReason
	}{
		{"no supported state", func() *channel.Record { return record(0) }, CloseInvalidLatestState},
		{"still in setup", func() *channel.Record {
			rec := record(0)
			addState(rec, 1, false, 0, 1)
			return rec
		}, CloseNotInRunningStage},
		{"not my turn", func() *channel.Record { return running(1) }, CloseNotMyTurn},
		{"supported final", func() *channel.Record {
			rec := running(1)
			addState(rec, 4, true, 0, 1)
			return rec
		}, CloseChannelFinalized},
		{"already signed final", func() *channel.Record {
			rec := running(0)
			addState(rec, 4, true, 0)
			return rec
		}, CloseChannelFinalized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CloseChannel(tt.rec())
			require.Error(t, err)
			assert.True(t, IsCloseChannelError(err, tt.reason), "got %v", err)
		})
	}
}

func TestApproveObjective(t *testing.T) {
	rec := record(1)

	got, err := ApproveObjective("x", channel.NewOpenChannel(rec, channel.StatusPending))
	require.NoError(t, err)
	assert.Equal(t, channel.StatusApproved, got.Header().Status)

	done := channel.NewCloseChannel(rec, channel.StatusSucceeded)
	got, err = ApproveObjective(done.ObjectiveID, done)
	require.NoError(t, err)
	assert.Equal(t, channel.StatusSucceeded, got.Header().Status)

	_, err = ApproveObjective("missing", nil)
	assert.True(t, IsApproveObjectiveError(err, ApproveObjectiveNotFound))
}
