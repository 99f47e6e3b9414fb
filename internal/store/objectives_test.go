package store

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chanwallet/internal/channel"
)

func TestInsertObjective_Idempotent(t *testing.T) {
	s := createTestStore(t)
	rec := createTestChannel(t, s, 1)
	obj := channel.NewOpenChannel(rec, channel.StatusApproved)

	var inserted []bool
	for i := 0; i < 2; i++ {
		require.NoError(t, withChannel(t, s, rec, func(tx *Tx, r *channel.Record) error {
			ok, err := tx.InsertObjective(context.Background(), obj)
			inserted = append(inserted, ok)
			return err
		}))
	}
	assert.Equal(t, []bool{true, false}, inserted)

	got, err := s.GetObjective(context.Background(), obj.ObjectiveID)
	require.NoError(t, err)
	assert.Equal(t, obj, got)
}

func TestGetObjective_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetObjective(context.Background(), "OpenChannel-0xmissing")
	assert.ErrorIs(t, err, ErrObjectiveNotFound)
}

func TestSetObjectiveStatus(t *testing.T) {
	s := createTestStore(t)
	rec := createTestChannel(t, s, 1)
	obj := channel.NewOpenChannel(rec, channel.StatusPending)

	require.NoError(t, withChannel(t, s, rec, func(tx *Tx, r *channel.Record) error {
		if _, err := tx.InsertObjective(context.Background(), obj); err != nil {
			return err
		}
		return tx.SetObjectiveStatus(context.Background(), obj.ObjectiveID, channel.StatusApproved)
	}))

	got, err := s.GetObjective(context.Background(), obj.ObjectiveID)
	require.NoError(t, err)
	assert.Equal(t, channel.StatusApproved, got.Header().Status)

	err = withChannel(t, s, rec, func(tx *Tx, r *channel.Record) error {
		return tx.SetObjectiveStatus(context.Background(), "CloseChannel-0xmissing", channel.StatusSucceeded)
	})
	assert.ErrorIs(t, err, ErrObjectiveNotFound)
}

func TestActiveObjectives_OrderAndFilter(t *testing.T) {
	s := createTestStore(t)
	first := createTestChannel(t, s, 1)
	second := createTestChannel(t, s, 2)

	open1 := channel.NewOpenChannel(first, channel.StatusSucceeded)
	close1 := channel.NewCloseChannel(first, channel.StatusApproved)
	open2 := channel.NewOpenChannel(second, channel.StatusPending)

	require.NoError(t, withChannel(t, s, first, func(tx *Tx, r *channel.Record) error {
		for _, o := range []channel.Objective{open1, open2, close1} {
			if _, err := tx.InsertObjective(context.Background(), o); err != nil {
				return err
			}
		}
		return nil
	}))

	active, err := s.ActiveObjectives(context.Background(), []common.Hash{first.ChannelID, second.ChannelID})
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, open2.ObjectiveID, active[0].Header().ObjectiveID)
	assert.Equal(t, close1.ObjectiveID, active[1].Header().ObjectiveID)

	onlyFirst, err := s.ActiveObjectives(context.Background(), []common.Hash{first.ChannelID})
	require.NoError(t, err)
	require.Len(t, onlyFirst, 1)
	assert.Equal(t, channel.CloseChannelType, onlyFirst[0].Type())

	none, err := s.ActiveObjectives(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := s.ListObjectives(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)

	ids, err := s.ChannelsWithActiveObjectives(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []common.Hash{first.ChannelID, second.ChannelID}, ids)
}

func TestGetChannels(t *testing.T) {
	s := createTestStore(t)
	createTestChannel(t, s, 1)
	createTestChannel(t, s, 2)

	recs, err := s.GetChannels(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.NotEqual(t, recs[0].ChannelID, recs[1].ChannelID)
}

func TestInsertObjective_SeqIsUnique(t *testing.T) {
	s := createTestStore(t)
	first := createTestChannel(t, s, 1)
	second := createTestChannel(t, s, 2)

	for _, rec := range []*channel.Record{first, second} {
		rec := rec
		require.NoError(t, withChannel(t, s, rec, func(tx *Tx, r *channel.Record) error {
			for _, o := range []channel.Objective{
				channel.NewOpenChannel(rec, channel.StatusApproved),
				channel.NewCloseChannel(rec, channel.StatusPending),
			} {
				if _, err := tx.InsertObjective(context.Background(), o); err != nil {
					return err
				}
			}
			return nil
		}))
	}

	rows, err := s.db.Query(`SELECT seq FROM objectives ORDER BY seq`)
	require.NoError(t, err)
	defer rows.Close()
	var seqs []int64
	for rows.Next() {
		var seq int64
		require.NoError(t, rows.Scan(&seq))
		seqs = append(seqs, seq)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []int64{1, 2, 3, 4}, seqs)
}

func TestObjectiveSeq_Dialects(t *testing.T) {
	assert.Contains(t, sqliteDialect.schema(), "seq          BIGINT NOT NULL")
	assert.Empty(t, sqliteDialect.seqMigration)

	pg := postgresDialect.schema()
	assert.Contains(t, pg, "seq          BIGSERIAL")
	assert.NotContains(t, pg, "{{objective_seq}}")
	assert.Equal(t, "DEFAULT", postgresDialect.nextObjectiveSeq)
	require.Len(t, postgresDialect.seqMigration, 3)
	assert.Contains(t, postgresDialect.seqMigration[2], "SET DEFAULT nextval('objectives_seq_seq')")
}
