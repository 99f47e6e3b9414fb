package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/testutil"
)

// createTestStore opens a fresh SQLite store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestChannel persists a two-party channel as seen by Alice.
func createTestChannel(t *testing.T, s *Store, nonce uint64) *channel.Record {
	t.Helper()
	rec := testutil.NewRecord(nonce, 0, channel.Direct, testutil.Alice(), testutil.Bob())
	_, err := LockApp(context.Background(), s, rec.ChannelID,
		func(tx *Tx, _ *channel.Record) (struct{}, error) {
			t.Fatalf("channel %s already exists", rec.ChannelID.Hex())
			return struct{}{}, nil
		},
		func(tx *Tx) (struct{}, error) {
			return struct{}{}, tx.InsertChannel(context.Background(), rec)
		})
	require.NoError(t, err)
	return rec
}

// withChannel runs fn inside a critical section on an existing channel.
func withChannel(t *testing.T, s *Store, rec *channel.Record, fn func(tx *Tx, rec *channel.Record) error) error {
	t.Helper()
	_, err := LockApp(context.Background(), s, rec.ChannelID,
		func(tx *Tx, r *channel.Record) (struct{}, error) {
			return struct{}{}, fn(tx, r)
		}, nil)
	return err
}

func prefundVars() channel.Vars {
	return channel.Vars{
		TurnNum: 0,
		Outcome: testutil.Outcome([]testutil.Actor{testutil.Alice(), testutil.Bob()}, 5, 5),
	}
}
