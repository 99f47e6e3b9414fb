package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/chanwallet/internal/channel"
)

// lockTable hands out one mutex per channel id. Entries are reference
// counted and dropped when idle, so the id space is unbounded.
type lockTable struct {
	mu      sync.Mutex
	entries map[common.Hash]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[common.Hash]*lockEntry)}
}

// lock blocks until the channel's mutex is held and returns its release.
func (t *lockTable) lock(id common.Hash) func() {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok {
		e = &lockEntry{}
		t.entries[id] = e
	}
	e.refs++
	t.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		t.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(t.entries, id)
		}
		t.mu.Unlock()
	}
}

func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// CriticalSection runs against a locked, existing channel record.
type CriticalSection[T any] func(tx *Tx, rec *channel.Record) (T, error)

// MissingHandler runs under the channel lock when the channel is unknown.
type MissingHandler[T any] func(tx *Tx) (T, error)

// LockApp runs section with exclusive access to the channel inside one
// transaction. Sections for distinct channels run concurrently. Any error
// or panic rolls back every write made by the section. If the channel does
// not exist, onMissing runs instead; a nil onMissing yields
// ErrChannelNotFound.
func LockApp[T any](ctx context.Context, s *Store, channelID common.Hash, section CriticalSection[T], onMissing MissingHandler[T]) (T, error) {
	release := s.locks.lock(channelID)
	defer release()

	var result T
	err := s.inTx(ctx, func(tx *Tx) error {
		rec, err := tx.GetChannel(ctx, channelID)
		if errors.Is(err, ErrChannelNotFound) {
			if onMissing == nil {
				return fmt.Errorf("lock channel %s: %w", channelID.Hex(), ErrChannelNotFound)
			}
			result, err = onMissing(tx)
			return err
		}
		if err != nil {
			return err
		}
		result, err = section(tx, rec)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// inTx runs fn in a transaction, committing on success and rolling back on
// error or panic.
func (s *Store) inTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil {
				s.logger.Warn("rollback failed", "error", rbErr)
			}
			return
		}
		if cErr := sqlTx.Commit(); cErr != nil {
			err = fmt.Errorf("commit transaction: %w", cErr)
		}
	}()

	return fn(&Tx{tx: sqlTx, dialect: s.dialect, logger: s.logger})
}
