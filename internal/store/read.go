package store

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/chanwallet/internal/channel"
)

// View runs fn in a transaction without taking any channel lock. It must
// not be called from inside a critical section.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	return s.inTx(ctx, fn)
}

// GetChannel loads one channel record.
func (s *Store) GetChannel(ctx context.Context, id common.Hash) (*channel.Record, error) {
	var rec *channel.Record
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		rec, err = tx.GetChannel(ctx, id)
		return err
	})
	return rec, err
}

// GetChannels loads every channel record, ordered by channel id.
func (s *Store) GetChannels(ctx context.Context) ([]*channel.Record, error) {
	out := []*channel.Record{}
	err := s.View(ctx, func(tx *Tx) error {
		ids, err := tx.channelIDs(ctx, `SELECT channel_id FROM channels ORDER BY channel_id`)
		if err != nil {
			return err
		}
		for _, id := range ids {
			rec, err := tx.GetChannel(ctx, id)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// GetObjective loads one objective.
func (s *Store) GetObjective(ctx context.Context, id string) (channel.Objective, error) {
	var obj channel.Objective
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		obj, err = tx.GetObjective(ctx, id)
		return err
	})
	return obj, err
}

// ActiveObjectives returns pending and approved objectives for the
// channels, in creation order.
func (s *Store) ActiveObjectives(ctx context.Context, channelIDs []common.Hash) ([]channel.Objective, error) {
	var objs []channel.Objective
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		objs, err = tx.ActiveObjectives(ctx, channelIDs)
		return err
	})
	return objs, err
}

// ListObjectives returns every objective in creation order.
func (s *Store) ListObjectives(ctx context.Context) ([]channel.Objective, error) {
	var objs []channel.Objective
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		objs, err = tx.ListObjectives(ctx)
		return err
	})
	return objs, err
}

// ChannelsWithActiveObjectives returns the ids of channels that still have
// pending or approved objectives. Used to resume work after a restart.
func (s *Store) ChannelsWithActiveObjectives(ctx context.Context) ([]common.Hash, error) {
	var ids []common.Hash
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		ids, err = tx.channelIDs(ctx, `
			SELECT DISTINCT channel_id FROM objectives
			WHERE status IN (?, ?)
			ORDER BY channel_id
		`, string(channel.StatusPending), string(channel.StatusApproved))
		return err
	})
	return ids, err
}

// NextNonce allocates a channel nonce in its own transaction.
func (s *Store) NextNonce(ctx context.Context, signerSet string) (uint64, error) {
	var n uint64
	err := s.inTx(ctx, func(tx *Tx) error {
		var err error
		n, err = tx.NextNonce(ctx, signerSet)
		return err
	})
	return n, err
}

func (t *Tx) channelIDs(ctx context.Context, query string, args ...any) ([]common.Hash, error) {
	rows, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []common.Hash{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, common.HexToHash(id))
	}
	return ids, rows.Err()
}
