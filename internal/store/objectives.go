package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/chanwallet/internal/channel"
)

// objectiveData is the type-specific payload column.
type objectiveData struct {
	FundingStrategy channel.FundingStrategy `json:"fundingStrategy,omitempty"`
}

// InsertObjective registers an objective. Inserting an id that already
// exists is a no-op and reports inserted=false.
func (t *Tx) InsertObjective(ctx context.Context, obj channel.Objective) (bool, error) {
	h := obj.Header()
	participants, err := marshalParticipants(h.Participants)
	if err != nil {
		return false, fmt.Errorf("insert objective: %w", err)
	}
	var data objectiveData
	switch o := obj.(type) {
	case channel.OpenChannel:
		data.FundingStrategy = o.FundingStrategy
	case channel.CloseChannel:
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("insert objective: %w", err)
	}

	res, err := t.exec(ctx, `
		INSERT INTO objectives (objective_id, type, status, channel_id, participants, data, seq)
		VALUES (?, ?, ?, ?, ?, ?, `+t.dialect.nextObjectiveSeq+`)
		ON CONFLICT (objective_id) DO NOTHING
	`, h.ObjectiveID, string(obj.Type()), string(h.Status), h.ChannelID.Hex(), participants, string(payload))
	if err != nil {
		return false, fmt.Errorf("insert objective: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert objective: %w", err)
	}
	return n > 0, nil
}

// GetObjective loads an objective by id.
// Returns ErrObjectiveNotFound if it does not exist.
func (t *Tx) GetObjective(ctx context.Context, id string) (channel.Objective, error) {
	row := t.queryRow(ctx, `
		SELECT objective_id, type, status, channel_id, participants, data
		FROM objectives WHERE objective_id = ?
	`, id)
	obj, err := scanObjective(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrObjectiveNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get objective %s: %w", id, err)
	}
	return obj, nil
}

// SetObjectiveStatus updates an objective's status.
func (t *Tx) SetObjectiveStatus(ctx context.Context, id string, status channel.ObjectiveStatus) error {
	res, err := t.exec(ctx, `UPDATE objectives SET status = ? WHERE objective_id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("set objective status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set objective status: %w", err)
	}
	if n == 0 {
		return ErrObjectiveNotFound
	}
	return nil
}

// ActiveObjectives returns pending and approved objectives targeting any of
// the channels, in creation order.
func (t *Tx) ActiveObjectives(ctx context.Context, channelIDs []common.Hash) ([]channel.Objective, error) {
	if len(channelIDs) == 0 {
		return []channel.Objective{}, nil
	}
	placeholders := make([]string, len(channelIDs))
	args := make([]any, 0, len(channelIDs)+2)
	args = append(args, string(channel.StatusPending), string(channel.StatusApproved))
	for i, id := range channelIDs {
		placeholders[i] = "?"
		args = append(args, id.Hex())
	}
	rows, err := t.query(ctx, `
		SELECT objective_id, type, status, channel_id, participants, data
		FROM objectives
		WHERE status IN (?, ?) AND channel_id IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY seq ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("active objectives: %w", err)
	}
	return scanObjectives(rows)
}

// ListObjectives returns every objective in creation order.
func (t *Tx) ListObjectives(ctx context.Context) ([]channel.Objective, error) {
	rows, err := t.query(ctx, `
		SELECT objective_id, type, status, channel_id, participants, data
		FROM objectives ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list objectives: %w", err)
	}
	return scanObjectives(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObjectives(rows *sql.Rows) ([]channel.Objective, error) {
	defer rows.Close()
	out := []channel.Objective{}
	for rows.Next() {
		obj, err := scanObjective(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate objectives: %w", err)
	}
	return out, nil
}

func scanObjective(row rowScanner) (channel.Objective, error) {
	var id, typ, status, channelID, participants, data string
	if err := row.Scan(&id, &typ, &status, &channelID, &participants, &data); err != nil {
		return nil, err
	}
	parts, err := unmarshalParticipants(participants)
	if err != nil {
		return nil, err
	}
	var payload objectiveData
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal objective data: %w", err)
	}
	header := channel.ObjectiveHeader{
		ObjectiveID:  id,
		Status:       channel.ObjectiveStatus(status),
		ChannelID:    common.HexToHash(channelID),
		Participants: parts,
	}
	switch channel.ObjectiveType(typ) {
	case channel.OpenChannelType:
		return channel.OpenChannel{ObjectiveHeader: header, FundingStrategy: payload.FundingStrategy}, nil
	case channel.CloseChannelType:
		return channel.CloseChannel{ObjectiveHeader: header}, nil
	default:
		return nil, channel.NewInvariantError("unknown objective type %q for %s", typ, id)
	}
}
