package wallet

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/engine"
)

func testPayload(id common.Hash) channel.Payload {
	return channel.Payload{Requests: []channel.Request{{Type: channel.RequestGetChannel, ChannelID: id}}}
}

func TestResponse_ChannelResultsLastWriteWins(t *testing.T) {
	id1 := common.HexToHash("0x01")
	id2 := common.HexToHash("0x02")

	r := NewResponse()
	r.AddChannelResult(channel.Result{ChannelID: id1, Status: channel.Opening, TurnNum: 0})
	r.AddChannelResult(channel.Result{ChannelID: id2, Status: channel.Proposed, TurnNum: 0})
	r.AddChannelResult(channel.Result{ChannelID: id1, Status: channel.Running, TurnNum: 3})

	require.Len(t, r.ChannelResults, 2)
	assert.Equal(t, id1, r.ChannelResults[0].ChannelID, "position of first write is kept")
	assert.Equal(t, channel.Running, r.ChannelResults[0].Status)
	assert.Equal(t, uint64(3), r.ChannelResults[0].TurnNum)
}

func TestResponse_OutboxDedup(t *testing.T) {
	id := common.HexToHash("0x01")
	m := channel.Message{To: "bob", From: "alice", Data: testPayload(id)}

	tests := []struct {
		name string
		msgs []channel.Message
		want int
	}{
		{"identical", []channel.Message{m, m}, 1},
		{"different recipient", []channel.Message{m, {To: "carol", From: "alice", Data: testPayload(id)}}, 2},
		{"different payload", []channel.Message{m, {To: "bob", From: "alice", Data: testPayload(common.HexToHash("0x02"))}}, 2},
		{"empty payload dropped", []channel.Message{{To: "bob", From: "alice"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResponse()
			r.QueueMessages(tt.msgs...)
			assert.Len(t, r.Outbox, tt.want)
		})
	}
}

func TestMergeResponses(t *testing.T) {
	id := common.HexToHash("0x01")
	m := channel.Message{To: "bob", From: "alice", Data: testPayload(id)}

	first := NewResponse()
	first.AddChannelResult(channel.Result{ChannelID: id, Status: channel.Opening})
	first.QueueMessages(m)
	first.addCompleted("OpenChannel-x")

	second := NewResponse()
	second.AddChannelResult(channel.Result{ChannelID: id, Status: channel.Funding})
	second.QueueMessages(m)
	second.addCompleted("OpenChannel-x")

	merged := MergeResponses(first, nil, second)
	require.Len(t, merged.ChannelResults, 1)
	assert.Equal(t, channel.Funding, merged.ChannelResults[0].Status)
	assert.Len(t, merged.Outbox, 1)
	assert.Equal(t, []string{"OpenChannel-x"}, merged.CompletedObjectives)
}

func TestResponse_MergeEngineResult(t *testing.T) {
	id := common.HexToHash("0x01")
	r := NewResponse()
	r.AddChannelResult(channel.Result{ChannelID: id, Status: channel.Opening})

	r.mergeEngine(&engine.Result{
		Channels:  []channel.Result{{ChannelID: id, Status: channel.Running, TurnNum: 3}},
		Messages:  []channel.Message{{To: "bob", From: "alice", Data: testPayload(id)}},
		Completed: []string{"OpenChannel-x"},
	})
	r.mergeEngine(nil)

	require.Len(t, r.ChannelResults, 1)
	assert.Equal(t, channel.Running, r.ChannelResults[0].Status)
	assert.Len(t, r.Outbox, 1)
	assert.Equal(t, []string{"OpenChannel-x"}, r.CompletedObjectives)
}

func TestResponse_JSONShape(t *testing.T) {
	data, err := json.Marshal(NewResponse())
	require.NoError(t, err)
	assert.JSONEq(t, `{"channelResults":[],"outbox":[]}`, string(data))
}
