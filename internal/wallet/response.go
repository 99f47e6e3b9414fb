package wallet

import (
	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/engine"
)

// Response is what every wallet operation returns: the latest snapshot of
// each touched channel and the messages to hand to peers.
type Response struct {
	ChannelResults      []channel.Result  `json:"channelResults"`
	Outbox              []channel.Message `json:"outbox"`
	CompletedObjectives []string          `json:"completedObjectives,omitempty"`
}

// NewResponse returns an empty response.
func NewResponse() *Response {
	return &Response{ChannelResults: []channel.Result{}, Outbox: []channel.Message{}}
}

// AddChannelResult records a channel snapshot. A later result for the same
// channel replaces the earlier one in place.
func (r *Response) AddChannelResult(res channel.Result) {
	for i := range r.ChannelResults {
		if r.ChannelResults[i].ChannelID == res.ChannelID {
			r.ChannelResults[i] = res
			return
		}
	}
	r.ChannelResults = append(r.ChannelResults, res)
}

// QueueMessages appends messages to the outbox, dropping any whose
// recipient and payload match a queued message.
func (r *Response) QueueMessages(msgs ...channel.Message) {
	for _, m := range msgs {
		if m.Data.Empty() {
			continue
		}
		if r.hasMessage(m) {
			continue
		}
		r.Outbox = append(r.Outbox, m)
	}
}

func (r *Response) hasMessage(m channel.Message) bool {
	key := messageKey(m)
	if key == "" {
		return false
	}
	for _, q := range r.Outbox {
		if q.To == m.To && messageKey(q) == key {
			return true
		}
	}
	return false
}

// messageKey is the canonical JSON of the payload, or "" when it cannot
// be rendered.
func messageKey(m channel.Message) string {
	b, err := MarshalCanonical(m.Data)
	if err != nil {
		return ""
	}
	return string(b)
}

// Merge folds other into r with the same dedup rules as the add methods.
func (r *Response) Merge(other *Response) {
	if other == nil {
		return
	}
	for _, res := range other.ChannelResults {
		r.AddChannelResult(res)
	}
	r.QueueMessages(other.Outbox...)
	r.addCompleted(other.CompletedObjectives...)
}

// mergeEngine folds an engine result in.
func (r *Response) mergeEngine(res *engine.Result) {
	if res == nil {
		return
	}
	for _, c := range res.Channels {
		r.AddChannelResult(c)
	}
	r.QueueMessages(res.Messages...)
	r.addCompleted(res.Completed...)
}

func (r *Response) addCompleted(ids ...string) {
	for _, id := range ids {
		found := false
		for _, c := range r.CompletedObjectives {
			if c == id {
				found = true
				break
			}
		}
		if !found {
			r.CompletedObjectives = append(r.CompletedObjectives, id)
		}
	}
}

// MergeResponses merges responses left to right.
func MergeResponses(responses ...*Response) *Response {
	out := NewResponse()
	for _, r := range responses {
		out.Merge(r)
	}
	return out
}
