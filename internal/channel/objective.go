package channel

import (
	"github.com/ethereum/go-ethereum/common"
)

// ObjectiveType names a workflow.
type ObjectiveType string

const (
	OpenChannelType  ObjectiveType = "OpenChannel"
	CloseChannelType ObjectiveType = "CloseChannel"
)

// ObjectiveStatus is the lifecycle position of an objective.
type ObjectiveStatus string

const (
	StatusPending   ObjectiveStatus = "pending"
	StatusApproved  ObjectiveStatus = "approved"
	StatusSucceeded ObjectiveStatus = "succeeded"
)

// Active reports whether the objective still needs cranking.
func (s ObjectiveStatus) Active() bool {
	return s == StatusPending || s == StatusApproved
}

// ObjectiveHeader holds the fields shared by every objective.
type ObjectiveHeader struct {
	ObjectiveID  string          `json:"objectiveId"`
	Status       ObjectiveStatus `json:"status"`
	ChannelID    common.Hash     `json:"targetChannelId"`
	Participants []Participant   `json:"participants"`
}

// Objective is a tracked workflow targeting one channel. The set of
// implementations is closed: OpenChannel and CloseChannel.
type Objective interface {
	Header() ObjectiveHeader
	Type() ObjectiveType
	WithStatus(ObjectiveStatus) Objective
	isObjective()
}

// OpenChannel drives a channel through setup and funding to running.
type OpenChannel struct {
	ObjectiveHeader
	FundingStrategy FundingStrategy `json:"fundingStrategy"`
}

func (o OpenChannel) Header() ObjectiveHeader { return o.ObjectiveHeader }
func (OpenChannel) Type() ObjectiveType       { return OpenChannelType }
func (OpenChannel) isObjective()              {}

func (o OpenChannel) WithStatus(s ObjectiveStatus) Objective {
	o.Status = s
	return o
}

// CloseChannel drives a running channel to a conclusion proof.
type CloseChannel struct {
	ObjectiveHeader
}

func (o CloseChannel) Header() ObjectiveHeader { return o.ObjectiveHeader }
func (CloseChannel) Type() ObjectiveType       { return CloseChannelType }
func (CloseChannel) isObjective()              {}

func (o CloseChannel) WithStatus(s ObjectiveStatus) Objective {
	o.Status = s
	return o
}

// ObjectiveID returns the deterministic id of the objective of the given
// type for a channel.
func ObjectiveID(t ObjectiveType, channelID common.Hash) string {
	return string(t) + "-" + channelID.Hex()
}

// NewOpenChannel builds an OpenChannel objective for a record.
func NewOpenChannel(rec *Record, status ObjectiveStatus) OpenChannel {
	return OpenChannel{
		ObjectiveHeader: ObjectiveHeader{
			ObjectiveID:  ObjectiveID(OpenChannelType, rec.ChannelID),
			Status:       status,
			ChannelID:    rec.ChannelID,
			Participants: rec.Participants,
		},
		FundingStrategy: rec.FundingStrategy,
	}
}

// NewCloseChannel builds a CloseChannel objective for a record.
func NewCloseChannel(rec *Record, status ObjectiveStatus) CloseChannel {
	return CloseChannel{
		ObjectiveHeader: ObjectiveHeader{
			ObjectiveID:  ObjectiveID(CloseChannelType, rec.ChannelID),
			Status:       status,
			ChannelID:    rec.ChannelID,
			Participants: rec.Participants,
		},
	}
}
