package models

// Channel call states
const (
	ChannelStateUndefined   = "undefined"
	ChannelStateHolding     = "holding"
	ChannelStateRinging     = "ringing"
	ChannelStateTalking     = "talking"
	ChannelStateProgressing = "progressing"
)

// ChannelStates lists every state accepted by the store layer.
var ChannelStates = []string{
	ChannelStateUndefined,
	ChannelStateHolding,
	ChannelStateRinging,
	ChannelStateTalking,
	ChannelStateProgressing,
}

// Channel is an in-progress call leg attached to a line, identified by its
// Asterisk channel name ("<endpoint>-<suffix>").
type Channel struct {
	Name   string `gorm:"size:255;primaryKey" json:"name"`
	LineID int    `gorm:"not null;index:idx_chatd_channel_line_id" json:"line_id"`
	State  string `gorm:"size:24;not null;default:'undefined';check:state IN ('undefined','holding','ringing','talking','progressing')" json:"state"`
}

func (Channel) TableName() string {
	return "chatd_channel"
}

// ChannelFilter represents filter criteria for channel queries
type ChannelFilter struct {
	Name   *string
	LineID *int
}
