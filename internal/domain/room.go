package domain

type (
	RoomID    string
	ChannelID string
)

type ChannelType string

const (
	ChannelText  ChannelType = "text"
	ChannelVoice ChannelType = "voice"
)

// Channel is a directory entry. Text rooms and voice channels share the
// directory and differ only by Type.
type Channel struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Type ChannelType `json:"type"`
}

func (c Channel) IsVoice() bool { return c.Type == ChannelVoice }
