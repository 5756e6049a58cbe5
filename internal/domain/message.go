package domain

import "time"

type MessageType string

const (
	MessagePublic  MessageType = "public"
	MessagePrivate MessageType = "private"
	MessageSystem  MessageType = "system"
)

type Message struct {
	ID        string      `json:"id"`
	RoomID    RoomID      `json:"room"`
	AuthorID  UserID      `json:"-"`
	Author    string      `json:"author"`
	TargetID  UserID      `json:"-"`
	Target    string      `json:"target,omitempty"`
	Text      string      `json:"text"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// VisibleTo reports whether uid may see m when history is replayed.
func (m Message) VisibleTo(uid UserID) bool {
	switch m.Type {
	case MessagePublic, MessageSystem:
		return true
	case MessagePrivate:
		return m.AuthorID == uid || m.TargetID == uid
	default:
		return false
	}
}
