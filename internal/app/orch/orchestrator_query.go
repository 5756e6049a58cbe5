package orch

import (
	"strings"
	"time"

	"github.com/dkeye/voicechat/internal/core"
	"github.com/dkeye/voicechat/internal/domain"
	"github.com/dkeye/voicechat/internal/protocol"
)

// Presence is a point-in-time view of a user's reachability.
type Presence struct {
	UserID      domain.UserID `json:"userId"`
	Online      bool          `json:"online"`
	Connections int           `json:"connections"`
	LastActive  *time.Time    `json:"lastActive"`
}

// RoomMembers lists the users in room. Only a user with a connection in that
// room may see it.
func (o *Orchestrator) RoomMembers(viewer domain.UserID, room string) ([]domain.Member, error) {
	id := domain.RoomID(strings.TrimSpace(room))
	if !hasUser(o.Rooms.Members(id), viewer) {
		return nil, domain.ErrNotMember
	}
	return o.onlineUsers(id), nil
}

// VoiceMembers lists the connections in a voice channel to a viewer that is
// itself in the channel.
func (o *Orchestrator) VoiceMembers(viewer domain.UserID, channel string) ([]protocol.VoicePeer, error) {
	members := o.Voice.Members(domain.ChannelID(strings.TrimSpace(channel)))
	if !hasUser(members, viewer) {
		return nil, domain.ErrNotMember
	}
	peers := make([]protocol.VoicePeer, 0, len(members))
	for _, m := range members {
		peers = append(peers, protocol.VoicePeer{ConnectionID: string(m.ID()), DisplayName: m.Meta().DisplayName})
	}
	return peers, nil
}

func hasUser(members []core.MemberSession, uid domain.UserID) bool {
	for _, m := range members {
		if m.UserID() == uid {
			return true
		}
	}
	return false
}

func (o *Orchestrator) Presence(user string) Presence {
	uid := domain.UserID(user)
	p := Presence{
		UserID:      uid,
		Online:      o.Registry.Online(uid),
		Connections: o.Registry.LiveCount(uid),
	}
	if at, ok := o.Registry.LastActive(uid); ok {
		p.LastActive = &at
	}
	return p
}
