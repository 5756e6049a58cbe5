package core

import "github.com/dkeye/voicechat/internal/domain"

type ConnectionID string

// MemberSession binds a connection's public identity and its transport endpoint.
// This is what a room or voice channel stores and fans out to.
type MemberSession interface {
	ID() ConnectionID
	UserID() domain.UserID
	Meta() domain.Member
	Signal() SignalConnection
}
