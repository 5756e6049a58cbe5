package core

import "github.com/dkeye/voicechat/internal/domain"

// memberSession implements MemberSession by pairing meta + transport.
type memberSession struct {
	id     ConnectionID
	user   domain.UserID
	meta   domain.Member
	signal SignalConnection
}

func NewMemberSession(id ConnectionID, ident domain.Identity, signal SignalConnection) MemberSession {
	return &memberSession{
		id:     id,
		user:   ident.UserID,
		meta:   domain.Member{DisplayName: ident.DisplayName, Role: ident.Role},
		signal: signal,
	}
}

func (m *memberSession) ID() ConnectionID         { return m.id }
func (m *memberSession) UserID() domain.UserID    { return m.user }
func (m *memberSession) Meta() domain.Member      { return m.meta }
func (m *memberSession) Signal() SignalConnection { return m.signal }
