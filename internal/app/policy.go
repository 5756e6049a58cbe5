package app

import "github.com/dkeye/voicechat/internal/core"

type BackpressureAction int

const (
	// KickMember disconnects the slow member.
	KickMember BackpressureAction = iota
	// DropFrame discards the frame and keeps the member.
	DropFrame
)

// Policy decides what happens to a member whose send buffer is full.
type Policy interface {
	OnBackPressure(set string, member core.MemberSession) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(string, core.MemberSession) BackpressureAction {
	return KickMember
}
