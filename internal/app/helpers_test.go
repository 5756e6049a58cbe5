package app

import (
	"sync"
	"time"

	"github.com/dkeye/voicechat/internal/core"
	"github.com/dkeye/voicechat/internal/domain"
)

type nopSignal struct{}

func (nopSignal) TrySend(core.Frame) error { return nil }
func (nopSignal) Close()                   {}

// manualClock is a settable time source.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func ident(name string) domain.Identity {
	return domain.Identity{UserID: domain.UserID(name), DisplayName: name, Role: domain.RoleMember}
}

func member(id string) core.MemberSession {
	return core.NewMemberSession(core.ConnectionID(id), ident(id), nopSignal{})
}
