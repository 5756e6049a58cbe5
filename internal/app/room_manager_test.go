package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicechat/internal/core"
	"github.com/dkeye/voicechat/internal/domain"
)

type countingSignal struct {
	sent int
	full bool
}

func (s *countingSignal) TrySend(core.Frame) error {
	if s.full {
		return assert.AnError
	}
	s.sent++
	return nil
}
func (s *countingSignal) Close() {}

func ids(ms []core.MemberSession) []core.ConnectionID {
	out := make([]core.ConnectionID, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID())
	}
	return out
}

func TestHub_JoinReturnsOthersAndLeaveCollects(t *testing.T) {
	h := NewHub[domain.ChannelID]("voice")

	assert.Empty(t, h.Join("lobby", member("a")))
	assert.Equal(t, []core.ConnectionID{"a"}, ids(h.Join("lobby", member("b"))))
	assert.Equal(t, []core.ConnectionID{"a", "b"}, ids(h.Join("lobby", member("c"))))
	assert.Equal(t, []core.ConnectionID{"a", "b"}, ids(h.Join("lobby", member("c"))), "rejoin does not list self")

	remaining, ok := h.Leave("lobby", "b")
	require.True(t, ok)
	assert.Equal(t, []core.ConnectionID{"a", "c"}, ids(remaining))

	_, ok = h.Leave("lobby", "b")
	assert.False(t, ok)

	h.Leave("lobby", "a")
	remaining, ok = h.Leave("lobby", "c")
	require.True(t, ok)
	assert.Empty(t, remaining)
	assert.False(t, h.Exists("lobby"))
	assert.Empty(t, h.List())
}

func TestHub_BroadcastSkipsSenderAndReportsDropped(t *testing.T) {
	h := NewHub[domain.RoomID]("rooms")
	a, b, slow := &countingSignal{}, &countingSignal{}, &countingSignal{full: true}
	h.Join("general", core.NewMemberSession("a", ident("alice"), a))
	h.Join("general", core.NewMemberSession("b", ident("bob"), b))
	h.Join("general", core.NewMemberSession("s", ident("sam"), slow))

	res := h.Broadcast("general", "a", core.Frame(`{}`))
	assert.Equal(t, 1, res.SendTo)
	assert.Equal(t, []core.ConnectionID{"s"}, ids(res.Dropped))
	assert.Zero(t, a.sent)
	assert.Equal(t, 1, b.sent)

	assert.Equal(t, core.PublishResult{}, h.Broadcast("empty", "", core.Frame(`{}`)))
}

func TestHub_List(t *testing.T) {
	h := NewHub[domain.RoomID]("rooms")
	h.Join("random", member("a"))
	h.Join("general", member("b"))
	h.Join("general", member("c"))

	assert.Equal(t, []core.RoomInfo{{Name: "general", MemberCount: 2}, {Name: "random", MemberCount: 1}}, h.List())
	assert.True(t, h.Contains("general", "b"))
	assert.False(t, h.Contains("random", "b"))
}
