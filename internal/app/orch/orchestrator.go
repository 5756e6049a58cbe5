// Package orch drives room membership, voice membership and signaling relay
// on top of the connection registry.
package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicechat/internal/app"
	"github.com/dkeye/voicechat/internal/core"
	"github.com/dkeye/voicechat/internal/domain"
	"github.com/dkeye/voicechat/internal/protocol"
)

const (
	DefaultHistoryLimit  = 100
	DefaultMaxMessageLen = 2000
)

type Orchestrator struct {
	Registry  *app.Registry
	Rooms     *app.RoomHub
	Voice     *app.VoiceHub
	Policy    app.Policy
	Directory core.ChannelDirectory
	Messages  core.MessageStore

	HistoryLimit  int
	MaxMessageLen int
	Now           func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) historyLimit() int {
	if o.HistoryLimit > 0 {
		return o.HistoryLimit
	}
	return DefaultHistoryLimit
}

func (o *Orchestrator) maxMessageLen() int {
	if o.MaxMessageLen > 0 {
		return o.MaxMessageLen
	}
	return DefaultMaxMessageLen
}

// Connect registers a verified identity and greets the connection.
func (o *Orchestrator) Connect(ident domain.Identity, signal core.SignalConnection, cancel context.CancelFunc) *app.Connection {
	c := o.Registry.Register(ident, signal, cancel)
	o.send(c.Session(), protocol.EventConnected, protocol.Connected{
		ConnectionID: string(c.ID),
		DisplayName:  ident.DisplayName,
		Role:         ident.Role,
	})
	return c
}

// Disconnect tears a connection down exactly like an explicit voice leave
// followed by a room leave, then closes its transport. Safe to call twice.
func (o *Orchestrator) Disconnect(cid core.ConnectionID) {
	st, c, ok := o.Registry.Close(cid)
	if !ok {
		return
	}
	if st.Voice != "" {
		o.leaveVoiceMembership(st.Voice, c)
	}
	if st.Room != "" {
		o.leaveRoomMembership(st.Room, c)
	}
	c.Session().Signal().Close()
	log.Info().Str("module", "orch").Str("cid", string(cid)).Str("room", string(st.Room)).Str("channel", string(st.Voice)).Msg("disconnected")
}

func (o *Orchestrator) Heartbeat(cid core.ConnectionID) {
	c, ok := o.Registry.Get(cid)
	if !ok || !o.Registry.Touch(cid) {
		return
	}
	o.send(c.Session(), protocol.EventHeartbeatAck, nil)
}

func (o *Orchestrator) connection(cid core.ConnectionID) (*app.Connection, error) {
	c, ok := o.Registry.Get(cid)
	if !ok {
		return nil, domain.ErrConnectionNotFound
	}
	return c, nil
}

func (o *Orchestrator) send(ms core.MemberSession, event string, data any) {
	f, err := protocol.Encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("event", event).Msg("encode event")
		return
	}
	o.sendFrame("direct", ms, f)
}

func (o *Orchestrator) sendFrame(set string, ms core.MemberSession, f core.Frame) bool {
	if err := ms.Signal().TrySend(f); err != nil {
		o.handleDropped(set, core.PublishResult{Dropped: []core.MemberSession{ms}})
		return false
	}
	return true
}

func (o *Orchestrator) broadcastRoom(room domain.RoomID, except core.ConnectionID, event string, data any) {
	f, err := protocol.Encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("event", event).Msg("encode event")
		return
	}
	o.handleDropped("room:"+string(room), o.Rooms.Broadcast(room, except, f))
}

// handleDropped applies the backpressure policy. Kicks run on their own
// goroutine so no caller ever holds a connection lock while closing another.
func (o *Orchestrator) handleDropped(set string, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(set, slow) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("set", set).Str("cid", string(slow.ID())).Msg("kicking slow member")
			go o.Disconnect(slow.ID())
		case app.DropFrame:
			log.Debug().Str("module", "orch").Str("set", set).Str("cid", string(slow.ID())).Msg("dropped frame for slow member")
		}
	}
}
