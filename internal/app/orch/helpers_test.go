package orch

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicechat/internal/adapters/store/memory"
	"github.com/dkeye/voicechat/internal/app"
	"github.com/dkeye/voicechat/internal/core"
	"github.com/dkeye/voicechat/internal/domain"
	"github.com/dkeye/voicechat/internal/protocol"
)

var (
	errFull   = errors.New("full")
	errClosed = errors.New("closed")
)

// fakeSignal records every frame sent to a connection.
type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errClosed
	}
	if f.full {
		return errFull
	}
	f.frames = append(f.frames, append(core.Frame(nil), fr...))
	return nil
}

func (f *fakeSignal) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSignal) setFull(full bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.full = full
}

func (f *fakeSignal) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// take returns the envelopes received since the last call.
func (f *fakeSignal) take(t *testing.T) []protocol.Envelope {
	t.Helper()
	f.mu.Lock()
	frames := f.frames
	f.frames = nil
	f.mu.Unlock()

	out := make([]protocol.Envelope, 0, len(frames))
	for _, fr := range frames {
		env, err := protocol.Decode(fr)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}

func eventNames(envs []protocol.Envelope) []string {
	out := make([]string, 0, len(envs))
	for _, e := range envs {
		out = append(out, e.Event)
	}
	return out
}

func only(t *testing.T, envs []protocol.Envelope, event string) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	for _, e := range envs {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func decode[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

// field returns one raw top-level field of the envelope payload.
func field(t *testing.T, env protocol.Envelope, key string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &m))
	v, ok := m[key]
	require.True(t, ok, "field %q missing in %s", key, env.Data)
	return v
}

type fixture struct {
	o     *Orchestrator
	store *memory.Store
	sigs  map[core.ConnectionID]*fakeSignal
}

var testNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	store.PutChannel(domain.Channel{ID: "general", Name: "general", Type: domain.ChannelText})
	store.PutChannel(domain.Channel{ID: "random", Name: "random", Type: domain.ChannelText})
	store.PutChannel(domain.Channel{ID: "lobby", Name: "Lobby", Type: domain.ChannelVoice})
	store.PutChannel(domain.Channel{ID: "studio", Name: "Studio", Type: domain.ChannelVoice})

	o := &Orchestrator{
		Registry:  app.NewRegistry(app.WithClock(func() time.Time { return testNow })),
		Rooms:     app.NewHub[domain.RoomID]("rooms"),
		Voice:     app.NewHub[domain.ChannelID]("voice"),
		Policy:    app.SimplePolicy{},
		Directory: store,
		Messages:  store,
		Now:       func() time.Time { return testNow },
	}
	return &fixture{o: o, store: store, sigs: make(map[core.ConnectionID]*fakeSignal)}
}

// connect registers a user whose display name equals its id and discards the
// greeting.
func (fx *fixture) connect(t *testing.T, name string) (*app.Connection, *fakeSignal) {
	t.Helper()
	sig := &fakeSignal{}
	c := fx.o.Connect(domain.Identity{UserID: domain.UserID(name), DisplayName: name, Role: domain.RoleMember}, sig, nil)
	envs := sig.take(t)
	require.Equal(t, []string{protocol.EventConnected}, eventNames(envs))
	fx.sigs[c.ID] = sig
	return c, sig
}

func coreID(s string) core.ConnectionID { return core.ConnectionID(s) }
