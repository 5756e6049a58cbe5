package app

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicechat/internal/core"
	"github.com/dkeye/voicechat/internal/domain"
)

// ConnState is the membership record of a live connection.
// Empty ids mean "not joined".
type ConnState struct {
	Room  domain.RoomID
	Voice domain.ChannelID
}

// Connection is one live transport session. Its ConnState is changed only
// through Transition, which serializes against Close.
type Connection struct {
	ID          core.ConnectionID
	Identity    domain.Identity
	ConnectedAt time.Time

	session  core.MemberSession
	cancel   context.CancelFunc
	lastBeat atomic.Int64

	mu     sync.Mutex
	state  ConnState
	closed bool
}

func (c *Connection) Session() core.MemberSession { return c.session }

func (c *Connection) LastHeartbeat() time.Time { return time.Unix(0, c.lastBeat.Load()) }

func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transition runs fn with exclusive access to the connection state. fn's
// changes to st are kept only if it returns nil. A closed connection yields
// domain.ErrConnectionNotFound without calling fn.
func (c *Connection) Transition(fn func(st *ConnState) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrConnectionNotFound
	}
	next := c.state
	if err := fn(&next); err != nil {
		return err
	}
	c.state = next
	return nil
}

// markClosed freezes the connection and returns the state it had.
func (c *Connection) markClosed() (ConnState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ConnState{}, false
	}
	c.closed = true
	st := c.state
	c.state = ConnState{}
	return st, true
}

type RegistryOption func(*Registry)

func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

func WithStatusWriter(w *StatusWriter) RegistryOption {
	return func(r *Registry) { r.status = w }
}

// Registry is the presence store: one entry per live connection plus a per-user
// reference count from which online status is derived.
type Registry struct {
	mu         sync.RWMutex
	conns      map[core.ConnectionID]*Connection
	online     map[domain.UserID]int
	lastActive map[domain.UserID]time.Time

	status *StatusWriter
	now    func() time.Time
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		conns:      make(map[core.ConnectionID]*Connection),
		online:     make(map[domain.UserID]int),
		lastActive: make(map[domain.UserID]time.Time),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates the entry for a verified identity and returns its id.
func (r *Registry) Register(ident domain.Identity, signal core.SignalConnection, cancel context.CancelFunc) *Connection {
	now := r.now()
	cid := core.ConnectionID(uuid.NewString())
	c := &Connection{
		ID:          cid,
		Identity:    ident,
		ConnectedAt: now,
		session:     core.NewMemberSession(cid, ident, signal),
		cancel:      cancel,
	}
	c.lastBeat.Store(now.UnixNano())

	r.mu.Lock()
	r.conns[cid] = c
	r.online[ident.UserID]++
	first := r.online[ident.UserID] == 1
	r.mu.Unlock()

	if first && r.status != nil {
		r.status.Enqueue(ident.UserID, true, now)
	}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Str("user", string(ident.UserID)).Bool("first", first).Msg("registered connection")
	return c
}

func (r *Registry) Get(cid core.ConnectionID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[cid]
	return c, ok
}

// Touch records a heartbeat.
func (r *Registry) Touch(cid core.ConnectionID) bool {
	c, ok := r.Get(cid)
	if !ok {
		return false
	}
	c.lastBeat.Store(r.now().UnixNano())
	return true
}

// Close removes the entry and returns the state it held so callers can tear
// down memberships. The last connection of a user flips it offline; the
// durable write is queued and never awaited.
func (r *Registry) Close(cid core.ConnectionID) (ConnState, *Connection, bool) {
	r.mu.Lock()
	c, ok := r.conns[cid]
	if !ok {
		r.mu.Unlock()
		return ConnState{}, nil, false
	}
	delete(r.conns, cid)
	uid := c.Identity.UserID
	r.online[uid]--
	last := r.online[uid] <= 0
	now := r.now()
	if last {
		delete(r.online, uid)
		r.lastActive[uid] = now
	}
	r.mu.Unlock()

	st, _ := c.markClosed()
	if c.cancel != nil {
		c.cancel()
	}
	if last && r.status != nil {
		r.status.Enqueue(uid, false, now)
	}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Str("user", string(uid)).Bool("last", last).Msg("closed connection")
	return st, c, true
}

// Sweep returns connections whose last heartbeat is older than timeout.
// It reads a snapshot and does not close anything itself.
func (r *Registry) Sweep(now time.Time, timeout time.Duration) []core.ConnectionID {
	r.mu.RLock()
	snap := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		snap = append(snap, c)
	}
	r.mu.RUnlock()

	var stale []core.ConnectionID
	for _, c := range snap {
		if now.Sub(c.LastHeartbeat()) > timeout {
			stale = append(stale, c.ID)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i] < stale[j] })
	return stale
}

func (r *Registry) Online(uid domain.UserID) bool {
	return r.LiveCount(uid) > 0
}

func (r *Registry) LiveCount(uid domain.UserID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.online[uid]
}

func (r *Registry) LastActive(uid domain.UserID) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.lastActive[uid]
	return t, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
