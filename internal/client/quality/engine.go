package quality

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultSamplePeriod  = 2 * time.Second
	DefaultForceCooldown = 30 * time.Second
)

var ErrUnknownPeer = errors.New("unknown peer")

// Target is a link that can be measured and constrained.
type Target interface {
	Sample() (Sample, error)
	SetProfile(Profile) error
}

type tracked struct {
	target      Target
	level       Level
	profile     Profile
	applied     bool
	forcedUntil time.Time
}

// Engine keeps one classification and profile per peer.
type Engine struct {
	period   time.Duration
	cooldown time.Duration
	now      func() time.Time

	mu    sync.Mutex
	peers map[string]*tracked
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func NewEngine(period, cooldown time.Duration, opts ...Option) *Engine {
	if period <= 0 {
		period = DefaultSamplePeriod
	}
	if cooldown <= 0 {
		cooldown = DefaultForceCooldown
	}
	e := &Engine{
		period:   period,
		cooldown: cooldown,
		now:      time.Now,
		peers:    make(map[string]*tracked),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Track(id string, t Target) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.peers[id] = &tracked{target: t}
}

func (e *Engine) Untrack(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.peers, id)
}

// Observe classifies a sample for one peer and applies the matching profile
// if it changed. A forced profile holds until its cooldown runs out.
func (e *Engine) Observe(id string, s Sample) (Profile, bool) {
	e.mu.Lock()
	tp, ok := e.peers[id]
	if !ok {
		e.mu.Unlock()
		return Profile{}, false
	}
	tp.level = Classify(s)
	if e.now().Before(tp.forcedUntil) {
		p := tp.profile
		e.mu.Unlock()
		return p, false
	}
	next := ProfileFor(tp.level)
	if tp.applied && next == tp.profile {
		e.mu.Unlock()
		return next, false
	}
	tp.profile, tp.applied = next, true
	target, level := tp.target, tp.level
	e.mu.Unlock()

	if err := target.SetProfile(next); err != nil {
		log.Warn().Err(err).Str("module", "client.quality").Str("peer", id).Msg("apply profile")
	}
	log.Info().Str("module", "client.quality").Str("peer", id).Str("level", level.String()).Str("profile", next.Name).Msg("profile changed")
	return next, true
}

// Force pins a profile for one peer and suspends automatic control for the
// cooldown window.
func (e *Engine) Force(id string, p Profile) error {
	e.mu.Lock()
	tp, ok := e.peers[id]
	if !ok {
		e.mu.Unlock()
		return ErrUnknownPeer
	}
	tp.profile, tp.applied = p, true
	tp.forcedUntil = e.now().Add(e.cooldown)
	target := tp.target
	e.mu.Unlock()

	log.Info().Str("module", "client.quality").Str("peer", id).Str("profile", p.Name).Dur("cooldown", e.cooldown).Msg("profile forced")
	return target.SetProfile(p)
}

func (e *Engine) Level(id string) (Level, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := e.peers[id]
	if !ok {
		return Poor, false
	}
	return tp.level, true
}

func (e *Engine) Profile(id string) (Profile, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := e.peers[id]
	if !ok || !tp.applied {
		return Profile{}, false
	}
	return tp.profile, true
}

// Tick samples every tracked peer once.
func (e *Engine) Tick() {
	e.mu.Lock()
	ids := make([]string, 0, len(e.peers))
	targets := make(map[string]Target, len(e.peers))
	for id, tp := range e.peers {
		ids = append(ids, id)
		targets[id] = tp.target
	}
	e.mu.Unlock()
	sort.Strings(ids)

	for _, id := range ids {
		s, err := targets[id].Sample()
		if err != nil {
			log.Debug().Err(err).Str("module", "client.quality").Str("peer", id).Msg("sample")
			continue
		}
		e.Observe(id, s)
	}
}

func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}
