package quality

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTarget struct {
	mu      sync.Mutex
	sample  Sample
	err     error
	applied []Profile
}

func (s *stubTarget) Sample() (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sample, s.err
}

func (s *stubTarget) SetProfile(p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, p)
	return nil
}

func (s *stubTarget) set(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sample = sample
}

func (s *stubTarget) history() []Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Profile(nil), s.applied...)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

var (
	good = Sample{RTT: 50 * time.Millisecond}
	bad  = Sample{RTT: 900 * time.Millisecond, PacketLoss: 0.2}
)

func TestEngine_ObserveAppliesOnlyOnChange(t *testing.T) {
	e := NewEngine(0, 0)
	tgt := &stubTarget{}
	e.Track("a", tgt)

	p, changed := e.Observe("a", good)
	assert.True(t, changed)
	assert.Equal(t, ProfileHigh, p)

	_, changed = e.Observe("a", good)
	assert.False(t, changed)

	p, changed = e.Observe("a", bad)
	assert.True(t, changed)
	assert.Equal(t, ProfileReduced, p)

	assert.Equal(t, []Profile{ProfileHigh, ProfileReduced}, tgt.history())
	lvl, ok := e.Level("a")
	assert.True(t, ok)
	assert.Equal(t, Poor, lvl)
}

func TestEngine_ForceHoldsForCooldown(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	e := NewEngine(time.Second, 30*time.Second, WithClock(c.now))
	tgt := &stubTarget{}
	e.Track("a", tgt)

	require.NoError(t, e.Force("a", ProfileReduced))

	c.advance(29 * time.Second)
	p, changed := e.Observe("a", good)
	assert.False(t, changed)
	assert.Equal(t, ProfileReduced, p)
	lvl, _ := e.Level("a")
	assert.Equal(t, Excellent, lvl, "classification keeps running while forced")

	c.advance(time.Second)
	p, changed = e.Observe("a", good)
	assert.True(t, changed)
	assert.Equal(t, ProfileHigh, p)

	assert.Equal(t, []Profile{ProfileReduced, ProfileHigh}, tgt.history())
}

func TestEngine_UnknownPeer(t *testing.T) {
	e := NewEngine(0, 0)
	assert.ErrorIs(t, e.Force("ghost", ProfileHigh), ErrUnknownPeer)
	_, changed := e.Observe("ghost", good)
	assert.False(t, changed)
	_, ok := e.Profile("ghost")
	assert.False(t, ok)
}

func TestEngine_TickSamplesTrackedPeers(t *testing.T) {
	e := NewEngine(0, 0)
	a, b := &stubTarget{sample: good}, &stubTarget{err: errors.New("no stats yet")}
	e.Track("a", a)
	e.Track("b", b)

	e.Tick()

	p, ok := e.Profile("a")
	assert.True(t, ok)
	assert.Equal(t, ProfileHigh, p)
	_, ok = e.Profile("b")
	assert.False(t, ok)
	assert.Empty(t, b.history())

	e.Untrack("a")
	a.set(bad)
	e.Tick()
	assert.Len(t, a.history(), 1)
}

func TestEngine_RunStopsWithContext(t *testing.T) {
	e := NewEngine(5*time.Millisecond, 0)
	tgt := &stubTarget{sample: bad}
	e.Track("a", tgt)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(tgt.history()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
