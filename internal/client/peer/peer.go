package peer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrPeerUnreachable = errors.New("peer unreachable")

var DefaultBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	30 * time.Second,
}

const DefaultCandidateWindow = 30 * time.Second

type Config struct {
	Backoff         []time.Duration
	CandidateWindow time.Duration
	// NegotiationTimeout counts a negotiation that has not reached CONNECTED
	// in time as a link failure. Zero disables it.
	NegotiationTimeout time.Duration
	Scheduler          Scheduler
	Now                func() time.Time
}

func (c Config) withDefaults() Config {
	if len(c.Backoff) == 0 {
		c.Backoff = DefaultBackoff
	}
	if c.CandidateWindow <= 0 {
		c.CandidateWindow = DefaultCandidateWindow
	}
	if c.Scheduler == nil {
		c.Scheduler = realScheduler{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type event interface{}

type (
	evStart      struct{}
	evOffer      struct{ sdp webrtc.SessionDescription }
	evAnswer     struct{ sdp webrtc.SessionDescription }
	evRemoteCand struct{ c webrtc.ICECandidateInit }
	evLocalCand  struct{ c webrtc.ICECandidateInit }
	evLinkState  struct{ s LinkState }
	evRetry      struct{ attempt int }
	evNegTimeout struct{ attempt int }
	evClose      struct{}
	evFlush      struct{ done chan struct{} }
	cachedCand   struct {
		c  webrtc.ICECandidateInit
		at time.Time
	}
)

// Peer is the link to one remote connection. All state below mu is owned by
// the run goroutine; mu only guards what accessors read.
type Peer struct {
	ID          string
	DisplayName string
	Initiator   bool

	cfg      Config
	link     Link
	signaler Signaler
	onFatal  func(*Peer, error)
	onState  func(*Peer, State)

	events chan event
	done   chan struct{}

	mu       sync.RWMutex
	state    State
	failures int

	remoteSet   bool
	attempt     int
	inFlight    bool
	retryTimer  Timer
	negTimer    Timer
	pending     []webrtc.ICECandidateInit
	localCands  []cachedCand
	remoteCands []cachedCand
	lastLocal   *webrtc.SessionDescription
	lastOffer   string
}

func newPeer(id, name string, initiator bool, link Link, sig Signaler, cfg Config) *Peer {
	p := &Peer{
		ID:          id,
		DisplayName: name,
		Initiator:   initiator,
		cfg:         cfg.withDefaults(),
		link:        link,
		signaler:    sig,
		events:      make(chan event, 64),
		done:        make(chan struct{}),
	}
	link.OnLocalCandidate(func(c webrtc.ICECandidateInit) { p.post(evLocalCand{c}) })
	link.OnStateChange(func(s LinkState) { p.post(evLinkState{s}) })
	return p
}

func (p *Peer) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Failures is the number of consecutive link failures since the last
// successful connect.
func (p *Peer) Failures() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.failures
}

func (p *Peer) Link() Link { return p.link }

func (p *Peer) post(ev event) {
	select {
	case <-p.done:
	case p.events <- ev:
	}
}

func (p *Peer) Start()                                     { p.post(evStart{}) }
func (p *Peer) HandleOffer(sdp webrtc.SessionDescription)  { p.post(evOffer{sdp}) }
func (p *Peer) HandleAnswer(sdp webrtc.SessionDescription) { p.post(evAnswer{sdp}) }
func (p *Peer) HandleCandidate(c webrtc.ICECandidateInit)  { p.post(evRemoteCand{c}) }

// Close tears the link down immediately and cancels pending timers.
func (p *Peer) Close() { p.post(evClose{}) }

// Done is closed once the peer reached a terminal state.
func (p *Peer) Done() <-chan struct{} { return p.done }

// flush waits until every event posted before it has been handled.
func (p *Peer) flush() {
	done := make(chan struct{})
	select {
	case <-p.done:
		return
	case p.events <- evFlush{done}:
	}
	select {
	case <-p.done:
	case <-done:
	}
}

func (p *Peer) run() {
	for ev := range p.events {
		switch e := ev.(type) {
		case evStart:
			p.onStart()
		case evOffer:
			p.onOffer(e.sdp)
		case evAnswer:
			p.onAnswer(e.sdp)
		case evRemoteCand:
			p.onRemoteCandidate(e.c)
		case evLocalCand:
			p.onLocalCandidate(e.c)
		case evLinkState:
			p.onLinkState(e.s)
		case evRetry:
			p.onRetry(e.attempt)
		case evNegTimeout:
			if e.attempt == p.attempt && p.inFlight {
				p.warn().Msg("negotiation timed out")
				p.onFailure()
			}
		case evFlush:
			close(e.done)
		case evClose:
			p.terminate(StateClosed, nil)
		}
		if p.State().Terminal() {
			return
		}
	}
}

func (p *Peer) warn() *zerolog.Event {
	return log.Warn().Str("module", "client.peer").Str("peer", p.ID).Str("state", p.State().String())
}

func (p *Peer) setState(next State) bool {
	p.mu.Lock()
	cur := p.state
	if cur == next {
		p.mu.Unlock()
		return true
	}
	if !CanTransition(cur, next) {
		p.mu.Unlock()
		log.Warn().Str("module", "client.peer").Str("peer", p.ID).Str("from", cur.String()).Str("to", next.String()).Msg("rejected transition")
		return false
	}
	p.state = next
	if next == StateConnected {
		p.failures = 0
	}
	p.mu.Unlock()

	log.Info().Str("module", "client.peer").Str("peer", p.ID).Str("from", cur.String()).Str("to", next.String()).Msg("state")
	if p.onState != nil {
		p.onState(p, next)
	}
	return true
}

func (p *Peer) beginAttempt() {
	p.attempt++
	p.inFlight = true
	if p.cfg.NegotiationTimeout > 0 {
		attempt := p.attempt
		p.stopTimer(&p.negTimer)
		p.negTimer = p.cfg.Scheduler.AfterFunc(p.cfg.NegotiationTimeout, func() { p.post(evNegTimeout{attempt}) })
	}
}

func (p *Peer) stopTimer(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (p *Peer) onStart() {
	if !p.Initiator || p.State() != StateNew {
		return
	}
	if !p.setState(StateConnecting) {
		return
	}
	p.beginAttempt()
	p.sendOffer(false)
}

func (p *Peer) sendOffer(iceRestart bool) {
	offer, err := p.link.CreateOffer(iceRestart)
	if err != nil {
		p.warn().Err(err).Msg("create offer")
		p.onFailure()
		return
	}
	p.lastLocal = &offer
	p.remoteSet = false
	if err := p.signaler.SendOffer(p.ID, offer); err != nil {
		p.warn().Err(err).Msg("send offer")
	}
}

func (p *Peer) onOffer(sdp webrtc.SessionDescription) {
	st := p.State()
	if sdp.SDP == p.lastOffer && p.lastLocal != nil {
		// Retransmitted offer: the answer is already known.
		if err := p.signaler.SendAnswer(p.ID, *p.lastLocal); err != nil {
			p.warn().Err(err).Msg("resend answer")
		}
		return
	}
	renegotiation := p.lastOffer != ""

	switch st {
	case StateNew:
		if !p.setState(StateConnecting) {
			return
		}
	case StateConnected:
		if !p.setState(StateDisconnected) || !p.setState(StateReconnecting) {
			return
		}
	case StateDisconnected:
		if !p.setState(StateReconnecting) {
			return
		}
	}
	p.stopTimer(&p.retryTimer)
	p.beginAttempt()

	answer, err := p.link.AcceptOffer(sdp)
	if err != nil {
		p.warn().Err(err).Msg("accept offer")
		p.onFailure()
		return
	}
	p.lastOffer = sdp.SDP
	p.lastLocal = &answer
	p.remoteDescriptionSet(renegotiation)
	if err := p.signaler.SendAnswer(p.ID, answer); err != nil {
		p.warn().Err(err).Msg("send answer")
	}
}

func (p *Peer) onAnswer(sdp webrtc.SessionDescription) {
	if !p.Initiator || p.remoteSet || p.lastLocal == nil {
		log.Debug().Str("module", "client.peer").Str("peer", p.ID).Msg("unexpected answer ignored")
		return
	}
	if err := p.link.AcceptAnswer(sdp); err != nil {
		p.warn().Err(err).Msg("accept answer")
		p.onFailure()
		return
	}
	p.remoteDescriptionSet(p.attempt > 1)
}

// remoteDescriptionSet applies candidates that arrived early. On a
// renegotiation every cached remote candidate is applied again.
func (p *Peer) remoteDescriptionSet(renegotiation bool) {
	p.remoteSet = true
	var apply []webrtc.ICECandidateInit
	if renegotiation {
		for _, cc := range p.freshCandidates(&p.remoteCands) {
			apply = append(apply, cc.c)
		}
	} else {
		apply = p.pending
	}
	p.pending = nil
	for _, c := range apply {
		if err := p.link.AddCandidate(c); err != nil {
			log.Debug().Err(err).Str("module", "client.peer").Str("peer", p.ID).Msg("apply cached candidate")
		}
	}
}

func (p *Peer) onRemoteCandidate(c webrtc.ICECandidateInit) {
	p.remoteCands = append(p.remoteCands, cachedCand{c: c, at: p.cfg.Now()})
	if !p.remoteSet {
		p.pending = append(p.pending, c)
		return
	}
	if err := p.link.AddCandidate(c); err != nil {
		log.Debug().Err(err).Str("module", "client.peer").Str("peer", p.ID).Msg("add candidate")
	}
}

func (p *Peer) onLocalCandidate(c webrtc.ICECandidateInit) {
	p.localCands = append(p.localCands, cachedCand{c: c, at: p.cfg.Now()})
	if err := p.signaler.SendCandidate(p.ID, c); err != nil {
		log.Debug().Err(err).Str("module", "client.peer").Str("peer", p.ID).Msg("send candidate")
	}
}

// freshCandidates drops cache entries older than the candidate window.
func (p *Peer) freshCandidates(cache *[]cachedCand) []cachedCand {
	cutoff := p.cfg.Now().Add(-p.cfg.CandidateWindow)
	kept := (*cache)[:0]
	for _, cc := range *cache {
		if cc.at.After(cutoff) {
			kept = append(kept, cc)
		}
	}
	*cache = kept
	return kept
}

func (p *Peer) onLinkState(s LinkState) {
	switch s {
	case LinkConnected:
		switch p.State() {
		case StateConnecting, StateReconnecting:
			p.inFlight = false
			p.stopTimer(&p.negTimer)
			p.stopTimer(&p.retryTimer)
			p.setState(StateConnected)
		}
	case LinkDisconnected, LinkFailed:
		p.onFailure()
	}
}

// onFailure counts one failed attempt. Signals that arrive while a retry is
// already scheduled belong to the same failure.
func (p *Peer) onFailure() {
	st := p.State()
	if st.Terminal() || st == StateNew {
		return
	}
	if st != StateConnected && !p.inFlight {
		return
	}
	p.inFlight = false
	p.stopTimer(&p.negTimer)

	p.mu.Lock()
	p.failures++
	k := p.failures
	p.mu.Unlock()

	if k > len(p.cfg.Backoff) {
		p.terminate(StateFailed, fmt.Errorf("%w: %s after %d attempts", ErrPeerUnreachable, p.DisplayName, k))
		return
	}
	if st == StateConnected && !p.setState(StateDisconnected) {
		return
	}
	if !p.setState(StateReconnecting) {
		return
	}
	delay := p.cfg.Backoff[k-1]
	attempt := p.attempt
	p.stopTimer(&p.retryTimer)
	p.retryTimer = p.cfg.Scheduler.AfterFunc(delay, func() { p.post(evRetry{attempt}) })
	log.Info().Str("module", "client.peer").Str("peer", p.ID).Int("failures", k).Dur("delay", delay).Msg("retry scheduled")
}

func (p *Peer) onRetry(attempt int) {
	if attempt != p.attempt || p.State() != StateReconnecting {
		return
	}
	p.retryTimer = nil
	p.beginAttempt()
	if !p.Initiator {
		// The initiator drives renegotiation; wait for its restart offer.
		return
	}
	p.sendOffer(true)
	if !p.inFlight {
		return
	}
	for _, cc := range p.freshCandidates(&p.localCands) {
		if err := p.signaler.SendCandidate(p.ID, cc.c); err != nil {
			log.Debug().Err(err).Str("module", "client.peer").Str("peer", p.ID).Msg("resend candidate")
		}
	}
}

func (p *Peer) terminate(final State, cause error) {
	if p.State().Terminal() {
		return
	}
	p.stopTimer(&p.retryTimer)
	p.stopTimer(&p.negTimer)
	if err := p.link.Close(); err != nil {
		log.Debug().Err(err).Str("module", "client.peer").Str("peer", p.ID).Msg("link close")
	}
	p.mu.Lock()
	prev := p.state
	p.state = final
	p.mu.Unlock()
	close(p.done)

	log.Info().Str("module", "client.peer").Str("peer", p.ID).Str("from", prev.String()).Str("to", final.String()).Msg("state")
	if p.onState != nil {
		p.onState(p, final)
	}
	if cause != nil {
		log.Error().Err(cause).Str("module", "client.peer").Str("peer", p.ID).Msg("peer link failed")
		if p.onFatal != nil {
			p.onFatal(p, cause)
		}
	}
}
