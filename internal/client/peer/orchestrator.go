package peer

import (
	"sort"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicechat/internal/client/quality"
)

// Orchestrator owns the peers of the current voice channel. Its lock guards
// the peer map and the channel flag; each peer negotiates on its own
// goroutine. No peer exists while the orchestrator is outside a channel.
type Orchestrator struct {
	factory  LinkFactory
	signaler Signaler
	cfg      Config
	quality  *quality.Engine
	onFatal  func(id, displayName string, err error)

	mu        sync.Mutex
	inChannel bool
	peers     map[string]*Peer
}

type OrchestratorOption func(*Orchestrator)

func WithQuality(e *quality.Engine) OrchestratorOption {
	return func(o *Orchestrator) { o.quality = e }
}

// WithFatalHandler is called once per peer that exhausted its retries.
func WithFatalHandler(fn func(id, displayName string, err error)) OrchestratorOption {
	return func(o *Orchestrator) { o.onFatal = fn }
}

func NewOrchestrator(factory LinkFactory, sig Signaler, cfg Config, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		factory:  factory,
		signaler: sig,
		cfg:      cfg.withDefaults(),
		peers:    make(map[string]*Peer),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Remote identifies a participant of the voice channel.
type Remote struct {
	ID          string
	DisplayName string
}

// JoinedChannel starts offers towards everyone already in the channel; the
// newcomer is the initiating side. Peers not listed belong to a previous
// channel and are closed.
func (o *Orchestrator) JoinedChannel(existing []Remote) {
	keep := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		keep[r.ID] = struct{}{}
	}
	var stale []*Peer
	o.mu.Lock()
	o.inChannel = true
	for id, p := range o.peers {
		if _, ok := keep[id]; !ok {
			stale = append(stale, p)
			delete(o.peers, id)
		}
	}
	o.mu.Unlock()
	for _, p := range stale {
		p.Close()
		o.untrack(p.ID)
	}

	for _, r := range existing {
		if p := o.ensure(r, true); p != nil {
			p.Start()
		}
	}
}

// PeerJoined prepares for the newcomer's offer.
func (o *Orchestrator) PeerJoined(r Remote) {
	o.ensure(r, false)
}

func (o *Orchestrator) PeerLeft(id string) {
	o.mu.Lock()
	p, ok := o.peers[id]
	delete(o.peers, id)
	o.mu.Unlock()
	if ok {
		p.Close()
		o.untrack(id)
	}
}

func (o *Orchestrator) Offer(from Remote, sdp webrtc.SessionDescription) {
	if p := o.ensure(from, false); p != nil {
		p.HandleOffer(sdp)
	}
}

func (o *Orchestrator) Answer(from string, sdp webrtc.SessionDescription) {
	if p, ok := o.member(from); ok {
		p.HandleAnswer(sdp)
	}
}

// Candidate routes a remote candidate. Candidates from unknown peers or
// arriving outside a channel are dropped; they belong to a link already
// torn down.
func (o *Orchestrator) Candidate(from string, c webrtc.ICECandidateInit) {
	if p, ok := o.member(from); ok {
		p.HandleCandidate(c)
	}
}

// Leave closes every link and cancels their timers.
func (o *Orchestrator) Leave() {
	o.mu.Lock()
	peers := o.peers
	o.peers = make(map[string]*Peer)
	o.inChannel = false
	o.mu.Unlock()
	for id, p := range peers {
		p.Close()
		o.untrack(id)
	}
	log.Info().Str("module", "client.peer").Int("peers", len(peers)).Msg("left voice channel")
}

func (o *Orchestrator) Peer(id string) (*Peer, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.peers[id]
	return p, ok
}

// Peers returns the current peers ordered by id.
func (o *Orchestrator) Peers() []*Peer {
	o.mu.Lock()
	out := make([]*Peer, 0, len(o.peers))
	for _, p := range o.peers {
		out = append(out, p)
	}
	o.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// InChannel reports whether a voice channel is currently joined.
func (o *Orchestrator) InChannel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inChannel
}

func (o *Orchestrator) member(id string) (*Peer, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.inChannel {
		return nil, false
	}
	p, ok := o.peers[id]
	return p, ok
}

func (o *Orchestrator) ensure(r Remote, initiator bool) *Peer {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.inChannel {
		log.Debug().Str("module", "client.peer").Str("peer", r.ID).Msg("not in a voice channel, dropping")
		return nil
	}
	if p, ok := o.peers[r.ID]; ok {
		return p
	}
	link, err := o.factory(r.ID)
	if err != nil {
		log.Error().Err(err).Str("module", "client.peer").Str("peer", r.ID).Msg("create link")
		return nil
	}
	p := newPeer(r.ID, r.DisplayName, initiator, link, o.signaler, o.cfg)
	p.onFatal = o.fatal
	o.peers[r.ID] = p
	if o.quality != nil {
		o.quality.Track(r.ID, link)
	}
	go p.run()
	log.Info().Str("module", "client.peer").Str("peer", r.ID).Str("name", r.DisplayName).Bool("initiator", initiator).Msg("peer created")
	return p
}

func (o *Orchestrator) fatal(p *Peer, err error) {
	o.mu.Lock()
	if cur, ok := o.peers[p.ID]; ok && cur == p {
		delete(o.peers, p.ID)
	}
	o.mu.Unlock()
	o.untrack(p.ID)
	if o.onFatal != nil {
		o.onFatal(p.ID, p.DisplayName, err)
	}
}

func (o *Orchestrator) untrack(id string) {
	if o.quality != nil {
		o.quality.Untrack(id)
	}
}
