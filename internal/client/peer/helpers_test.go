package peer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/voicechat/internal/client/quality"
)

type fakeLink struct {
	mu         sync.Mutex
	offers     []bool
	accepted   []string
	answers    []string
	candidates []string
	closed     bool
	failOffer  bool

	onCand  func(webrtc.ICECandidateInit)
	onState func(LinkState)
}

func (l *fakeLink) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failOffer {
		return webrtc.SessionDescription{}, errors.New("offer failed")
	}
	l.offers = append(l.offers, iceRestart)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", len(l.offers))}, nil
}

func (l *fakeLink) AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accepted = append(l.accepted, offer.SDP)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-to-" + offer.SDP}, nil
}

func (l *fakeLink) AcceptAnswer(answer webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.answers = append(l.answers, answer.SDP)
	return nil
}

func (l *fakeLink) AddCandidate(c webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.candidates = append(l.candidates, c.Candidate)
	return nil
}

func (l *fakeLink) OnLocalCandidate(fn func(webrtc.ICECandidateInit)) { l.onCand = fn }
func (l *fakeLink) OnStateChange(fn func(LinkState))                  { l.onState = fn }

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) Sample() (quality.Sample, error)  { return quality.Sample{}, nil }
func (l *fakeLink) SetProfile(quality.Profile) error { return nil }

func (l *fakeLink) report(s LinkState) { l.onState(s) }
func (l *fakeLink) gather(cand string) { l.onCand(webrtc.ICECandidateInit{Candidate: cand}) }

func (l *fakeLink) snapshot() (offers []bool, added []string, closed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.offers...), append([]string(nil), l.candidates...), l.closed
}

type sent struct {
	kind string
	to   string
	body string
}

type fakeSignaler struct {
	mu  sync.Mutex
	out []sent
}

func (s *fakeSignaler) record(kind, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, sent{kind: kind, to: to, body: body})
	return nil
}

func (s *fakeSignaler) SendOffer(to string, sdp webrtc.SessionDescription) error {
	return s.record("offer", to, sdp.SDP)
}

func (s *fakeSignaler) SendAnswer(to string, sdp webrtc.SessionDescription) error {
	return s.record("answer", to, sdp.SDP)
}

func (s *fakeSignaler) SendCandidate(to string, c webrtc.ICECandidateInit) error {
	return s.record("candidate", to, c.Candidate)
}

func (s *fakeSignaler) sentOf(kind string) []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sent
	for _, m := range s.out {
		if m.kind == kind {
			out = append(out, m)
		}
	}
	return out
}

type fakeTimer struct {
	d time.Duration
	f func()

	mu      sync.Mutex
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

// manualScheduler never fires on its own; tests call fire.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// pending returns live timers with the given duration.
func (s *manualScheduler) pending(d time.Duration) []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if t.d == d && t.live() {
			out = append(out, t)
		}
	}
	return out
}

func (s *manualScheduler) delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t.d)
	}
	return out
}

// fire runs the newest live timer of duration d.
func (s *manualScheduler) fire(d time.Duration) bool {
	live := s.pending(d)
	if len(live) == 0 {
		return false
	}
	t := live[len(live)-1]
	t.Stop()
	t.f()
	return true
}

type fatalRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *fatalRecorder) record(_ *Peer, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *fatalRecorder) all() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

var testBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	3 * time.Second,
	4 * time.Second,
	5 * time.Second,
}

type harness struct {
	peer  *Peer
	link  *fakeLink
	sig   *fakeSignaler
	sched *manualScheduler
	fatal *fatalRecorder
	now   time.Time
}

func newHarness(initiator bool, mutate ...func(*Config)) *harness {
	h := &harness{
		link:  &fakeLink{},
		sig:   &fakeSignaler{},
		sched: &manualScheduler{},
		fatal: &fatalRecorder{},
		now:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	cfg := Config{
		Backoff:   testBackoff,
		Scheduler: h.sched,
		Now:       func() time.Time { return h.now },
	}
	for _, m := range mutate {
		m(&cfg)
	}
	h.peer = newPeer("remote-1", "Bob", initiator, h.link, h.sig, cfg)
	h.peer.onFatal = h.fatal.record
	go h.peer.run()
	return h
}

func (h *harness) fail() {
	h.link.report(LinkFailed)
	h.peer.flush()
}

func (h *harness) retry(d time.Duration) bool {
	ok := h.sched.fire(d)
	h.peer.flush()
	return ok
}
