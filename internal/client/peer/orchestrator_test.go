package peer

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicechat/internal/client/quality"
)

type linkPool struct {
	mu    sync.Mutex
	links map[string]*fakeLink
}

func (lp *linkPool) factory(remoteID string) (Link, error) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	l := &fakeLink{}
	lp.links[remoteID] = l
	return l, nil
}

func (lp *linkPool) get(id string) *fakeLink {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return lp.links[id]
}

func newTestOrchestrator(opts ...OrchestratorOption) (*Orchestrator, *linkPool, *fakeSignaler, *manualScheduler) {
	lp := &linkPool{links: make(map[string]*fakeLink)}
	sig := &fakeSignaler{}
	sched := &manualScheduler{}
	o := NewOrchestrator(lp.factory, sig, Config{Backoff: []time.Duration{time.Second}, Scheduler: sched}, opts...)
	return o, lp, sig, sched
}

func flushAll(o *Orchestrator) {
	for _, p := range o.Peers() {
		p.flush()
	}
}

func TestOrchestrator_JoinedChannelOffersToEveryone(t *testing.T) {
	o, _, sig, _ := newTestOrchestrator()
	o.JoinedChannel([]Remote{{ID: "b", DisplayName: "Bob"}, {ID: "a", DisplayName: "Alice"}})
	flushAll(o)

	peers := o.Peers()
	require.Len(t, peers, 2)
	assert.Equal(t, "a", peers[0].ID)
	assert.Equal(t, "b", peers[1].ID)
	for _, p := range peers {
		assert.True(t, p.Initiator)
		assert.Equal(t, StateConnecting, p.State())
	}

	var to []string
	for _, m := range sig.sentOf("offer") {
		to = append(to, m.to)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, to)
}

func TestOrchestrator_OfferFromNewcomerIsAnswered(t *testing.T) {
	o, _, sig, _ := newTestOrchestrator()
	o.JoinedChannel(nil)
	o.PeerJoined(Remote{ID: "c", DisplayName: "Carol"})
	o.Offer(Remote{ID: "c", DisplayName: "Carol"}, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "o1"})
	o.Offer(Remote{ID: "d", DisplayName: "Dave"}, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "o2"})
	flushAll(o)

	require.Len(t, o.Peers(), 2)
	p, ok := o.Peer("d")
	require.True(t, ok)
	assert.False(t, p.Initiator)
	assert.Equal(t, "Dave", p.DisplayName)
	assert.Len(t, sig.sentOf("answer"), 2)
}

func TestOrchestrator_DropsSignalsForUnknownPeers(t *testing.T) {
	o, lp, _, _ := newTestOrchestrator()
	o.Answer("ghost", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "a"})
	o.Candidate("ghost", webrtc.ICECandidateInit{Candidate: "c"})

	assert.Empty(t, o.Peers())
	assert.Nil(t, lp.get("ghost"))
}

func TestOrchestrator_PeerLeftClosesLink(t *testing.T) {
	e := quality.NewEngine(0, 0)
	o, lp, _, _ := newTestOrchestrator(WithQuality(e))
	o.JoinedChannel([]Remote{{ID: "a", DisplayName: "Alice"}})
	p, ok := o.Peer("a")
	require.True(t, ok)
	_, tracked := e.Level("a")
	require.True(t, tracked)

	o.PeerLeft("a")
	<-p.Done()

	_, ok = o.Peer("a")
	assert.False(t, ok)
	assert.Equal(t, StateClosed, p.State())
	_, _, closed := lp.get("a").snapshot()
	assert.True(t, closed)
	_, tracked = e.Level("a")
	assert.False(t, tracked)
}

func TestOrchestrator_LeaveClosesEveryPeer(t *testing.T) {
	o, _, _, sched := newTestOrchestrator()
	o.JoinedChannel([]Remote{{ID: "a"}, {ID: "b"}})
	peers := o.Peers()
	for _, p := range peers {
		p.flush()
	}
	o.Peers()[0].Link().(*fakeLink).report(LinkFailed)
	flushAll(o)
	require.Len(t, sched.pending(time.Second), 1)

	o.Leave()
	for _, p := range peers {
		<-p.Done()
		assert.Equal(t, StateClosed, p.State())
	}
	assert.Empty(t, o.Peers())
	assert.Empty(t, sched.pending(time.Second))
}

func TestOrchestrator_FatalPeerIsRemovedAndReported(t *testing.T) {
	type fatal struct {
		id, name string
		err      error
	}
	got := make(chan fatal, 1)
	o, lp, _, sched := newTestOrchestrator(WithFatalHandler(func(id, name string, err error) {
		got <- fatal{id, name, err}
	}))
	o.JoinedChannel([]Remote{{ID: "b", DisplayName: "Bob"}})
	p, _ := o.Peer("b")
	p.flush()

	lp.get("b").report(LinkFailed)
	p.flush()
	require.True(t, sched.fire(time.Second))
	p.flush()
	lp.get("b").report(LinkFailed)

	select {
	case f := <-got:
		assert.Equal(t, "b", f.id)
		assert.Equal(t, "Bob", f.name)
		assert.ErrorIs(t, f.err, ErrPeerUnreachable)
	case <-time.After(time.Second):
		t.Fatal("fatal handler not called")
	}
	assert.Equal(t, StateFailed, p.State())
	_, ok := o.Peer("b")
	assert.False(t, ok)
}

func TestOrchestrator_IgnoresVoiceEventsOutsideAChannel(t *testing.T) {
	o, lp, sig, _ := newTestOrchestrator()
	o.PeerJoined(Remote{ID: "a", DisplayName: "Alice"})
	o.Offer(Remote{ID: "b", DisplayName: "Bob"}, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "early"})

	assert.False(t, o.InChannel())
	assert.Empty(t, o.Peers())
	assert.Nil(t, lp.get("a"))
	assert.Nil(t, lp.get("b"))
	assert.Empty(t, sig.sentOf("answer"))
}

func TestOrchestrator_LateOfferAfterLeaveCreatesNoLink(t *testing.T) {
	o, lp, sig, _ := newTestOrchestrator()
	o.JoinedChannel(nil)
	o.PeerJoined(Remote{ID: "a", DisplayName: "Alice"})
	p, ok := o.Peer("a")
	require.True(t, ok)

	o.Leave()
	<-p.Done()
	first := lp.get("a")

	o.Offer(Remote{ID: "a", DisplayName: "Alice"}, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "late"})
	o.Answer("a", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "late"})
	o.Candidate("a", webrtc.ICECandidateInit{Candidate: "late"})

	assert.False(t, o.InChannel())
	assert.Empty(t, o.Peers())
	assert.Same(t, first, lp.get("a"), "no new link was built")
	assert.Empty(t, sig.sentOf("answer"))
}

func TestOrchestrator_SwitchingChannelClosesOldPeers(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	o.JoinedChannel([]Remote{{ID: "a", DisplayName: "Alice"}})
	old, ok := o.Peer("a")
	require.True(t, ok)

	o.JoinedChannel([]Remote{{ID: "b", DisplayName: "Bob"}})
	<-old.Done()

	peers := o.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, "b", peers[0].ID)
	assert.Equal(t, StateClosed, old.State())
}
