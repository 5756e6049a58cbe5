package peer

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeer_GivesUpAfterBackoffIsExhausted(t *testing.T) {
	h := newHarness(true)
	h.peer.Start()
	h.peer.flush()
	require.Equal(t, StateConnecting, h.peer.State())

	for i, d := range testBackoff {
		h.fail()
		require.Equal(t, StateReconnecting, h.peer.State())
		require.Equal(t, i+1, h.peer.Failures())
		require.True(t, h.retry(d), "retry %d not scheduled after %s", i+1, d)
	}

	h.fail()

	select {
	case <-h.peer.Done():
	case <-time.After(time.Second):
		t.Fatal("peer did not terminate")
	}
	assert.Equal(t, StateFailed, h.peer.State())
	assert.Equal(t, testBackoff, h.sched.delays())

	errs := h.fatal.all()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrPeerUnreachable)

	offers, _, closed := h.link.snapshot()
	assert.Equal(t, []bool{false, true, true, true, true, true}, offers)
	assert.True(t, closed)
}

func TestPeer_RepeatedSignalsCountOneFailure(t *testing.T) {
	h := newHarness(true)
	h.peer.Start()
	h.link.report(LinkDisconnected)
	h.link.report(LinkFailed)
	h.peer.flush()

	assert.Equal(t, 1, h.peer.Failures())
	assert.Len(t, h.sched.pending(testBackoff[0]), 1)
	assert.Empty(t, h.sched.pending(testBackoff[1]))
}

func TestPeer_ConnectResetsFailures(t *testing.T) {
	h := newHarness(true)
	h.peer.Start()
	h.fail()
	h.fail()
	require.True(t, h.retry(testBackoff[0]))
	h.fail()
	require.Equal(t, 2, h.peer.Failures())
	require.True(t, h.retry(testBackoff[1]))

	h.link.report(LinkConnected)
	h.peer.flush()
	assert.Equal(t, StateConnected, h.peer.State())
	assert.Zero(t, h.peer.Failures())

	h.fail()
	assert.Equal(t, StateReconnecting, h.peer.State())
	assert.Equal(t, 1, h.peer.Failures())
	assert.Len(t, h.sched.pending(testBackoff[0]), 1)
}

func TestPeer_BuffersCandidatesUntilRemoteDescription(t *testing.T) {
	h := newHarness(true)
	h.peer.Start()
	h.peer.HandleCandidate(webrtc.ICECandidateInit{Candidate: "c1"})
	h.peer.flush()

	_, added, _ := h.link.snapshot()
	assert.Empty(t, added)

	h.peer.HandleAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "a1"})
	h.peer.HandleCandidate(webrtc.ICECandidateInit{Candidate: "c2"})
	h.peer.flush()

	_, added, _ = h.link.snapshot()
	assert.Equal(t, []string{"c1", "c2"}, added)
}

func TestPeer_RenegotiationReappliesFreshRemoteCandidates(t *testing.T) {
	h := newHarness(true)
	h.peer.Start()
	h.peer.HandleAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "a1"})
	h.peer.HandleCandidate(webrtc.ICECandidateInit{Candidate: "old"})
	h.peer.flush()

	h.now = h.now.Add(DefaultCandidateWindow + time.Second)
	h.peer.HandleCandidate(webrtc.ICECandidateInit{Candidate: "new"})
	h.fail()
	require.True(t, h.retry(testBackoff[0]))

	h.peer.HandleAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "a2"})
	h.peer.flush()

	_, added, _ := h.link.snapshot()
	assert.Equal(t, []string{"old", "new", "new"}, added)
}

func TestPeer_RetryResendsLocalCandidates(t *testing.T) {
	h := newHarness(true)
	h.peer.Start()
	h.link.gather("l1")
	h.peer.flush()
	require.Len(t, h.sig.sentOf("candidate"), 1)

	h.fail()
	require.True(t, h.retry(testBackoff[0]))

	assert.Len(t, h.sig.sentOf("offer"), 2)
	cands := h.sig.sentOf("candidate")
	require.Len(t, cands, 2)
	assert.Equal(t, "l1", cands[1].body)
	assert.Equal(t, "remote-1", cands[1].to)
}

func TestPeer_AnswersOffersAndRepeatsForDuplicates(t *testing.T) {
	h := newHarness(false)
	h.peer.Start()
	h.peer.flush()
	assert.Equal(t, StateNew, h.peer.State())
	assert.Empty(t, h.sig.sentOf("offer"))

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "o1"}
	h.peer.HandleOffer(offer)
	h.peer.HandleOffer(offer)
	h.peer.flush()

	assert.Equal(t, StateConnecting, h.peer.State())
	answers := h.sig.sentOf("answer")
	require.Len(t, answers, 2)
	assert.Equal(t, "answer-to-o1", answers[0].body)
	assert.Equal(t, answers[0], answers[1])

	h.link.mu.Lock()
	assert.Equal(t, []string{"o1"}, h.link.accepted)
	h.link.mu.Unlock()
}

func TestPeer_NonInitiatorWaitsForRestartOffer(t *testing.T) {
	h := newHarness(false)
	h.peer.HandleOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "o1"})
	h.fail()
	require.True(t, h.retry(testBackoff[0]))

	offers, _, _ := h.link.snapshot()
	assert.Empty(t, offers)
	assert.Equal(t, StateReconnecting, h.peer.State())

	h.peer.HandleOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "o2"})
	h.link.report(LinkConnected)
	h.peer.flush()

	assert.Equal(t, StateConnected, h.peer.State())
	assert.Len(t, h.sig.sentOf("answer"), 2)
}

func TestPeer_NegotiationTimeoutCountsAsFailure(t *testing.T) {
	const limit = 10 * time.Second
	h := newHarness(true, func(c *Config) { c.NegotiationTimeout = limit })
	h.peer.Start()
	h.peer.flush()

	require.True(t, h.sched.fire(limit))
	h.peer.flush()

	assert.Equal(t, StateReconnecting, h.peer.State())
	assert.Equal(t, 1, h.peer.Failures())
	assert.Len(t, h.sched.pending(testBackoff[0]), 1)
}

func TestPeer_ConnectStopsNegotiationTimer(t *testing.T) {
	const limit = 10 * time.Second
	h := newHarness(true, func(c *Config) { c.NegotiationTimeout = limit })
	h.peer.Start()
	h.link.report(LinkConnected)
	h.peer.flush()

	assert.Equal(t, StateConnected, h.peer.State())
	assert.Empty(t, h.sched.pending(limit))
}

func TestPeer_CloseCancelsPendingRetry(t *testing.T) {
	h := newHarness(true)
	h.peer.Start()
	h.fail()
	require.Len(t, h.sched.pending(testBackoff[0]), 1)

	h.peer.Close()
	<-h.peer.Done()

	assert.Equal(t, StateClosed, h.peer.State())
	assert.Empty(t, h.sched.pending(testBackoff[0]))
	assert.Empty(t, h.fatal.all())
	_, _, closed := h.link.snapshot()
	assert.True(t, closed)
}
