package rtc

import (
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicechat/internal/client/peer"
	"github.com/dkeye/voicechat/internal/client/quality"
)

var ErrNoStats = errors.New("no link statistics yet")

const silenceFrame = 20 * time.Millisecond

// opusSilence is a single Opus DTX frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// WebRTCConnection is a pion peer connection carrying one outgoing Opus track.
// Samples written to the track are held to the bandwidth profile's ceiling.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	track  *webrtc.TrackLocalStaticSample
	remote string
	done   chan struct{}
	start  sync.Once
	stop   sync.Once

	mu       sync.Mutex
	onICE    func(webrtc.ICECandidateInit)
	onState  func(peer.LinkState)
	profile  quality.Profile
	gate     bitrateGate
	dropped  int
	prevRx   uint64
	prevLost int64
}

func DefaultWebRTCConfig(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		iceServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	}
}

// NewFactory returns a peer.LinkFactory creating one connection per remote.
func NewFactory(cfg webrtc.Configuration) peer.LinkFactory {
	return func(remote string) (peer.Link, error) {
		return NewWebRTCConnection(cfg, remote)
	}
}

func NewWebRTCConnection(cfg webrtc.Configuration, remote string) (*WebRTCConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio",
		"voice-"+remote,
	)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	go func() {
		rtcpBuf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(rtcpBuf); err != nil {
				return
			}
		}
	}()
	c := &WebRTCConnection{pc: pc, track: track, remote: remote, done: make(chan struct{})}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "webrtc").Str("peer", remote).Str("ice_state", s.String()).Msg("ICE state")
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer", remote).Str("peer_connection_state", s.String()).Msg("Peer state")
		var ls peer.LinkState
		switch s {
		case webrtc.PeerConnectionStateConnected:
			ls = peer.LinkConnected
			c.start.Do(func() { go c.sendSilence() })
		case webrtc.PeerConnectionStateDisconnected:
			ls = peer.LinkDisconnected
		case webrtc.PeerConnectionStateFailed:
			ls = peer.LinkFailed
		default:
			return
		}
		c.mu.Lock()
		fn := c.onState
		c.mu.Unlock()
		if fn != nil {
			fn(ls)
		}
	})

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("peer", remote).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("OnTrack received")
	})

	return c, nil
}

func (c *WebRTCConnection) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: iceRestart})
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *WebRTCConnection) AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *WebRTCConnection) AcceptAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *WebRTCConnection) AddCandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) OnLocalCandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

func (c *WebRTCConnection) OnStateChange(fn func(peer.LinkState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// Sample reads the nominated candidate pair RTT and the inbound audio loss
// and jitter. Loss is computed over the interval since the previous sample.
func (c *WebRTCConnection) Sample() (quality.Sample, error) {
	var (
		s        quality.Sample
		haveRTT  bool
		rx       uint64
		lost     int64
		jitter   float64
		haveRecv bool
	)
	for _, st := range c.pc.GetStats() {
		switch v := st.(type) {
		case webrtc.ICECandidatePairStats:
			if v.Nominated && v.State == webrtc.StatsICECandidatePairStateSucceeded {
				s.RTT = time.Duration(v.CurrentRoundTripTime * float64(time.Second))
				haveRTT = true
			}
		case webrtc.InboundRTPStreamStats:
			rx += uint64(v.PacketsReceived)
			lost += int64(v.PacketsLost)
			if v.Jitter > jitter {
				jitter = v.Jitter
			}
			haveRecv = true
		}
	}
	if !haveRTT && !haveRecv {
		return quality.Sample{}, ErrNoStats
	}
	s.Jitter = time.Duration(jitter * float64(time.Second))

	c.mu.Lock()
	dRx := int64(rx) - int64(c.prevRx)
	dLost := lost - c.prevLost
	c.prevRx, c.prevLost = rx, lost
	c.mu.Unlock()
	if dRx < 0 {
		dRx = 0
	}
	if dLost < 0 {
		dLost = 0
	}
	if total := dRx + dLost; total > 0 {
		s.PacketLoss = float64(dLost) / float64(total)
	}
	return s, nil
}

// SetProfile caps the outgoing track at the profile's bitrate. Samples that
// would exceed it are dropped by WriteSample.
func (c *WebRTCConnection) SetProfile(p quality.Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profile = p
	c.gate.setCeiling(p.MaxBitrateKbps)
	log.Info().Str("module", "webrtc").Str("peer", c.remote).Str("profile", p.Name).Int("kbps", p.MaxBitrateKbps).Msg("bandwidth profile")
	return nil
}

func (c *WebRTCConnection) Profile() quality.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

// WriteSample sends one encoded audio frame. It reports false when the frame
// was dropped to stay under the current bitrate ceiling.
func (c *WebRTCConnection) WriteSample(data []byte, d time.Duration) (bool, error) {
	c.mu.Lock()
	ok := c.gate.admit(len(data), d)
	if !ok {
		c.dropped++
	}
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := c.track.WriteSample(media.Sample{Data: data, Duration: d}); err != nil {
		return false, err
	}
	return true, nil
}

// Dropped counts frames held back by the bitrate ceiling.
func (c *WebRTCConnection) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// sendSilence keeps the outgoing track alive with DTX frames until Close.
func (c *WebRTCConnection) sendSilence() {
	ticker := time.NewTicker(silenceFrame)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if _, err := c.WriteSample(opusSilence, silenceFrame); err != nil {
				log.Debug().Err(err).Str("module", "webrtc").Str("peer", c.remote).Msg("silence frame")
				return
			}
		}
	}
}

func (c *WebRTCConnection) Close() error {
	c.stop.Do(func() { close(c.done) })
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("peer", c.remote).Msg("close error")
		return err
	}
	log.Info().Str("module", "webrtc").Str("peer", c.remote).Msg("closed")
	return nil
}
