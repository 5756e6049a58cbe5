package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/voicechat/internal/client/peer"
	"github.com/dkeye/voicechat/internal/protocol"
)

// Mesh is the part of the peer orchestrator driven by server events.
type Mesh interface {
	JoinedChannel(existing []peer.Remote)
	PeerJoined(r peer.Remote)
	PeerLeft(id string)
	Offer(from peer.Remote, sdp webrtc.SessionDescription)
	Answer(from string, sdp webrtc.SessionDescription)
	Candidate(from string, c webrtc.ICECandidateInit)
	Leave()
}

// Dispatch feeds voice events into the mesh. It reports false for events
// that are not about voice.
func Dispatch(env protocol.Envelope, mesh Mesh) (bool, error) {
	switch env.Event {
	case protocol.EventVoiceJoined:
		var p protocol.VoiceJoined
		if err := env.DecodeData(&p); err != nil {
			return true, err
		}
		existing := make([]peer.Remote, 0, len(p.Participants))
		for _, vp := range p.Participants {
			existing = append(existing, peer.Remote{ID: vp.ConnectionID, DisplayName: vp.DisplayName})
		}
		mesh.JoinedChannel(existing)
	case protocol.EventUserJoinedVoice, protocol.EventUserLeftVoice:
		var p protocol.VoicePeer
		if err := env.DecodeData(&p); err != nil {
			return true, err
		}
		if env.Event == protocol.EventUserJoinedVoice {
			mesh.PeerJoined(peer.Remote{ID: p.ConnectionID, DisplayName: p.DisplayName})
		} else {
			mesh.PeerLeft(p.ConnectionID)
		}
	case protocol.EventVoiceOffer, protocol.EventVoiceAnswer, protocol.EventICECandidate:
		var p protocol.SignalIn
		if err := env.DecodeData(&p); err != nil {
			return true, err
		}
		return true, dispatchSignal(env.Event, p, mesh)
	default:
		return false, nil
	}
	return true, nil
}

func dispatchSignal(event string, p protocol.SignalIn, mesh Mesh) error {
	switch event {
	case protocol.EventVoiceOffer:
		var sdp webrtc.SessionDescription
		if err := json.Unmarshal(p.Offer, &sdp); err != nil {
			return fmt.Errorf("offer from %s: %w", p.From, err)
		}
		mesh.Offer(peer.Remote{ID: p.From, DisplayName: p.FromDisplayName}, sdp)
	case protocol.EventVoiceAnswer:
		var sdp webrtc.SessionDescription
		if err := json.Unmarshal(p.Answer, &sdp); err != nil {
			return fmt.Errorf("answer from %s: %w", p.From, err)
		}
		mesh.Answer(p.From, sdp)
	default:
		var c webrtc.ICECandidateInit
		if err := json.Unmarshal(p.Candidate, &c); err != nil {
			return fmt.Errorf("candidate from %s: %w", p.From, err)
		}
		mesh.Candidate(p.From, c)
	}
	return nil
}
