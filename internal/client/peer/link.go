package peer

import (
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/voicechat/internal/client/quality"
)

// LinkState is what the media layer reports about connectivity.
type LinkState int

const (
	LinkConnected LinkState = iota
	LinkDisconnected
	LinkFailed
)

// Link is one media connection to a remote peer.
type Link interface {
	quality.Target
	// CreateOffer creates an offer and sets it as the local description.
	CreateOffer(iceRestart bool) (webrtc.SessionDescription, error)
	// AcceptOffer sets the remote offer and returns the local answer.
	AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	AcceptAnswer(answer webrtc.SessionDescription) error
	AddCandidate(c webrtc.ICECandidateInit) error
	OnLocalCandidate(fn func(webrtc.ICECandidateInit))
	OnStateChange(fn func(LinkState))
	Close() error
}

type LinkFactory func(remoteID string) (Link, error)

// Signaler carries negotiation payloads to a remote connection.
type Signaler interface {
	SendOffer(to string, sdp webrtc.SessionDescription) error
	SendAnswer(to string, sdp webrtc.SessionDescription) error
	SendCandidate(to string, c webrtc.ICECandidateInit) error
}

type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. Tests swap it for a manual clock.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
