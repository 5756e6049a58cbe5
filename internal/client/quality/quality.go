// Package quality classifies link statistics and picks a bandwidth profile
// per remote peer.
package quality

import (
	"fmt"
	"time"
)

// Sample is one measurement of a peer link.
type Sample struct {
	RTT        time.Duration
	PacketLoss float64 // ratio in [0,1]
	Jitter     time.Duration
}

type Level int

const (
	Excellent Level = iota
	Good
	Fair
	Poor
)

func (l Level) String() string {
	switch l {
	case Excellent:
		return "excellent"
	case Good:
		return "good"
	case Fair:
		return "fair"
	case Poor:
		return "poor"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

type threshold struct {
	level   Level
	maxRTT  time.Duration
	maxLoss float64
}

// ladder is ordered best first. A sample must satisfy both ceilings of a rung.
var ladder = []threshold{
	{Excellent, 100 * time.Millisecond, 0.01},
	{Good, 200 * time.Millisecond, 0.03},
	{Fair, 400 * time.Millisecond, 0.08},
}

func Classify(s Sample) Level {
	for _, t := range ladder {
		if s.RTT <= t.maxRTT && s.PacketLoss <= t.maxLoss {
			return t.level
		}
	}
	return Poor
}

// Profile bounds outbound media for one link.
type Profile struct {
	Name           string
	MaxBitrateKbps int
	MaxFramerate   int
	Width          int
	Height         int
}

var (
	ProfileHigh    = Profile{Name: "high", MaxBitrateKbps: 1500, MaxFramerate: 30, Width: 1280, Height: 720}
	ProfileNormal  = Profile{Name: "normal", MaxBitrateKbps: 500, MaxFramerate: 24, Width: 640, Height: 360}
	ProfileReduced = Profile{Name: "reduced", MaxBitrateKbps: 150, MaxFramerate: 15, Width: 320, Height: 180}
)

func ProfileFor(l Level) Profile {
	switch l {
	case Excellent:
		return ProfileHigh
	case Good:
		return ProfileNormal
	default:
		return ProfileReduced
	}
}

// ProfileByName resolves a user-forced profile.
func ProfileByName(name string) (Profile, bool) {
	for _, p := range []Profile{ProfileHigh, ProfileNormal, ProfileReduced} {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}
