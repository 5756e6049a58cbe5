package rtc

import "time"

// bitrateGate admits media samples while their byte rate stays under a
// ceiling. Credit accrues with sample duration and is capped at one second.
type bitrateGate struct {
	kbps   int
	credit float64
}

func (g *bitrateGate) setCeiling(kbps int) {
	g.kbps = kbps
	if limit := g.burst(); g.credit > limit {
		g.credit = limit
	}
}

func (g *bitrateGate) burst() float64 { return float64(g.kbps) * 1000 / 8 }

// admit reports whether a sample of n bytes covering d fits the ceiling.
// A zero ceiling admits everything.
func (g *bitrateGate) admit(n int, d time.Duration) bool {
	if g.kbps <= 0 {
		return true
	}
	g.credit += g.burst() * d.Seconds()
	if limit := g.burst(); g.credit > limit {
		g.credit = limit
	}
	if float64(n) > g.credit {
		return false
	}
	g.credit -= float64(n)
	return true
}
