package rtc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBitrateGate_EnforcesCeiling(t *testing.T) {
	var g bitrateGate
	assert.True(t, g.admit(1<<20, 20*time.Millisecond), "no ceiling admits everything")

	g.setCeiling(16)
	// 16 kbps over 20ms is 40 bytes.
	assert.True(t, g.admit(40, 20*time.Millisecond))
	assert.False(t, g.admit(41, 20*time.Millisecond))
	// The rejected sample left its credit behind.
	assert.True(t, g.admit(79, 20*time.Millisecond))
}

func TestBitrateGate_BurstIsCappedAtOneSecond(t *testing.T) {
	var g bitrateGate
	g.setCeiling(8)
	assert.False(t, g.admit(1001, 10*time.Second))
	assert.True(t, g.admit(1000, 0))
	assert.False(t, g.admit(1, 0))
}

func TestBitrateGate_LoweringCeilingTrimsCredit(t *testing.T) {
	var g bitrateGate
	g.setCeiling(64)
	g.admit(0, time.Second)
	g.setCeiling(8)
	assert.False(t, g.admit(1001, 0))
	assert.True(t, g.admit(1000, 0))
}
