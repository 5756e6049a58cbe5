package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicechat/internal/core"
)

// Monitor force-closes connections whose heartbeat went stale. A dead
// connection survives at most interval+timeout past its last heartbeat.
type Monitor struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	evict    func(core.ConnectionID)
}

func NewMonitor(reg *Registry, interval, timeout time.Duration, evict func(core.ConnectionID)) *Monitor {
	return &Monitor{registry: reg, interval: interval, timeout: timeout, evict: evict}
}

func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	log.Info().Str("module", "app.liveness").Dur("interval", m.interval).Dur("timeout", m.timeout).Msg("liveness monitor started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.liveness").Msg("liveness monitor stopped")
			return
		case now := <-ticker.C:
			m.Tick(now)
		}
	}
}

// Tick runs one sweep at now and returns the evicted ids.
func (m *Monitor) Tick(now time.Time) []core.ConnectionID {
	stale := m.registry.Sweep(now, m.timeout)
	for _, cid := range stale {
		log.Info().Str("module", "app.liveness").Str("cid", string(cid)).Msg("evicting stale connection")
		m.evict(cid)
	}
	return stale
}
