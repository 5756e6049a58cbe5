package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicechat/internal/core"
	"github.com/dkeye/voicechat/internal/domain"
)

type statusUpdate struct {
	user   domain.UserID
	online bool
	at     time.Time
}

// StatusWriter applies presence changes to the durable status store in the
// order they were enqueued. Enqueue never blocks; a full queue drops the update.
type StatusWriter struct {
	store   core.StatusStore
	queue   chan statusUpdate
	timeout time.Duration
}

func NewStatusWriter(store core.StatusStore, buffer int, timeout time.Duration) *StatusWriter {
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &StatusWriter{
		store:   store,
		queue:   make(chan statusUpdate, buffer),
		timeout: timeout,
	}
}

func (w *StatusWriter) Enqueue(user domain.UserID, online bool, at time.Time) bool {
	select {
	case w.queue <- statusUpdate{user: user, online: online, at: at}:
		return true
	default:
		log.Warn().Str("module", "app.status").Str("user", string(user)).Bool("online", online).Msg("status queue full, dropping update")
		return false
	}
}

// Run drains the queue until ctx is done.
func (w *StatusWriter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-w.queue:
			w.write(ctx, u)
		}
	}
}

func (w *StatusWriter) write(ctx context.Context, u statusUpdate) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.store.SetStatus(ctx, u.user, u.online, u.at); err != nil {
		log.Error().Err(err).Str("module", "app.status").Str("user", string(u.user)).Bool("online", u.online).Msg("status write failed")
		return
	}
	log.Debug().Str("module", "app.status").Str("user", string(u.user)).Bool("online", u.online).Msg("status written")
}
