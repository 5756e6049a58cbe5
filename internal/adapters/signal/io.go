package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicechat/internal/core"
	"github.com/dkeye/voicechat/internal/domain"
	"github.com/dkeye/voicechat/internal/protocol"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump is the connection's single event stream: handlers for one
// connection never interleave.
func (ctl *SignalWSController) readPump(ctx context.Context, cid core.ConnectionID, ident domain.Identity, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("readPump closing")
		ctl.Orch.Disconnect(cid)
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	c.conn.SetPongHandler(func(string) error {
		ctl.Orch.Registry.Touch(cid)
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("readPump read error")
				return
			}
			ctl.handleSignal(ctx, cid, ident, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, cid core.ConnectionID, ident domain.Identity, c *WsSignalConn, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("bad json")
		ctl.sendError(c, errBadPayload)
		return
	}

	switch env.Event {
	case protocol.EventJoinRoom:
		ctl.handleJoinRoom(ctx, cid, c, env)
	case protocol.EventLeaveRoom:
		ctl.reportIfErr(c, ctl.Orch.LeaveRoom(cid))
	case protocol.EventGetHistory:
		ctl.reportIfErr(c, ctl.Orch.SendHistory(ctx, cid))
	case protocol.EventMessage:
		ctl.handleMessage(ctx, cid, ident, c, env)
	case protocol.EventPrivateMessage:
		ctl.handlePrivateMessage(ctx, cid, ident, c, env)
	case protocol.EventSpeaking:
		ctl.handleSpeaking(cid, c, env)
	case protocol.EventJoinVoice:
		ctl.handleJoinVoice(ctx, cid, c, env)
	case protocol.EventLeaveVoice:
		ctl.reportIfErr(c, ctl.Orch.LeaveVoice(cid))
	case protocol.EventVoiceOffer, protocol.EventVoiceAnswer, protocol.EventICECandidate:
		ctl.handleRelay(cid, c, env)
	case protocol.EventHeartbeat:
		ctl.handleHeartbeat(cid)
	default:
		log.Warn().Str("module", "signal").Str("event", env.Event).Msg("unknown event")
		ctl.sendError(c, errUnknownEvent)
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, event string, v any) {
	f, err := protocol.Encode(event, v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(f)
}
