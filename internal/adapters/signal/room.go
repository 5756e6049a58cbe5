package signal

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicechat/internal/core"
	"github.com/dkeye/voicechat/internal/domain"
	"github.com/dkeye/voicechat/internal/protocol"
)

func (ctl *SignalWSController) handleJoinRoom(ctx context.Context, cid core.ConnectionID, conn *WsSignalConn, env protocol.Envelope) {
	var p protocol.JoinRoom
	if err := env.DecodeData(&p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, errBadPayload)
		return
	}
	log.Info().Str("module", "signal").Str("cid", string(cid)).Str("room", p.Room).Msg("join")
	ctl.reportIfErr(conn, ctl.Orch.JoinRoom(ctx, cid, p.Room))
}

func (ctl *SignalWSController) handleMessage(ctx context.Context, cid core.ConnectionID, ident domain.Identity, conn *WsSignalConn, env protocol.Envelope) {
	var p protocol.SendMessage
	if err := env.DecodeData(&p); err != nil {
		ctl.sendError(conn, errBadPayload)
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(ident.UserID) {
		ctl.sendError(conn, domain.ErrRateLimited)
		return
	}
	ctl.reportIfErr(conn, ctl.Orch.SendPublic(ctx, cid, p.Text))
}

func (ctl *SignalWSController) handlePrivateMessage(ctx context.Context, cid core.ConnectionID, ident domain.Identity, conn *WsSignalConn, env protocol.Envelope) {
	var p protocol.SendPrivate
	if err := env.DecodeData(&p); err != nil {
		ctl.sendError(conn, errBadPayload)
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(ident.UserID) {
		ctl.sendError(conn, domain.ErrRateLimited)
		return
	}
	ctl.reportIfErr(conn, ctl.Orch.SendPrivate(ctx, cid, p.To, p.Text))
}

func (ctl *SignalWSController) handleSpeaking(cid core.ConnectionID, conn *WsSignalConn, env protocol.Envelope) {
	var p protocol.SetSpeaking
	if err := env.DecodeData(&p); err != nil {
		ctl.sendError(conn, errBadPayload)
		return
	}
	ctl.Orch.Speaking(cid, p.Speaking)
}
