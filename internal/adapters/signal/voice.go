package signal

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicechat/internal/app/orch"
	"github.com/dkeye/voicechat/internal/core"
	"github.com/dkeye/voicechat/internal/protocol"
)

func (ctl *SignalWSController) handleJoinVoice(ctx context.Context, cid core.ConnectionID, conn *WsSignalConn, env protocol.Envelope) {
	var p protocol.JoinVoice
	if err := env.DecodeData(&p); err != nil {
		ctl.sendError(conn, errBadPayload)
		return
	}
	log.Info().Str("module", "signal").Str("cid", string(cid)).Str("channel", p.ChannelID).Msg("join voice")
	ctl.reportIfErr(conn, ctl.Orch.JoinVoice(ctx, cid, p.ChannelID))
}

// handleRelay checks the envelope shape only; payloads are opaque here.
func (ctl *SignalWSController) handleRelay(cid core.ConnectionID, conn *WsSignalConn, env protocol.Envelope) {
	var p protocol.SignalOut
	if err := env.DecodeData(&p); err != nil {
		ctl.sendError(conn, errBadPayload)
		return
	}

	var (
		kind    orch.SignalKind
		payload = p.Offer
	)
	switch env.Event {
	case protocol.EventVoiceOffer:
		kind = orch.KindOffer
	case protocol.EventVoiceAnswer:
		kind, payload = orch.KindAnswer, p.Answer
	case protocol.EventICECandidate:
		kind, payload = orch.KindCandidate, p.Candidate
	}

	if _, err := ctl.Orch.Relay(kind, cid, core.ConnectionID(p.TargetConnectionID), payload); err != nil {
		ctl.sendError(conn, err)
	}
}
