package signal

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicechat/internal/domain"
	"github.com/dkeye/voicechat/internal/protocol"
)

var (
	errBadPayload   = errors.New("malformed payload")
	errUnknownEvent = errors.New("unknown event")
)

// Stable error codes sent in error events.
const (
	CodeInvalidPayload    = "INVALID_PAYLOAD"
	CodeInvalidRoom       = "INVALID_ROOM"
	CodeRoomNotFound      = "ROOM_NOT_FOUND"
	CodeNotInRoom         = "NOT_IN_ROOM"
	CodeSelfTarget        = "SELF_TARGET"
	CodeTargetNotInRoom   = "TARGET_NOT_IN_ROOM"
	CodeMessageTooLong    = "MESSAGE_TOO_LONG"
	CodeRateLimited       = "RATE_LIMITED"
	CodePersistenceFailed = "PERSISTENCE_FAILED"
	CodeUnknownEvent      = "UNKNOWN_EVENT"
	CodeInternal          = "INTERNAL"
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, errBadPayload), errors.Is(err, domain.ErrInvalidEnvelope):
		return CodeInvalidPayload
	case errors.Is(err, domain.ErrEmptyRoomName):
		return CodeInvalidRoom
	case errors.Is(err, domain.ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, domain.ErrNotInRoom):
		return CodeNotInRoom
	case errors.Is(err, domain.ErrSelfTarget):
		return CodeSelfTarget
	case errors.Is(err, domain.ErrTargetNotInRoom):
		return CodeTargetNotInRoom
	case errors.Is(err, domain.ErrMessageTooLong):
		return CodeMessageTooLong
	case errors.Is(err, domain.ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, domain.ErrPersistence):
		return CodePersistenceFailed
	case errors.Is(err, errUnknownEvent):
		return CodeUnknownEvent
	default:
		return CodeInternal
	}
}

func (ctl *SignalWSController) reportIfErr(c *WsSignalConn, err error) {
	if err != nil {
		ctl.sendError(c, err)
	}
}

// sendError reports a non-fatal failure inline; the connection stays open.
func (ctl *SignalWSController) sendError(c *WsSignalConn, err error) {
	if errors.Is(err, domain.ErrConnectionNotFound) {
		return
	}
	if errors.Is(err, domain.ErrVoiceChannelNotFound) {
		ctl.sendJSON(c, protocol.EventVoiceError, protocol.VoiceError{Message: err.Error()})
		return
	}
	payload := protocol.Error{Message: err.Error(), Code: errorCode(err)}
	var tnr *domain.TargetNotInRoomError
	if errors.As(err, &tnr) {
		payload.Reachable = tnr.Reachable
	}
	if payload.Code == CodeInternal {
		log.Error().Err(err).Str("module", "signal").Msg("internal error")
		payload.Message = "internal error"
	}
	ctl.sendJSON(c, protocol.EventError, payload)
}
