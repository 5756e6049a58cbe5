package orch

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicechat/internal/core"
	"github.com/dkeye/voicechat/internal/domain"
	"github.com/dkeye/voicechat/internal/protocol"
)

type SignalKind string

const (
	KindOffer     SignalKind = "offer"
	KindAnswer    SignalKind = "answer"
	KindCandidate SignalKind = "candidate"
)

// Event is the wire event a kind travels as.
func (k SignalKind) Event() (string, bool) {
	switch k {
	case KindOffer:
		return protocol.EventVoiceOffer, true
	case KindAnswer:
		return protocol.EventVoiceAnswer, true
	case KindCandidate:
		return protocol.EventICECandidate, true
	default:
		return "", false
	}
}

// Relay forwards an opaque negotiation payload from one connection to
// another. A missing target is an expected race, so it is dropped without
// error; the bool reports whether a delivery happened.
func (o *Orchestrator) Relay(kind SignalKind, from core.ConnectionID, to core.ConnectionID, payload json.RawMessage) (bool, error) {
	event, ok := kind.Event()
	if !ok || to == "" || len(payload) == 0 || string(payload) == "null" {
		return false, domain.ErrInvalidEnvelope
	}
	sender, ok := o.Registry.Get(from)
	if !ok {
		return false, nil
	}
	target, ok := o.Registry.Get(to)
	if !ok {
		log.Debug().Str("module", "orch.signal").Str("from", string(from)).Str("to", string(to)).Str("kind", string(kind)).Msg("relay target gone, dropping")
		return false, nil
	}

	in := protocol.SignalIn{
		From:            string(from),
		FromDisplayName: sender.Identity.DisplayName,
	}
	switch kind {
	case KindOffer:
		in.Offer = payload
	case KindAnswer:
		in.Answer = payload
	case KindCandidate:
		in.Candidate = payload
	}
	f, err := protocol.Encode(event, in)
	if err != nil {
		return false, err
	}
	return o.sendFrame("relay", target.Session(), f), nil
}
