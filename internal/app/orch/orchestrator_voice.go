package orch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicechat/internal/app"
	"github.com/dkeye/voicechat/internal/core"
	"github.com/dkeye/voicechat/internal/domain"
	"github.com/dkeye/voicechat/internal/protocol"
)

// JoinVoice puts cid into a voice channel. Members already there are told
// about the newcomer; the newcomer gets the list of members it has to offer to.
func (o *Orchestrator) JoinVoice(ctx context.Context, cid core.ConnectionID, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return domain.ErrVoiceChannelNotFound
	}
	c, err := o.connection(cid)
	if err != nil {
		return err
	}
	ch, err := o.Directory.Channel(ctx, channelID)
	if err != nil {
		if errors.Is(err, domain.ErrChannelNotFound) {
			return domain.ErrVoiceChannelNotFound
		}
		return fmt.Errorf("resolve voice channel %q: %w", channelID, err)
	}
	if !ch.IsVoice() {
		return domain.ErrVoiceChannelNotFound
	}
	channel := domain.ChannelID(ch.ID)

	var existing []core.MemberSession
	err = c.Transition(func(st *app.ConnState) error {
		if st.Voice == channel {
			for _, m := range o.Voice.Members(channel) {
				if m.ID() != cid {
					existing = append(existing, m)
				}
			}
			return nil
		}
		if st.Voice != "" {
			o.leaveVoiceMembership(st.Voice, c)
		}
		existing = o.Voice.Join(channel, c.Session())
		st.Voice = channel

		joined := protocol.VoicePeer{ConnectionID: string(cid), DisplayName: c.Identity.DisplayName}
		for _, m := range existing {
			o.send(m, protocol.EventUserJoinedVoice, joined)
		}
		log.Info().Str("module", "orch.voice").Str("cid", string(cid)).Str("channel", string(channel)).Int("peers", len(existing)).Msg("joined voice")
		return nil
	})
	if err != nil {
		return err
	}

	peers := make([]protocol.VoicePeer, 0, len(existing))
	for _, m := range existing {
		peers = append(peers, protocol.VoicePeer{ConnectionID: string(m.ID()), DisplayName: m.Meta().DisplayName})
	}
	o.send(c.Session(), protocol.EventVoiceJoined, protocol.VoiceJoined{ChannelID: string(channel), Participants: peers})
	return nil
}

// LeaveVoice removes cid from its voice channel. Not being in one is a no-op.
func (o *Orchestrator) LeaveVoice(cid core.ConnectionID) error {
	c, err := o.connection(cid)
	if err != nil {
		return err
	}
	return c.Transition(func(st *app.ConnState) error {
		if st.Voice == "" {
			return nil
		}
		o.leaveVoiceMembership(st.Voice, c)
		st.Voice = ""
		return nil
	})
}

func (o *Orchestrator) leaveVoiceMembership(channel domain.ChannelID, c *app.Connection) {
	remaining, ok := o.Voice.Leave(channel, c.ID)
	if !ok {
		return
	}
	left := protocol.VoicePeer{ConnectionID: string(c.ID), DisplayName: c.Identity.DisplayName}
	for _, m := range remaining {
		o.send(m, protocol.EventUserLeftVoice, left)
	}
	log.Info().Str("module", "orch.voice").Str("cid", string(c.ID)).Str("channel", string(channel)).Int("remaining", len(remaining)).Msg("left voice")
}
