package orch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicechat/internal/app"
	"github.com/dkeye/voicechat/internal/core"
	"github.com/dkeye/voicechat/internal/domain"
	"github.com/dkeye/voicechat/internal/protocol"
)

// JoinRoom moves cid into roomName, leaving any previous room first.
// History is read before the join notice so the replay only holds what was
// there when the connection arrived.
func (o *Orchestrator) JoinRoom(ctx context.Context, cid core.ConnectionID, roomName string) error {
	roomName = strings.TrimSpace(roomName)
	if roomName == "" {
		return domain.ErrEmptyRoomName
	}
	c, err := o.connection(cid)
	if err != nil {
		return err
	}
	ch, err := o.Directory.Channel(ctx, roomName)
	if err != nil {
		if errors.Is(err, domain.ErrChannelNotFound) {
			return domain.ErrRoomNotFound
		}
		return fmt.Errorf("resolve room %q: %w", roomName, err)
	}
	if ch.IsVoice() {
		return domain.ErrRoomNotFound
	}
	room := domain.RoomID(ch.ID)

	history, err := o.visibleHistory(ctx, room, c.Identity.UserID)
	if err != nil {
		log.Error().Err(err).Str("module", "orch.room").Str("room", string(room)).Msg("history fetch failed")
		history = []protocol.HistoryItem{}
	}

	rejoin := false
	err = c.Transition(func(st *app.ConnState) error {
		if st.Room == room {
			rejoin = true
			return nil
		}
		if st.Room != "" {
			o.leaveRoomMembership(st.Room, c)
		}
		o.Rooms.Join(room, c.Session())
		st.Room = room
		return nil
	})
	if err != nil {
		return err
	}

	if rejoin {
		o.send(c.Session(), protocol.EventOnlineUsers, o.onlineUsers(room))
	} else {
		log.Info().Str("module", "orch.room").Str("cid", string(cid)).Str("room", string(room)).Msg("joined room")
		o.broadcastRoom(room, "", protocol.EventMessage, o.systemNotice(room, c.Identity.DisplayName+" joined the room"))
		o.broadcastRoom(room, "", protocol.EventOnlineUsers, o.onlineUsers(room))
	}
	o.send(c.Session(), protocol.EventHistory, history)
	return nil
}

// LeaveRoom removes cid from its current room.
func (o *Orchestrator) LeaveRoom(cid core.ConnectionID) error {
	c, err := o.connection(cid)
	if err != nil {
		return err
	}
	return c.Transition(func(st *app.ConnState) error {
		if st.Room == "" {
			return domain.ErrNotInRoom
		}
		o.leaveRoomMembership(st.Room, c)
		st.Room = ""
		return nil
	})
}

func (o *Orchestrator) leaveRoomMembership(room domain.RoomID, c *app.Connection) {
	if _, ok := o.Rooms.Leave(room, c.ID); !ok {
		return
	}
	log.Info().Str("module", "orch.room").Str("cid", string(c.ID)).Str("room", string(room)).Msg("left room")
	o.broadcastRoom(room, "", protocol.EventMessage, o.systemNotice(room, c.Identity.DisplayName+" left the room"))
	o.broadcastRoom(room, "", protocol.EventOnlineUsers, o.onlineUsers(room))
}

// SendHistory replays the room history to cid alone.
func (o *Orchestrator) SendHistory(ctx context.Context, cid core.ConnectionID) error {
	c, err := o.connection(cid)
	if err != nil {
		return err
	}
	room := c.State().Room
	if room == "" {
		return domain.ErrNotInRoom
	}
	history, err := o.visibleHistory(ctx, room, c.Identity.UserID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	o.send(c.Session(), protocol.EventHistory, history)
	return nil
}

// SendPublic persists text and then broadcasts it to the sender's room.
// Blank text or a connection outside any room is a no-op.
func (o *Orchestrator) SendPublic(ctx context.Context, cid core.ConnectionID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	c, err := o.connection(cid)
	if err != nil {
		return err
	}
	room := c.State().Room
	if room == "" {
		return nil
	}
	if utf8.RuneCountInString(text) > o.maxMessageLen() {
		return domain.ErrMessageTooLong
	}

	msg := domain.Message{
		ID:        uuid.NewString(),
		RoomID:    room,
		AuthorID:  c.Identity.UserID,
		Author:    c.Identity.DisplayName,
		Text:      text,
		Type:      domain.MessagePublic,
		Timestamp: o.now().UTC(),
	}
	if err := o.Messages.Append(ctx, msg); err != nil {
		log.Error().Err(err).Str("module", "orch.room").Str("room", string(room)).Str("cid", string(cid)).Msg("persist message")
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	o.broadcastRoom(room, "", protocol.EventMessage, protocol.FromMessage(msg))
	return nil
}

// SendPrivate delivers text to every connection of targetName in the sender's
// room. The sender gets a copy with the target cleared.
func (o *Orchestrator) SendPrivate(ctx context.Context, cid core.ConnectionID, targetName, text string) error {
	text = strings.TrimSpace(text)
	targetName = strings.TrimSpace(targetName)
	if text == "" {
		return nil
	}
	c, err := o.connection(cid)
	if err != nil {
		return err
	}
	room := c.State().Room
	if room == "" {
		return domain.ErrNotInRoom
	}
	if targetName == c.Identity.DisplayName {
		return domain.ErrSelfTarget
	}
	if utf8.RuneCountInString(text) > o.maxMessageLen() {
		return domain.ErrMessageTooLong
	}

	members := o.Rooms.Members(room)
	var targets []core.MemberSession
	for _, m := range members {
		if m.Meta().DisplayName == targetName {
			targets = append(targets, m)
		}
	}
	if len(targets) == 0 {
		return &domain.TargetNotInRoomError{Target: targetName, Reachable: reachableNames(members, c.Identity.DisplayName)}
	}

	msg := domain.Message{
		ID:        uuid.NewString(),
		RoomID:    room,
		AuthorID:  c.Identity.UserID,
		Author:    c.Identity.DisplayName,
		TargetID:  targets[0].UserID(),
		Target:    targetName,
		Text:      text,
		Type:      domain.MessagePrivate,
		Timestamp: o.now().UTC(),
	}
	if err := o.Messages.Append(ctx, msg); err != nil {
		log.Error().Err(err).Str("module", "orch.room").Str("room", string(room)).Str("cid", string(cid)).Msg("persist private message")
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	target := targetName
	toTarget := protocol.PrivateMessage{ChatMessage: protocol.FromMessage(msg), Target: &target}
	for _, t := range targets {
		o.send(t, protocol.EventPrivateMessage, toTarget)
	}
	o.send(c.Session(), protocol.EventPrivateMessage, protocol.PrivateMessage{ChatMessage: protocol.FromMessage(msg)})
	return nil
}

// Speaking tells room-mates whether cid is currently talking.
func (o *Orchestrator) Speaking(cid core.ConnectionID, speaking bool) {
	c, ok := o.Registry.Get(cid)
	if !ok {
		return
	}
	room := c.State().Room
	if room == "" {
		return
	}
	o.broadcastRoom(room, cid, protocol.EventSpeaking, protocol.Speaking{
		DisplayName: c.Identity.DisplayName,
		Speaking:    speaking,
	})
}

// visibleHistory returns the last N messages uid may see, oldest first.
func (o *Orchestrator) visibleHistory(ctx context.Context, room domain.RoomID, uid domain.UserID) ([]protocol.HistoryItem, error) {
	recent, err := o.Messages.Recent(ctx, room, o.historyLimit())
	if err != nil {
		return nil, err
	}
	out := make([]protocol.HistoryItem, 0, len(recent))
	for _, m := range recent {
		if !m.VisibleTo(uid) {
			continue
		}
		item := protocol.HistoryItem{ChatMessage: protocol.FromMessage(m)}
		if m.Type == domain.MessagePrivate {
			item.Target = m.Target
		}
		out = append(out, item)
	}
	slices.Reverse(out)
	return out, nil
}

func (o *Orchestrator) systemNotice(room domain.RoomID, text string) protocol.ChatMessage {
	return protocol.ChatMessage{
		Author:    "system",
		Room:      room,
		Text:      text,
		Type:      domain.MessageSystem,
		Timestamp: o.now().UTC(),
	}
}

// onlineUsers lists the distinct users present in room.
func (o *Orchestrator) onlineUsers(room domain.RoomID) []domain.Member {
	seen := make(map[domain.UserID]struct{})
	out := []domain.Member{}
	for _, m := range o.Rooms.Members(room) {
		if _, dup := seen[m.UserID()]; dup {
			continue
		}
		seen[m.UserID()] = struct{}{}
		out = append(out, m.Meta())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out
}

func reachableNames(members []core.MemberSession, self string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, m := range members {
		name := m.Meta().DisplayName
		if name == self {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
