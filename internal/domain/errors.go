package domain

import (
	"errors"
	"strings"
)

var (
	ErrMissingCredential   = errors.New("missing credential")
	ErrMalformedCredential = errors.New("malformed credential")
	ErrExpiredCredential   = errors.New("expired credential")
	ErrSubjectNotFound     = errors.New("subject not found")

	ErrConnectionNotFound   = errors.New("connection not found")
	ErrEmptyRoomName        = errors.New("room name is empty")
	ErrRoomNotFound         = errors.New("room not found")
	ErrVoiceChannelNotFound = errors.New("voice channel not found")
	ErrChannelNotFound      = errors.New("channel not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrDisplayNameTaken     = errors.New("display name taken")
	ErrNotInRoom            = errors.New("not in a room")
	ErrNotMember            = errors.New("not a member")
	ErrNotInVoice           = errors.New("not in a voice channel")
	ErrSelfTarget           = errors.New("cannot send a private message to yourself")
	ErrTargetNotInRoom      = errors.New("target is not in the room")
	ErrMessageTooLong       = errors.New("message too long")
	ErrRateLimited          = errors.New("rate limited")
	ErrPersistence          = errors.New("persistence failed")
	ErrInvalidEnvelope      = errors.New("invalid signaling envelope")
)

// TargetNotInRoomError carries the names a sender can currently reach.
// It only ever goes back to a connection that is itself in the room.
type TargetNotInRoomError struct {
	Target    string
	Reachable []string
}

func (e *TargetNotInRoomError) Error() string {
	return "target " + e.Target + " is not in the room (reachable: " + strings.Join(e.Reachable, ", ") + ")"
}

func (e *TargetNotInRoomError) Unwrap() error { return ErrTargetNotInRoom }
