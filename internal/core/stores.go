package core

import (
	"context"
	"time"

	"github.com/dkeye/voicechat/internal/domain"
)

//go:generate mockgen -destination=mock/mock_stores.go -package=mock github.com/dkeye/voicechat/internal/core ChannelDirectory,MessageStore,StatusStore,UserDirectory

// ChannelDirectory resolves room and voice-channel ids.
// Unknown ids yield domain.ErrChannelNotFound.
type ChannelDirectory interface {
	Channel(ctx context.Context, id string) (domain.Channel, error)
}

// MessageStore is the durable chat log. Recent returns newest first.
type MessageStore interface {
	Append(ctx context.Context, msg domain.Message) error
	Recent(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error)
}

// StatusStore persists the derived online flag of a user.
type StatusStore interface {
	SetStatus(ctx context.Context, user domain.UserID, online bool, lastActive time.Time) error
}

// UserDirectory resolves credential subjects. Unknown ids yield domain.ErrUserNotFound.
type UserDirectory interface {
	User(ctx context.Context, id domain.UserID) (domain.User, error)
}
