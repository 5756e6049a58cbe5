package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dkeye/voicechat/internal/domain"
)

func (s *Store) Channel(ctx context.Context, id string) (domain.Channel, error) {
	var (
		ch  domain.Channel
		typ string
	)
	err := s.q.QueryRow(ctx, queryChannelByID, id).Scan(&ch.ID, &ch.Name, &typ)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Channel{}, domain.ErrChannelNotFound
		}
		return domain.Channel{}, err
	}
	ch.Type = domain.ChannelType(typ)
	return ch, nil
}

func (s *Store) User(ctx context.Context, id domain.UserID) (domain.User, error) {
	var (
		uid, name, role string
	)
	err := s.q.QueryRow(ctx, queryUserByID, string(id)).Scan(&uid, &name, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, err
	}
	return domain.User{ID: domain.UserID(uid), DisplayName: name, Role: domain.Role(role)}, nil
}

func (s *Store) Append(ctx context.Context, m domain.Message) error {
	_, err := s.q.Exec(ctx, queryInsertMessage,
		m.ID,
		string(m.RoomID),
		string(m.AuthorID),
		m.Author,
		nullable(string(m.TargetID)),
		nullable(m.Target),
		m.Text,
		string(m.Type),
		m.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Recent returns up to limit messages of a room, newest first.
func (s *Store) Recent(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	rows, err := s.q.Query(ctx, queryRecentMessages, string(room), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Message, 0, limit)
	for rows.Next() {
		var (
			m                     domain.Message
			roomID, authorID, typ string
			targetID, target      *string
		)
		if err := rows.Scan(&m.ID, &roomID, &authorID, &m.Author, &targetID, &target, &m.Text, &typ, &m.Timestamp); err != nil {
			return nil, err
		}
		m.RoomID = domain.RoomID(roomID)
		m.AuthorID = domain.UserID(authorID)
		m.Type = domain.MessageType(typ)
		if targetID != nil {
			m.TargetID = domain.UserID(*targetID)
		}
		if target != nil {
			m.Target = *target
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) SetStatus(ctx context.Context, user domain.UserID, online bool, lastActive time.Time) error {
	tag, err := s.q.Exec(ctx, querySetStatus, string(user), online, lastActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
