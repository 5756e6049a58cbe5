// Package memory is the in-process implementation of the service's external
// collaborators, used in dev mode and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/voicechat/internal/domain"
)

type Status struct {
	Online     bool
	LastActive time.Time
}

type Store struct {
	mu       sync.RWMutex
	channels map[string]domain.Channel
	users    map[domain.UserID]domain.User
	messages map[domain.RoomID][]domain.Message
	statuses map[domain.UserID]Status
}

func New() *Store {
	return &Store{
		channels: make(map[string]domain.Channel),
		users:    make(map[domain.UserID]domain.User),
		messages: make(map[domain.RoomID][]domain.Message),
		statuses: make(map[domain.UserID]Status),
	}
}

func (s *Store) PutChannel(ch domain.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[ch.ID] = ch
}

// PutUser adds or replaces a user. Display names are unique across users
// because private messages address their target by name.
func (s *Store) PutUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, other := range s.users {
		if id != u.ID && other.DisplayName == u.DisplayName {
			return fmt.Errorf("%w: %q belongs to %s", domain.ErrDisplayNameTaken, u.DisplayName, id)
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) Channel(_ context.Context, id string) (domain.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	if !ok {
		return domain.Channel{}, domain.ErrChannelNotFound
	}
	return ch, nil
}

func (s *Store) User(_ context.Context, id domain.UserID) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) Append(_ context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], msg)
	return nil
}

// Recent returns up to limit messages, newest first.
func (s *Store) Recent(_ context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[room]
	out := make([]domain.Message, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *Store) SetStatus(_ context.Context, user domain.UserID, online bool, lastActive time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[user] = Status{Online: online, LastActive: lastActive}
	return nil
}

func (s *Store) StatusOf(user domain.UserID) (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[user]
	return st, ok
}
