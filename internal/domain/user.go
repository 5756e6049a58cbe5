// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxUserIDLen      = 36
	MaxDisplayNameLen = 36
)

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

type (
	UserID string
	Role   string
)

const (
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// User is the directory record behind an authenticated identity.
type User struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}

// Identity is what a verified credential resolves to.
type Identity struct {
	UserID      UserID         `json:"userId"`
	DisplayName string         `json:"displayName"`
	Role        Role           `json:"role"`
	Claims      map[string]any `json:"-"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id UserID, displayName string, role Role) (*User, error) {
	displayName = strings.TrimSpace(displayName)
	if len(displayName) == 0 {
		return nil, ErrDisplayNameEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	if role == "" {
		role = RoleMember
	}
	return &User{ID: id, DisplayName: displayName, Role: role}, nil
}

func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, DisplayName: u.DisplayName, Role: u.Role}
}
