// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const (
	MaxClientIDLen = 36
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrClientIDInvalid = errors.New("client id invalid")
)

// ClientID identifies one connected client across the cluster.
type ClientID string

// NewClientID returns a fresh random identifier.
func NewClientID() ClientID { return ClientID(uuid.NewString()) }

// ParseClientID validates an identifier received from the outside.
func ParseClientID(raw string) (ClientID, error) {
	if len(raw) == 0 || len(raw) > MaxClientIDLen {
		return "", ErrClientIDInvalid
	}
	return ClientID(raw), nil
}

type User struct {
	ID       ClientID `json:"id"`
	Username string   `json:"username"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id ClientID, username string) (*User, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	return &User{ID: id, Username: username}, nil
}

func (u *User) SetUsername(username string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	u.Username = username
	return nil
}

func validateUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}
