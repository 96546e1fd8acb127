package domain

import (
	"context"
	"strings"
	"time"
)

// Session is an anonymous participant bound to one live connection.
type Session struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	PublicKey string    `json:"publicKey"`
	IsTyping  bool      `json:"isTyping"`
	LastSeen  time.Time `json:"lastSeen"`
	RoomID    string    `json:"roomId,omitempty"`
}

func NewSession(id, username, publicKey string, now time.Time) (*Session, error) {
	id = strings.TrimSpace(id)
	username = strings.TrimSpace(username)
	if id == "" || username == "" {
		return nil, ErrInvalidInput
	}

	return &Session{
		ID:        id,
		Username:  username,
		PublicKey: publicKey,
		LastSeen:  now,
	}, nil
}

type SessionRepository interface {
	// Upsert stores the session, or refreshes LastSeen, name and key when it already exists.
	Upsert(ctx context.Context, session *Session) (*Session, bool, error)
	GetByID(ctx context.Context, id string) (*Session, error)
	GetMany(ctx context.Context, ids []string) []Session
	SetRoom(ctx context.Context, id, roomID string) error
	// SetTyping reports whether the flag actually changed.
	SetTyping(ctx context.Context, id string, typing bool) (bool, error)
	Delete(ctx context.Context, id string) bool
}
