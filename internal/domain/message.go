package domain

import (
	"context"
	"encoding/json"
	"time"
)

type MessageKind string

const (
	KindText  MessageKind = "text"
	KindFile  MessageKind = "file"
	KindVoice MessageKind = "voice"
)

func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindFile, KindVoice:
		return true
	}
	return false
}

// DeleteReason records which path destroyed a message.
type DeleteReason string

const (
	ReasonExpired DeleteReason = "expired"
	ReasonDeleted DeleteReason = "deleted"
	ReasonPurged  DeleteReason = "purged"
	ReasonEvicted DeleteReason = "evicted"
	ReasonSwept   DeleteReason = "swept"
)

// Message is immutable once the store has accepted it. EncryptedContent and
// Metadata are opaque to the relay.
type Message struct {
	ID               string          `json:"id"`
	RoomID           string          `json:"roomId"`
	SenderID         string          `json:"senderId"`
	SenderName       string          `json:"senderName"`
	Timestamp        time.Time       `json:"timestamp"`
	ExpiresAt        *time.Time      `json:"expiresAt,omitempty"`
	Kind             MessageKind     `json:"type"`
	EncryptedContent string          `json:"encryptedContent"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
}

func (m *Message) HasExpiry() bool {
	return m.ExpiresAt != nil
}

func (m *Message) ExpiredAt(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

type MessageDeletedEvent struct {
	MessageID string
	RoomID    string
	SenderID  string
	Reason    DeleteReason
}

type MessageRepository interface {
	Create(ctx context.Context, message *Message) (*Message, error)
	Get(ctx context.Context, id string) (*Message, error)
	Delete(ctx context.Context, id string, reason DeleteReason) bool
	DeleteAllExpired(ctx context.Context) int
	// DeleteBySender returns how many messages it removed and how many it found.
	DeleteBySender(ctx context.Context, senderID string) (deleted, found int)
	ListByRoom(ctx context.Context, roomID string) []Message
	Count() int
	Subscribe(fn func(MessageDeletedEvent)) (unsubscribe func())
	Close()
}
