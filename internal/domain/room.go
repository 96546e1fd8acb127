package domain

import (
	"context"
	"time"
)

const (
	DefaultRoomID   = "main"
	DefaultRoomName = "Main Terminal"
)

// Room is a point-in-time copy of a room. Members and MessageIDs are only
// mutated through RoomRepository.
type Room struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Members    []string  `json:"users"`
	MessageIDs []string  `json:"messages"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (r *Room) HasMember(sessionID string) bool {
	for _, id := range r.Members {
		if id == sessionID {
			return true
		}
	}
	return false
}

type RoomRepository interface {
	Create(ctx context.Context, name string) (*Room, error)
	Ensure(ctx context.Context, roomID, name string) (*Room, error)
	GetByID(ctx context.Context, roomID string) (*Room, error)
	Join(ctx context.Context, roomID, sessionID string) (*Room, error)
	Leave(ctx context.Context, roomID, sessionID string) bool
	LeaveAll(ctx context.Context, sessionID string) []string
	AppendMessage(ctx context.Context, roomID, messageID string) error
	RemoveMessage(ctx context.Context, roomID, messageID string)
	Snapshot(ctx context.Context, roomID string) (*Room, bool)
	EvictIdle(ctx context.Context) int
}
