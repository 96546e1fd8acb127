package domain

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomLimitReached = errors.New("room limit reached")
	ErrMessageNotFound  = errors.New("message not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrAlreadyExpired   = errors.New("message already expired")
	ErrNotJoined        = errors.New("session has not joined a room")
	ErrNotMember        = errors.New("session is not a member of the room")
	ErrUnknownKind      = errors.New("unknown message kind")
)
