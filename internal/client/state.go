package client

import "errors"

var (
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrNotConnected       = errors.New("not connected")
	ErrNotJoined          = errors.New("not joined to a room")
	ErrClosed             = errors.New("client closed")
	ErrFileTooLarge       = errors.New("file exceeds 10MB limit")
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

type EventKind int

const (
	EventState EventKind = iota
	EventRoomState
	EventMessage
	EventMessageDeleted
	EventPresence
	EventPanic
	EventError
)

// Event reports a change in connection state or in the local view.
type Event struct {
	Kind    EventKind
	State   State
	Attempt int
	Message *Message
	UserID  string
	Err     error
}
