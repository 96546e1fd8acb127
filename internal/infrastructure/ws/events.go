package ws

// Client -> relay
const (
	JoinRoom       = "join_room"
	SendMessage    = "send_message"
	TypingStart    = "typing_start"
	TypingStop     = "typing_stop"
	PanicMode      = "panic_mode"
	MessageExpired = "message_expired"
)

// Relay -> client. TypingStart and TypingStop are echoed under the same names.
const (
	RoomState          = "room_state"
	UserJoined         = "user_joined"
	UserLeft           = "user_left"
	NewMessage         = "new_message"
	MessageDeleted     = "message_deleted"
	PanicModeActivated = "panic_mode_activated"
	ErrorEvent         = "error"
)
