package ws

import (
	"encoding/json"
	"time"

	"github.com/hilthontt/ghostline/internal/domain"
)

// WSMessage is the outbound frame. Payload is any JSON-encodable value.
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	RoomID  string `json:"roomId,omitempty"`
	UserID  string `json:"userId,omitempty"`
}

// Frame is a frame as read off the wire, payload still undecoded.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	RoomID  string          `json:"roomId,omitempty"`
	UserID  string          `json:"userId,omitempty"`
}

// Payload structs
type UserDTO struct {
	ID        string `json:"id"`
	Username  string `json:"username" validate:"required,max=64"`
	PublicKey string `json:"publicKey"`
	IsTyping  bool   `json:"isTyping"`
	LastSeen  int64  `json:"lastSeen"`
}

type RoomDTO struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Users     []string `json:"users"`
	Messages  []string `json:"messages"`
	CreatedAt int64    `json:"createdAt"`
}

// MessageDTO carries timestamps as Unix milliseconds. Content is plaintext and
// only ever populated locally by the sender; the relay never emits it.
type MessageDTO struct {
	ID               string          `json:"id"`
	RoomID           string          `json:"roomId,omitempty"`
	Content          string          `json:"content,omitempty"`
	EncryptedContent string          `json:"encryptedContent"`
	SenderID         string          `json:"senderId"`
	SenderName       string          `json:"senderName"`
	Timestamp        int64           `json:"timestamp"`
	ExpiresAt        *int64          `json:"expiresAt,omitempty"`
	Type             string          `json:"type"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
}

type RoomStatePayload struct {
	Room     RoomDTO      `json:"room"`
	Messages []MessageDTO `json:"messages"`
	Users    []UserDTO    `json:"users"`
}

type UserJoinedPayload struct {
	User UserDTO `json:"user"`
}

type UserPayload struct {
	UserID string `json:"userId"`
}

type MessagePayload struct {
	Message MessageDTO `json:"message"`
}

type MessageIDPayload struct {
	MessageID string `json:"messageId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func UnixMilli(t time.Time) int64 {
	return t.UnixMilli()
}

func FromUnixMilli(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func ToUserDTO(s domain.Session) UserDTO {
	return UserDTO{
		ID:        s.ID,
		Username:  s.Username,
		PublicKey: s.PublicKey,
		IsTyping:  s.IsTyping,
		LastSeen:  UnixMilli(s.LastSeen),
	}
}

func ToRoomDTO(r domain.Room) RoomDTO {
	users := r.Members
	if users == nil {
		users = []string{}
	}
	messages := r.MessageIDs
	if messages == nil {
		messages = []string{}
	}
	return RoomDTO{
		ID:        r.ID,
		Name:      r.Name,
		Users:     users,
		Messages:  messages,
		CreatedAt: UnixMilli(r.CreatedAt),
	}
}

func ToMessageDTO(m domain.Message) MessageDTO {
	dto := MessageDTO{
		ID:               m.ID,
		RoomID:           m.RoomID,
		EncryptedContent: m.EncryptedContent,
		SenderID:         m.SenderID,
		SenderName:       m.SenderName,
		Timestamp:        UnixMilli(m.Timestamp),
		Type:             string(m.Kind),
		Metadata:         m.Metadata,
	}
	if m.ExpiresAt != nil {
		at := UnixMilli(*m.ExpiresAt)
		dto.ExpiresAt = &at
	}
	return dto
}

func ToMessageDTOs(messages []domain.Message) []MessageDTO {
	out := make([]MessageDTO, 0, len(messages))
	for _, m := range messages {
		out = append(out, ToMessageDTO(m))
	}
	return out
}

func NewRoomState(room domain.Room, messages []domain.Message, users []domain.Session) *WSMessage {
	userDTOs := make([]UserDTO, 0, len(users))
	for _, u := range users {
		userDTOs = append(userDTOs, ToUserDTO(u))
	}
	return &WSMessage{
		Type:   RoomState,
		RoomID: room.ID,
		Payload: RoomStatePayload{
			Room:     ToRoomDTO(room),
			Messages: ToMessageDTOs(messages),
			Users:    userDTOs,
		},
	}
}

func NewUserJoined(roomID string, user domain.Session) *WSMessage {
	return &WSMessage{
		Type:    UserJoined,
		RoomID:  roomID,
		UserID:  user.ID,
		Payload: UserJoinedPayload{User: ToUserDTO(user)},
	}
}

func NewUserLeft(roomID, userID string) *WSMessage {
	return &WSMessage{
		Type:    UserLeft,
		RoomID:  roomID,
		UserID:  userID,
		Payload: UserPayload{UserID: userID},
	}
}

func NewNewMessage(m domain.Message) *WSMessage {
	return &WSMessage{
		Type:    NewMessage,
		RoomID:  m.RoomID,
		UserID:  m.SenderID,
		Payload: MessagePayload{Message: ToMessageDTO(m)},
	}
}

// NewTyping builds a typing_start or typing_stop notice.
func NewTyping(typing bool, roomID, userID string) *WSMessage {
	kind := TypingStop
	if typing {
		kind = TypingStart
	}
	return &WSMessage{
		Type:    kind,
		RoomID:  roomID,
		UserID:  userID,
		Payload: UserPayload{UserID: userID},
	}
}

func NewMessageDeleted(roomID, messageID string) *WSMessage {
	return &WSMessage{
		Type:    MessageDeleted,
		RoomID:  roomID,
		Payload: MessageIDPayload{MessageID: messageID},
	}
}

func NewPanicModeActivated(userID string) *WSMessage {
	return &WSMessage{
		Type:    PanicModeActivated,
		UserID:  userID,
		Payload: UserPayload{UserID: userID},
	}
}

func NewError(message string) *WSMessage {
	return &WSMessage{
		Type:    ErrorEvent,
		Payload: ErrorPayload{Message: message},
	}
}

// Outbound frames built by clients.

func NewJoinRoomFrame(roomID string, user UserDTO) *WSMessage {
	return &WSMessage{
		Type:   JoinRoom,
		RoomID: roomID,
		UserID: user.ID,
		Payload: JoinRoomCommand{
			UserID: user.ID,
			RoomID: roomID,
			User:   user,
		},
	}
}

func NewSendMessageFrame(message OutgoingMessage) *WSMessage {
	return &WSMessage{
		Type:    SendMessage,
		RoomID:  message.RoomID,
		Payload: SendMessageCommand{Message: message},
	}
}

func NewTypingFrame(typing bool, roomID, userID string) *WSMessage {
	kind := TypingStop
	if typing {
		kind = TypingStart
	}
	return &WSMessage{
		Type:    kind,
		RoomID:  roomID,
		UserID:  userID,
		Payload: TypingCommand{UserID: userID, RoomID: roomID},
	}
}

func NewPanicModeFrame(userID string) *WSMessage {
	return &WSMessage{
		Type:    PanicMode,
		UserID:  userID,
		Payload: PanicCommand{UserID: userID},
	}
}

func NewMessageExpiredFrame(messageID string) *WSMessage {
	return &WSMessage{
		Type:    MessageExpired,
		Payload: MessageExpiredCommand{MessageID: messageID},
	}
}
