package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hilthontt/ghostline/internal/domain"
	"github.com/hilthontt/ghostline/internal/infrastructure/validate"
)

var ErrProtocol = errors.New("invalid message format")

// MaxExpiresIn caps a relative expiry. Larger values would overflow the
// duration arithmetic.
const MaxExpiresIn = 365 * 24 * time.Hour

// Command is one decoded inbound frame.
type Command interface {
	Type() string
}

type JoinRoomCommand struct {
	UserID string  `json:"userId" validate:"required,max=128"`
	RoomID string  `json:"roomId" validate:"required,max=128"`
	User   UserDTO `json:"user"`
}

// OutgoingMessage is the send_message body. Sender identity fields and the
// requested ID are ignored; the relay uses the joined session instead.
type OutgoingMessage struct {
	ID               string          `json:"id,omitempty"`
	RoomID           string          `json:"roomId,omitempty" validate:"omitempty,max=128"`
	Content          string          `json:"content,omitempty"`
	EncryptedContent string          `json:"encryptedContent" validate:"required"`
	SenderID         string          `json:"senderId,omitempty"`
	SenderName       string          `json:"senderName,omitempty"`
	Timestamp        int64           `json:"timestamp,omitempty"`
	ExpiresAt        *int64          `json:"expiresAt,omitempty" validate:"omitempty,gt=0"`
	ExpiresIn        *int64          `json:"expiresIn,omitempty" validate:"omitempty,gt=0,max=31536000"`
	Type             string          `json:"type,omitempty" validate:"omitempty,oneof=text file voice"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
}

type SendMessageCommand struct {
	Message OutgoingMessage `json:"message"`
}

type TypingCommand struct {
	Start  bool   `json:"-"`
	UserID string `json:"userId,omitempty"`
	RoomID string `json:"roomId,omitempty"`
}

type PanicCommand struct {
	UserID string `json:"userId,omitempty"`
}

type MessageExpiredCommand struct {
	MessageID string `json:"messageId" validate:"required"`
}

func (JoinRoomCommand) Type() string    { return JoinRoom }
func (SendMessageCommand) Type() string { return SendMessage }
func (c TypingCommand) Type() string {
	if c.Start {
		return TypingStart
	}
	return TypingStop
}
func (PanicCommand) Type() string          { return PanicMode }
func (MessageExpiredCommand) Type() string { return MessageExpired }

// ToDomain converts the body into a store record. Relative expiry is resolved
// against now; an absolute expiresAt wins when both are present.
func (m OutgoingMessage) ToDomain(roomID string, sender domain.Session, now time.Time) *domain.Message {
	msg := &domain.Message{
		RoomID:           roomID,
		SenderID:         sender.ID,
		SenderName:       sender.Username,
		Kind:             domain.MessageKind(m.Type),
		EncryptedContent: m.EncryptedContent,
		Metadata:         m.Metadata,
	}
	switch {
	case m.ExpiresAt != nil:
		at := FromUnixMilli(*m.ExpiresAt)
		msg.ExpiresAt = &at
	case m.ExpiresIn != nil:
		ttl := MaxExpiresIn
		if secs := *m.ExpiresIn; secs < int64(MaxExpiresIn/time.Second) {
			ttl = time.Duration(secs) * time.Second
		}
		at := now.Add(ttl)
		msg.ExpiresAt = &at
	}
	return msg
}

func protocolError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

func hasPayload(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// DecodeCommand parses and validates one inbound frame. Every failure wraps ErrProtocol.
func DecodeCommand(raw []byte) (Command, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, protocolError("decode frame: %v", err)
	}

	var cmd Command
	switch frame.Type {
	case JoinRoom:
		c := &JoinRoomCommand{}
		if err := decodePayload(frame, c, true); err != nil {
			return nil, err
		}
		cmd = *c
	case SendMessage:
		c := &SendMessageCommand{}
		if err := decodePayload(frame, c, true); err != nil {
			return nil, err
		}
		cmd = *c
	case TypingStart, TypingStop:
		c := &TypingCommand{}
		if err := decodePayload(frame, c, false); err != nil {
			return nil, err
		}
		c.Start = frame.Type == TypingStart
		cmd = *c
	case PanicMode:
		c := &PanicCommand{}
		if err := decodePayload(frame, c, false); err != nil {
			return nil, err
		}
		if c.UserID == "" {
			c.UserID = frame.UserID
		}
		cmd = *c
	case MessageExpired:
		c := &MessageExpiredCommand{}
		if err := decodePayload(frame, c, true); err != nil {
			return nil, err
		}
		cmd = *c
	case "":
		return nil, protocolError("missing frame type")
	default:
		return nil, protocolError("unknown frame type %q", frame.Type)
	}

	return cmd, nil
}

func decodePayload(frame Frame, dst any, required bool) error {
	if !hasPayload(frame.Payload) {
		if required {
			return protocolError("%s: payload is required", frame.Type)
		}
		return nil
	}
	if err := json.Unmarshal(frame.Payload, dst); err != nil {
		return protocolError("%s: %v", frame.Type, err)
	}
	if err := validate.Struct(dst); err != nil {
		return protocolError("%s: %s", frame.Type, validate.Message(err))
	}
	return nil
}
