package ws

import (
	"errors"
	"testing"
	"time"

	"github.com/hilthontt/ghostline/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Command
	}{
		{
			name: "join",
			raw:  `{"type":"join_room","payload":{"userId":"u1","roomId":"main","user":{"id":"u1","username":"Ghost#0001","publicKey":"pk"}}}`,
			want: JoinRoomCommand{UserID: "u1", RoomID: "main", User: UserDTO{ID: "u1", Username: "Ghost#0001", PublicKey: "pk"}},
		},
		{
			name: "typing start without payload",
			raw:  `{"type":"typing_start"}`,
			want: TypingCommand{Start: true},
		},
		{
			name: "typing stop",
			raw:  `{"type":"typing_stop","payload":{"userId":"u1","roomId":"main"}}`,
			want: TypingCommand{UserID: "u1", RoomID: "main"},
		},
		{
			name: "panic takes frame user id as fallback",
			raw:  `{"type":"panic_mode","userId":"u1"}`,
			want: PanicCommand{UserID: "u1"},
		},
		{
			name: "message expired",
			raw:  `{"type":"message_expired","payload":{"messageId":"m1"}}`,
			want: MessageExpiredCommand{MessageID: "m1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCommand([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Type(), got.Type())
		})
	}
}

func TestDecodeCommand_SendMessage(t *testing.T) {
	raw := `{"type":"send_message","payload":{"message":{"roomId":"main","encryptedContent":"abc","type":"file","expiresIn":30,"metadata":{"filename":"a.txt","fileSize":3}}}}`

	cmd, err := DecodeCommand([]byte(raw))
	require.NoError(t, err)
	send, ok := cmd.(SendMessageCommand)
	require.True(t, ok)
	assert.Equal(t, "file", send.Message.Type)
	require.NotNil(t, send.Message.ExpiresIn)
	assert.JSONEq(t, `{"filename":"a.txt","fileSize":3}`, string(send.Message.Metadata))
}

func TestDecodeCommand_Errors(t *testing.T) {
	for name, raw := range map[string]string{
		"garbage":             `{{`,
		"unknown type":        `{"type":"teleport","payload":{}}`,
		"missing type":        `{"payload":{}}`,
		"join without room":   `{"type":"join_room","payload":{"userId":"u1","user":{"username":"x"}}}`,
		"join without name":   `{"type":"join_room","payload":{"userId":"u1","roomId":"main","user":{}}}`,
		"send without body":   `{"type":"send_message"}`,
		"send bad kind":       `{"type":"send_message","payload":{"message":{"encryptedContent":"x","type":"gif"}}}`,
		"send negative ttl":   `{"type":"send_message","payload":{"message":{"encryptedContent":"x","expiresIn":-1}}}`,
		"send huge ttl":       `{"type":"send_message","payload":{"message":{"encryptedContent":"x","expiresIn":9300000000}}}`,
		"expired without id":  `{"type":"message_expired","payload":{}}`,
		"payload wrong shape": `{"type":"typing_start","payload":"yes"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCommand([]byte(raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrProtocol))
		})
	}
}

func TestOutgoingMessage_ToDomain(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	sender := domain.Session{ID: "u1", Username: "Ghost#0001"}

	in := int64(10)
	msg := OutgoingMessage{EncryptedContent: "x", ExpiresIn: &in, SenderID: "spoofed"}.ToDomain("main", sender, now)
	assert.Equal(t, "u1", msg.SenderID)
	assert.Equal(t, "Ghost#0001", msg.SenderName)
	require.NotNil(t, msg.ExpiresAt)
	assert.Equal(t, now.Add(10*time.Second), *msg.ExpiresAt)

	at := now.Add(time.Minute).UnixMilli()
	msg = OutgoingMessage{EncryptedContent: "x", ExpiresAt: &at, ExpiresIn: &in}.ToDomain("main", sender, now)
	assert.Equal(t, at, msg.ExpiresAt.UnixMilli())

	msg = OutgoingMessage{EncryptedContent: "x"}.ToDomain("main", sender, now)
	assert.Nil(t, msg.ExpiresAt)

	huge := int64(9_300_000_000)
	msg = OutgoingMessage{EncryptedContent: "x", ExpiresIn: &huge}.ToDomain("main", sender, now)
	require.NotNil(t, msg.ExpiresAt)
	assert.Equal(t, now.Add(MaxExpiresIn), *msg.ExpiresAt)
}
