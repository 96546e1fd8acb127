package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hilthontt/ghostline/internal/cryptographic/envelope"
	"github.com/hilthontt/ghostline/internal/infrastructure/ws"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clientFixture struct {
	client *Client
	dialer *fakeDialer
	clock  *clockwork.FakeClock
}

func newClientFixture(t *testing.T, roomID string) *clientFixture {
	t.Helper()
	f := &clientFixture{dialer: &fakeDialer{}, clock: clockwork.NewFakeClock()}
	f.client = New(Options{
		URL:    "ws://relay/ws",
		User:   ws.UserDTO{ID: "self", Username: "ghost#0001", PublicKey: "pk"},
		RoomID: roomID,
		Dialer: f.dialer,
		Clock:  f.clock,
	})
	t.Cleanup(f.client.Disconnect)
	return f
}

// connected returns a fixture whose first dial succeeds.
func connected(t *testing.T) (*clientFixture, *fakeConn) {
	t.Helper()
	f := newClientFixture(t, "main")
	conn := newFakeConn()
	f.dialer.script(conn)
	require.NoError(t, f.client.Connect(context.Background()))
	return f, conn
}

func waitEvent(t *testing.T, c *Client, match func(Event) bool) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-c.Events():
			if match(e) {
				return e
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestClient_ReconnectDoublesDelayThenGivesUp(t *testing.T) {
	ctx := context.Background()
	f := newClientFixture(t, "main")

	err := f.client.Connect(ctx)
	require.ErrorIs(t, err, errRefused)
	assert.Equal(t, StateDisconnected, f.client.State())

	delays := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for i, delay := range delays {
		require.NoError(t, f.clock.BlockUntilContext(ctx, 1))

		f.clock.Advance(delay - time.Millisecond)
		assert.Equal(t, i+1, f.dialer.count(), "dialled before the %v delay elapsed", delay)

		f.clock.Advance(time.Millisecond)
		require.Eventually(t, func() bool { return f.dialer.count() == i+2 }, time.Second, time.Millisecond)
	}

	e := waitEvent(t, f.client, func(e Event) bool { return e.Kind == EventError })
	assert.ErrorIs(t, e.Err, ErrReconnectExhausted)
	assert.Equal(t, StateDisconnected, f.client.State())

	f.clock.Advance(time.Hour)
	assert.Equal(t, len(delays)+1, f.dialer.count())
}

func TestClient_SuccessfulConnectResetsAttempts(t *testing.T) {
	ctx := context.Background()
	f := newClientFixture(t, "main")
	first, second := newFakeConn(), newFakeConn()
	f.dialer.script(nil, nil, first, second)

	require.Error(t, f.client.Connect(ctx))
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return f.dialer.count() == 2 }, time.Second, time.Millisecond)
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool { return f.client.State() == StateConnected }, time.Second, time.Millisecond)

	require.Eventually(t, func() bool { return len(first.frames(ws.JoinRoom)) == 1 }, time.Second, time.Millisecond)
	joins := first.frames(ws.JoinRoom)
	assert.Equal(t, "main", joins[0].RoomID)
	assert.Equal(t, "self", joins[0].UserID)

	// Dropping the transport starts over at the base delay.
	require.NoError(t, first.Close())
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(time.Second - time.Millisecond)
	assert.Equal(t, 3, f.dialer.count())
	f.clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return f.client.State() == StateConnected }, time.Second, time.Millisecond)
	assert.Equal(t, 4, f.dialer.count())
	assert.Eventually(t, func() bool { return len(second.frames(ws.JoinRoom)) == 1 }, time.Second, time.Millisecond)
}

func TestClient_DisconnectCancelsPendingReconnect(t *testing.T) {
	ctx := context.Background()
	f := newClientFixture(t, "main")

	require.Error(t, f.client.Connect(ctx))
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))

	f.client.Disconnect()
	f.clock.Advance(time.Hour)

	assert.Equal(t, 1, f.dialer.count())
	assert.ErrorIs(t, f.client.Connect(ctx), ErrClosed)
}

func TestClient_CancelledContextStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newClientFixture(t, "main")

	require.Error(t, f.client.Connect(ctx))
	require.NoError(t, f.clock.BlockUntilContext(context.Background(), 1))
	cancel()

	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return f.dialer.count() == 2 }, time.Second, time.Millisecond)
	f.clock.Advance(time.Hour)
	assert.Equal(t, 2, f.dialer.count())
}

func TestClient_DecryptsIncomingAndMarksFailures(t *testing.T) {
	f, conn := connected(t)

	sealed, err := envelope.Seal([]byte("hello"))
	require.NoError(t, err)

	conn.push(&ws.WSMessage{Type: ws.RoomState, Payload: ws.RoomStatePayload{
		Room: ws.RoomDTO{ID: "main"},
		Messages: []ws.MessageDTO{
			{ID: "m1", EncryptedContent: sealed, SenderID: "bob"},
			{ID: "m2", EncryptedContent: "not-a-blob", SenderID: "bob"},
		},
		Users: []ws.UserDTO{{ID: "self"}, {ID: "bob"}},
	}})
	waitEvent(t, f.client, func(e Event) bool { return e.Kind == EventRoomState })

	messages := f.client.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "hello", messages[0].Content)
	assert.False(t, messages[0].Undecryptable)
	assert.True(t, messages[1].Undecryptable)
	assert.Empty(t, messages[1].Content)

	conn.push(&ws.WSMessage{Type: ws.MessageDeleted, Payload: ws.MessageIDPayload{MessageID: "m2"}})
	waitEvent(t, f.client, func(e Event) bool { return e.Kind == EventMessageDeleted })
	require.Len(t, f.client.Messages(), 1)

	conn.push(&ws.WSMessage{Type: ws.TypingStart, Payload: ws.UserPayload{UserID: "bob"}})
	waitEvent(t, f.client, func(e Event) bool { return e.Kind == EventPresence })
	users := f.client.Users()
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[0].ID)
	assert.True(t, users[0].IsTyping)

	conn.push(&ws.WSMessage{Type: ws.UserLeft, Payload: ws.UserPayload{UserID: "bob"}})
	waitEvent(t, f.client, func(e Event) bool { return e.Kind == EventPresence && e.UserID == "bob" })
	assert.Len(t, f.client.Users(), 1)
}

func TestClient_HidesLocallyExpiredMessages(t *testing.T) {
	f, conn := connected(t)

	sealed, err := envelope.Seal([]byte("brief"))
	require.NoError(t, err)
	expiresAt := f.clock.Now().Add(time.Second).UnixMilli()

	conn.push(&ws.WSMessage{Type: ws.NewMessage, Payload: ws.MessagePayload{Message: ws.MessageDTO{
		ID: "m1", EncryptedContent: sealed, SenderID: "bob", ExpiresAt: &expiresAt,
	}}})
	e := waitEvent(t, f.client, func(e Event) bool { return e.Kind == EventMessage })
	assert.Equal(t, "brief", e.Message.Content)
	require.Len(t, f.client.Messages(), 1)

	f.clock.Advance(time.Second)
	assert.Empty(t, f.client.Messages())
}

func TestClient_SendTextEchoesLocally(t *testing.T) {
	f, conn := connected(t)

	echo, err := f.client.SendText("hi", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, echo.Pending)
	assert.Equal(t, "hi", echo.Content)

	sent := conn.frames(ws.SendMessage)
	require.Len(t, sent, 1)
	var cmd ws.SendMessageCommand
	require.NoError(t, json.Unmarshal(sent[0].Payload, &cmd))
	require.NotNil(t, cmd.Message.ExpiresIn)
	assert.Equal(t, int64(30), *cmd.Message.ExpiresIn)
	assert.Empty(t, cmd.Message.Content, "plaintext must not leave the client")

	plain, err := envelope.Open(cmd.Message.EncryptedContent)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(plain))

	messages := f.client.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, echo.ID, messages[0].ID)
}

func TestClient_SendRequiresConnectionAndRoom(t *testing.T) {
	f := newClientFixture(t, "main")
	_, err := f.client.SendText("hi", 0)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, f.client.Messages())

	g := newClientFixture(t, "")
	_, err = g.client.SendText("hi", 0)
	assert.ErrorIs(t, err, ErrNotJoined)
}

func TestClient_SendFile(t *testing.T) {
	f, conn := connected(t)

	_, err := f.client.SendFile("huge.bin", "application/octet-stream", make([]byte, MaxFileBytes+1), 0)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	data := make([]byte, 1024)
	echo, err := f.client.SendFile("notes.txt", "text/plain", data, 0)
	require.NoError(t, err)
	assert.Equal(t, "File: notes.txt (1.0KB)", echo.Content)

	sent := conn.frames(ws.SendMessage)
	require.Len(t, sent, 1)
	var cmd ws.SendMessageCommand
	require.NoError(t, json.Unmarshal(sent[0].Payload, &cmd))
	assert.Equal(t, "file", cmd.Message.Type)

	var meta FileMetadata
	require.NoError(t, json.Unmarshal(cmd.Message.Metadata, &meta))
	assert.Equal(t, "notes.txt", meta.Filename)
	assert.Equal(t, 1024, meta.FileSize)
	assert.Equal(t, "text/plain", meta.FileType)
	decoded, err := base64.StdEncoding.DecodeString(meta.FileData)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)

	label, err := envelope.Open(cmd.Message.EncryptedContent)
	require.NoError(t, err)
	assert.Equal(t, "File: notes.txt", string(label))
}

func TestClient_SendVoice(t *testing.T) {
	f, conn := connected(t)

	echo, err := f.client.SendVoice(make([]byte, 2048), 3*time.Second, 0)
	require.NoError(t, err)
	assert.Equal(t, "Voice message (2KB)", echo.Content)

	sent := conn.frames(ws.SendMessage)
	require.Len(t, sent, 1)
	var cmd ws.SendMessageCommand
	require.NoError(t, json.Unmarshal(sent[0].Payload, &cmd))
	assert.Equal(t, "voice", cmd.Message.Type)

	var meta VoiceMetadata
	require.NoError(t, json.Unmarshal(cmd.Message.Metadata, &meta))
	assert.Equal(t, 2048, meta.FileSize)
	assert.InDelta(t, 3.0, meta.Duration, 1e-9)
}

func TestClient_PanicPurgesAndStaysDown(t *testing.T) {
	f, conn := connected(t)
	_, err := f.client.SendText("evidence", 0)
	require.NoError(t, err)

	require.NoError(t, f.client.Panic())

	panics := conn.frames(ws.PanicMode)
	require.Len(t, panics, 1)
	assert.Equal(t, "self", panics[0].UserID)
	assert.Empty(t, f.client.Messages())
	assert.Equal(t, StateDisconnected, f.client.State())

	f.clock.Advance(time.Hour)
	assert.Equal(t, 1, f.dialer.count())
}

func TestClient_RemotePanicClearsView(t *testing.T) {
	f, conn := connected(t)
	_, err := f.client.SendText("mine", 0)
	require.NoError(t, err)

	conn.push(&ws.WSMessage{Type: ws.PanicModeActivated, Payload: ws.UserPayload{UserID: "bob"}})
	e := waitEvent(t, f.client, func(e Event) bool { return e.Kind == EventPanic })
	assert.Equal(t, "bob", e.UserID)
	assert.Empty(t, f.client.Messages())
}

func TestClient_RelayErrorSurfaces(t *testing.T) {
	f, conn := connected(t)

	conn.push(&ws.WSMessage{Type: ws.ErrorEvent, Payload: ws.ErrorPayload{Message: "invalid message format"}})
	e := waitEvent(t, f.client, func(e Event) bool { return e.Kind == EventError })
	assert.Contains(t, e.Err.Error(), "invalid message format")
	assert.False(t, errors.Is(e.Err, ErrReconnectExhausted))
	assert.Equal(t, StateConnected, f.client.State())
}

func TestClient_JoinSwitchesRoom(t *testing.T) {
	f, conn := connected(t)

	require.NoError(t, f.client.Join("ops"))
	assert.Equal(t, "ops", f.client.RoomID())

	joins := conn.frames(ws.JoinRoom)
	require.Len(t, joins, 2)
	assert.Equal(t, "ops", joins[1].RoomID)

	require.NoError(t, f.client.ExpireMessage("m1"))
	assert.Len(t, conn.frames(ws.MessageExpired), 1)
}
