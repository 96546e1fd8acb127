package tui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/hilthontt/ghostline/internal/client"
	"github.com/hilthontt/ghostline/internal/infrastructure/ws"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentText struct {
	text      string
	expiresIn time.Duration
}

type fakeChat struct {
	events   chan client.Event
	messages []client.Message
	typist   *client.Typist
	typing   []bool
	sent     []sentText
	joined   []string
	panicked bool
}

func newFakeChat() *fakeChat {
	f := &fakeChat{events: make(chan client.Event, 4)}
	f.typist = client.NewTypist(f, clockwork.NewFakeClock(), 0)
	return f
}

func (f *fakeChat) SendTyping(start bool) error {
	f.typing = append(f.typing, start)
	return nil
}

func (f *fakeChat) Events() <-chan client.Event { return f.events }
func (f *fakeChat) Messages() []client.Message  { return f.messages }
func (f *fakeChat) Users() []ws.UserDTO         { return []ws.UserDTO{{ID: "self", Username: "ghost#0001"}} }
func (f *fakeChat) Self() ws.UserDTO            { return ws.UserDTO{ID: "self", Username: "ghost#0001"} }
func (f *fakeChat) RoomID() string              { return "main" }
func (f *fakeChat) State() client.State         { return client.StateConnected }
func (f *fakeChat) Typist() *client.Typist      { return f.typist }
func (f *fakeChat) Join(roomID string) error    { f.joined = append(f.joined, roomID); return nil }
func (f *fakeChat) Panic() error                { f.panicked = true; return nil }

func (f *fakeChat) SendText(text string, expiresIn time.Duration) (*client.Message, error) {
	f.sent = append(f.sent, sentText{text, expiresIn})
	return &client.Message{}, nil
}

func typeText(t *testing.T, m tea.Model, text string) tea.Model {
	t.Helper()
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return m
}

func TestModel_SendsTypedText(t *testing.T) {
	chat := newFakeChat()
	m := NewModel(lipgloss.DefaultRenderer(), chat)

	m = typeText(t, m, "hello")
	assert.Equal(t, []bool{true}, chat.typing)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	require.Len(t, chat.sent, 1)
	assert.Equal(t, "hello", chat.sent[0].text)
	assert.Equal(t, 30*time.Second, chat.sent[0].expiresIn)
	assert.Equal(t, "", m.(model).input.Value())
}

func TestModel_Commands(t *testing.T) {
	chat := newFakeChat()
	m := NewModel(lipgloss.DefaultRenderer(), chat)

	m = typeText(t, m, "/join ops")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []string{"ops"}, chat.joined)
	assert.Empty(t, chat.sent)

	m = typeText(t, m, "/panic")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, chat.panicked)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_PanicKey(t *testing.T) {
	chat := newFakeChat()
	m := NewModel(lipgloss.DefaultRenderer(), chat)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlX})
	assert.True(t, chat.panicked)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_RendersMessagesAndErrors(t *testing.T) {
	chat := newFakeChat()
	chat.messages = []client.Message{
		{MessageDTO: ws.MessageDTO{ID: "m1", SenderID: "bob", SenderName: "raven#0002", Content: "hi there"}},
		{MessageDTO: ws.MessageDTO{ID: "m2", SenderID: "bob", SenderName: "raven#0002"}, Undecryptable: true},
	}
	m := NewModel(lipgloss.DefaultRenderer(), chat)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	view := m.View()
	assert.Contains(t, view, "hi there")
	assert.Contains(t, view, "[undecryptable]")
	assert.Contains(t, view, "#main")

	m, _ = m.Update(eventMsg(client.Event{Kind: client.EventError, Err: client.ErrReconnectExhausted}))
	assert.Contains(t, m.View(), "Connection lost")

	m, _ = m.Update(eventMsg(client.Event{Kind: client.EventState, State: client.StateConnected}))
	assert.NotContains(t, m.View(), "Connection lost")
	assert.False(t, errors.Is(m.(model).err, client.ErrReconnectExhausted))
}
