package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/hilthontt/ghostline/internal/client"
	"github.com/hilthontt/ghostline/internal/infrastructure/ws"
	"github.com/hilthontt/ghostline/internal/tui/theme"
)

// Chat is the subset of *client.Client the terminal UI drives.
type Chat interface {
	Events() <-chan client.Event
	Messages() []client.Message
	Users() []ws.UserDTO
	Self() ws.UserDTO
	RoomID() string
	State() client.State
	Typist() *client.Typist
	Join(roomID string) error
	SendText(text string, expiresIn time.Duration) (*client.Message, error)
	Panic() error
}

// expiryChoices are cycled with ctrl+t. Zero keeps the message until the
// relay evicts it.
var expiryChoices = []time.Duration{0, 30 * time.Second, 5 * time.Minute, time.Hour}

type eventMsg client.Event

type tickMsg time.Time

type model struct {
	chat  Chat
	theme theme.Theme

	input    textinput.Model
	viewport viewport.Model
	help     help.Model

	expiry int
	status string
	err    error
	width  int
	height int
}

func NewModel(renderer *lipgloss.Renderer, chat Chat) tea.Model {
	t := theme.BasicTheme(renderer)

	ti := textinput.New()
	ti.Placeholder = "Type a message, /join <room> or /panic"
	ti.Focus()
	ti.CharLimit = 2000
	ti.Width = 60
	ti.PromptStyle = t.TextBrand()
	ti.TextStyle = t.TextAccent()
	ti.PlaceholderStyle = t.TextBody()

	return model{
		chat:     chat,
		theme:    t,
		input:    ti,
		viewport: viewport.New(80, 20),
		help:     help.New(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.chat.Events()), tick())
}

func waitForEvent(events <-chan client.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}

// tick redraws once a second so locally expired messages disappear.
func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-6, 3)
		m.input.Width = max(msg.Width-4, 10)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, keys.Panic):
			_ = m.chat.Panic()
			return m, tea.Quit

		case key.Matches(msg, keys.Expiry):
			m.expiry = (m.expiry + 1) % len(expiryChoices)
			return m.refresh(), nil

		case key.Matches(msg, keys.Send):
			return m.submit()
		}

		_ = m.chat.Typist().Keypress()

	case eventMsg:
		m = m.apply(client.Event(msg))
		cmds = append(cmds, waitForEvent(m.chat.Events()))

	case tickMsg:
		cmds = append(cmds, tick())
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m.refresh(), tea.Batch(cmds...)
}

func (m model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if text == "" {
		return m, nil
	}

	switch {
	case text == "/panic":
		_ = m.chat.Panic()
		return m, tea.Quit

	case text == "/quit":
		return m, tea.Quit

	case strings.HasPrefix(text, "/join "):
		roomID := strings.TrimSpace(strings.TrimPrefix(text, "/join "))
		m.err = m.chat.Join(roomID)
		return m.refresh(), nil
	}

	_, m.err = m.chat.SendText(text, expiryChoices[m.expiry])
	return m.refresh(), nil
}

func (m model) apply(e client.Event) model {
	switch e.Kind {
	case client.EventState:
		m.status = e.State.String()
		if e.State == client.StateConnected {
			m.err = nil
		}
	case client.EventPanic:
		m.status = fmt.Sprintf("%s triggered panic mode", e.UserID)
	case client.EventError:
		m.err = e.Err
	}
	return m
}

func (m model) refresh() model {
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
	return m
}

func (m model) renderMessages() string {
	self := m.chat.Self()
	now := time.Now()

	var b strings.Builder
	for _, msg := range m.chat.Messages() {
		stamp := time.UnixMilli(msg.Timestamp).Format("15:04:05")
		name := m.theme.TextAccent().Render(msg.SenderName)
		if msg.SenderID == self.ID {
			name = m.theme.TextBrand().Render(msg.SenderName)
		}

		body := m.theme.TextBody().Render(msg.Content)
		if msg.Undecryptable {
			body = m.theme.TextError().Render("[undecryptable]")
		}

		line := fmt.Sprintf("%s %s: %s", m.theme.TextBody().Render(stamp), name, body)
		if msg.ExpiresAt != nil {
			left := time.UnixMilli(*msg.ExpiresAt).Sub(now).Round(time.Second)
			line += m.theme.TextBody().Render(fmt.Sprintf(" (%s)", max(left, 0)))
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func (m model) View() string {
	self := m.chat.Self()

	var typing []string
	for _, u := range m.chat.Users() {
		if u.IsTyping && u.ID != self.ID {
			typing = append(typing, u.Username)
		}
	}

	header := fmt.Sprintf("ghostline  #%s  %s  %s  %d online  expiry:%s",
		m.chat.RoomID(), self.Username, m.chat.State(), len(m.chat.Users()), expiryLabel(expiryChoices[m.expiry]))

	footer := m.help.View(keys)
	switch {
	case m.err != nil:
		footer = m.theme.PanelError().Render(errorText(m.err))
	case len(typing) > 0:
		footer = m.theme.TextBody().Render(strings.Join(typing, ", ") + " typing...")
	case m.status != "":
		footer = m.theme.TextBody().Render(m.status)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.theme.Header().Render(header),
		m.viewport.View(),
		m.input.View(),
		footer,
	)
}

func expiryLabel(d time.Duration) string {
	if d == 0 {
		return "off"
	}
	return d.String()
}

func errorText(err error) string {
	if errors.Is(err, client.ErrReconnectExhausted) {
		return "Connection lost. Restart to try again."
	}
	return err.Error()
}
