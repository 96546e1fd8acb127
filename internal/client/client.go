package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/hilthontt/ghostline/internal/cryptographic/envelope"
	"github.com/hilthontt/ghostline/internal/domain"
	"github.com/hilthontt/ghostline/internal/infrastructure/logging"
	"github.com/hilthontt/ghostline/internal/infrastructure/ws"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultMaxAttempts  = 5
	DefaultInitialDelay = time.Second
	MaxFileBytes        = 10 << 20
)

type Options struct {
	URL    string
	User   ws.UserDTO
	RoomID string

	Dialer Dialer
	Clock  clockwork.Clock
	Logger logging.Logger

	MaxAttempts  int
	InitialDelay time.Duration
	TypingIdle   time.Duration
	EventBuffer  int
}

// Client keeps one relay connection alive and mirrors the joined room
// locally. A dropped connection is redialled with doubling delays until
// MaxAttempts consecutive failures; only Disconnect and Panic cancel that.
type Client struct {
	url    string
	self   ws.UserDTO
	dialer Dialer
	clock  clockwork.Clock
	logger logging.Logger
	typist *Typist

	maxAttempts int
	events      chan Event
	view        *view

	mu        sync.Mutex
	ctx       context.Context
	state     State
	roomID    string
	conn      Conn
	gen       uint64
	attempts  int
	backoff   *backoff.ExponentialBackOff
	retry     clockwork.Timer
	explicit  bool
	exhausted bool

	writeMu sync.Mutex
}

func New(opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = DefaultInitialDelay
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 128
	}
	if opts.User.ID == "" {
		opts.User.ID = GenerateSessionID()
	}
	if opts.User.Username == "" {
		opts.User.Username = GenerateUsername()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.InitialDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = opts.InitialDelay << opts.MaxAttempts
	b.Reset()

	c := &Client{
		url:         opts.URL,
		self:        opts.User,
		dialer:      opts.Dialer,
		clock:       opts.Clock,
		logger:      opts.Logger,
		maxAttempts: opts.MaxAttempts,
		events:      make(chan Event, opts.EventBuffer),
		view:        newView(),
		ctx:         context.Background(),
		roomID:      opts.RoomID,
		backoff:     b,
	}
	c.typist = NewTypist(c, opts.Clock, opts.TypingIdle)
	return c
}

func (c *Client) Events() <-chan Event {
	return c.events
}

func (c *Client) Self() ws.UserDTO {
	return c.self
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *Client) Typist() *Typist {
	return c.typist
}

// Messages returns the live local messages, oldest first.
func (c *Client) Messages() []Message {
	return c.view.snapshot(c.clock.Now())
}

func (c *Client) Users() []ws.UserDTO {
	return c.view.userList()
}

// emit never blocks; a consumer that falls behind loses events, not the
// connection.
func (c *Client) emit(e Event) {
	select {
	case c.events <- e:
	default:
		c.logger.Warn(logging.Client, logging.Protocol, "event dropped", nil)
	}
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.emit(Event{Kind: EventState, State: s, Attempt: c.attempts})
}

// Connect dials the relay. When the first dial fails the error is returned
// and retries continue in the background. ctx bounds every later retry.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.explicit {
		c.mu.Unlock()
		return ErrClosed
	}
	c.ctx = ctx
	c.exhausted = false
	c.mu.Unlock()

	return c.dial()
}

func (c *Client) dial() error {
	c.mu.Lock()
	if c.explicit || c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	ctx := c.ctx
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	conn, err := c.dialer.Dial(ctx, c.url)

	c.mu.Lock()
	if err != nil {
		c.setStateLocked(StateDisconnected)
		c.scheduleLocked()
		c.mu.Unlock()

		c.logger.Warn(logging.Client, logging.Reconnect, "dial failed", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	if c.explicit {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}

	c.conn = conn
	c.gen++
	gen := c.gen
	c.attempts = 0
	c.backoff.Reset()
	c.setStateLocked(StateConnected)
	roomID := c.roomID
	c.mu.Unlock()

	go c.readLoop(conn, gen)

	if roomID != "" {
		if err := c.write(conn, ws.NewJoinRoomFrame(roomID, c.self)); err != nil {
			return err
		}
	}
	return nil
}

// scheduleLocked arms the next reconnect, or reports exhaustion.
func (c *Client) scheduleLocked() {
	if c.explicit || c.ctx.Err() != nil {
		return
	}
	if c.attempts >= c.maxAttempts {
		if !c.exhausted {
			c.exhausted = true
			c.emit(Event{Kind: EventError, State: StateDisconnected, Attempt: c.attempts, Err: ErrReconnectExhausted})
		}
		return
	}

	delay := c.backoff.NextBackOff()
	c.attempts++
	attempt := c.attempts

	c.logger.Info(logging.Client, logging.Reconnect, "reconnect scheduled", map[logging.ExtraKey]any{
		logging.Attempt: attempt,
		logging.Latency: delay.String(),
	})
	c.retry = c.clock.AfterFunc(delay, func() { _ = c.dial() })
}

func (c *Client) readLoop(conn Conn, gen uint64) {
	for {
		var frame ws.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			c.lost(conn, gen, err)
			return
		}
		c.handle(frame)
	}
}

func (c *Client) lost(conn Conn, gen uint64, cause error) {
	_ = conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.conn != conn {
		return
	}
	c.conn = nil
	c.setStateLocked(StateDisconnected)

	c.logger.Info(logging.Client, logging.Disconnect, "connection lost", map[logging.ExtraKey]any{
		logging.ErrorMessage: cause.Error(),
	})
	c.scheduleLocked()
}

// Disconnect closes the connection and cancels any pending reconnect. The
// client cannot be reconnected afterwards.
func (c *Client) Disconnect() {
	_ = c.typist.Stop()

	c.mu.Lock()
	c.explicit = true
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	conn := c.conn
	c.conn = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// Panic asks the relay to purge this session, wipes the local view and
// disconnects for good.
func (c *Client) Panic() error {
	err := c.send(ws.NewPanicModeFrame(c.self.ID))
	c.view.clear()
	c.Disconnect()
	return err
}

// Join switches rooms; the relay answers with room_state.
func (c *Client) Join(roomID string) error {
	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()

	return c.send(ws.NewJoinRoomFrame(roomID, c.self))
}

func (c *Client) SendTyping(start bool) error {
	roomID := c.RoomID()
	if roomID == "" {
		return ErrNotJoined
	}
	return c.send(ws.NewTypingFrame(start, roomID, c.self.ID))
}

// ExpireMessage asks the relay to delete a message early.
func (c *Client) ExpireMessage(messageID string) error {
	return c.send(ws.NewMessageExpiredFrame(messageID))
}

func (c *Client) SendText(text string, expiresIn time.Duration) (*Message, error) {
	return c.sendMessage(domain.KindText, text, text, nil, expiresIn)
}

// SendFile attaches data as base64 metadata. Only the label is encrypted.
func (c *Client) SendFile(name, mimeType string, data []byte, expiresIn time.Duration) (*Message, error) {
	if len(data) > MaxFileBytes {
		return nil, ErrFileTooLarge
	}

	metadata, err := json.Marshal(FileMetadata{
		Filename: name,
		FileSize: len(data),
		FileType: mimeType,
		FileData: base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return nil, err
	}

	display := fmt.Sprintf("File: %s (%.1fKB)", name, float64(len(data))/1024)
	return c.sendMessage(domain.KindFile, "File: "+name, display, metadata, expiresIn)
}

func (c *Client) SendVoice(audio []byte, duration time.Duration, expiresIn time.Duration) (*Message, error) {
	if len(audio) > MaxFileBytes {
		return nil, ErrFileTooLarge
	}

	metadata, err := json.Marshal(VoiceMetadata{
		AudioData: base64.StdEncoding.EncodeToString(audio),
		Duration:  duration.Seconds(),
		FileSize:  len(audio),
	})
	if err != nil {
		return nil, err
	}

	display := fmt.Sprintf("Voice message (%dKB)", (len(audio)+512)/1024)
	return c.sendMessage(domain.KindVoice, "Voice message", display, metadata, expiresIn)
}

type FileMetadata struct {
	Filename string `json:"filename"`
	FileSize int    `json:"fileSize"`
	FileType string `json:"fileType"`
	FileData string `json:"fileData"`
}

type VoiceMetadata struct {
	AudioData string  `json:"audioData"`
	Duration  float64 `json:"duration"`
	FileSize  int     `json:"fileSize"`
}

// sendMessage seals secret, sends it and echoes display locally.
func (c *Client) sendMessage(kind domain.MessageKind, secret, display string, metadata json.RawMessage, expiresIn time.Duration) (*Message, error) {
	_ = c.typist.Stop()

	roomID := c.RoomID()
	if roomID == "" {
		return nil, ErrNotJoined
	}

	sealed, err := envelope.Seal([]byte(secret))
	if err != nil {
		return nil, err
	}

	out := ws.OutgoingMessage{
		RoomID:           roomID,
		EncryptedContent: sealed,
		SenderID:         c.self.ID,
		SenderName:       c.self.Username,
		Type:             string(kind),
		Metadata:         metadata,
	}
	now := c.clock.Now()
	var expiresAt *int64
	if expiresIn > 0 {
		secs := int64((expiresIn + time.Second - 1) / time.Second)
		out.ExpiresIn = &secs
		at := now.Add(time.Duration(secs) * time.Second).UnixMilli()
		expiresAt = &at
	}

	if err := c.send(ws.NewSendMessageFrame(out)); err != nil {
		return nil, err
	}

	echo := Message{
		MessageDTO: ws.MessageDTO{
			ID:               uuid.NewString(),
			RoomID:           roomID,
			Content:          display,
			EncryptedContent: sealed,
			SenderID:         c.self.ID,
			SenderName:       c.self.Username,
			Timestamp:        now.UnixMilli(),
			ExpiresAt:        expiresAt,
			Type:             string(kind),
			Metadata:         metadata,
		},
		Pending: true,
	}
	c.view.add(echo)
	return &echo, nil
}

func (c *Client) send(msg *ws.WSMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return c.write(conn, msg)
}

func (c *Client) write(conn Conn, msg *ws.WSMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	return nil
}

// open decrypts an incoming message. Failures only mark that message.
func (c *Client) open(dto ws.MessageDTO) Message {
	m := Message{MessageDTO: dto}

	plain, err := envelope.Open(dto.EncryptedContent)
	if err != nil {
		m.Undecryptable = true
		c.logger.Debug(logging.Client, logging.Decrypt, "undecryptable message", map[logging.ExtraKey]any{
			logging.MessageID: dto.ID,
		})
		return m
	}
	m.Content = string(plain)
	return m
}

func (c *Client) handle(frame ws.Frame) {
	switch frame.Type {
	case ws.RoomState:
		var p ws.RoomStatePayload
		if c.decode(frame, &p) {
			messages := make([]Message, 0, len(p.Messages))
			for _, dto := range p.Messages {
				messages = append(messages, c.open(dto))
			}
			c.view.reset(messages, p.Users)
			c.emit(Event{Kind: EventRoomState})
		}

	case ws.NewMessage:
		var p ws.MessagePayload
		if c.decode(frame, &p) {
			m := c.open(p.Message)
			c.view.add(m)
			c.emit(Event{Kind: EventMessage, Message: &m})
		}

	case ws.UserJoined:
		var p ws.UserJoinedPayload
		if c.decode(frame, &p) {
			c.view.upsertUser(p.User)
			c.emit(Event{Kind: EventPresence, UserID: p.User.ID})
		}

	case ws.UserLeft:
		var p ws.UserPayload
		if c.decode(frame, &p) {
			c.view.removeUser(p.UserID)
			c.emit(Event{Kind: EventPresence, UserID: p.UserID})
		}

	case ws.TypingStart, ws.TypingStop:
		var p ws.UserPayload
		if c.decode(frame, &p) && c.view.setTyping(p.UserID, frame.Type == ws.TypingStart) {
			c.emit(Event{Kind: EventPresence, UserID: p.UserID})
		}

	case ws.MessageDeleted:
		var p ws.MessageIDPayload
		if c.decode(frame, &p) && c.view.remove(p.MessageID) {
			c.emit(Event{Kind: EventMessageDeleted, Message: &Message{MessageDTO: ws.MessageDTO{ID: p.MessageID}}})
		}

	case ws.PanicModeActivated:
		var p ws.UserPayload
		if c.decode(frame, &p) {
			c.view.clear()
			c.view.removeUser(p.UserID)
			c.emit(Event{Kind: EventPanic, UserID: p.UserID})
		}

	case ws.ErrorEvent:
		var p ws.ErrorPayload
		if c.decode(frame, &p) {
			c.emit(Event{Kind: EventError, Err: fmt.Errorf("relay: %s", p.Message)})
		}
	}
}

func (c *Client) decode(frame ws.Frame, dst any) bool {
	if err := json.Unmarshal(frame.Payload, dst); err != nil {
		c.logger.Warn(logging.Client, logging.Protocol, "malformed relay frame", map[logging.ExtraKey]any{
			logging.FrameType:    frame.Type,
			logging.ErrorMessage: err.Error(),
		})
		return false
	}
	return true
}
