package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hilthontt/ghostline/internal/infrastructure/logging"
	"golang.org/x/time/rate"
)

type ClientOptions struct {
	SendBuffer      int
	MaxFrameBytes   int64
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	FramesPerSecond float64
	FrameBurst      int
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 14 << 20 // a 10 MB file grows by a third once base64 encoded
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.FramesPerSecond <= 0 {
		o.FramesPerSecond = 20
	}
	if o.FrameBurst <= 0 {
		o.FrameBurst = 40
	}
	return o
}

// Client is one websocket connection. It has no session identity until the
// core binds it on join_room.
type Client struct {
	conn    *connWrapper
	Message chan *WSMessage
	ID      string `json:"id"`
	Remote  string `json:"remote"`

	opts    ClientOptions
	limiter *rate.Limiter
	logger  logging.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func NewClient(conn *websocket.Conn, opts ClientOptions, logger logging.Logger) *Client {
	opts = opts.withDefaults()
	return &Client{
		conn:    newConnWrapper(conn),
		Message: make(chan *WSMessage, opts.SendBuffer), // buffered to avoid dead-locks on slow clients
		ID:      uuid.NewString(),
		Remote:  conn.RemoteAddr().String(),
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.FramesPerSecond), opts.FrameBurst),
		logger:  logger,
		closed:  make(chan struct{}),
	}
}

func (c *Client) Send(msg *WSMessage) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.Message <- msg:
		return true
	default:
		// Client is too slow, drop the message
		return false
	}
}

// Close asks the write pump to flush what is queued and hang up.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

func (c *Client) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Allow applies the per-connection inbound frame rate.
func (c *Client) Allow() bool {
	return c.limiter.Allow()
}

func (c *Client) extra() map[logging.ExtraKey]any {
	return map[logging.ExtraKey]any{
		logging.ClientIp:  c.Remote,
		logging.SessionID: c.ID,
	}
}

// ReadPump feeds inbound frames to the core until the connection fails, then
// detaches the client.
func (c *Client) ReadPump(ctx context.Context, core *Core) {
	defer func() {
		core.Detach(c)
		c.Close()
	}()

	c.conn.conn.SetReadLimit(c.opts.MaxFrameBytes)
	_ = c.conn.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.conn.SetPongHandler(func(string) error {
		return c.conn.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		msgType, raw, err := c.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				extra := c.extra()
				extra[logging.ErrorMessage] = err.Error()
				c.logger.Warn(logging.WebSocket, logging.Disconnect, "ws read error", extra)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		core.Submit(c, raw)
	}
}

// WritePump drains the queue to the socket and keeps the peer alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.Message:
			if err := c.conn.WriteJSON(msg, c.opts.WriteWait); err != nil {
				extra := c.extra()
				extra[logging.ErrorMessage] = err.Error()
				c.logger.Warn(logging.WebSocket, logging.Disconnect, "ws write error", extra)
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WritePing(c.opts.WriteWait); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			c.flush()
			_ = c.conn.WriteClose(websocket.CloseNormalClosure, "", c.opts.WriteWait)
			return
		}
	}
}

func (c *Client) flush() {
	for {
		select {
		case msg := <-c.Message:
			if err := c.conn.WriteJSON(msg, c.opts.WriteWait); err != nil {
				return
			}
		default:
			return
		}
	}
}
