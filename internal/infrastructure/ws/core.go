package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hilthontt/ghostline/internal/domain"
	"github.com/hilthontt/ghostline/internal/infrastructure/logging"
	"github.com/hilthontt/ghostline/internal/infrastructure/metrics"
	"github.com/hilthontt/ghostline/internal/infrastructure/tracing"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var errRateLimited = errors.New("rate limit exceeded, slow down")

type inbound struct {
	sink Sink
	raw  []byte
}

type CoreOptions struct {
	Clock   clockwork.Clock
	Logger  logging.Logger
	Metrics *metrics.Relay
	Tracer  trace.Tracer
}

// PurgeReport summarizes one panic purge.
type PurgeReport struct {
	SessionID       string
	RoomsLeft       []string
	MessagesFound   int
	MessagesDeleted int
}

// Core owns the protocol. Run serializes every connection event through one
// loop; Process, Connect, Disconnect and Purge may also be called directly.
type Core struct {
	registry   *Registry
	dispatcher *Dispatcher
	presence   *Presence

	rooms    domain.RoomRepository
	messages domain.MessageRepository
	sessions domain.SessionRepository

	clock   clockwork.Clock
	logger  logging.Logger
	metrics *metrics.Relay
	tracer  trace.Tracer

	conns   map[Sink]string // connection -> bound session ID, "" until join
	connsMu sync.Mutex

	attach    chan Sink
	detach    chan Sink
	inbound   chan inbound
	done      chan struct{}
	closeOnce sync.Once

	unsubscribe func()
}

func NewCore(
	rooms domain.RoomRepository,
	messages domain.MessageRepository,
	sessions domain.SessionRepository,
	opts CoreOptions,
) *Core {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRelay()
	}
	if opts.Tracer == nil {
		opts.Tracer = tracing.GetTracer("ghostline/ws")
	}

	registry := NewRegistry()
	dispatcher := NewDispatcher(registry, rooms, opts.Logger, opts.Metrics)

	c := &Core{
		registry:   registry,
		dispatcher: dispatcher,
		presence:   NewPresence(sessions, dispatcher),
		rooms:      rooms,
		messages:   messages,
		sessions:   sessions,
		clock:      opts.Clock,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
		conns:      make(map[Sink]string),
		attach:     make(chan Sink),
		detach:     make(chan Sink),
		inbound:    make(chan inbound, 256),
		done:       make(chan struct{}),
	}
	c.unsubscribe = messages.Subscribe(c.onMessageDeleted)

	return c
}

func (c *Core) Registry() *Registry {
	return c.registry
}

func (c *Core) Dispatcher() *Dispatcher {
	return c.dispatcher
}

func (c *Core) Run(ctx context.Context) {
	defer c.shutdown()

	for {
		select {
		case sink := <-c.attach:
			c.Connect(sink)

		case sink := <-c.detach:
			c.Disconnect(ctx, sink)

		case in := <-c.inbound:
			c.Process(ctx, in.sink, in.raw)

		case <-ctx.Done():
			return
		}
	}
}

func (c *Core) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.unsubscribe()

		c.connsMu.Lock()
		sinks := make([]Sink, 0, len(c.conns))
		for sink := range c.conns {
			sinks = append(sinks, sink)
		}
		c.connsMu.Unlock()

		for _, sink := range sinks {
			sink.Close()
		}
	})
}

// Attach hands a new connection to the event loop.
func (c *Core) Attach(sink Sink) {
	select {
	case c.attach <- sink:
	case <-c.done:
		sink.Close()
	}
}

// Detach hands a finished connection to the event loop.
func (c *Core) Detach(sink Sink) {
	select {
	case c.detach <- sink:
	case <-c.done:
	}
}

// Submit queues one raw frame. Connections over their frame rate get an
// error frame instead.
func (c *Core) Submit(sink Sink, raw []byte) {
	if limited, ok := sink.(interface{ Allow() bool }); ok && !limited.Allow() {
		c.metrics.ProtocolErrors.WithLabelValues("rate_limited").Inc()
		c.dispatcher.Unicast(sink, NewError(errRateLimited.Error()))
		return
	}

	select {
	case c.inbound <- inbound{sink: sink, raw: raw}:
	case <-c.done:
	}
}

func (c *Core) Connect(sink Sink) {
	c.connsMu.Lock()
	c.conns[sink] = ""
	count := len(c.conns)
	c.connsMu.Unlock()

	c.metrics.ActiveConnections.Set(float64(count))
	c.logger.Debug(logging.WebSocket, logging.Connect, "connection attached", map[logging.ExtraKey]any{
		logging.Count: count,
	})
}

func (c *Core) boundSession(sink Sink) (string, bool) {
	c.connsMu.Lock()
	defer c.connsMu.Unlock()

	id, ok := c.conns[sink]
	return id, ok && id != ""
}

func (c *Core) bind(sink Sink, sessionID string) {
	previous := c.registry.Register(sessionID, sink)

	c.connsMu.Lock()
	c.conns[sink] = sessionID
	if previous != nil {
		// The replaced connection no longer speaks for the session.
		if _, ok := c.conns[previous]; ok {
			c.conns[previous] = ""
		}
	}
	c.connsMu.Unlock()
}

func (c *Core) forget(sink Sink) (string, int) {
	c.connsMu.Lock()
	defer c.connsMu.Unlock()

	id := c.conns[sink]
	delete(c.conns, sink)
	return id, len(c.conns)
}

// Process handles one raw inbound frame from sink. Failures are reported to
// sink alone and never escape.
func (c *Core) Process(ctx context.Context, sink Sink, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(logging.WebSocket, logging.Protocol, "frame handler panicked", map[logging.ExtraKey]any{
				logging.ErrorMessage: fmt.Sprint(r),
			})
			c.metrics.ProtocolErrors.WithLabelValues("panic").Inc()
			c.dispatcher.Unicast(sink, NewError("internal error"))
		}
	}()

	cmd, err := DecodeCommand(raw)
	if err != nil {
		c.reject(ctx, sink, "", err)
		return
	}
	c.metrics.InboundFrames.WithLabelValues(cmd.Type()).Inc()

	ctx, span := c.tracer.Start(ctx, "ws."+cmd.Type(), trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	switch cmd := cmd.(type) {
	case JoinRoomCommand:
		err = c.join(ctx, sink, cmd)
	case SendMessageCommand:
		err = c.send(ctx, sink, cmd)
	case TypingCommand:
		err = c.typing(ctx, sink, cmd)
	case PanicCommand:
		err = c.panicMode(ctx, sink, cmd)
	case MessageExpiredCommand:
		err = c.expire(ctx, sink, cmd)
	default:
		err = protocolError("unhandled frame type %q", cmd.Type())
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.reject(ctx, sink, cmd.Type(), err)
	}
}

func errorCause(err error) string {
	switch {
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, domain.ErrNotJoined):
		return "not_joined"
	case errors.Is(err, domain.ErrNotMember):
		return "not_member"
	case errors.Is(err, domain.ErrAlreadyExpired):
		return "already_expired"
	case errors.Is(err, domain.ErrRoomLimitReached):
		return "room_limit"
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnknownKind):
		return "invalid_input"
	}
	return "internal"
}

func (c *Core) reject(ctx context.Context, sink Sink, frameType string, err error) {
	cause := errorCause(err)
	c.metrics.ProtocolErrors.WithLabelValues(cause).Inc()
	c.logger.Debug(logging.WebSocket, logging.Protocol, "rejected frame", map[logging.ExtraKey]any{
		logging.FrameType:    frameType,
		logging.ErrorMessage: err.Error(),
	})
	c.dispatcher.Unicast(sink, NewError(err.Error()))
}

func (c *Core) join(ctx context.Context, sink Sink, cmd JoinRoomCommand) error {
	if bound, ok := c.boundSession(sink); ok && bound != cmd.UserID {
		return fmt.Errorf("%w: connection already joined as another session", domain.ErrInvalidInput)
	}

	incoming, err := domain.NewSession(cmd.UserID, cmd.User.Username, cmd.User.PublicKey, c.clock.Now())
	if err != nil {
		return err
	}
	session, created, err := c.sessions.Upsert(ctx, incoming)
	if err != nil {
		return err
	}

	alreadyMember := false
	if before, ok := c.rooms.Snapshot(ctx, cmd.RoomID); ok {
		alreadyMember = before.HasMember(session.ID)
	}

	// The target room is joined before the old one is left, so a refused
	// join leaves the session where it was.
	room, err := c.rooms.Join(ctx, cmd.RoomID, session.ID)
	if err != nil {
		if created {
			c.sessions.Delete(ctx, session.ID)
		}
		return err
	}

	// One room at a time.
	if session.RoomID != "" && session.RoomID != room.ID {
		c.presence.Clear(ctx, session.ID)
		if c.rooms.Leave(ctx, session.RoomID, session.ID) {
			c.dispatcher.ToRoom(ctx, session.RoomID, NewUserLeft(session.RoomID, session.ID), session.ID)
		}
	}
	if err := c.sessions.SetRoom(ctx, session.ID, room.ID); err != nil {
		return err
	}
	session.RoomID = room.ID

	c.bind(sink, session.ID)

	if !alreadyMember {
		c.dispatcher.ToRoom(ctx, room.ID, NewUserJoined(room.ID, *session), session.ID)
	}

	messages := c.messages.ListByRoom(ctx, room.ID)
	users := c.sessions.GetMany(ctx, room.Members)
	c.dispatcher.Unicast(sink, NewRoomState(*room, messages, users))

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("room.id", room.ID),
		attribute.Int("room.members", len(room.Members)),
	)
	c.logger.Info(logging.WebSocket, logging.Connect, "session joined room", map[logging.ExtraKey]any{
		logging.SessionID: session.ID,
		logging.RoomID:    room.ID,
	})
	return nil
}

func (c *Core) currentSession(ctx context.Context, sink Sink) (*domain.Session, error) {
	id, ok := c.boundSession(sink)
	if !ok {
		return nil, domain.ErrNotJoined
	}
	session, err := c.sessions.GetByID(ctx, id)
	if err != nil || session.RoomID == "" {
		return nil, domain.ErrNotJoined
	}
	return session, nil
}

func (c *Core) send(ctx context.Context, sink Sink, cmd SendMessageCommand) error {
	session, err := c.currentSession(ctx, sink)
	if err != nil {
		return err
	}
	if cmd.Message.RoomID != "" && cmd.Message.RoomID != session.RoomID {
		return domain.ErrNotMember
	}

	saved, err := c.messages.Create(ctx, cmd.Message.ToDomain(session.RoomID, *session, c.clock.Now()))
	if err != nil {
		return err
	}
	c.metrics.MessagesCreated.WithLabelValues(string(saved.Kind)).Inc()

	delivered := c.dispatcher.ToRoom(ctx, saved.RoomID, NewNewMessage(*saved), session.ID)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("message.id", saved.ID),
		attribute.Int("message.delivered", delivered),
	)
	return nil
}

func (c *Core) typing(ctx context.Context, sink Sink, cmd TypingCommand) error {
	session, err := c.currentSession(ctx, sink)
	if err != nil {
		return err
	}
	if cmd.RoomID != "" && cmd.RoomID != session.RoomID {
		return domain.ErrNotMember
	}

	if cmd.Start {
		c.presence.StartTyping(ctx, session.RoomID, session.ID)
	} else {
		c.presence.StopTyping(ctx, session.RoomID, session.ID)
	}
	return nil
}

// expire lets the author delete early; anyone may report a message whose
// expiry has passed. Unknown IDs are ignored.
func (c *Core) expire(ctx context.Context, sink Sink, cmd MessageExpiredCommand) error {
	msg, err := c.messages.Get(ctx, cmd.MessageID)
	if err != nil {
		return nil
	}

	sessionID, _ := c.boundSession(sink)
	switch {
	case msg.ExpiredAt(c.clock.Now()):
		c.messages.Delete(ctx, msg.ID, domain.ReasonExpired)
	case sessionID != "" && msg.SenderID == sessionID:
		c.messages.Delete(ctx, msg.ID, domain.ReasonDeleted)
	default:
		return domain.ErrNotMember
	}
	return nil
}

func (c *Core) panicMode(ctx context.Context, sink Sink, cmd PanicCommand) error {
	sessionID, bound := c.boundSession(sink)
	if !bound {
		// An unjoined connection may only purge a session nobody else holds.
		if cmd.UserID == "" {
			return protocolError("panic_mode: userId is required")
		}
		if _, live := c.registry.Lookup(cmd.UserID); live {
			return domain.ErrNotMember
		}
		sessionID = cmd.UserID
	}

	c.Purge(ctx, sessionID)
	sink.Close()
	return nil
}

// Purge destroys every trace of a session and disconnects it.
func (c *Core) Purge(ctx context.Context, sessionID string) PurgeReport {
	report := PurgeReport{SessionID: sessionID}

	c.presence.Clear(ctx, sessionID)

	report.RoomsLeft = c.rooms.LeaveAll(ctx, sessionID)
	for _, roomID := range report.RoomsLeft {
		c.dispatcher.ToRoom(ctx, roomID, NewUserLeft(roomID, sessionID), sessionID)
	}

	report.MessagesDeleted, report.MessagesFound = c.messages.DeleteBySender(ctx, sessionID)
	c.sessions.Delete(ctx, sessionID)

	c.dispatcher.ToAll(ctx, NewPanicModeActivated(sessionID), "")

	if sink, ok := c.registry.Lookup(sessionID); ok {
		c.registry.Unregister(sessionID)
		c.connsMu.Lock()
		if _, tracked := c.conns[sink]; tracked {
			c.conns[sink] = ""
		}
		c.connsMu.Unlock()
		sink.Close()
	}

	c.metrics.Purges.Inc()
	c.logger.Info(logging.WebSocket, logging.Purge, "panic purge completed", map[logging.ExtraKey]any{
		logging.SessionID: sessionID,
		logging.Count:     report.MessagesDeleted,
	})
	return report
}

// Disconnect cleans up after a closed connection. A connection that was
// replaced by a newer one for the same session leaves the session alone.
func (c *Core) Disconnect(ctx context.Context, sink Sink) {
	sessionID, remaining := c.forget(sink)
	c.metrics.ActiveConnections.Set(float64(remaining))
	sink.Close()

	if sessionID == "" || !c.registry.Release(sessionID, sink) {
		return
	}

	c.presence.Clear(ctx, sessionID)
	for _, roomID := range c.rooms.LeaveAll(ctx, sessionID) {
		c.dispatcher.ToRoom(ctx, roomID, NewUserLeft(roomID, sessionID), sessionID)
	}
	c.sessions.Delete(ctx, sessionID)

	c.logger.Info(logging.WebSocket, logging.Disconnect, "session disconnected", map[logging.ExtraKey]any{
		logging.SessionID: sessionID,
	})
}

func (c *Core) onMessageDeleted(e domain.MessageDeletedEvent) {
	c.metrics.MessagesDeleted.WithLabelValues(string(e.Reason)).Inc()
	c.dispatcher.ToAll(context.Background(), NewMessageDeleted(e.RoomID, e.MessageID), "")

	c.logger.Debug(logging.Store, logging.Expiry, "message deleted", map[logging.ExtraKey]any{
		logging.MessageID: e.MessageID,
		logging.RoomID:    e.RoomID,
		logging.Reason:    string(e.Reason),
	})
}
