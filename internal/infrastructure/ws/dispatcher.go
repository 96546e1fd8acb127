package ws

import (
	"context"

	"github.com/hilthontt/ghostline/internal/domain"
	"github.com/hilthontt/ghostline/internal/infrastructure/logging"
	"github.com/hilthontt/ghostline/internal/infrastructure/metrics"
)

// Dispatcher fans events out to registered connections. Delivery is best
// effort: closed sinks are skipped and full queues drop the event.
type Dispatcher struct {
	registry *Registry
	rooms    domain.RoomRepository
	logger   logging.Logger
	metrics  *metrics.Relay
}

func NewDispatcher(registry *Registry, rooms domain.RoomRepository, logger logging.Logger, m *metrics.Relay) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		rooms:    rooms,
		logger:   logger,
		metrics:  m,
	}
}

// ToRoom returns how many members the event was queued for.
func (d *Dispatcher) ToRoom(ctx context.Context, roomID string, msg *WSMessage, exclude string) int {
	room, ok := d.rooms.Snapshot(ctx, roomID)
	if !ok {
		return 0
	}

	sent := 0
	for _, member := range room.Members {
		if member == exclude {
			continue
		}
		sink, ok := d.registry.Lookup(member)
		if !ok {
			continue
		}
		if d.deliver(member, sink, msg) {
			sent++
		}
	}
	return sent
}

func (d *Dispatcher) ToAll(ctx context.Context, msg *WSMessage, exclude string) int {
	sent := 0
	d.registry.Each(func(sessionID string, sink Sink) {
		if sessionID == exclude {
			return
		}
		if d.deliver(sessionID, sink, msg) {
			sent++
		}
	})
	return sent
}

// Unicast sends to one connection that may not be registered yet.
func (d *Dispatcher) Unicast(sink Sink, msg *WSMessage) bool {
	return d.deliver("", sink, msg)
}

func (d *Dispatcher) deliver(sessionID string, sink Sink, msg *WSMessage) bool {
	if sink.IsClosed() {
		return false
	}
	if sink.Send(msg) {
		return true
	}

	d.metrics.BroadcastDropped.Inc()
	d.logger.Warn(logging.WebSocket, logging.Broadcast, "connection queue full, dropping event", map[logging.ExtraKey]any{
		logging.SessionID: sessionID,
		logging.FrameType: msg.Type,
	})
	return false
}
