package ws

import (
	"context"

	"github.com/hilthontt/ghostline/internal/domain"
)

// Presence announces typing transitions. Repeated start or stop calls without
// a state change send nothing.
type Presence struct {
	sessions   domain.SessionRepository
	dispatcher *Dispatcher
}

func NewPresence(sessions domain.SessionRepository, dispatcher *Dispatcher) *Presence {
	return &Presence{sessions: sessions, dispatcher: dispatcher}
}

func (p *Presence) StartTyping(ctx context.Context, roomID, sessionID string) bool {
	return p.set(ctx, roomID, sessionID, true)
}

func (p *Presence) StopTyping(ctx context.Context, roomID, sessionID string) bool {
	return p.set(ctx, roomID, sessionID, false)
}

// Clear stops typing in whatever room the session currently occupies.
func (p *Presence) Clear(ctx context.Context, sessionID string) bool {
	session, err := p.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return false
	}
	return p.set(ctx, session.RoomID, sessionID, false)
}

func (p *Presence) set(ctx context.Context, roomID, sessionID string, typing bool) bool {
	changed, err := p.sessions.SetTyping(ctx, sessionID, typing)
	if err != nil || !changed {
		return false
	}
	if roomID != "" {
		p.dispatcher.ToRoom(ctx, roomID, NewTyping(typing, roomID, sessionID), sessionID)
	}
	return true
}
