package repository

import (
	"context"
	"sync"

	"github.com/hilthontt/ghostline/internal/domain"
	"github.com/jonboulle/clockwork"
)

type sessionRepository struct {
	sessions map[string]*domain.Session // ID -> Session
	clock    clockwork.Clock
	mu       *sync.RWMutex
}

func NewSessionRepository(clock clockwork.Clock) domain.SessionRepository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &sessionRepository{
		sessions: make(map[string]*domain.Session),
		clock:    clock,
		mu:       &sync.RWMutex{},
	}
}

// Upsert reports true when the session did not exist before.
func (r *sessionRepository) Upsert(ctx context.Context, session *domain.Session) (*domain.Session, bool, error) {
	if session == nil || session.ID == "" || session.Username == "" {
		return nil, false, domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	existing, ok := r.sessions[session.ID]
	if ok {
		existing.Username = session.Username
		existing.PublicKey = session.PublicKey
		existing.LastSeen = now
		cpy := *existing
		return &cpy, false, nil
	}

	stored := *session
	stored.LastSeen = now
	stored.IsTyping = false
	r.sessions[stored.ID] = &stored

	cpy := stored
	return &cpy, true, nil
}

func (r *sessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cpy := *session
	return &cpy, nil
}

// GetMany skips unknown IDs and keeps the order of ids.
func (r *sessionRepository) GetMany(ctx context.Context, ids []string) []domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Session, 0, len(ids))
	for _, id := range ids {
		if session, ok := r.sessions[id]; ok {
			out = append(out, *session)
		}
	}
	return out
}

func (r *sessionRepository) SetRoom(ctx context.Context, id, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.RoomID = roomID
	session.LastSeen = r.clock.Now()
	return nil
}

func (r *sessionRepository) SetTyping(ctx context.Context, id string, typing bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if session.IsTyping == typing {
		return false, nil
	}
	session.IsTyping = typing
	session.LastSeen = r.clock.Now()
	return true, nil
}

func (r *sessionRepository) Delete(ctx context.Context, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}
