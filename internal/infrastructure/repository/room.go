package repository

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/hilthontt/ghostline/internal/domain"
	"github.com/jonboulle/clockwork"
)

const maxRoomNameLength = 64

type roomState struct {
	id         string
	name       string
	createdAt  time.Time
	members    mapset.Set[string]
	messageIDs []string
	pinned     bool
}

func (s *roomState) snapshot() *domain.Room {
	members := s.members.ToSlice()
	slices.Sort(members)

	return &domain.Room{
		ID:         s.id,
		Name:       s.name,
		Members:    members,
		MessageIDs: slices.Clone(s.messageIDs),
		CreatedAt:  s.createdAt,
	}
}

func (s *roomState) idle() bool {
	return !s.pinned && s.members.Cardinality() == 0 && len(s.messageIDs) == 0
}

type RoomRepositoryOptions struct {
	Capacity        uint
	IdleExpiry      time.Duration
	DefaultRoomID   string
	DefaultRoomName string
	Clock           clockwork.Clock
}

type roomRepository struct {
	rooms          map[string]*roomState // ID -> Room
	lastAccess     map[string]time.Time  // ID -> last access time
	capacity       uint
	idleRoomExpiry time.Duration
	clock          clockwork.Clock
	mu             *sync.RWMutex
}

// NewRoomRepository returns the room directory with the default room already
// provisioned. The default room is never evicted.
func NewRoomRepository(opts RoomRepositoryOptions) domain.RoomRepository {
	if opts.Capacity == 0 {
		opts.Capacity = 100
	}
	if opts.IdleExpiry == 0 {
		opts.IdleExpiry = 30 * time.Minute
	}
	if opts.DefaultRoomID == "" {
		opts.DefaultRoomID = domain.DefaultRoomID
	}
	if opts.DefaultRoomName == "" {
		opts.DefaultRoomName = domain.DefaultRoomName
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	r := &roomRepository{
		rooms:          make(map[string]*roomState),
		lastAccess:     make(map[string]time.Time),
		capacity:       opts.Capacity,
		idleRoomExpiry: opts.IdleExpiry,
		clock:          opts.Clock,
		mu:             &sync.RWMutex{},
	}

	room := r.newState(opts.DefaultRoomID, opts.DefaultRoomName)
	room.pinned = true
	r.rooms[room.id] = room
	r.touch(room.id)

	return r
}

func (r *roomRepository) newState(id, name string) *roomState {
	return &roomState{
		id:         id,
		name:       name,
		createdAt:  r.clock.Now(),
		members:    mapset.NewThreadUnsafeSet[string](),
		messageIDs: make([]string, 0, 16),
	}
}

func (r *roomRepository) touch(roomID string) {
	r.lastAccess[roomID] = r.clock.Now()
}

func (r *roomRepository) evictIdle() int {
	cutoff := r.clock.Now().Add(-r.idleRoomExpiry)
	evicted := 0
	for id, last := range r.lastAccess {
		room, exists := r.rooms[id]
		if exists && !room.idle() {
			continue
		}
		if last.Before(cutoff) {
			delete(r.rooms, id)
			delete(r.lastAccess, id)
			evicted++
		}
	}
	return evicted
}

// enforceCapacity makes room for one more entry by dropping the oldest-accessed
// idle room. Rooms that still hold members or messages are never dropped.
func (r *roomRepository) enforceCapacity() error {
	if uint(len(r.rooms)) < r.capacity {
		return nil
	}

	var (
		oldestID string
		oldestAt time.Time
	)
	for id, room := range r.rooms {
		if !room.idle() {
			continue
		}
		if at := r.lastAccess[id]; oldestID == "" || at.Before(oldestAt) {
			oldestID, oldestAt = id, at
		}
	}
	if oldestID == "" {
		return domain.ErrRoomLimitReached
	}

	delete(r.rooms, oldestID)
	delete(r.lastAccess, oldestID)
	return nil
}

// ensure must be called with the write lock held.
func (r *roomRepository) ensure(roomID, name string) (*roomState, error) {
	if room, ok := r.rooms[roomID]; ok {
		return room, nil
	}

	r.evictIdle()
	if err := r.enforceCapacity(); err != nil {
		return nil, err
	}

	if name == "" {
		name = roomID
	}
	room := r.newState(roomID, name)
	r.rooms[roomID] = room
	return room, nil
}

// Create adds a room with a generated ID.
func (r *roomRepository) Create(ctx context.Context, name string) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxRoomNameLength {
		return nil, domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room, err := r.ensure(uuid.NewString(), name)
	if err != nil {
		return nil, err
	}
	r.touch(room.id)

	return room.snapshot(), nil
}

// Ensure returns the room, creating it on first reference.
func (r *roomRepository) Ensure(ctx context.Context, roomID, name string) (*domain.Room, error) {
	if roomID == "" {
		return nil, domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room, err := r.ensure(roomID, name)
	if err != nil {
		return nil, err
	}
	r.touch(room.id)

	return room.snapshot(), nil
}

// GetByID returns a room and updates access time.
func (r *roomRepository) GetByID(ctx context.Context, roomID string) (*domain.Room, error) {
	if roomID == "" {
		return nil, domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[roomID]
	if !exists {
		return nil, domain.ErrRoomNotFound
	}
	r.touch(roomID)

	return room.snapshot(), nil
}

// Join is idempotent: joining twice returns the current state unchanged.
func (r *roomRepository) Join(ctx context.Context, roomID, sessionID string) (*domain.Room, error) {
	if roomID == "" || sessionID == "" {
		return nil, domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room, err := r.ensure(roomID, "")
	if err != nil {
		return nil, err
	}
	room.members.Add(sessionID)
	r.touch(roomID)

	return room.snapshot(), nil
}

func (r *roomRepository) Leave(ctx context.Context, roomID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[roomID]
	if !exists || !room.members.Contains(sessionID) {
		return false
	}
	room.members.Remove(sessionID)
	r.touch(roomID)

	return true
}

// LeaveAll removes the session from every room and returns the rooms it left.
func (r *roomRepository) LeaveAll(ctx context.Context, sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	left := make([]string, 0, 1)
	for id, room := range r.rooms {
		if room.members.Contains(sessionID) {
			room.members.Remove(sessionID)
			r.touch(id)
			left = append(left, id)
		}
	}
	slices.Sort(left)

	return left
}

func (r *roomRepository) AppendMessage(ctx context.Context, roomID, messageID string) error {
	if roomID == "" || messageID == "" {
		return domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room, err := r.ensure(roomID, "")
	if err != nil {
		return err
	}
	room.messageIDs = append(room.messageIDs, messageID)
	r.touch(roomID)

	return nil
}

// RemoveMessage keeps the remaining sequence in order. Removing an absent ID is a no-op.
func (r *roomRepository) RemoveMessage(ctx context.Context, roomID, messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[roomID]
	if !exists {
		return
	}

	if i := slices.Index(room.messageIDs, messageID); i >= 0 {
		room.messageIDs = slices.Delete(room.messageIDs, i, i+1)
	}
}

func (r *roomRepository) Snapshot(ctx context.Context, roomID string) (*domain.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[roomID]
	if !exists {
		return nil, false
	}

	return room.snapshot(), true
}

func (r *roomRepository) EvictIdle(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.evictIdle()
}
