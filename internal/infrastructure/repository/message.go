package repository

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/hilthontt/ghostline/internal/domain"
	"github.com/jonboulle/clockwork"
)

type messageEntry struct {
	message domain.Message
	timer   clockwork.Timer
}

// Oldest messages of a room are evicted when its capacity is exceeded.
// Holding mu while calling into rooms is allowed; the reverse is not.
type messageRepository struct {
	messages map[string]*messageEntry // ID -> entry
	byRoom   map[string][]string      // roomID -> message IDs in insertion order
	rooms    domain.RoomRepository
	capacity uint
	clock    clockwork.Clock
	mu       *sync.RWMutex

	observersMu  sync.RWMutex
	observers    map[uint64]func(domain.MessageDeletedEvent)
	nextObserver uint64
}

func NewMessageRepository(rooms domain.RoomRepository, capacity uint, clock clockwork.Clock) domain.MessageRepository {
	if capacity == 0 {
		capacity = 100 // sane default
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &messageRepository{
		messages:  make(map[string]*messageEntry),
		byRoom:    make(map[string][]string),
		rooms:     rooms,
		capacity:  capacity,
		clock:     clock,
		mu:        &sync.RWMutex{},
		observers: make(map[uint64]func(domain.MessageDeletedEvent)),
	}
}

func cloneMessage(m *domain.Message) *domain.Message {
	cpy := *m
	if m.ExpiresAt != nil {
		at := *m.ExpiresAt
		cpy.ExpiresAt = &at
	}
	cpy.Metadata = slices.Clone(m.Metadata)
	return &cpy
}

// Create stamps the message with a fresh ID and the relay clock, then links it
// into its room. A message whose expiry is not in the future is rejected.
func (r *messageRepository) Create(ctx context.Context, message *domain.Message) (*domain.Message, error) {
	if message == nil || message.RoomID == "" || message.SenderID == "" {
		return nil, domain.ErrInvalidInput
	}
	if message.Kind == "" {
		message.Kind = domain.KindText
	}
	if !message.Kind.Valid() {
		return nil, domain.ErrUnknownKind
	}

	now := r.clock.Now()
	if message.ExpiredAt(now) {
		return nil, domain.ErrAlreadyExpired
	}

	stored := cloneMessage(message)
	stored.ID = uuid.NewString()
	stored.Timestamp = now

	r.mu.Lock()
	if err := r.rooms.AppendMessage(ctx, stored.RoomID, stored.ID); err != nil {
		r.mu.Unlock()
		return nil, err
	}

	entry := &messageEntry{message: *stored}
	if stored.ExpiresAt != nil {
		id := stored.ID
		entry.timer = r.clock.AfterFunc(stored.ExpiresAt.Sub(now), func() {
			r.Delete(context.Background(), id, domain.ReasonExpired)
		})
	}
	r.messages[stored.ID] = entry
	r.byRoom[stored.RoomID] = append(r.byRoom[stored.RoomID], stored.ID)

	var evicted []domain.MessageDeletedEvent
	for uint(len(r.byRoom[stored.RoomID])) > r.capacity {
		oldest := r.byRoom[stored.RoomID][0]
		if event, ok := r.remove(ctx, oldest, domain.ReasonEvicted); ok {
			evicted = append(evicted, event)
		}
	}
	r.mu.Unlock()

	for _, event := range evicted {
		r.publish(event)
	}

	return cloneMessage(stored), nil
}

// remove must be called with the write lock held.
func (r *messageRepository) remove(ctx context.Context, id string, reason domain.DeleteReason) (domain.MessageDeletedEvent, bool) {
	entry, ok := r.messages[id]
	if !ok {
		return domain.MessageDeletedEvent{}, false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(r.messages, id)

	roomID := entry.message.RoomID
	ids := r.byRoom[roomID]
	if i := slices.Index(ids, id); i >= 0 {
		ids = slices.Delete(ids, i, i+1)
	}
	if len(ids) == 0 {
		delete(r.byRoom, roomID)
	} else {
		r.byRoom[roomID] = ids
	}
	r.rooms.RemoveMessage(ctx, roomID, id)

	return domain.MessageDeletedEvent{
		MessageID: id,
		RoomID:    roomID,
		SenderID:  entry.message.SenderID,
		Reason:    reason,
	}, true
}

func (r *messageRepository) Get(ctx context.Context, id string) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.messages[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return cloneMessage(&entry.message), nil
}

// Delete reports true only to the caller that actually removed the message.
func (r *messageRepository) Delete(ctx context.Context, id string, reason domain.DeleteReason) bool {
	r.mu.Lock()
	event, ok := r.remove(ctx, id, reason)
	r.mu.Unlock()

	if ok {
		r.publish(event)
	}
	return ok
}

func (r *messageRepository) DeleteAllExpired(ctx context.Context) int {
	now := r.clock.Now()

	r.mu.Lock()
	events := make([]domain.MessageDeletedEvent, 0)
	for id, entry := range r.messages {
		if !entry.message.ExpiredAt(now) {
			continue
		}
		if event, ok := r.remove(ctx, id, domain.ReasonSwept); ok {
			events = append(events, event)
		}
	}
	r.mu.Unlock()

	for _, event := range events {
		r.publish(event)
	}
	return len(events)
}

func (r *messageRepository) DeleteBySender(ctx context.Context, senderID string) (int, int) {
	r.mu.RLock()
	ids := make([]string, 0)
	for id, entry := range r.messages {
		if entry.message.SenderID == senderID {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	deleted := 0
	for _, id := range ids {
		if r.Delete(ctx, id, domain.ReasonPurged) {
			deleted++
		}
	}
	return deleted, len(ids)
}

// ListByRoom returns live messages ordered by timestamp. Messages past their
// expiry are hidden even before their timer has fired.
func (r *messageRepository) ListByRoom(ctx context.Context, roomID string) []domain.Message {
	now := r.clock.Now()

	r.mu.RLock()
	ids := r.byRoom[roomID]
	out := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		entry, ok := r.messages[id]
		if !ok || entry.message.ExpiredAt(now) {
			continue
		}
		out = append(out, *cloneMessage(&entry.message))
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func (r *messageRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.messages)
}

func (r *messageRepository) Subscribe(fn func(domain.MessageDeletedEvent)) func() {
	r.observersMu.Lock()
	defer r.observersMu.Unlock()

	id := r.nextObserver
	r.nextObserver++
	r.observers[id] = fn

	return func() {
		r.observersMu.Lock()
		defer r.observersMu.Unlock()
		delete(r.observers, id)
	}
}

func (r *messageRepository) publish(event domain.MessageDeletedEvent) {
	r.observersMu.RLock()
	fns := make([]func(domain.MessageDeletedEvent), 0, len(r.observers))
	for _, fn := range r.observers {
		fns = append(fns, fn)
	}
	r.observersMu.RUnlock()

	for _, fn := range fns {
		fn(event)
	}
}

// Close stops every pending expiry timer. Stored messages stay readable.
func (r *messageRepository) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range r.messages {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
}
