package client

import (
	"slices"
	"sync"
	"time"

	"github.com/hilthontt/ghostline/internal/infrastructure/ws"
)

// Message is a message as the local user sees it. Content holds the
// decrypted text; Pending marks an optimistic echo the relay never returns.
type Message struct {
	ws.MessageDTO
	Undecryptable bool
	Pending       bool
}

func (m Message) expired(now time.Time) bool {
	return m.ExpiresAt != nil && *m.ExpiresAt <= now.UnixMilli()
}

type view struct {
	mu       sync.Mutex
	messages []Message
	users    map[string]ws.UserDTO
}

func newView() *view {
	return &view{users: make(map[string]ws.UserDTO)}
}

func (v *view) reset(messages []Message, users []ws.UserDTO) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.messages = messages
	v.users = make(map[string]ws.UserDTO, len(users))
	for _, u := range users {
		v.users[u.ID] = u
	}
}

func (v *view) add(m Message) {
	v.mu.Lock()
	v.messages = append(v.messages, m)
	v.mu.Unlock()
}

func (v *view) remove(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	before := len(v.messages)
	v.messages = slices.DeleteFunc(v.messages, func(m Message) bool { return m.ID == id })
	return len(v.messages) != before
}

func (v *view) clear() {
	v.mu.Lock()
	v.messages = nil
	v.mu.Unlock()
}

func (v *view) upsertUser(u ws.UserDTO) {
	v.mu.Lock()
	v.users[u.ID] = u
	v.mu.Unlock()
}

func (v *view) removeUser(id string) {
	v.mu.Lock()
	delete(v.users, id)
	v.mu.Unlock()
}

func (v *view) setTyping(id string, typing bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	u, ok := v.users[id]
	if !ok {
		return false
	}
	u.IsTyping = typing
	v.users[id] = u
	return true
}

// snapshot drops anything whose expiry has passed locally.
func (v *view) snapshot(now time.Time) []Message {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]Message, 0, len(v.messages))
	for _, m := range v.messages {
		if !m.expired(now) {
			out = append(out, m)
		}
	}
	return out
}

func (v *view) userList() []ws.UserDTO {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]ws.UserDTO, 0, len(v.users))
	for _, u := range v.users {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b ws.UserDTO) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}
