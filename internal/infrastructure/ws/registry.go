package ws

import (
	"sync"
)

// Sink is the outbound side of one connection.
type Sink interface {
	// Send enqueues without blocking and reports whether the frame was accepted.
	Send(msg *WSMessage) bool
	Close()
	IsClosed() bool
}

// Registry maps session IDs to their live connection.
type Registry struct {
	sinks map[string]Sink // sessionID -> Sink
	mu    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		sinks: make(map[string]Sink),
	}
}

// Register binds sink to sessionID. A different sink already bound to the
// session is closed and returned.
func (r *Registry) Register(sessionID string, sink Sink) Sink {
	r.mu.Lock()
	previous, ok := r.sinks[sessionID]
	r.sinks[sessionID] = sink
	r.mu.Unlock()

	if !ok || previous == sink {
		return nil
	}
	previous.Close()
	return previous
}

// Unregister drops the binding whatever sink holds it. Purge uses it; the
// disconnect path goes through Release instead.
func (r *Registry) Unregister(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sinks[sessionID]; !ok {
		return false
	}
	delete(r.sinks, sessionID)
	return true
}

// Release removes the binding only while it still points at sink, so a stale
// connection cannot unbind its replacement.
func (r *Registry) Release(sessionID string, sink Sink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sinks[sessionID]; !ok || current != sink {
		return false
	}
	delete(r.sinks, sessionID)
	return true
}

func (r *Registry) Lookup(sessionID string) (Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sink, ok := r.sinks[sessionID]
	return sink, ok
}

// Each calls fn for a snapshot of the bindings, outside the registry lock.
func (r *Registry) Each(fn func(sessionID string, sink Sink)) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sinks))
	sinks := make([]Sink, 0, len(r.sinks))
	for id, sink := range r.sinks {
		ids = append(ids, id)
		sinks = append(sinks, sink)
	}
	r.mu.RUnlock()

	for i := range ids {
		fn(ids[i], sinks[i])
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sinks)
}
