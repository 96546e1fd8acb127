package ratelimiter

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// FixedWindow counts events per key in aligned windows. The relay uses it to
// cap websocket upgrades per client IP.
type FixedWindow struct {
	mu     sync.Mutex
	counts map[string]*window
	limit  int
	size   time.Duration
	clock  clockwork.Clock
}

type window struct {
	count   int
	resetAt time.Time
}

func NewFixedWindow(limit int, size time.Duration, clock clockwork.Clock) *FixedWindow {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &FixedWindow{
		counts: make(map[string]*window),
		limit:  limit,
		size:   size,
		clock:  clock,
	}
}

// Allow records one event for key. When the window is full it reports how
// long until the next one opens. A non-positive limit disables the check.
func (fw *FixedWindow) Allow(key string) (bool, time.Duration) {
	if fw.limit <= 0 {
		return true, 0
	}

	now := fw.clock.Now()

	fw.mu.Lock()
	defer fw.mu.Unlock()

	w, ok := fw.counts[key]
	if !ok || !now.Before(w.resetAt) {
		fw.sweep(now)
		fw.counts[key] = &window{count: 1, resetAt: now.Truncate(fw.size).Add(fw.size)}
		return true, 0
	}

	if w.count >= fw.limit {
		return false, w.resetAt.Sub(now)
	}

	w.count++
	return true, 0
}

// sweep drops windows that have closed. Called with mu held.
func (fw *FixedWindow) sweep(now time.Time) {
	for key, w := range fw.counts {
		if !now.Before(w.resetAt) {
			delete(fw.counts, key)
		}
	}
}
