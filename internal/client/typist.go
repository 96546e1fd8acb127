package client

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultTypingIdle = 2 * time.Second

type typingSender interface {
	SendTyping(start bool) error
}

// Typist debounces keypresses into typing_start/typing_stop pairs. The stop
// is sent once no key has been pressed for the idle window.
type Typist struct {
	sender typingSender
	clock  clockwork.Clock
	idle   time.Duration

	mu     sync.Mutex
	typing bool
	timer  clockwork.Timer
	seq    uint64
}

func NewTypist(sender typingSender, clock clockwork.Clock, idle time.Duration) *Typist {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &Typist{sender: sender, clock: clock, idle: idle}
}

func (t *Typist) Keypress() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.seq++
	seq := t.seq
	t.timer = t.clock.AfterFunc(t.idle, func() { t.expire(seq) })

	if t.typing {
		return nil
	}
	t.typing = true
	return t.sender.SendTyping(true)
}

// Stop ends typing immediately, as when the message is sent.
func (t *Typist) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.seq++
	if !t.typing {
		return nil
	}
	t.typing = false
	return t.sender.SendTyping(false)
}

func (t *Typist) expire(seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// A later keypress or Stop superseded this timer.
	if seq != t.seq || !t.typing {
		return
	}
	t.timer = nil
	t.typing = false
	_ = t.sender.SendTyping(false)
}

func (t *Typist) IsTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing
}
