package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/hilthontt/ghostline/internal/infrastructure/ws"
)

type fakeConn struct {
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written []ws.Frame
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeConn) ReadJSON(v any) error {
	select {
	case raw := <-f.in:
		return json.Unmarshal(raw, v)
	case <-f.closed:
		return io.EOF
	}
}

func (f *fakeConn) WriteJSON(v any) error {
	select {
	case <-f.closed:
		return errors.New("write on closed conn")
	default:
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var frame ws.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return err
	}

	f.mu.Lock()
	f.written = append(f.written, frame)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// push delivers a relay frame to the client.
func (f *fakeConn) push(msg *ws.WSMessage) {
	raw, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	f.in <- raw
}

func (f *fakeConn) frames(kind string) []ws.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []ws.Frame
	for _, frame := range f.written {
		if frame.Type == kind {
			out = append(out, frame)
		}
	}
	return out
}

// fakeDialer hands out scripted results in order; once exhausted every dial fails.
type fakeDialer struct {
	mu      sync.Mutex
	results []*fakeConn
	dials   int
}

var errRefused = errors.New("connection refused")

// script queues outcomes: a nil conn fails that dial.
func (d *fakeDialer) script(conns ...*fakeConn) {
	d.mu.Lock()
	d.results = append(d.results, conns...)
	d.mu.Unlock()
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if len(d.results) == 0 {
		return nil, errRefused
	}
	next := d.results[0]
	d.results = d.results[1:]
	if next == nil {
		return nil, errRefused
	}
	return next, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}
