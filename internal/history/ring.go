package history

import (
	"context"
	"sync"
)

// Ring keeps the most recent events in memory for display layers.
type Ring struct {
	mu   sync.Mutex
	buf  []Event
	next int
	full bool
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = 256
	}
	return &Ring{buf: make([]Event, size)}
}

func (r *Ring) Send(_ context.Context, e Event) error {
	r.mu.Lock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
	return nil
}

// Events returns buffered events oldest first. A positive limit keeps only
// the newest limit entries.
func (r *Ring) Events(limit int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	if r.full {
		out = append(out, r.buf[r.next:]...)
	}
	out = append(out, r.buf[:r.next]...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
