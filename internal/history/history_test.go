package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
	err    error
}

func (c *captureSink) Send(_ context.Context, e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return c.err
}

func (c *captureSink) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *captureSink) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestDispatcherDeliversInOrderAndCloses(t *testing.T) {
	a, b := &captureSink{}, &captureSink{err: errors.New("down")}
	d := NewDispatcher(quietLog(), a, b)
	for i := 1; i <= 5; i++ {
		d.Publish(Event{Type: EventCreated, PID: i})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	got := a.snapshot()
	if len(got) != 5 {
		t.Fatalf("expected 5 events, got %d", len(got))
	}
	for i, e := range got {
		if e.PID != i+1 {
			t.Fatalf("out of order delivery: %+v", got)
		}
		if e.OccurredAt.IsZero() {
			t.Fatalf("occurred_at not stamped")
		}
	}
	if len(b.snapshot()) != 5 {
		t.Fatalf("failing sink should still receive every event")
	}
	if !a.closed || !b.closed {
		t.Fatalf("sinks not closed")
	}
	// publishing after close is ignored
	d.Publish(Event{Type: EventIdle})
	if err := d.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestDispatcherWithoutSinksIsNoop(t *testing.T) {
	d := NewDispatcher(nil)
	d.Publish(Event{Type: EventIdle})
	if d.Dropped() != 0 {
		t.Fatalf("nothing should be dropped without sinks")
	}
	_ = d.Close(context.Background())
}

func TestRingKeepsNewest(t *testing.T) {
	r := NewRing(3)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		_ = r.Send(ctx, Event{PID: i})
	}
	got := r.Events(0)
	if len(got) != 3 || got[0].PID != 3 || got[2].PID != 5 {
		t.Fatalf("unexpected ring contents: %+v", got)
	}
	if l := r.Events(2); len(l) != 2 || l[0].PID != 4 {
		t.Fatalf("limit not applied: %+v", l)
	}
}

func TestRingPartial(t *testing.T) {
	r := NewRing(0)
	_ = r.Send(context.Background(), Event{PID: 9})
	if got := r.Events(0); len(got) != 1 || got[0].PID != 9 {
		t.Fatalf("unexpected: %+v", got)
	}
}
