package history

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher delivers events to sinks from a single background goroutine so
// callers holding kernel locks never wait on I/O. When the buffer is full
// the event is dropped and counted.
type Dispatcher struct {
	sinks   []Sink
	ch      chan Event
	done    chan struct{}
	log     *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	closed  bool
	dropped uint64
}

const defaultBuffer = 1024

func NewDispatcher(log *slog.Logger, sinks ...Sink) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		sinks:   append([]Sink(nil), sinks...),
		ch:      make(chan Event, defaultBuffer),
		done:    make(chan struct{}),
		log:     log,
		timeout: 5 * time.Second,
	}
	go d.run()
	return d
}

// Publish queues e for delivery. It never blocks.
func (d *Dispatcher) Publish(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || len(d.sinks) == 0 {
		return
	}
	select {
	case d.ch <- e:
	default:
		d.dropped++
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.ch {
		for _, s := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			if err := s.Send(ctx, e); err != nil {
				d.log.Warn("history sink send failed",
					slog.String("event", string(e.Type)),
					slog.Int("pid", e.PID),
					slog.Any("error", err))
			}
			cancel()
		}
	}
}

// Close stops accepting events, drains the queue and closes sinks that
// implement io.Closer. It waits for the drain until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	var first error
	for _, s := range d.sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
