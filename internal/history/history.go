package history

import (
	"context"
	"time"
)

// EventType defines the kind of kernel event.
type EventType string

const (
	EventCreated     EventType = "created"
	EventScheduled   EventType = "scheduled"
	EventPreempted   EventType = "preempted"
	EventTerminated  EventType = "terminated"
	EventAllocated   EventType = "allocated"
	EventFreed       EventType = "freed"
	EventAllocFailed EventType = "alloc_failed"
	EventIdle        EventType = "idle"
)

// Event is one entry of the kernel audit trail exported to external systems.
// It is append-only and never read back to rebuild kernel state.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Tick       uint64    `json:"tick"`
	PID        int       `json:"pid"`
	Name       string    `json:"name"`
	Priority   int       `json:"priority"`
	State      string    `json:"state"`
	CPUTime    int       `json:"cpu_time"`
	Pages      int       `json:"pages"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
