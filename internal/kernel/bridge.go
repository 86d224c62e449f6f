package kernel

import (
	"sync"

	"github.com/loykin/nexus/internal/history"
	"github.com/loykin/nexus/internal/metrics"
	"github.com/loykin/nexus/internal/process"
	"github.com/loykin/nexus/internal/scheduler"
)

// bridge turns scheduler callbacks into metrics and history events. The
// scheduler invokes it with its own lock held, so it only records and
// publishes; it never calls back into the scheduler.
type bridge struct {
	events *history.Dispatcher

	mu          sync.Mutex
	tick        uint64
	idleTicks   uint64
	preemptions uint64
	createdTick map[int]uint64
	preempted   []process.Process
}

func newBridge(events *history.Dispatcher) *bridge {
	return &bridge{events: events, createdTick: make(map[int]uint64)}
}

func (b *bridge) OnCreate(p process.Process) {
	metrics.IncCreated()
	b.mu.Lock()
	b.createdTick[p.PID] = b.tick
	tick := b.tick
	b.mu.Unlock()
	b.events.Publish(event(history.EventCreated, tick, p, ""))
}

func (b *bridge) OnTransition(p process.Process, from, to process.State) {
	metrics.RecordStateTransition(from.String(), to.String())
	if to == process.StateTerminated {
		metrics.IncTerminated()
	}
}

// OnPreempt defers the event until OnTick knows which tick it belongs to.
func (b *bridge) OnPreempt(p process.Process) {
	metrics.IncPreemption()
	b.mu.Lock()
	b.preemptions++
	b.preempted = append(b.preempted, p)
	b.mu.Unlock()
}

func (b *bridge) OnTick(r scheduler.TickResult) {
	metrics.IncTick(r.Idle)
	b.mu.Lock()
	b.tick = r.Tick
	pending := b.preempted
	b.preempted = nil
	if r.Idle {
		b.idleTicks++
	}
	b.mu.Unlock()

	for _, p := range pending {
		b.events.Publish(event(history.EventPreempted, r.Tick, p, ""))
	}
	if r.Idle {
		b.events.Publish(history.Event{Type: history.EventIdle, Tick: r.Tick})
		return
	}
	p := *r.Process
	metrics.AddCPUTick(p.Name)
	b.events.Publish(event(history.EventScheduled, r.Tick, p, ""))
	if r.Terminated {
		b.events.Publish(event(history.EventTerminated, r.Tick, p, "cpu time limit reached"))
	}
}

type counters struct {
	ticks       uint64
	idleTicks   uint64
	preemptions uint64
	createdTick map[int]uint64
}

func (b *bridge) snapshot() counters {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := counters{
		ticks:       b.tick,
		idleTicks:   b.idleTicks,
		preemptions: b.preemptions,
		createdTick: make(map[int]uint64, len(b.createdTick)),
	}
	for pid, t := range b.createdTick {
		c.createdTick[pid] = t
	}
	return c
}

func event(t history.EventType, tick uint64, p process.Process, detail string) history.Event {
	return history.Event{
		Type:     t,
		Tick:     tick,
		PID:      p.PID,
		Name:     p.Name,
		Priority: p.Priority,
		State:    p.State.String(),
		CPUTime:  p.CPUTimeUsed,
		Detail:   detail,
	}
}
