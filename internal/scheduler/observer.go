package scheduler

import "github.com/loykin/nexus/internal/process"

// Observer receives scheduler events. Calls happen while the scheduler lock
// is held, so implementations must not call back into the scheduler.
type Observer interface {
	OnCreate(p process.Process)
	OnTransition(p process.Process, from, to process.State)
	OnPreempt(p process.Process)
	OnTick(r TickResult)
}

type nopObserver struct{}

func (nopObserver) OnCreate(process.Process)                                   {}
func (nopObserver) OnTransition(process.Process, process.State, process.State) {}
func (nopObserver) OnPreempt(process.Process)                                  {}
func (nopObserver) OnTick(TickResult)                                          {}

// Observers fans events out to several observers in order.
type Observers []Observer

func (obs Observers) OnCreate(p process.Process) {
	for _, o := range obs {
		o.OnCreate(p)
	}
}

func (obs Observers) OnTransition(p process.Process, from, to process.State) {
	for _, o := range obs {
		o.OnTransition(p, from, to)
	}
}

func (obs Observers) OnPreempt(p process.Process) {
	for _, o := range obs {
		o.OnPreempt(p)
	}
}

func (obs Observers) OnTick(r TickResult) {
	for _, o := range obs {
		o.OnTick(r)
	}
}
