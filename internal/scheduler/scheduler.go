package scheduler

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/loykin/nexus/internal/process"
)

const (
	// DefaultQuantum is how many ticks a process keeps the CPU before it is re-queued.
	DefaultQuantum = 3
	// DefaultMaxCPUTime is the CPU time at which a process is considered finished.
	DefaultMaxCPUTime = 5
)

// Options tunes the scheduler. Zero values fall back to the defaults.
type Options struct {
	Quantum    int
	MaxCPUTime int
	Logger     *slog.Logger
	Observer   Observer
}

// TickResult describes one simulation tick.
type TickResult struct {
	Tick       uint64           `json:"tick" yaml:"tick"`
	Process    *process.Process `json:"process,omitempty" yaml:"process,omitempty"`
	Idle       bool             `json:"idle" yaml:"idle"`
	Terminated bool             `json:"terminated" yaml:"terminated"`
}

// Scheduler is a priority scheduler with a fixed quantum.
//
// The ready queue is re-sorted by priority (descending, stable so arrival
// order breaks ties) every time a new process is picked. A process keeps the
// CPU while its total CPU time is below the quantum. Lower priorities can
// starve for as long as higher ones stay ready.
//
// Every public method commits atomically under mu.
type Scheduler struct {
	mu         sync.Mutex
	table      *process.Table
	ready      []int
	running    int
	quantum    int
	maxCPUTime int
	tick       uint64
	log        *slog.Logger
	obs        Observer
}

func New(opts Options) *Scheduler {
	s := &Scheduler{
		table:      process.NewTable(),
		quantum:    opts.Quantum,
		maxCPUTime: opts.MaxCPUTime,
		log:        opts.Logger,
		obs:        opts.Observer,
	}
	if s.quantum <= 0 {
		s.quantum = DefaultQuantum
	}
	if s.maxCPUTime <= 0 {
		s.maxCPUTime = DefaultMaxCPUTime
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.obs == nil {
		s.obs = nopObserver{}
	}
	return s
}

// CreateProcess registers a new process and queues it. It never fails;
// memory is reserved separately.
func (s *Scheduler) CreateProcess(name string, priority, memoryRequired int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.table.Create(name, priority, memoryRequired)
	s.obs.OnCreate(*p)
	s.setState(p, process.StateReady)
	s.ready = append(s.ready, p.PID)
	s.log.Info("process created",
		slog.Int("pid", p.PID),
		slog.String("name", p.Name),
		slog.Int("priority", p.Priority))
	return p.PID
}

// Schedule picks the process that owns the CPU for the next tick.
// It returns false when there is nothing to run.
func (s *Scheduler) Schedule() (*process.Process, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.schedule()
	return p, p != nil
}

func (s *Scheduler) schedule() *process.Process {
	if cur := s.current(); cur != nil {
		if cur.CPUTimeUsed < s.quantum {
			return cur
		}
		s.setState(cur, process.StateReady)
		s.ready = append(s.ready, cur.PID)
		s.running = 0
		s.obs.OnPreempt(*cur)
	}
	if len(s.ready) == 0 {
		return nil
	}
	sort.SliceStable(s.ready, func(i, j int) bool {
		return s.priorityOf(s.ready[i]) > s.priorityOf(s.ready[j])
	})
	pid := s.ready[0]
	s.ready = s.ready[1:]
	next, _ := s.table.Get(pid)
	s.setState(next, process.StateRunning)
	s.running = pid
	return next
}

// ExecuteCycle runs one tick: schedule, charge one unit of CPU time and
// terminate the process once it reaches the CPU-time limit.
func (s *Scheduler) ExecuteCycle() TickResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick++
	res := TickResult{Tick: s.tick}
	p := s.schedule()
	if p == nil {
		res.Idle = true
		s.log.Debug("no processes in queue", slog.Uint64("tick", s.tick))
		s.obs.OnTick(res)
		return res
	}
	p.CPUTimeUsed++
	s.log.Debug("executing",
		slog.Uint64("tick", s.tick),
		slog.Int("pid", p.PID),
		slog.String("name", p.Name),
		slog.Int("cpu_time", p.CPUTimeUsed))
	if p.CPUTimeUsed >= s.maxCPUTime {
		s.terminate(p.PID)
		res.Terminated = true
	}
	snap := *p
	res.Process = &snap
	s.obs.OnTick(res)
	return res
}

// TerminateProcess marks pid terminated and vacates the CPU if it held it.
// Unknown pids are ignored. Pages held by the process are not released here.
func (s *Scheduler) TerminateProcess(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminate(pid)
}

func (s *Scheduler) terminate(pid int) {
	p, ok := s.table.Get(pid)
	if !ok || p.State == process.StateTerminated {
		return
	}
	s.setState(p, process.StateTerminated)
	if s.running == pid {
		s.running = 0
	}
	s.dequeue(pid)
	s.log.Info("process terminated", slog.Int("pid", pid), slog.String("name", p.Name))
}

func (s *Scheduler) dequeue(pid int) {
	for i, q := range s.ready {
		if q == pid {
			s.ready = append(s.ready[:i], s.ready[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) current() *process.Process {
	if s.running == 0 {
		return nil
	}
	p, _ := s.table.Get(s.running)
	return p
}

func (s *Scheduler) priorityOf(pid int) int {
	p, ok := s.table.Get(pid)
	if !ok {
		return 0
	}
	return p.Priority
}

// setState applies a lifecycle edge. Edges outside process.CanTransition,
// including every edge into Waiting, are logged and refused.
func (s *Scheduler) setState(p *process.Process, to process.State) bool {
	from := p.State
	if from == to {
		return true
	}
	if !process.CanTransition(from, to) {
		s.log.Error("illegal state transition refused",
			slog.Int("pid", p.PID),
			slog.String("from", from.String()),
			slog.String("to", to.String()))
		return false
	}
	p.State = to
	s.obs.OnTransition(*p, from, to)
	return true
}

// Process returns a copy of the record for pid.
func (s *Scheduler) Process(pid int) (process.Process, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Snapshot(pid)
}

// Processes returns copies of every record ordered by pid.
func (s *Scheduler) Processes() []process.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.List()
}

// Running returns the process holding the CPU, if any.
func (s *Scheduler) Running() (process.Process, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == 0 {
		return process.Process{}, false
	}
	return s.table.Snapshot(s.running)
}

// ReadyQueue returns the queued pids in their current order. The order is
// only meaningful right after a scheduling decision.
func (s *Scheduler) ReadyQueue() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.ready...)
}

// Ticks is the number of ExecuteCycle calls so far.
func (s *Scheduler) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

func (s *Scheduler) Quantum() int    { return s.quantum }
func (s *Scheduler) MaxCPUTime() int { return s.maxCPUTime }
