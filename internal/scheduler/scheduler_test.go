package scheduler

import (
	"io"
	"log/slog"
	"testing"

	"github.com/loykin/nexus/internal/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(obs Observer) *Scheduler {
	return New(Options{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Observer: obs,
	})
}

// recorder captures observer callbacks for assertions.
type recorder struct {
	created     []int
	transitions []string
	preempted   []int
	ticks       []TickResult
}

func (r *recorder) OnCreate(p process.Process) { r.created = append(r.created, p.PID) }
func (r *recorder) OnTransition(p process.Process, from, to process.State) {
	r.transitions = append(r.transitions, p.Name+":"+from.String()+"->"+to.String())
}
func (r *recorder) OnPreempt(p process.Process) { r.preempted = append(r.preempted, p.PID) }
func (r *recorder) OnTick(t TickResult)         { r.ticks = append(r.ticks, t) }

func runningCount(s *Scheduler) int {
	n := 0
	for _, p := range s.Processes() {
		if p.State == process.StateRunning {
			n++
		}
	}
	return n
}

func TestCreateProcessQueuesReady(t *testing.T) {
	s := newTestScheduler(nil)
	a := s.CreateProcess("a", 2, 0)
	b := s.CreateProcess("b", 1, 0)
	require.Greater(t, b, a)

	p, ok := s.Process(a)
	require.True(t, ok)
	assert.Equal(t, process.StateReady, p.State)
	assert.Equal(t, []int{a, b}, s.ReadyQueue())
}

func TestScheduleIdleWhenEmpty(t *testing.T) {
	s := newTestScheduler(nil)
	p, ok := s.Schedule()
	assert.False(t, ok)
	assert.Nil(t, p)

	res := s.ExecuteCycle()
	assert.True(t, res.Idle)
	assert.Nil(t, res.Process)
	assert.Equal(t, uint64(1), res.Tick)
}

func TestScheduleHighestPriorityFirst(t *testing.T) {
	s := newTestScheduler(nil)
	a := s.CreateProcess("A", 2, 0)
	s.CreateProcess("B", 1, 0)

	p, ok := s.Schedule()
	require.True(t, ok)
	assert.Equal(t, a, p.PID)
	assert.Equal(t, process.StateRunning, p.State)
}

func TestScheduleTieBreakByArrival(t *testing.T) {
	s := newTestScheduler(nil)
	first := s.CreateProcess("first", 1, 0)
	s.CreateProcess("second", 1, 0)
	s.CreateProcess("third", 1, 0)

	p, _ := s.Schedule()
	assert.Equal(t, first, p.PID)
}

func TestScheduleZeroAndNegativePriorityRankBelowOne(t *testing.T) {
	s := newTestScheduler(nil)
	low := s.CreateProcess("low", 0, 0)
	one := s.CreateProcess("one", 1, 0)
	neg := s.CreateProcess("neg", -5, 0)

	p, ok := s.Process(low)
	require.True(t, ok)
	assert.Equal(t, 0, p.Priority)
	p, _ = s.Process(neg)
	assert.Equal(t, -5, p.Priority)

	var order []int
	for range 3 {
		cur, ok := s.Schedule()
		require.True(t, ok)
		order = append(order, cur.PID)
		s.TerminateProcess(cur.PID)
	}
	assert.Equal(t, []int{one, low, neg}, order)
}

func TestScheduleKeepsRunningWithinQuantum(t *testing.T) {
	s := newTestScheduler(nil)
	a := s.CreateProcess("A", 1, 0)
	s.CreateProcess("Hi", 5, 0)

	// Hi outranks A and holds the CPU for its whole quantum.
	for i := 1; i <= DefaultQuantum; i++ {
		res := s.ExecuteCycle()
		require.NotNil(t, res.Process)
		assert.Equal(t, "Hi", res.Process.Name)
		assert.Equal(t, i, res.Process.CPUTimeUsed)
		run, ok := s.Running()
		require.True(t, ok)
		assert.Equal(t, process.StateRunning, run.State)
	}
	assert.Equal(t, []int{a}, s.ReadyQueue())
}

func TestQuantumNewArrivalDoesNotPreempt(t *testing.T) {
	s := newTestScheduler(nil)
	low := s.CreateProcess("low", 1, 0)
	s.ExecuteCycle()
	s.CreateProcess("high", 9, 0)

	// low still has quantum left so it keeps the CPU.
	res := s.ExecuteCycle()
	assert.Equal(t, low, res.Process.PID)
	res = s.ExecuteCycle()
	assert.Equal(t, low, res.Process.PID)
	assert.Equal(t, 3, res.Process.CPUTimeUsed)

	// quantum exhausted: high takes over.
	res = s.ExecuteCycle()
	assert.Equal(t, "high", res.Process.Name)
	p, _ := s.Process(low)
	assert.Equal(t, process.StateReady, p.State)
}

func TestStarvationScenario(t *testing.T) {
	rec := &recorder{}
	s := newTestScheduler(rec)
	a := s.CreateProcess("A", 2, 0)
	b := s.CreateProcess("B", 1, 0)

	for i := 1; i <= DefaultMaxCPUTime; i++ {
		res := s.ExecuteCycle()
		require.Equal(t, a, res.Process.PID, "tick %d", i)
		bp, _ := s.Process(b)
		assert.Equal(t, 0, bp.CPUTimeUsed)
	}
	ap, _ := s.Process(a)
	assert.Equal(t, process.StateTerminated, ap.State)
	assert.Equal(t, DefaultMaxCPUTime, ap.CPUTimeUsed)
	_, ok := s.Running()
	assert.False(t, ok)

	// A was re-queued after its quantum but re-selected each time.
	assert.Equal(t, []int{a, a}, rec.preempted)

	res := s.ExecuteCycle()
	assert.Equal(t, b, res.Process.PID)
}

func TestEqualPriorityRotatesAfterQuantum(t *testing.T) {
	s := newTestScheduler(nil)
	a := s.CreateProcess("a", 1, 0)
	b := s.CreateProcess("b", 1, 0)

	for i := 0; i < DefaultQuantum; i++ {
		assert.Equal(t, a, s.ExecuteCycle().Process.PID)
	}
	// a goes behind b on re-queue; the stable sort keeps b first.
	assert.Equal(t, b, s.ExecuteCycle().Process.PID)
}

func TestTerminationWithinSameTick(t *testing.T) {
	s := New(Options{Quantum: 10, MaxCPUTime: 2, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	pid := s.CreateProcess("short", 1, 0)

	res := s.ExecuteCycle()
	assert.False(t, res.Terminated)
	res = s.ExecuteCycle()
	assert.True(t, res.Terminated)
	assert.Equal(t, process.StateTerminated, res.Process.State)

	_, running := s.Running()
	assert.False(t, running)
	p, _ := s.Process(pid)
	assert.Equal(t, 2, p.CPUTimeUsed)

	assert.True(t, s.ExecuteCycle().Idle)
}

func TestTerminateUnknownIsNoop(t *testing.T) {
	s := newTestScheduler(nil)
	s.CreateProcess("a", 1, 0)
	assert.NotPanics(t, func() { s.TerminateProcess(999) })
	assert.Len(t, s.ReadyQueue(), 1)
}

func TestTerminateReadyProcessLeavesQueue(t *testing.T) {
	s := newTestScheduler(nil)
	a := s.CreateProcess("a", 1, 0)
	b := s.CreateProcess("b", 1, 0)
	s.TerminateProcess(b)
	assert.Equal(t, []int{a}, s.ReadyQueue())

	for i := 0; i < 10; i++ {
		res := s.ExecuteCycle()
		if res.Process != nil {
			assert.NotEqual(t, b, res.Process.PID)
		}
	}
}

func TestTerminateRunningClearsSlot(t *testing.T) {
	s := newTestScheduler(nil)
	a := s.CreateProcess("a", 1, 0)
	s.ExecuteCycle()
	s.TerminateProcess(a)
	_, ok := s.Running()
	assert.False(t, ok)
	// terminating twice changes nothing
	s.TerminateProcess(a)
	p, _ := s.Process(a)
	assert.Equal(t, process.StateTerminated, p.State)
}

func TestAtMostOneRunning(t *testing.T) {
	s := newTestScheduler(nil)
	for i := 0; i < 6; i++ {
		s.CreateProcess("p", i%3+1, 0)
	}
	for i := 0; i < 40; i++ {
		s.ExecuteCycle()
		assert.LessOrEqual(t, runningCount(s), 1)
		if i%7 == 0 {
			s.CreateProcess("late", 2, 0)
		}
	}
}

func TestObserverSeesLifecycle(t *testing.T) {
	rec := &recorder{}
	s := newTestScheduler(rec)
	s.CreateProcess("x", 1, 0)
	s.ExecuteCycle()

	assert.Equal(t, []int{1}, rec.created)
	assert.Equal(t, []string{"x:new->ready", "x:ready->running"}, rec.transitions)
	require.Len(t, rec.ticks, 1)
	assert.Equal(t, uint64(1), s.Ticks())
}

func TestSetStateRefusesIllegalEdge(t *testing.T) {
	rec := &recorder{}
	s := newTestScheduler(rec)
	pid := s.CreateProcess("x", 1, 0)
	p, _ := s.table.Get(pid)

	assert.False(t, s.setState(p, process.StateWaiting))
	assert.False(t, s.setState(p, process.StateNew))
	assert.Equal(t, process.StateReady, p.State)
	assert.Equal(t, []string{"x:new->ready"}, rec.transitions)

	s.TerminateProcess(pid)
	assert.False(t, s.setState(p, process.StateReady))
	assert.Equal(t, process.StateTerminated, p.State)
	assert.Equal(t, []string{"x:new->ready", "x:ready->terminated"}, rec.transitions)
}

func TestObserversFanOut(t *testing.T) {
	r1, r2 := &recorder{}, &recorder{}
	s := newTestScheduler(Observers{r1, r2})
	s.CreateProcess("x", 1, 0)
	assert.Len(t, r1.created, 1)
	assert.Len(t, r2.created, 1)
}
