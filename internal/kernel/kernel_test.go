package kernel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/crypto/bcrypt"

	"github.com/loykin/nexus/internal/auth"
	"github.com/loykin/nexus/internal/config"
	"github.com/loykin/nexus/internal/history"
	"github.com/loykin/nexus/internal/memory"
	"github.com/loykin/nexus/internal/process"
	"github.com/loykin/nexus/internal/scheduler"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newKernel(t *testing.T, cfg config.KernelConfig, opts ...Option) *Kernel {
	t.Helper()
	opts = append([]Option{WithLogger(quiet())}, opts...)
	k := New(cfg, opts...)
	t.Cleanup(func() { _ = k.Close(context.Background()) })
	return k
}

func defaultKernel(t *testing.T, opts ...Option) *Kernel {
	return newKernel(t, config.Default().Kernel, opts...)
}

func spawnDemo(t *testing.T, k *Kernel) {
	t.Helper()
	ctx := context.Background()
	for _, w := range config.Default().Processes {
		_, err := k.Spawn(ctx, w.Name, w.Priority, w.Memory)
		require.NoError(t, err)
	}
}

func TestDemoWorkloadOrder(t *testing.T) {
	k := defaultKernel(t)
	spawnDemo(t, k)

	var ran []int
	var terminatedAt []uint64
	for _, r := range k.TickN(context.Background(), 10) {
		require.False(t, r.Idle)
		ran = append(ran, r.Process.PID)
		if r.Terminated {
			terminatedAt = append(terminatedAt, r.Tick)
		}
	}
	assert.Equal(t, []int{4, 4, 4, 4, 4, 1, 1, 1, 1, 1}, ran)
	assert.Equal(t, []uint64{5, 10}, terminatedAt)

	player, err := k.Process(4)
	require.NoError(t, err)
	assert.Equal(t, process.StateTerminated, player.State)
	assert.Equal(t, 5, player.CPUTimeUsed)

	for _, pid := range []int{2, 3} {
		p, err := k.Process(pid)
		require.NoError(t, err)
		assert.Equal(t, process.StateReady, p.State)
		assert.Zero(t, p.CPUTimeUsed)
	}

	v := k.SchedulerView()
	assert.Equal(t, uint64(10), v.Tick)
	assert.Nil(t, v.Running)
	assert.ElementsMatch(t, []int{2, 3}, v.Ready)
}

func TestSchedulerView(t *testing.T) {
	k := defaultKernel(t)
	spawnDemo(t, k)
	k.Tick(context.Background())
	v := k.SchedulerView()
	require.NotNil(t, v.Running)
	assert.Equal(t, 4, v.Running.PID)
	assert.Equal(t, []int{1, 2, 3}, v.Ready)
	assert.Equal(t, 3, v.Quantum)
	assert.Equal(t, 5, v.MaxCPUTime)
}

func TestIdleTick(t *testing.T) {
	k := defaultKernel(t)
	r := k.Tick(context.Background())
	assert.True(t, r.Idle)
	assert.Nil(t, r.Process)
	assert.Equal(t, uint64(1), r.Tick)
}

func TestTerminationKeepsPagesByDefault(t *testing.T) {
	k := defaultKernel(t)
	ctx := context.Background()
	pid, pages, err := k.SpawnAndAllocate(ctx, "player", 3, 5000)
	require.NoError(t, err)
	assert.Len(t, pages, 2)

	k.TickN(ctx, 5)
	p, err := k.Process(pid)
	require.NoError(t, err)
	require.Equal(t, process.StateTerminated, p.State)
	assert.Len(t, k.Pages(pid), 2)
	assert.Equal(t, memory.DefaultTotalMemory-8192, k.Memory().Available)

	// killing an already terminated process can still reclaim its pages
	assert.Equal(t, 2, k.Kill(ctx, pid, true))
	assert.Equal(t, memory.DefaultTotalMemory, k.Memory().Available)
	assert.Empty(t, k.Pages(pid))
}

func TestReclaimOnExit(t *testing.T) {
	cfg := config.Default().Kernel
	cfg.ReclaimOnExit = true
	k := newKernel(t, cfg)
	ctx := context.Background()
	pid, _, err := k.SpawnAndAllocate(ctx, "player", 3, 5000)
	require.NoError(t, err)

	k.TickN(ctx, 4)
	assert.Len(t, k.Pages(pid), 2)
	r := k.Tick(ctx)
	require.True(t, r.Terminated)
	assert.Empty(t, k.Pages(pid))
	assert.Equal(t, memory.DefaultTotalMemory, k.Memory().Available)
}

func TestKill(t *testing.T) {
	k := defaultKernel(t)
	ctx := context.Background()
	pid, _, err := k.SpawnAndAllocate(ctx, "editor", 1, 1024)
	require.NoError(t, err)

	assert.Zero(t, k.Kill(ctx, pid, false))
	p, _ := k.Process(pid)
	assert.Equal(t, process.StateTerminated, p.State)
	assert.Len(t, k.Pages(pid), 1)
	assert.Empty(t, k.SchedulerView().Ready)

	// unknown pids are ignored
	assert.Zero(t, k.Kill(ctx, 999, true))
	assert.True(t, k.Tick(ctx).Idle)
}

func TestAllocateErrors(t *testing.T) {
	cfg := config.Default().Kernel
	cfg.TotalMemory = 4096
	k := newKernel(t, cfg)
	ctx := context.Background()

	_, err := k.Allocate(ctx, 42, 10)
	assert.True(t, errors.Is(err, ErrNotFound))

	pid, pages, err := k.SpawnAndAllocate(ctx, "big", 1, 5000)
	assert.True(t, errors.Is(err, memory.ErrInsufficientMemory))
	assert.Nil(t, pages)
	p, perr := k.Process(pid)
	require.NoError(t, perr)
	assert.Equal(t, process.StateReady, p.State)
	assert.Equal(t, 4096, k.Memory().Available)

	_, err = k.Allocate(ctx, pid, -1)
	assert.True(t, errors.Is(err, memory.ErrInvalidSize))

	k.Kill(ctx, pid, false)
	_, err = k.Allocate(ctx, pid, 1)
	assert.True(t, errors.Is(err, ErrProcessTerminated))
}

func TestFree(t *testing.T) {
	k := defaultKernel(t)
	ctx := context.Background()
	pid, err := k.Spawn(ctx, "browser", 2, 0)
	require.NoError(t, err)
	_, err = k.Allocate(ctx, pid, 10000)
	require.NoError(t, err)
	assert.Equal(t, 3, k.Free(ctx, pid))
	assert.Zero(t, k.Free(ctx, pid))
	assert.Zero(t, k.Memory().LivePages)
}

func TestSpawnValidation(t *testing.T) {
	k := defaultKernel(t)
	_, err := k.Spawn(context.Background(), " ", 1, 1)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	pid, err := k.Spawn(context.Background(), "zero", 0, 0)
	require.NoError(t, err)
	p, _ := k.Process(pid)
	assert.Equal(t, 0, p.Priority)
	assert.Equal(t, 0, p.MemoryRequired)
}

type captureSink struct{ events []history.Event }

func (c *captureSink) Send(_ context.Context, e history.Event) error {
	c.events = append(c.events, e)
	return nil
}

func TestHistoryEvents(t *testing.T) {
	sink := &captureSink{}
	k := New(config.Default().Kernel, WithLogger(quiet()), WithSinks(sink))
	ctx := context.Background()
	spawnDemo(t, k)
	_, err := k.Allocate(ctx, 1, 1024)
	require.NoError(t, err)
	k.TickN(ctx, 10)
	k.Tick(ctx) // editor
	k.Kill(ctx, 2, true)

	require.NoError(t, k.Close(ctx))

	count := map[history.EventType]int{}
	for _, e := range sink.events {
		count[e.Type]++
	}
	assert.Equal(t, 4, count[history.EventCreated])
	assert.Equal(t, 11, count[history.EventScheduled])
	assert.Equal(t, 4, count[history.EventPreempted])
	assert.Equal(t, 3, count[history.EventTerminated])
	assert.Equal(t, 1, count[history.EventAllocated])
	assert.Equal(t, 0, count[history.EventFreed])

	var sawPlayerEnd bool
	for _, e := range sink.events {
		if e.Type == history.EventTerminated && e.PID == 4 {
			sawPlayerEnd = true
			assert.Equal(t, uint64(5), e.Tick)
			assert.Equal(t, 5, e.CPUTime)
		}
	}
	assert.True(t, sawPlayerEnd)

	recent := k.Events(3)
	assert.Len(t, recent, 3)
	assert.Equal(t, history.EventTerminated, recent[2].Type)
}

func TestTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	k := defaultKernel(t, WithTracerProvider(tp))
	ctx := context.Background()

	pid, err := k.Spawn(ctx, "browser", 2, 1024)
	require.NoError(t, err)
	_, err = k.Allocate(ctx, pid, 1024)
	require.NoError(t, err)
	k.Tick(ctx)
	k.Kill(ctx, pid, true)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"kernel.Spawn", "kernel.Allocate", "kernel.Tick", "kernel.Kill"}, names)
}

func TestBoot(t *testing.T) {
	a := auth.New(auth.WithBcryptCost(bcrypt.MinCost))
	k := defaultKernel(t, WithAuth(a))
	ctx := context.Background()
	require.NoError(t, k.Boot(ctx, config.Default()))

	_, err := k.Auth().Authenticate("admin", "admin123")
	require.NoError(t, err)
	content, err := k.FS().Read("readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "Welcome to NexusOS", content)

	// second boot reports existing users but still rewrites files
	err = k.Boot(ctx, config.Default())
	assert.True(t, errors.Is(err, auth.ErrUserExists))
}

func TestRunSimulation(t *testing.T) {
	k := defaultKernel(t)
	var observed int
	res, err := k.RunSimulation(context.Background(), Simulation{
		Workload: config.Default().Processes,
		Cycles:   10,
		OnTick:   func(scheduler.TickResult) { observed++ },
	})
	require.NoError(t, err)
	assert.Len(t, res, 10)
	assert.Equal(t, 10, observed)
	assert.Len(t, k.Processes(), 4)
	assert.Zero(t, k.Memory().LivePages)
}

func TestRunSimulationWithIntervalAndAllocation(t *testing.T) {
	k := defaultKernel(t)
	res, err := k.RunSimulation(context.Background(), Simulation{
		Workload: config.Default().Processes,
		Cycles:   3,
		Interval: time.Millisecond,
		Allocate: true,
	})
	require.NoError(t, err)
	assert.Len(t, res, 3)
	assert.Equal(t, 4, k.Memory().LivePages)
}

func TestRunSimulationCancelled(t *testing.T) {
	k := defaultKernel(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := k.RunSimulation(ctx, Simulation{Workload: config.Default().Processes, Cycles: 10})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, res)

	res, err = k.RunSimulation(ctx, Simulation{Cycles: 10, Interval: time.Hour})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, res)
}

func TestRunTickerRequiresSchedule(t *testing.T) {
	cfg := config.Default().Kernel
	cfg.TickSchedule = ""
	k := newKernel(t, cfg)
	assert.Error(t, k.RunTicker(context.Background()))
}

func TestRunTicker(t *testing.T) {
	cfg := config.Default().Kernel
	cfg.TickSchedule = "@every 2ms"
	k := newKernel(t, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, k.RunTicker(ctx))
	assert.Positive(t, k.SchedulerView().Tick)
}
