// Package kernel couples the scheduler and the page allocator into one
// simulated system and feeds metrics, history sinks and traces from it.
//
// The scheduler never touches memory. Pages are reserved by Allocate or
// SpawnAndAllocate and released only by Free, Kill with reclaim, or at
// termination when ReclaimOnExit is configured.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loykin/nexus/internal/auth"
	"github.com/loykin/nexus/internal/config"
	"github.com/loykin/nexus/internal/history"
	"github.com/loykin/nexus/internal/memory"
	"github.com/loykin/nexus/internal/metrics"
	"github.com/loykin/nexus/internal/process"
	"github.com/loykin/nexus/internal/scheduler"
	"github.com/loykin/nexus/internal/vfs"
)

const tracerName = "github.com/loykin/nexus/internal/kernel"

var (
	ErrNotFound          = errors.New("process not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrProcessTerminated = errors.New("process terminated")
)

type Kernel struct {
	cfg    config.KernelConfig
	sched  *scheduler.Scheduler
	mem    *memory.Manager
	fs     *vfs.FS
	auth   *auth.Service
	events *history.Dispatcher
	ring   *history.Ring
	bridge *bridge
	log    *slog.Logger
	tracer trace.Tracer

	// opMu serialises operations that touch both the scheduler and memory.
	opMu sync.Mutex

	sinks          []history.Sink
	ringSize       int
	starveAfter    uint64
	tracerProvider trace.TracerProvider
}

type Option func(*Kernel)

func WithLogger(l *slog.Logger) Option {
	return func(k *Kernel) {
		if l != nil {
			k.log = l
		}
	}
}

// WithSinks adds history sinks. Events reach them asynchronously.
func WithSinks(sinks ...history.Sink) Option {
	return func(k *Kernel) { k.sinks = append(k.sinks, sinks...) }
}

func WithFS(fs *vfs.FS) Option { return func(k *Kernel) { k.fs = fs } }

func WithAuth(a *auth.Service) Option { return func(k *Kernel) { k.auth = a } }

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(k *Kernel) { k.tracerProvider = tp }
}

// WithRingSize sets how many recent events Events can return.
func WithRingSize(n int) Option { return func(k *Kernel) { k.ringSize = n } }

// WithStarvationThreshold sets how many ticks a never-run Ready process may
// wait before Stats reports it as starving.
func WithStarvationThreshold(ticks uint64) Option {
	return func(k *Kernel) { k.starveAfter = ticks }
}

// New builds a kernel from cfg. Zero fields in cfg use the package defaults.
func New(cfg config.KernelConfig, opts ...Option) *Kernel {
	k := &Kernel{
		cfg:         cfg,
		log:         slog.Default(),
		ringSize:    256,
		starveAfter: 10,
	}
	for _, o := range opts {
		o(k)
	}
	if k.fs == nil {
		k.fs = vfs.New(nil)
	}
	if k.auth == nil {
		k.auth = auth.New()
	}
	if k.tracerProvider == nil {
		k.tracerProvider = otel.GetTracerProvider()
	}
	k.tracer = k.tracerProvider.Tracer(tracerName)

	k.ring = history.NewRing(k.ringSize)
	k.events = history.NewDispatcher(k.log, append([]history.Sink{k.ring}, k.sinks...)...)
	k.bridge = newBridge(k.events)

	var memOpts []memory.Option
	memOpts = append(memOpts, memory.WithLogger(k.log))
	if cfg.PageSize > 0 {
		memOpts = append(memOpts, memory.WithPageSize(cfg.PageSize))
	}
	k.mem = memory.New(cfg.TotalMemory, memOpts...)
	k.sched = scheduler.New(scheduler.Options{
		Quantum:    cfg.Quantum,
		MaxCPUTime: cfg.MaxCPUTime,
		Logger:     k.log,
		Observer:   k.bridge,
	})
	k.syncMemoryGauges()
	return k
}

// Close flushes pending history events and closes the sinks.
func (k *Kernel) Close(ctx context.Context) error {
	return k.events.Close(ctx)
}

func (k *Kernel) FS() *vfs.FS                 { return k.fs }
func (k *Kernel) Auth() *auth.Service         { return k.auth }
func (k *Kernel) Config() config.KernelConfig { return k.cfg }

// Spawn creates a process in the Ready state. It does not reserve memory.
func (k *Kernel) Spawn(ctx context.Context, name string, priority, memoryRequired int) (int, error) {
	_, span := k.tracer.Start(ctx, "kernel.Spawn", trace.WithAttributes(
		attribute.String("process.name", name),
		attribute.Int("process.priority", priority)))
	defer span.End()

	if strings.TrimSpace(name) == "" {
		err := fmt.Errorf("%w: process name is required", ErrInvalidArgument)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	k.opMu.Lock()
	pid := k.sched.CreateProcess(name, priority, memoryRequired)
	k.opMu.Unlock()
	span.SetAttributes(attribute.Int("process.pid", pid))
	k.syncQueueGauge()
	return pid, nil
}

// SpawnAndAllocate creates a process and reserves its MemoryRequired bytes.
// When memory is short the process stays created without pages and the
// allocation error is returned together with the pid.
func (k *Kernel) SpawnAndAllocate(ctx context.Context, name string, priority, memoryRequired int) (int, []int, error) {
	pid, err := k.Spawn(ctx, name, priority, memoryRequired)
	if err != nil {
		return 0, nil, err
	}
	p, _ := k.sched.Process(pid)
	pages, err := k.Allocate(ctx, pid, p.MemoryRequired)
	return pid, pages, err
}

// Allocate reserves size bytes for a live process.
func (k *Kernel) Allocate(ctx context.Context, pid, size int) ([]int, error) {
	_, span := k.tracer.Start(ctx, "kernel.Allocate", trace.WithAttributes(
		attribute.Int("process.pid", pid),
		attribute.Int("memory.size", size)))
	defer span.End()

	k.opMu.Lock()
	defer k.opMu.Unlock()
	p, ok := k.sched.Process(pid)
	if !ok {
		err := fmt.Errorf("%w: pid %d", ErrNotFound, pid)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !p.Alive() {
		err := fmt.Errorf("%w: pid %d", ErrProcessTerminated, pid)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	pages, err := k.mem.Allocate(&p, size)
	if err != nil {
		if errors.Is(err, memory.ErrInsufficientMemory) {
			metrics.IncAllocFailure()
			k.publish(p, history.EventAllocFailed, 0, err.Error())
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	metrics.AddPagesAllocated(len(pages))
	k.syncMemoryGauges()
	k.publish(p, history.EventAllocated, len(pages), fmt.Sprintf("%d bytes", size))
	span.SetAttributes(attribute.Int("memory.pages", len(pages)))
	return pages, nil
}

// Free releases every page owned by pid and returns how many were freed.
func (k *Kernel) Free(ctx context.Context, pid int) int {
	_, span := k.tracer.Start(ctx, "kernel.Free", trace.WithAttributes(attribute.Int("process.pid", pid)))
	defer span.End()
	k.opMu.Lock()
	defer k.opMu.Unlock()
	n := k.free(pid)
	span.SetAttributes(attribute.Int("memory.pages", n))
	return n
}

func (k *Kernel) free(pid int) int {
	n := k.mem.Free(pid)
	if n == 0 {
		return 0
	}
	metrics.AddPagesFreed(n)
	k.syncMemoryGauges()
	p, ok := k.sched.Process(pid)
	if !ok {
		p = process.Process{PID: pid}
	}
	k.publish(p, history.EventFreed, n, "")
	return n
}

// Kill terminates pid. Unknown or already terminated pids are ignored.
// Pages are released only when reclaim is true; the freed count is returned.
func (k *Kernel) Kill(ctx context.Context, pid int, reclaim bool) int {
	_, span := k.tracer.Start(ctx, "kernel.Kill", trace.WithAttributes(
		attribute.Int("process.pid", pid),
		attribute.Bool("reclaim", reclaim)))
	defer span.End()

	k.opMu.Lock()
	defer k.opMu.Unlock()
	before, known := k.sched.Process(pid)
	k.sched.TerminateProcess(pid)
	if known && before.Alive() {
		after, _ := k.sched.Process(pid)
		k.publish(after, history.EventTerminated, len(k.mem.Pages(pid)), "killed")
	}
	k.syncQueueGauge()
	if !reclaim && !k.cfg.ReclaimOnExit {
		return 0
	}
	n := k.free(pid)
	span.SetAttributes(attribute.Int("memory.pages", n))
	return n
}

// Tick runs one scheduler cycle.
func (k *Kernel) Tick(ctx context.Context) scheduler.TickResult {
	_, span := k.tracer.Start(ctx, "kernel.Tick")
	defer span.End()

	k.opMu.Lock()
	defer k.opMu.Unlock()
	res := k.sched.ExecuteCycle()
	span.SetAttributes(
		attribute.Int64("tick", int64(res.Tick)),
		attribute.Bool("idle", res.Idle))
	if res.Process != nil {
		span.SetAttributes(
			attribute.Int("process.pid", res.Process.PID),
			attribute.String("process.name", res.Process.Name),
			attribute.Bool("terminated", res.Terminated))
		if res.Terminated && k.cfg.ReclaimOnExit {
			k.free(res.Process.PID)
		}
	}
	k.syncQueueGauge()
	return res
}

// TickN runs n cycles, stopping early when ctx is cancelled.
func (k *Kernel) TickN(ctx context.Context, n int) []scheduler.TickResult {
	out := make([]scheduler.TickResult, 0, max(n, 0))
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		out = append(out, k.Tick(ctx))
	}
	return out
}

func (k *Kernel) Process(pid int) (process.Process, error) {
	p, ok := k.sched.Process(pid)
	if !ok {
		return process.Process{}, fmt.Errorf("%w: pid %d", ErrNotFound, pid)
	}
	return p, nil
}

func (k *Kernel) Processes() []process.Process { return k.sched.Processes() }

// Pages lists the page ids owned by pid.
func (k *Kernel) Pages(pid int) []int { return k.mem.Pages(pid) }

func (k *Kernel) Memory() memory.Report { return k.mem.Report() }

// Events returns the most recent history events, oldest first.
func (k *Kernel) Events(limit int) []history.Event { return k.ring.Events(limit) }

// SchedulerView is a point-in-time picture of the CPU and ready queue.
type SchedulerView struct {
	Tick       uint64           `json:"tick" yaml:"tick"`
	Quantum    int              `json:"quantum" yaml:"quantum"`
	MaxCPUTime int              `json:"max_cpu_time" yaml:"max_cpu_time"`
	Running    *process.Process `json:"running,omitempty" yaml:"running,omitempty"`
	Ready      []int            `json:"ready" yaml:"ready"`
}

func (k *Kernel) SchedulerView() SchedulerView {
	k.opMu.Lock()
	defer k.opMu.Unlock()
	v := SchedulerView{
		Tick:       k.sched.Ticks(),
		Quantum:    k.sched.Quantum(),
		MaxCPUTime: k.sched.MaxCPUTime(),
		Ready:      k.sched.ReadyQueue(),
	}
	if p, ok := k.sched.Running(); ok {
		v.Running = &p
	}
	return v
}

func (k *Kernel) publish(p process.Process, t history.EventType, pages int, detail string) {
	e := event(t, k.sched.Ticks(), p, detail)
	e.Pages = pages
	k.events.Publish(e)
}

func (k *Kernel) syncMemoryGauges() {
	r := k.mem.Report()
	metrics.SetMemory(r.Available, r.LivePages)
}

func (k *Kernel) syncQueueGauge() {
	metrics.SetReadyQueueLength(len(k.sched.ReadyQueue()))
}
