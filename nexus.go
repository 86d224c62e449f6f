package nexus

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/nexus/internal/config"
	"github.com/loykin/nexus/internal/history"
	"github.com/loykin/nexus/internal/history/factory"
	"github.com/loykin/nexus/internal/kernel"
	"github.com/loykin/nexus/internal/memory"
	"github.com/loykin/nexus/internal/metrics"
	"github.com/loykin/nexus/internal/process"
	"github.com/loykin/nexus/internal/scheduler"
	iapi "github.com/loykin/nexus/internal/server"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Process = process.Process

type State = process.State

type TickResult = scheduler.TickResult

type MemoryReport = memory.Report

type Stats = kernel.Stats

type SchedulerView = kernel.SchedulerView

type Simulation = kernel.Simulation

type Config = cfg.Config

type KernelConfig = cfg.KernelConfig

type ProcConfig = cfg.ProcConfig

type HistorySink = history.Sink

type HistoryEvent = history.Event

type Option = kernel.Option

var (
	ErrNotFound           = kernel.ErrNotFound
	ErrInvalidArgument    = kernel.ErrInvalidArgument
	ErrProcessTerminated  = kernel.ErrProcessTerminated
	ErrInsufficientMemory = memory.ErrInsufficientMemory
	ErrInvalidSize        = memory.ErrInvalidSize
)

// System is a thin facade over internal/kernel.Kernel.
// It provides a stable public API for embedding.
type System struct{ inner *kernel.Kernel }

func New(c KernelConfig, opts ...Option) *System { return &System{inner: kernel.New(c, opts...)} }

// NewDefault builds a system with the built-in kernel settings.
func NewDefault(opts ...Option) *System { return New(cfg.Default().Kernel, opts...) }

func WithSinks(sinks ...HistorySink) Option { return kernel.WithSinks(sinks...) }

func (s *System) Boot(ctx context.Context, c *Config) error { return s.inner.Boot(ctx, c) }
func (s *System) Close(ctx context.Context) error           { return s.inner.Close(ctx) }
func (s *System) Spawn(ctx context.Context, name string, priority, memory int) (int, error) {
	return s.inner.Spawn(ctx, name, priority, memory)
}
func (s *System) Allocate(ctx context.Context, pid, size int) ([]int, error) {
	return s.inner.Allocate(ctx, pid, size)
}
func (s *System) Free(ctx context.Context, pid int) int { return s.inner.Free(ctx, pid) }
func (s *System) Kill(ctx context.Context, pid int, reclaim bool) int {
	return s.inner.Kill(ctx, pid, reclaim)
}
func (s *System) Tick(ctx context.Context) TickResult           { return s.inner.Tick(ctx) }
func (s *System) TickN(ctx context.Context, n int) []TickResult { return s.inner.TickN(ctx, n) }
func (s *System) Process(pid int) (Process, error)              { return s.inner.Process(pid) }
func (s *System) Processes() []Process                          { return s.inner.Processes() }
func (s *System) Pages(pid int) []int                           { return s.inner.Pages(pid) }
func (s *System) Memory() MemoryReport                          { return s.inner.Memory() }
func (s *System) SchedulerView() SchedulerView                  { return s.inner.SchedulerView() }
func (s *System) Stats() Stats                                  { return s.inner.Stats() }
func (s *System) Events(limit int) []HistoryEvent               { return s.inner.Events(limit) }
func (s *System) RunSimulation(ctx context.Context, sim Simulation) ([]TickResult, error) {
	return s.inner.RunSimulation(ctx, sim)
}

func LoadConfig(path string) (*Config, error) { return cfg.LoadConfig(path) }

func DefaultConfig() *Config { return cfg.Default() }

// NewHistorySink opens a sink by DSN scheme (sqlite, postgres, clickhouse, opensearch).
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// NewHTTPServer starts an HTTP server exposing the API for the given system.
func NewHTTPServer(addr, basePath string, s *System) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, s.inner)
}

// Handler returns the API as an http.Handler for mounting in another server.
func Handler(basePath string, s *System) http.Handler {
	return iapi.NewRouter(s.inner, basePath).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics serves /metrics from the default registry on addr.
// It blocks until the server stops.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
