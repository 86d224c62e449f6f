package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	ticks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Number of executed simulation ticks.",
		},
	)
	idleTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "scheduler",
			Name:      "idle_ticks_total",
			Help:      "Ticks with no process to run.",
		},
	)
	preemptions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "scheduler",
			Name:      "preemptions_total",
			Help:      "Processes re-queued after exhausting their quantum.",
		},
	)
	readyQueueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nexus",
			Subsystem: "scheduler",
			Name:      "ready_queue_length",
			Help:      "Processes waiting in the ready queue.",
		},
	)
	processesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "process",
			Name:      "created_total",
			Help:      "Number of created processes.",
		},
	)
	processesTerminated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "process",
			Name:      "terminated_total",
			Help:      "Number of terminated processes.",
		},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "process",
			Name:      "state_transitions_total",
			Help:      "Number of state transitions between process states.",
		}, []string{"from", "to"},
	)
	cpuTime = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "process",
			Name:      "cpu_ticks_total",
			Help:      "CPU ticks consumed, by process name.",
		}, []string{"name"},
	)
	memoryAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nexus",
			Subsystem: "memory",
			Name:      "available_bytes",
			Help:      "Bytes not held by any page.",
		},
	)
	memoryLivePages = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nexus",
			Subsystem: "memory",
			Name:      "live_pages",
			Help:      "Pages currently allocated.",
		},
	)
	allocFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "memory",
			Name:      "allocation_failures_total",
			Help:      "Allocations rejected for insufficient memory.",
		},
	)
	pagesAllocated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "memory",
			Name:      "pages_allocated_total",
			Help:      "Pages handed out.",
		},
	)
	pagesFreed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "memory",
			Name:      "pages_freed_total",
			Help:      "Pages returned.",
		},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		ticks, idleTicks, preemptions, readyQueueLength,
		processesCreated, processesTerminated, stateTransitions, cpuTime,
		memoryAvailable, memoryLivePages, allocFailures, pagesAllocated, pagesFreed,
	}
}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	for _, c := range collectors() {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncTick(idle bool) {
	if regOK.Load() {
		ticks.Inc()
		if idle {
			idleTicks.Inc()
		}
	}
}

func IncPreemption() {
	if regOK.Load() {
		preemptions.Inc()
	}
}

func SetReadyQueueLength(n int) {
	if regOK.Load() {
		readyQueueLength.Set(float64(n))
	}
}

func IncCreated() {
	if regOK.Load() {
		processesCreated.Inc()
	}
}

func IncTerminated() {
	if regOK.Load() {
		processesTerminated.Inc()
	}
}

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

func AddCPUTick(name string) {
	if regOK.Load() {
		cpuTime.WithLabelValues(name).Inc()
	}
}

// SetMemory publishes the allocator's current totals.
func SetMemory(available, livePages int) {
	if regOK.Load() {
		memoryAvailable.Set(float64(available))
		memoryLivePages.Set(float64(livePages))
	}
}

func IncAllocFailure() {
	if regOK.Load() {
		allocFailures.Inc()
	}
}

func AddPagesAllocated(n int) {
	if regOK.Load() && n > 0 {
		pagesAllocated.Add(float64(n))
	}
}

func AddPagesFreed(n int) {
	if regOK.Load() && n > 0 {
		pagesFreed.Add(float64(n))
	}
}
