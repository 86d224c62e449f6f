package kernel

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/loykin/nexus/internal/memory"
	"github.com/loykin/nexus/internal/process"
)

// Stats summarises scheduling fairness and memory use.
type Stats struct {
	Ticks       uint64 `json:"ticks" yaml:"ticks"`
	IdleTicks   uint64 `json:"idle_ticks" yaml:"idle_ticks"`
	Preemptions uint64 `json:"preemptions" yaml:"preemptions"`
	Processes   int    `json:"processes" yaml:"processes"`
	Alive       int    `json:"alive" yaml:"alive"`
	Terminated  int    `json:"terminated" yaml:"terminated"`

	MeanCPUTime   float64 `json:"mean_cpu_time" yaml:"mean_cpu_time"`
	StdDevCPUTime float64 `json:"stddev_cpu_time" yaml:"stddev_cpu_time"`

	// Mean priority of live and terminated processes.
	MeanPriorityAlive      float64 `json:"mean_priority_alive" yaml:"mean_priority_alive"`
	MeanPriorityTerminated float64 `json:"mean_priority_terminated" yaml:"mean_priority_terminated"`

	// Starving lists Ready processes that have never run and have waited
	// at least the starvation threshold.
	Starving []int `json:"starving" yaml:"starving"`

	Memory memory.Report `json:"memory" yaml:"memory"`
}

func (k *Kernel) Stats() Stats {
	k.opMu.Lock()
	procs := k.sched.Processes()
	c := k.bridge.snapshot()
	mem := k.mem.Report()
	k.opMu.Unlock()
	return computeStats(procs, c, mem, k.starveAfter)
}

func computeStats(procs []process.Process, c counters, mem memory.Report, starveAfter uint64) Stats {
	s := Stats{
		Ticks:       c.ticks,
		IdleTicks:   c.idleTicks,
		Preemptions: c.preemptions,
		Processes:   len(procs),
		Starving:    []int{},
		Memory:      mem,
	}
	cpu := make([]float64, 0, len(procs))
	var alivePri, deadPri []float64
	for _, p := range procs {
		cpu = append(cpu, float64(p.CPUTimeUsed))
		if p.Alive() {
			s.Alive++
			alivePri = append(alivePri, float64(p.Priority))
		} else {
			s.Terminated++
			deadPri = append(deadPri, float64(p.Priority))
		}
		if p.State == process.StateReady && p.CPUTimeUsed == 0 && c.ticks-c.createdTick[p.PID] >= starveAfter {
			s.Starving = append(s.Starving, p.PID)
		}
	}
	s.MeanCPUTime, s.StdDevCPUTime = meanStdDev(cpu)
	s.MeanPriorityAlive = mean(alivePri)
	s.MeanPriorityTerminated = mean(deadPri)
	sort.Ints(s.Starving)
	return s
}

// meanStdDev returns zeros for empty input and a zero deviation for a
// single sample instead of NaN.
func meanStdDev(x []float64) (float64, float64) {
	switch len(x) {
	case 0:
		return 0, 0
	case 1:
		return x[0], 0
	}
	m, sd := stat.MeanStdDev(x, nil)
	if math.IsNaN(sd) {
		sd = 0
	}
	return m, sd
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}
