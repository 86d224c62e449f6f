package process

import (
	"fmt"
	"time"
)

const (
	DefaultPriority       = 1
	DefaultMemoryRequired = 1024
)

// Process is the process-table entry of a simulated process.
// MemoryRequired is informational; pages are reserved only by an explicit
// allocation against the memory manager.
type Process struct {
	PID            int       `json:"pid" yaml:"pid"`
	Name           string    `json:"name" yaml:"name"`
	State          State     `json:"state" yaml:"state"`
	Priority       int       `json:"priority" yaml:"priority"`
	MemoryRequired int       `json:"memory_required" yaml:"memory_required"`
	CPUTimeUsed    int       `json:"cpu_time_used" yaml:"cpu_time_used"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
}

func (p *Process) String() string {
	return fmt.Sprintf("PID: %d, Name: %s, State: %s", p.PID, p.Name, p.State)
}

// ID and Label let a process act as a memory owner.
func (p *Process) ID() int       { return p.PID }
func (p *Process) Label() string { return p.Name }

// Alive reports whether the process has not been terminated.
func (p *Process) Alive() bool { return p.State != StateTerminated }
