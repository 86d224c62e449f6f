package client

import "time"

type Process struct {
	PID            int       `json:"pid" yaml:"pid"`
	Name           string    `json:"name" yaml:"name"`
	State          string    `json:"state" yaml:"state"`
	Priority       int       `json:"priority" yaml:"priority"`
	MemoryRequired int       `json:"memory_required" yaml:"memory_required"`
	CPUTimeUsed    int       `json:"cpu_time_used" yaml:"cpu_time_used"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
}

type ProcessInfo struct {
	Process `yaml:",inline"`
	Pages   []int `json:"pages" yaml:"pages"`
}

// SpawnRequest is sent as given: a zero Priority or Memory reaches the
// daemon as an explicit zero, not as an omitted field.
type SpawnRequest struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Memory   int    `json:"memory"`
	Allocate bool   `json:"allocate,omitempty"`
}

type SpawnResponse struct {
	PID   int   `json:"pid" yaml:"pid"`
	Pages []int `json:"pages,omitempty" yaml:"pages,omitempty"`
}

type MemoryResponse struct {
	PID   int   `json:"pid" yaml:"pid"`
	Pages []int `json:"pages,omitempty" yaml:"pages,omitempty"`
	Freed int   `json:"freed" yaml:"freed"`
}

type TickResult struct {
	Tick       uint64   `json:"tick" yaml:"tick"`
	Process    *Process `json:"process,omitempty" yaml:"process,omitempty"`
	Idle       bool     `json:"idle" yaml:"idle"`
	Terminated bool     `json:"terminated" yaml:"terminated"`
}

type MemoryReport struct {
	Total         int     `json:"total" yaml:"total"`
	Available     int     `json:"available" yaml:"available"`
	Used          int     `json:"used" yaml:"used"`
	PageSize      int     `json:"page_size" yaml:"page_size"`
	LivePages     int     `json:"live_pages" yaml:"live_pages"`
	Fragmentation float64 `json:"fragmentation" yaml:"fragmentation"`
}

type SchedulerView struct {
	Tick       uint64   `json:"tick" yaml:"tick"`
	Quantum    int      `json:"quantum" yaml:"quantum"`
	MaxCPUTime int      `json:"max_cpu_time" yaml:"max_cpu_time"`
	Running    *Process `json:"running,omitempty" yaml:"running,omitempty"`
	Ready      []int    `json:"ready" yaml:"ready"`
}

type Session struct {
	ID        string    `json:"session_id" yaml:"session_id"`
	Username  string    `json:"username" yaml:"username"`
	LoginTime time.Time `json:"login_time" yaml:"login_time"`
}

type FileEntry struct {
	Name    string    `json:"name" yaml:"name"`
	Path    string    `json:"path" yaml:"path"`
	Size    int64     `json:"size" yaml:"size"`
	IsDir   bool      `json:"is_dir" yaml:"is_dir"`
	ModTime time.Time `json:"modified_at" yaml:"modified_at"`
}

// ErrorResponse is the body the daemon sends with non-2xx statuses.
type ErrorResponse struct {
	Error string `json:"error"`
	PID   int    `json:"pid,omitempty"`
}
