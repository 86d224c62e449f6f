package process

import (
	"sort"
	"time"
)

// Table owns every Process record by pid. It has no scheduling behaviour.
// Pids start at 1, grow monotonically and are never reused.
// Table is not safe for concurrent use; its owner serialises access.
type Table struct {
	procs   map[int]*Process
	nextPID int
	now     func() time.Time
}

func NewTable() *Table {
	return &Table{procs: make(map[int]*Process), nextPID: 1, now: time.Now}
}

// Create inserts a new record in StateNew and returns it. Priority and
// memory are stored as given; callers apply defaults for omitted values.
func (t *Table) Create(name string, priority, memoryRequired int) *Process {
	p := &Process{
		PID:            t.nextPID,
		Name:           name,
		State:          StateNew,
		Priority:       priority,
		MemoryRequired: memoryRequired,
		CreatedAt:      t.now(),
	}
	t.procs[p.PID] = p
	t.nextPID++
	return p
}

// Get is the process directory query.
func (t *Table) Get(pid int) (*Process, bool) {
	p, ok := t.procs[pid]
	return p, ok
}

// Snapshot returns a value copy of the record.
func (t *Table) Snapshot(pid int) (Process, bool) {
	p, ok := t.procs[pid]
	if !ok {
		return Process{}, false
	}
	return *p, true
}

// Remove drops the record. The pid stays consumed.
func (t *Table) Remove(pid int) bool {
	if _, ok := t.procs[pid]; !ok {
		return false
	}
	delete(t.procs, pid)
	return true
}

// List returns copies of all records ordered by pid.
func (t *Table) List() []Process {
	out := make([]Process, 0, len(t.procs))
	for _, p := range t.procs {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

func (t *Table) Len() int { return len(t.procs) }
