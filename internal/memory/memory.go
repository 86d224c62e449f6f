package memory

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	DefaultPageSize    = 4096
	DefaultTotalMemory = 1024 * 1024
)

var (
	// ErrInsufficientMemory is returned when a request exceeds the available bytes.
	ErrInsufficientMemory = errors.New("insufficient memory")
	// ErrInvalidSize is returned for negative allocation sizes.
	ErrInvalidSize = errors.New("invalid allocation size")
)

// Owner is whatever holds pages, in practice a process-table entry.
type Owner interface {
	ID() int
	Label() string
}

// Page is the unit of allocation.
type Page struct {
	ID          int       `json:"page_id"`
	OwnerPID    int       `json:"owner_pid"`
	AllocatedAt time.Time `json:"allocated_at"`
}

// Report is a read-only snapshot for display layers.
type Report struct {
	Total         int     `json:"total" yaml:"total"`
	Available     int     `json:"available" yaml:"available"`
	Used          int     `json:"used" yaml:"used"`
	PageSize      int     `json:"page_size" yaml:"page_size"`
	LivePages     int     `json:"live_pages" yaml:"live_pages"`
	Fragmentation float64 `json:"fragmentation" yaml:"fragmentation"`
}

// Manager owns the page map. Page ids come from a global counter and are
// never handed out twice, even after the page is freed.
//
// Invariant: LivePages*PageSize + Available == Total.
type Manager struct {
	mu        sync.Mutex
	total     int
	available int
	pageSize  int
	pages     map[int]Page
	byOwner   map[int][]int
	nextID    int
	log       *slog.Logger
	now       func() time.Time
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func WithPageSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.pageSize = n
		}
	}
}

// New builds a manager with total bytes of physical memory.
// A non-positive total falls back to DefaultTotalMemory.
func New(total int, opts ...Option) *Manager {
	if total <= 0 {
		total = DefaultTotalMemory
	}
	m := &Manager{
		total:     total,
		available: total,
		pageSize:  DefaultPageSize,
		pages:     make(map[int]Page),
		byOwner:   make(map[int][]int),
		log:       slog.Default(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// PagesFor returns ceil(size/pageSize).
func (m *Manager) PagesFor(size int) int {
	if size <= 0 {
		return 0
	}
	return (size + m.pageSize - 1) / m.pageSize
}

// Allocate reserves ceil(size/pageSize) pages for owner and returns their ids.
//
// The availability check compares the raw byte size against the available
// bytes, while the decrement uses the rounded page cost. A request just under
// a page boundary can therefore pass even when its page cost does not fit.
// On error nothing changes.
func (m *Manager) Allocate(owner Owner, size int) ([]int, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if size > m.available {
		m.log.Warn("allocation rejected",
			slog.Int("pid", owner.ID()),
			slog.String("name", owner.Label()),
			slog.Int("requested", size),
			slog.Int("available", m.available))
		return nil, fmt.Errorf("%w: requested %d bytes, %d available", ErrInsufficientMemory, size, m.available)
	}
	need := m.PagesFor(size)
	ids := make([]int, 0, need)
	at := m.now()
	for i := 0; i < need; i++ {
		id := m.nextID
		m.nextID++
		m.pages[id] = Page{ID: id, OwnerPID: owner.ID(), AllocatedAt: at}
		ids = append(ids, id)
	}
	if need > 0 {
		m.byOwner[owner.ID()] = append(m.byOwner[owner.ID()], ids...)
	}
	m.available -= need * m.pageSize
	m.log.Info("memory allocated",
		slog.Int("pid", owner.ID()),
		slog.String("name", owner.Label()),
		slog.Int("pages", need))
	return ids, nil
}

// Free releases every page owned by pid and returns how many were freed.
func (m *Manager) Free(pid int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.byOwner[pid]
	for _, id := range ids {
		delete(m.pages, id)
		m.available += m.pageSize
	}
	delete(m.byOwner, pid)
	m.log.Info("memory freed", slog.Int("pid", pid), slog.Int("pages", len(ids)))
	return len(ids)
}

// Pages lists the page ids held by pid in ascending order.
func (m *Manager) Pages(pid int) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]int(nil), m.byOwner[pid]...)
	sort.Ints(out)
	return out
}

// Page looks up a live page.
func (m *Manager) Page(id int) (Page, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[id]
	return p, ok
}

// Owners returns the pids holding at least one page, ascending.
func (m *Manager) Owners() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, 0, len(m.byOwner))
	for pid := range m.byOwner {
		out = append(out, pid)
	}
	sort.Ints(out)
	return out
}

func (m *Manager) PageSize() int { return m.pageSize }

func (m *Manager) Report() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Report{
		Total:         m.total,
		Available:     m.available,
		Used:          m.total - m.available,
		PageSize:      m.pageSize,
		LivePages:     len(m.pages),
		Fragmentation: m.fragmentation(),
	}
}

// FragmentationRatio is the share of the page-id space issued so far that
// is now holes left by freed pages. Ids are never compacted.
func (m *Manager) FragmentationRatio() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fragmentation()
}

func (m *Manager) fragmentation() float64 {
	if m.nextID == 0 {
		return 0
	}
	return float64(m.nextID-len(m.pages)) / float64(m.nextID)
}
