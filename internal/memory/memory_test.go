package memory

import (
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"testing"
)

type owner struct {
	pid  int
	name string
}

func (o owner) ID() int       { return o.pid }
func (o owner) Label() string { return o.name }

func quiet() Option { return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))) }

func TestAllocateRoundsUpToPages(t *testing.T) {
	m := New(DefaultTotalMemory, quiet())
	ids, err := m.Allocate(owner{1, "a"}, 5000)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(ids))
	}
	r := m.Report()
	if r.Available != DefaultTotalMemory-8192 {
		t.Fatalf("expected available decremented by 8192, got %d", DefaultTotalMemory-r.Available)
	}
}

func TestAllocateInsufficientLeavesStateUnchanged(t *testing.T) {
	m := New(3*DefaultPageSize, quiet())
	if _, err := m.Allocate(owner{1, "a"}, DefaultPageSize); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	before := m.Report()
	_, err := m.Allocate(owner{2, "b"}, before.Available+1)
	if !errors.Is(err, ErrInsufficientMemory) {
		t.Fatalf("expected ErrInsufficientMemory, got %v", err)
	}
	after := m.Report()
	if before != after {
		t.Fatalf("state changed on failure: %+v -> %+v", before, after)
	}
	if len(m.Pages(2)) != 0 {
		t.Fatalf("failed owner holds pages")
	}
}

func TestAllocateComparesRawBytes(t *testing.T) {
	// 4097 bytes available, request 4097 bytes: raw check passes, page cost is 8192.
	m := New(DefaultPageSize+1, quiet())
	ids, err := m.Allocate(owner{1, "edge"}, DefaultPageSize+1)
	if err != nil {
		t.Fatalf("raw byte comparison should accept: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(ids))
	}
	r := m.Report()
	if r.Available != DefaultPageSize+1-2*DefaultPageSize {
		t.Fatalf("unexpected available %d", r.Available)
	}
	if r.Used+r.Available != r.Total {
		t.Fatalf("conservation broken: %+v", r)
	}
}

func TestAllocateZeroAndNegative(t *testing.T) {
	m := New(0, quiet())
	ids, err := m.Allocate(owner{1, "z"}, 0)
	if err != nil || len(ids) != 0 {
		t.Fatalf("zero size: ids=%v err=%v", ids, err)
	}
	if _, err := m.Allocate(owner{1, "z"}, -1); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
	if m.Report().Total != DefaultTotalMemory {
		t.Fatalf("default total not applied")
	}
}

func TestFreeReturnsPagesAndNeverReusesIDs(t *testing.T) {
	m := New(DefaultTotalMemory, quiet())
	first, _ := m.Allocate(owner{1, "a"}, 3*DefaultPageSize)
	if n := m.Free(1); n != 3 {
		t.Fatalf("expected 3 pages freed, got %d", n)
	}
	if n := m.Free(1); n != 0 {
		t.Fatalf("second free should be a no-op, freed %d", n)
	}
	second, _ := m.Allocate(owner{2, "b"}, DefaultPageSize)
	for _, id := range first {
		if id == second[0] {
			t.Fatalf("page id %d reissued", id)
		}
	}
	r := m.Report()
	if r.LivePages != 1 || r.Available != DefaultTotalMemory-DefaultPageSize {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.Fragmentation != 0.75 {
		t.Fatalf("expected 3/4 of issued ids to be holes, got %v", r.Fragmentation)
	}
	if f := m.FragmentationRatio(); f != r.Fragmentation {
		t.Fatalf("FragmentationRatio %v disagrees with report %v", f, r.Fragmentation)
	}
}

func TestFragmentationRatioEmpty(t *testing.T) {
	m := New(DefaultTotalMemory, quiet())
	if f := m.FragmentationRatio(); f != 0 {
		t.Fatalf("no ids issued yet, got %v", f)
	}
	if _, err := m.Allocate(owner{1, "a"}, 2*DefaultPageSize); err != nil {
		t.Fatal(err)
	}
	if f := m.FragmentationRatio(); f != 0 {
		t.Fatalf("no holes yet, got %v", f)
	}
	m.Free(1)
	if f := m.FragmentationRatio(); f != 1 {
		t.Fatalf("every issued id is a hole, got %v", f)
	}
}

func TestFreeUnknownOwner(t *testing.T) {
	m := New(DefaultTotalMemory, quiet())
	if n := m.Free(404); n != 0 {
		t.Fatalf("expected no pages freed, got %d", n)
	}
}

func TestMemoryConservationRandomized(t *testing.T) {
	m := New(64*DefaultPageSize, quiet())
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		pid := rng.Intn(8) + 1
		if rng.Intn(3) == 0 {
			m.Free(pid)
		} else {
			_, _ = m.Allocate(owner{pid, "r"}, rng.Intn(3*DefaultPageSize))
		}
		r := m.Report()
		if r.Available+DefaultPageSize*r.LivePages != r.Total {
			t.Fatalf("step %d: available %d + %d pages != total %d", i, r.Available, r.LivePages, r.Total)
		}
	}
}

func TestPagesAndOwners(t *testing.T) {
	m := New(DefaultTotalMemory, quiet())
	_, _ = m.Allocate(owner{3, "c"}, 1)
	_, _ = m.Allocate(owner{1, "a"}, 2*DefaultPageSize)
	if got := m.Owners(); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("unexpected owners %v", got)
	}
	pages := m.Pages(1)
	if len(pages) != 2 || pages[0] >= pages[1] {
		t.Fatalf("unexpected pages %v", pages)
	}
	p, ok := m.Page(pages[0])
	if !ok || p.OwnerPID != 1 {
		t.Fatalf("page lookup failed: %+v", p)
	}
}
