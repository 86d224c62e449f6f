package ticker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	d, err := ParseSchedule(" @every 250ms ")
	if err != nil || d != 250*time.Millisecond {
		t.Fatalf("got %v %v", d, err)
	}
	for _, bad := range []string{"every 1s", "@every -1s", "@every 0s", "@every soon", "* * * * *"} {
		if _, err := ParseSchedule(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestDriverMaxRuns(t *testing.T) {
	var seen []uint64
	d, err := New(time.Millisecond, func(_ context.Context, n uint64) { seen = append(seen, n) }, WithMaxRuns(3))
	if err != nil {
		t.Fatal(err)
	}
	if got := d.Run(context.Background()); got != 3 {
		t.Fatalf("expected 3 runs, got %d", got)
	}
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Fatalf("unexpected run numbers %v", seen)
	}
}

func TestDriverCancel(t *testing.T) {
	var calls atomic.Int64
	d, err := FromSchedule("@every 5ms", func(context.Context, uint64) { calls.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	done := make(chan uint64)
	go func() { done <- d.Run(ctx) }()
	select {
	case n := <-done:
		if int64(n) != calls.Load() {
			t.Fatalf("returned %d runs but func saw %d", n, calls.Load())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not stop on cancel")
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New(0, func(context.Context, uint64) {}); err == nil {
		t.Fatal("expected error for zero period")
	}
	if _, err := New(time.Second, nil); err == nil {
		t.Fatal("expected error for nil func")
	}
	if _, err := FromSchedule("bad", func(context.Context, uint64) {}); err == nil {
		t.Fatal("expected schedule error")
	}
}
