package ticker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ParseSchedule parses schedules of the form "@every <duration>".
func ParseSchedule(expr string) (time.Duration, error) {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "@every ") {
		return 0, fmt.Errorf("unsupported schedule: %s (only @every <duration> supported)", expr)
	}
	d, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(expr, "@every ")))
	if err != nil {
		return 0, fmt.Errorf("invalid @every duration: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("@every duration must be > 0")
	}
	return d, nil
}

// Func is invoked once per period with the 1-based run number.
type Func func(ctx context.Context, n uint64)

// Driver calls a Func on a fixed period. Runs never overlap: a slow run
// delays the next one instead of stacking.
type Driver struct {
	period  time.Duration
	fn      Func
	maxRuns uint64
	log     *slog.Logger
}

type Option func(*Driver)

// WithMaxRuns stops the driver after n runs. Zero means unbounded.
func WithMaxRuns(n uint64) Option { return func(d *Driver) { d.maxRuns = n } }

func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.log = l
		}
	}
}

func New(period time.Duration, fn Func, opts ...Option) (*Driver, error) {
	if period <= 0 {
		return nil, fmt.Errorf("ticker period must be > 0")
	}
	if fn == nil {
		return nil, fmt.Errorf("ticker func is nil")
	}
	d := &Driver{period: period, fn: fn, log: slog.Default()}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// FromSchedule builds a Driver from an "@every" expression.
func FromSchedule(expr string, fn Func, opts ...Option) (*Driver, error) {
	p, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	return New(p, fn, opts...)
}

func (d *Driver) Period() time.Duration { return d.period }

// Run blocks until ctx is cancelled or the run limit is reached and returns
// the number of completed runs. Cancellation is not an error.
func (d *Driver) Run(ctx context.Context) uint64 {
	t := time.NewTicker(d.period)
	defer t.Stop()
	var n uint64
	for {
		if d.maxRuns > 0 && n >= d.maxRuns {
			return n
		}
		select {
		case <-ctx.Done():
			d.log.Debug("tick driver stopped", slog.Uint64("runs", n))
			return n
		case <-t.C:
			n++
			d.fn(ctx, n)
		}
	}
}
