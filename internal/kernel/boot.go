package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/nexus/internal/config"
	"github.com/loykin/nexus/internal/scheduler"
	"github.com/loykin/nexus/internal/ticker"
)

// Boot seeds user accounts and files. Existing users are left untouched.
func (k *Kernel) Boot(ctx context.Context, cfg *config.Config) error {
	_, span := k.tracer.Start(ctx, "kernel.Boot")
	defer span.End()

	var errs []error
	for _, u := range cfg.Users {
		if err := k.auth.CreateUser(u.Username, u.Password); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", u.Username, err))
			continue
		}
		k.log.Info("user created", slog.String("username", u.Username))
	}
	for _, f := range cfg.Files {
		p, err := k.fs.CreateFile(f.Name, f.Content)
		if err != nil {
			errs = append(errs, fmt.Errorf("file %s: %w", f.Name, err))
			continue
		}
		k.log.Info("file created", slog.String("path", p))
	}
	return errors.Join(errs...)
}

// Simulation describes a demo run.
type Simulation struct {
	Workload []config.ProcConfig
	Cycles   int
	Interval time.Duration

	// Allocate reserves each workload process's memory at creation.
	Allocate bool

	// OnTick, when set, observes every cycle.
	OnTick func(scheduler.TickResult)
}

// RunSimulation creates the workload and then runs the requested number of
// cycles, one per Interval. A zero Interval runs the cycles back to back.
// It returns the results of the cycles that ran; a cancelled ctx ends the
// run early and is reported as the error.
func (k *Kernel) RunSimulation(ctx context.Context, sim Simulation) ([]scheduler.TickResult, error) {
	ctx, span := k.tracer.Start(ctx, "kernel.RunSimulation")
	defer span.End()

	for _, w := range sim.Workload {
		var err error
		if sim.Allocate {
			_, _, err = k.SpawnAndAllocate(ctx, w.Name, w.Priority, w.Memory)
		} else {
			_, err = k.Spawn(ctx, w.Name, w.Priority, w.Memory)
		}
		if err != nil {
			// a process that could not get memory still takes part
			k.log.Warn("workload process", slog.String("name", w.Name), slog.Any("error", err))
		}
	}

	results := make([]scheduler.TickResult, 0, max(sim.Cycles, 0))
	step := func(ctx context.Context, _ uint64) {
		r := k.Tick(ctx)
		results = append(results, r)
		if sim.OnTick != nil {
			sim.OnTick(r)
		}
	}

	if sim.Interval <= 0 {
		for i := 0; i < sim.Cycles; i++ {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			step(ctx, uint64(i+1))
		}
		return results, nil
	}
	if sim.Cycles <= 0 {
		return results, nil
	}
	d, err := ticker.New(sim.Interval, step, ticker.WithMaxRuns(uint64(sim.Cycles)), ticker.WithLogger(k.log))
	if err != nil {
		return nil, err
	}
	d.Run(ctx)
	if len(results) < sim.Cycles {
		return results, ctx.Err()
	}
	return results, nil
}

// RunTicker drives Tick on the configured tick_schedule until ctx ends.
func (k *Kernel) RunTicker(ctx context.Context) error {
	if k.cfg.TickSchedule == "" {
		return errors.New("kernel.tick_schedule is empty")
	}
	d, err := ticker.FromSchedule(k.cfg.TickSchedule, func(ctx context.Context, _ uint64) { k.Tick(ctx) }, ticker.WithLogger(k.log))
	if err != nil {
		return err
	}
	k.log.Info("tick driver started", slog.Duration("period", d.Period()))
	d.Run(ctx)
	return nil
}
