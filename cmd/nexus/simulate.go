package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/nexus/internal/config"
	"github.com/loykin/nexus/internal/kernel"
	"github.com/loykin/nexus/internal/memory"
	"github.com/loykin/nexus/internal/process"
	"github.com/loykin/nexus/internal/scheduler"
)

// createSimulateCommand creates the simulate subcommand
func createSimulateCommand(globalFlags *GlobalFlags, simFlags *SimulateFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the configured workload for a number of cycles",
		Long: `Create the workload from [[processes]] and run the scheduler locally.

Examples:
  nexus simulate
  nexus simulate --cycles=20 --interval=0 -o json
  nexus simulate --allocate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutput(globalFlags.Output)
			if err != nil {
				return err
			}
			cfg, err := config.LoadConfig(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("cycles") {
				cfg.Simulation.Cycles = simFlags.Cycles
			}
			if cmd.Flags().Changed("interval") {
				cfg.Simulation.Interval = simFlags.Interval
			}
			if cmd.Flags().Changed("allocate") {
				cfg.Simulation.Allocate = simFlags.Allocate
			}
			log := cfg.Log.Logger().NewSloggerTo(os.Stderr, "nexus")
			return runSimulate(cmd.Context(), cmd.OutOrStdout(), cfg, format, log)
		},
	}

	cmd.Flags().IntVar(&simFlags.Cycles, "cycles", 10, "number of scheduler cycles")
	cmd.Flags().DurationVar(&simFlags.Interval, "interval", time.Second, "delay between cycles (0 runs back to back)")
	cmd.Flags().BoolVar(&simFlags.Allocate, "allocate", false, "reserve each process's memory at creation")

	return cmd
}

type simulationReport struct {
	Ticks     []scheduler.TickResult `json:"ticks" yaml:"ticks"`
	Processes []process.Process      `json:"processes" yaml:"processes"`
	Memory    memory.Report          `json:"memory" yaml:"memory"`
	Stats     kernel.Stats           `json:"stats" yaml:"stats"`
}

func runSimulate(ctx context.Context, w io.Writer, cfg *config.Config, format outputFormat, log *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	k, err := bootKernel(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = k.Close(context.Background()) }()
	return simulate(ctx, k, w, cfg, format)
}

// simulate runs the configured workload on k and prints the report.
func simulate(ctx context.Context, k *kernel.Kernel, w io.Writer, cfg *config.Config, format outputFormat) error {
	sim := kernel.Simulation{
		Workload: cfg.Processes,
		Cycles:   cfg.Simulation.Cycles,
		Interval: cfg.Simulation.Interval,
		Allocate: cfg.Simulation.Allocate,
	}
	if format == outputTable {
		sim.OnTick = func(r scheduler.TickResult) {
			var (
				pid  int
				name string
			)
			if r.Process != nil {
				pid, name = r.Process.PID, r.Process.Name
			}
			_, _ = fmt.Fprintln(w, tickLine(r.Tick, pid, name, r.Idle, r.Terminated))
		}
	}
	results, err := k.RunSimulation(ctx, sim)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	report := simulationReport{
		Ticks:     results,
		Processes: k.Processes(),
		Memory:    k.Memory(),
		Stats:     k.Stats(),
	}
	return render(w, format, report, func(w io.Writer) {
		_, _ = fmt.Fprintln(w)
		writeProcessTable(w, rowsFromKernel(report.Processes))
		_, _ = fmt.Fprintln(w)
		m := report.Memory
		writeMemoryTable(w, m.Total, m.Used, m.Available, m.LivePages)
	})
}
