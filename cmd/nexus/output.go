package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/loykin/nexus/internal/process"
	"github.com/loykin/nexus/pkg/client"
)

type outputFormat string

const (
	outputTable outputFormat = "table"
	outputJSON  outputFormat = "json"
	outputYAML  outputFormat = "yaml"
)

func parseOutput(s string) (outputFormat, error) {
	switch f := outputFormat(s); f {
	case "", outputTable:
		return outputTable, nil
	case outputJSON, outputYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
	}
}

// render writes v as JSON or YAML; the table format is delegated to table.
func render(w io.Writer, f outputFormat, v any, table func(w io.Writer)) error {
	switch f {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	}
}

type procRow struct {
	PID      int
	Name     string
	State    string
	Priority int
	CPU      int
	Memory   int
}

func rowsFromKernel(ps []process.Process) []procRow {
	rows := make([]procRow, 0, len(ps))
	for _, p := range ps {
		rows = append(rows, procRow{p.PID, p.Name, p.State.String(), p.Priority, p.CPUTimeUsed, p.MemoryRequired})
	}
	return rows
}

func rowsFromClient(ps []client.Process) []procRow {
	rows := make([]procRow, 0, len(ps))
	for _, p := range ps {
		rows = append(rows, procRow{p.PID, p.Name, p.State, p.Priority, p.CPUTimeUsed, p.MemoryRequired})
	}
	return rows
}

func writeProcessTable(w io.Writer, rows []procRow) {
	_, _ = fmt.Fprintln(w, "PID\tNAME\tSTATE\tPRIORITY\tCPU\tMEMORY")
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\n", r.PID, r.Name, r.State, r.Priority, r.CPU, r.Memory)
	}
}

func writeMemoryTable(w io.Writer, total, used, available, pages int) {
	_, _ = fmt.Fprintf(w, "Total:\t%d bytes\n", total)
	_, _ = fmt.Fprintf(w, "Used:\t%d bytes\n", used)
	_, _ = fmt.Fprintf(w, "Available:\t%d bytes\n", available)
	_, _ = fmt.Fprintf(w, "Pages:\t%d\n", pages)
}

func tickLine(tick uint64, pid int, name string, idle, terminated bool) string {
	switch {
	case idle:
		return fmt.Sprintf("tick %d: idle", tick)
	case terminated:
		return fmt.Sprintf("tick %d: pid %d (%s) ran and terminated", tick, pid, name)
	default:
		return fmt.Sprintf("tick %d: pid %d (%s) ran", tick, pid, name)
	}
}
