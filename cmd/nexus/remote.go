package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/nexus/pkg/client"
)

const defaultAPIUrl = "http://127.0.0.1:8080/api"

// addRemoteFlags registers daemon connection flags on cmd.
func addRemoteFlags(cmd *cobra.Command, f *RemoteFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "daemon URL (default "+defaultAPIUrl+")")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.Flags().BoolVar(&f.Insecure, "insecure", false, "skip TLS verification")
	cmd.Flags().StringVar(&f.CACert, "ca-cert", "", "CA certificate for HTTPS daemons")
	cmd.Flags().StringVar(&f.Username, "username", "", "login before the request")
	cmd.Flags().StringVar(&f.Password, "password", "", "password for --username")
}

// connect builds a client, checks the daemon answers and logs in when
// credentials are given.
func connect(ctx context.Context, f *RemoteFlags) (*client.Client, error) {
	apiURL := f.APIUrl
	if apiURL == "" {
		apiURL = defaultAPIUrl
	}
	cfg := client.Config{BaseURL: apiURL, Timeout: f.APITimeout, Insecure: f.Insecure}
	if f.CACert != "" {
		cfg.TLS = &client.TLSClientConfig{Enabled: true, CACert: f.CACert}
	}
	c := client.New(cfg)
	if !c.IsReachable(ctx) {
		return nil, fmt.Errorf("daemon not reachable at %s - please start daemon first with 'nexus serve'", apiURL)
	}
	if f.Username != "" {
		if _, err := c.Login(ctx, f.Username, f.Password); err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
	}
	return c, nil
}

// remoteCommand wraps a RunE body that needs a connected client.
func remoteCommand(g *GlobalFlags, f *RemoteFlags, run func(ctx context.Context, c *client.Client, w io.Writer, format outputFormat) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		format, err := parseOutput(g.Output)
		if err != nil {
			return err
		}
		c, err := connect(cmd.Context(), f)
		if err != nil {
			return err
		}
		return run(cmd.Context(), c, cmd.OutOrStdout(), format)
	}
}

// createPsCommand creates the ps subcommand
func createPsCommand(g *GlobalFlags, f *RemoteFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List processes on a daemon",
		Long: `List every process known to the daemon, terminated ones included.

Examples:
  nexus ps
  nexus ps -o yaml --api-url=http://remote:8080/api`,
		RunE: remoteCommand(g, f, func(ctx context.Context, c *client.Client, w io.Writer, format outputFormat) error {
			procs, err := c.Processes(ctx)
			if err != nil {
				return err
			}
			return render(w, format, procs, func(w io.Writer) { writeProcessTable(w, rowsFromClient(procs)) })
		}),
	}
	addRemoteFlags(cmd, f)
	return cmd
}

// createSpawnCommand creates the spawn subcommand
func createSpawnCommand(g *GlobalFlags, f *RemoteFlags, sf *SpawnFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spawn",
		Short: "Create a process on a daemon",
		Long: `Create a process. With --allocate its memory is reserved too; when
memory is short the process still exists and the error names its pid.

Examples:
  nexus spawn --name=browser --priority=2
  nexus spawn --name=db --memory=65536 --allocate --username=admin --password=admin123`,
		RunE: remoteCommand(g, f, func(ctx context.Context, c *client.Client, w io.Writer, format outputFormat) error {
			out, err := c.Spawn(ctx, client.SpawnRequest{Name: sf.Name, Priority: sf.Priority, Memory: sf.Memory, Allocate: sf.Allocate})
			if err != nil {
				return err
			}
			return render(w, format, out, func(w io.Writer) {
				_, _ = fmt.Fprintf(w, "PID:\t%d\n", out.PID)
				if len(out.Pages) > 0 {
					_, _ = fmt.Fprintf(w, "Pages:\t%v\n", out.Pages)
				}
			})
		}),
	}
	cmd.Flags().StringVar(&sf.Name, "name", "", "process name (required)")
	cmd.Flags().IntVar(&sf.Priority, "priority", 1, "scheduling priority, higher runs first")
	cmd.Flags().IntVar(&sf.Memory, "memory", 1024, "memory requirement in bytes")
	cmd.Flags().BoolVar(&sf.Allocate, "allocate", false, "reserve the memory at creation")
	addRemoteFlags(cmd, f)
	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}
	return cmd
}

// createKillCommand creates the kill subcommand
func createKillCommand(g *GlobalFlags, f *RemoteFlags, kf *KillFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Terminate a process on a daemon",
		Long: `Terminate a process. Its pages stay reserved unless --reclaim is given
or the daemon runs with reclaim_on_exit.

Examples:
  nexus kill --pid=3
  nexus kill --pid=3 --reclaim`,
		RunE: remoteCommand(g, f, func(ctx context.Context, c *client.Client, w io.Writer, format outputFormat) error {
			out, err := c.Kill(ctx, kf.PID, kf.Reclaim)
			if err != nil {
				return err
			}
			return render(w, format, out, func(w io.Writer) {
				_, _ = fmt.Fprintf(w, "PID:\t%d\n", out.PID)
				_, _ = fmt.Fprintf(w, "Freed:\t%d pages\n", out.Freed)
			})
		}),
	}
	cmd.Flags().IntVar(&kf.PID, "pid", 0, "process id (required)")
	cmd.Flags().BoolVar(&kf.Reclaim, "reclaim", false, "free the process's pages")
	addRemoteFlags(cmd, f)
	if err := cmd.MarkFlagRequired("pid"); err != nil {
		panic(err)
	}
	return cmd
}

// createTickCommand creates the tick subcommand
func createTickCommand(g *GlobalFlags, f *RemoteFlags, tf *TickFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Advance the daemon's scheduler",
		Long: `Run scheduler cycles on the daemon and print what ran.

Examples:
  nexus tick
  nexus tick --count=5 -o json`,
		RunE: remoteCommand(g, f, func(ctx context.Context, c *client.Client, w io.Writer, format outputFormat) error {
			results, err := c.Tick(ctx, tf.Count)
			if err != nil {
				return err
			}
			return render(w, format, results, func(w io.Writer) {
				for _, r := range results {
					var (
						pid  int
						name string
					)
					if r.Process != nil {
						pid, name = r.Process.PID, r.Process.Name
					}
					_, _ = fmt.Fprintln(w, tickLine(r.Tick, pid, name, r.Idle, r.Terminated))
				}
			})
		}),
	}
	cmd.Flags().IntVar(&tf.Count, "count", 1, "number of cycles")
	addRemoteFlags(cmd, f)
	return cmd
}

// createMeminfoCommand creates the meminfo subcommand
func createMeminfoCommand(g *GlobalFlags, f *RemoteFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meminfo",
		Short: "Show the daemon's memory usage",
		RunE: remoteCommand(g, f, func(ctx context.Context, c *client.Client, w io.Writer, format outputFormat) error {
			m, err := c.Memory(ctx)
			if err != nil {
				return err
			}
			return render(w, format, m, func(w io.Writer) {
				writeMemoryTable(w, m.Total, m.Used, m.Available, m.LivePages)
			})
		}),
	}
	addRemoteFlags(cmd, f)
	return cmd
}
