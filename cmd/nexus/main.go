package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with every subcommand attached
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	remoteFlags := &RemoteFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createSimulateCommand(globalFlags, &SimulateFlags{}),
		createShellCommand(globalFlags, &ShellFlags{}),
		createServeCommand(globalFlags),
		createPsCommand(globalFlags, remoteFlags),
		createSpawnCommand(globalFlags, remoteFlags, &SpawnFlags{}),
		createKillCommand(globalFlags, remoteFlags, &KillFlags{}),
		createTickCommand(globalFlags, remoteFlags, &TickFlags{}),
		createMeminfoCommand(globalFlags, remoteFlags),
	)
	return root
}

// createRootCommand creates the root command with the persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "nexus",
		Short: "Simulated kernel with a priority scheduler and page allocator",
		Long: `Nexus simulates a small operating system kernel: a priority round-robin
scheduler, a page allocator, a file store and user sessions.

Examples:
  nexus simulate                    # run the demo workload locally
  nexus shell                       # interactive console
  nexus serve --config=nexus.toml   # start the daemon
  nexus ps --api-url=http://remote:8080/api`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVarP(&flags.Output, "output", "o", string(outputTable), "output format: table, json, yaml")

	return root
}
