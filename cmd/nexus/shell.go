package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/loykin/nexus/internal/config"
	"github.com/loykin/nexus/internal/kernel"
	"github.com/loykin/nexus/internal/process"
)

var errUsage = errors.New("usage")

// createShellCommand creates the shell subcommand
func createShellCommand(globalFlags *GlobalFlags, shellFlags *ShellFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive console against a local kernel",
		Long: `Start an interactive console. Commands that change the system
(run, kill, alloc, free, tick, create) require a login.

Examples:
  nexus shell
  nexus shell --simulate   # run the configured simulation first`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			log := cfg.Log.Logger().NewSloggerTo(os.Stderr, "nexus")
			k, err := bootKernel(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = k.Close(context.Background()) }()
			if shellFlags.Simulate {
				if err := simulate(ctx, k, cmd.OutOrStdout(), cfg, outputTable); err != nil {
					return err
				}
			}
			return newShell(k, cmd.InOrStdin(), cmd.OutOrStdout()).Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&shellFlags.Simulate, "simulate", false, "run the configured simulation before the prompt")
	return cmd
}

type shellCommand struct {
	usage string
	help  string
	auth  bool
	run   func(ctx context.Context, s *shell, args []string) error
}

type shell struct {
	k       *kernel.Kernel
	in      *bufio.Scanner
	out     io.Writer
	user    string
	session string
	cmds    map[string]shellCommand
}

func newShell(k *kernel.Kernel, in io.Reader, out io.Writer) *shell {
	s := &shell{k: k, in: bufio.NewScanner(in), out: out}
	s.cmds = shellCommands()
	return s
}

func (s *shell) prompt() string {
	if s.user == "" {
		return "nexus@guest> "
	}
	return "nexus@" + s.user + "> "
}

func (s *shell) printf(format string, a ...any) { _, _ = fmt.Fprintf(s.out, format, a...) }

// Run reads commands until exit, end of input or ctx is done.
func (s *shell) Run(ctx context.Context) error {
	s.printf("NexusOS shell. Type 'help' for commands.\n")
	for {
		s.printf("%s", s.prompt())
		if !s.in.Scan() {
			s.printf("\n")
			return s.in.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		if s.exec(ctx, s.in.Text()) {
			return nil
		}
	}
}

// exec runs one line and reports whether the shell should exit.
// Errors are printed; they never end the session.
func (s *shell) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	if name == "exit" || name == "quit" {
		s.printf("bye\n")
		return true
	}
	c, ok := s.cmds[name]
	if !ok {
		s.printf("unknown command %q, type 'help'\n", name)
		return false
	}
	if c.auth && s.user == "" {
		s.printf("error: %s requires login\n", name)
		return false
	}
	if err := c.run(ctx, s, args); err != nil {
		if errors.Is(err, errUsage) {
			s.printf("usage: %s\n", c.usage)
		} else {
			s.printf("error: %v\n", err)
		}
	}
	return false
}

func atoi(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return n, nil
}

func shellCommands() map[string]shellCommand {
	return map[string]shellCommand{
		"help":    {usage: "help", help: "show this list", run: cmdHelp},
		"login":   {usage: "login <user> <password>", help: "start a session", run: cmdLogin},
		"logout":  {usage: "logout", help: "end the session", run: cmdLogout},
		"run":     {usage: "run <name> [priority] [memory]", help: "create a process; with memory its pages are reserved", auth: true, run: cmdRun},
		"list":    {usage: "list [processes|files [dir]]", help: "list processes or files", run: cmdList},
		"create":  {usage: "create <file> [content...]", help: "create a file", auth: true, run: cmdCreate},
		"cat":     {usage: "cat <file>", help: "print a file", run: cmdCat},
		"meminfo": {usage: "meminfo", help: "memory usage", run: cmdMeminfo},
		"tick":    {usage: "tick [n]", help: "run n scheduler cycles", auth: true, run: cmdTick},
		"kill":    {usage: "kill <pid> [--reclaim]", help: "terminate a process", auth: true, run: cmdKill},
		"alloc":   {usage: "alloc <pid> <bytes>", help: "reserve memory for a process", auth: true, run: cmdAlloc},
		"free":    {usage: "free <pid>", help: "release a process's pages", auth: true, run: cmdFree},
		"sched":   {usage: "sched", help: "running process and ready queue", run: cmdSched},
		"stats":   {usage: "stats", help: "scheduler statistics", run: cmdStats},
	}
}

func cmdLogin(_ context.Context, s *shell, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	sess, err := s.k.Auth().Authenticate(args[0], args[1])
	if err != nil {
		return err
	}
	s.user, s.session = sess.Username, sess.ID
	s.printf("logged in as %s\n", s.user)
	return nil
}

func cmdLogout(_ context.Context, s *shell, _ []string) error {
	if s.user == "" {
		return errors.New("not logged in")
	}
	s.k.Auth().Logout(s.session)
	s.user, s.session = "", ""
	s.printf("logged out\n")
	return nil
}

func cmdCreate(_ context.Context, s *shell, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	p, err := s.k.FS().CreateFile(args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	s.printf("created %s\n", p)
	return nil
}

func cmdCat(_ context.Context, s *shell, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	content, err := s.k.FS().Read(args[0])
	if err != nil {
		return err
	}
	s.printf("%s\n", content)
	return nil
}

func cmdMeminfo(_ context.Context, s *shell, _ []string) error {
	m := s.k.Memory()
	tw := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	writeMemoryTable(tw, m.Total, m.Used, m.Available, m.LivePages)
	return tw.Flush()
}

func cmdAlloc(ctx context.Context, s *shell, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	pid, err := atoi(args[0])
	if err != nil {
		return err
	}
	size, err := atoi(args[1])
	if err != nil {
		return err
	}
	pages, err := s.k.Allocate(ctx, pid, size)
	if err != nil {
		return err
	}
	s.printf("pid %d: pages %v\n", pid, pages)
	return nil
}

func cmdFree(ctx context.Context, s *shell, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	pid, err := atoi(args[0])
	if err != nil {
		return err
	}
	if _, err := s.k.Process(pid); err != nil {
		return err
	}
	s.printf("pid %d: freed %d pages\n", pid, s.k.Free(ctx, pid))
	return nil
}

func cmdSched(_ context.Context, s *shell, _ []string) error {
	v := s.k.SchedulerView()
	s.printf("tick %d (quantum %d, max cpu %d)\n", v.Tick, v.Quantum, v.MaxCPUTime)
	if v.Running != nil {
		s.printf("running: pid %d (%s) cpu %d\n", v.Running.PID, v.Running.Name, v.Running.CPUTimeUsed)
	} else {
		s.printf("running: none\n")
	}
	s.printf("ready: %v\n", v.Ready)
	return nil
}

func cmdStats(_ context.Context, s *shell, _ []string) error {
	st := s.k.Stats()
	tw := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Ticks:\t%d (idle %d)\n", st.Ticks, st.IdleTicks)
	_, _ = fmt.Fprintf(tw, "Preemptions:\t%d\n", st.Preemptions)
	_, _ = fmt.Fprintf(tw, "Processes:\t%d alive, %d terminated\n", st.Alive, st.Terminated)
	_, _ = fmt.Fprintf(tw, "CPU time:\tmean %.2f, stddev %.2f\n", st.MeanCPUTime, st.StdDevCPUTime)
	_, _ = fmt.Fprintf(tw, "Starving:\t%v\n", st.Starving)
	return tw.Flush()
}

func cmdHelp(_ context.Context, s *shell, _ []string) error {
	names := make([]string, 0, len(s.cmds))
	for n := range s.cmds {
		names = append(names, n)
	}
	sort.Strings(names)
	tw := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	for _, n := range names {
		c := s.cmds[n]
		mark := ""
		if c.auth {
			mark = " (login)"
		}
		_, _ = fmt.Fprintf(tw, "  %s\t%s%s\n", c.usage, c.help, mark)
	}
	_, _ = fmt.Fprintf(tw, "  exit\tleave the shell\n")
	return tw.Flush()
}

func cmdRun(ctx context.Context, s *shell, args []string) error {
	if len(args) < 1 || len(args) > 3 {
		return errUsage
	}
	priority, mem := process.DefaultPriority, process.DefaultMemoryRequired
	var err error
	if len(args) > 1 {
		if priority, err = atoi(args[1]); err != nil {
			return err
		}
	}
	if len(args) > 2 {
		if mem, err = atoi(args[2]); err != nil {
			return err
		}
		pid, pages, err := s.k.SpawnAndAllocate(ctx, args[0], priority, mem)
		if err != nil {
			if pid != 0 {
				s.printf("created pid %d without memory\n", pid)
			}
			return err
		}
		s.printf("created pid %d, pages %v\n", pid, pages)
		return nil
	}
	pid, err := s.k.Spawn(ctx, args[0], priority, mem)
	if err != nil {
		return err
	}
	s.printf("created pid %d\n", pid)
	return nil
}

func cmdList(_ context.Context, s *shell, args []string) error {
	what := "processes"
	if len(args) > 0 {
		what = args[0]
	}
	tw := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	switch what {
	case "processes":
		writeProcessTable(tw, rowsFromKernel(s.k.Processes()))
	case "files":
		dir := "/"
		if len(args) > 1 {
			dir = args[1]
		}
		entries, err := s.k.FS().List(dir)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(tw, "NAME\tSIZE")
		for _, e := range entries {
			name := e.Name
			if e.IsDir {
				name += "/"
			}
			_, _ = fmt.Fprintf(tw, "%s\t%d\n", name, e.Size)
		}
	default:
		return errUsage
	}
	return tw.Flush()
}

func cmdTick(ctx context.Context, s *shell, args []string) error {
	n := 1
	if len(args) > 0 {
		var err error
		if n, err = atoi(args[0]); err != nil {
			return err
		}
		if n < 1 {
			return fmt.Errorf("tick count must be >= 1")
		}
	}
	for _, r := range s.k.TickN(ctx, n) {
		var (
			pid  int
			name string
		)
		if r.Process != nil {
			pid, name = r.Process.PID, r.Process.Name
		}
		s.printf("%s\n", tickLine(r.Tick, pid, name, r.Idle, r.Terminated))
	}
	return nil
}

func cmdKill(ctx context.Context, s *shell, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	pid, err := atoi(args[0])
	if err != nil {
		return err
	}
	reclaim := len(args) == 2 && args[1] == "--reclaim"
	if len(args) == 2 && !reclaim {
		return errUsage
	}
	if _, err := s.k.Process(pid); err != nil {
		return err
	}
	freed := s.k.Kill(ctx, pid, reclaim)
	s.printf("pid %d terminated, %d pages freed\n", pid, freed)
	return nil
}
