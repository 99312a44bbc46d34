package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/simplevisor/simplevisor/internal/engine"
	"github.com/simplevisor/simplevisor/internal/pidfile"
)

// GlobalFlags holds the persistent flags shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
}

// errCheckMismatch distinguishes a check that found drift from real failures.
var errCheckMismatch = errors.New("check found mismatches")

func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}
	root := &cobra.Command{
		Use:   "simplevisor",
		Short: "Hierarchical service supervision tool",
		Long: `Simplevisor supervises a tree of services through their own control
commands, restarting what drifts from its expected state according to
per-supervisor strategies and restart budgets.

Examples:
  simplevisor --config=svisor.toml start --daemon
  simplevisor --config=svisor.toml status svisor1/httpd
  simplevisor --config=svisor.toml check
  simplevisor --config=svisor.toml stop`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to config file (toml, yaml or json)")

	root.AddCommand(
		createStartCommand(flags),
		createStopCommand(flags),
		createStatusCommand(flags),
		createCheckCommand(flags),
		createRestartCommand(flags),
		createRestartChildCommand(flags),
		createSingleCommand(flags),
		createWakeUpCommand(flags),
		createStopSupervisorCommand(flags),
		createStopChildrenCommand(flags),
		createCheckConfigurationCommand(flags),
	)
	return root
}

func argPath(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func createStartCommand(flags *GlobalFlags) *cobra.Command {
	var daemon bool
	cmd := &cobra.Command{
		Use:   "start [path]",
		Short: "Start an entry directly, or begin supervising the whole tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(flags)
			if err != nil {
				return err
			}
			defer sess.Close()
			path := argPath(args)
			if daemon && path != "" {
				return fmt.Errorf("%w: --daemon cannot target a single entry", engine.ErrInvalidArguments)
			}
			loneService := len(sess.cfg.Root.Entries) == 0
			if daemon && loneService {
				return fmt.Errorf("%w: --daemon needs a supervision tree, not a lone service", engine.ErrInvalidArguments)
			}
			if daemon {
				// parent re-execs detached and returns; the child lands here
				// again without --daemon and runs the loop
				return daemonize()
			}
			eng, err := sess.engine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()
			if path != "" || loneService {
				return eng.StartEntry(path)
			}
			if err := sess.requirePIDFile(); err != nil {
				return err
			}
			return eng.Run()
		},
	}
	cmd.Flags().BoolVar(&daemon, "daemon", false, "detach and run the supervision loop in the background")
	return cmd
}

func createStopCommand(flags *GlobalFlags) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "stop [path]",
		Short: "Stop an entry directly, or stop the running daemon and all children",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(flags)
			if err != nil {
				return err
			}
			defer sess.Close()
			if path := argPath(args); path != "" {
				eng, err := sess.engine()
				if err != nil {
					return err
				}
				defer func() { _ = eng.Close() }()
				return eng.StopEntry(path)
			}
			if err := sess.requirePIDFile(); err != nil {
				return err
			}
			return engine.StopDaemon(sess.cfg.PIDFile, wait)
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "how long to wait for the daemon to exit")
	return cmd
}

func createStatusCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status [path]",
		Short: "Report observed state without mutating anything",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(flags)
			if err != nil {
				return err
			}
			defer sess.Close()
			eng, err := sess.engine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()
			path := argPath(args)
			if path == "" && sess.cfg.PIDFile != "" {
				if pid := pidfile.Running(sess.cfg.PIDFile); pid != 0 {
					cmd.Printf("daemon running (pid %d)\n", pid)
				} else {
					cmd.Println("daemon not running")
				}
			}
			st, err := eng.Status(path)
			if err != nil && errors.Is(err, engine.ErrEntryNotFound) {
				return err
			}
			name := path
			if name == "" {
				name = eng.Root().Name()
			}
			cmd.Printf("%s: %s\n", name, st)
			return nil
		},
	}
}

func createCheckCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check [path]",
		Short: "Audit observed against expected state, read-only",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(flags)
			if err != nil {
				return err
			}
			defer sess.Close()
			eng, err := sess.engine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()
			ok, detail, err := eng.Check(argPath(args))
			if err != nil {
				return err
			}
			for _, line := range detail {
				cmd.Println(line)
			}
			if !ok {
				return errCheckMismatch
			}
			return nil
		},
	}
}

func createRestartCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restart [path]",
		Short: "Stop then start an entry; clears a failed supervisor's budget",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(flags)
			if err != nil {
				return err
			}
			defer sess.Close()
			eng, err := sess.engine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()
			return eng.RestartEntry(argPath(args))
		},
	}
}

func createRestartChildCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restart_child <path>",
		Short: "Ask the running daemon to restart one child inside its own cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(flags)
			if err != nil {
				return err
			}
			defer sess.Close()
			if err := sess.requirePIDFile(); err != nil {
				return err
			}
			eng, err := sess.engine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()
			ent, err := eng.Resolve(args[0])
			if err != nil {
				return err
			}
			if ent == eng.Root() {
				return fmt.Errorf("%w: restart_child must address a child, not the root", engine.ErrInvalidArguments)
			}
			return engine.SendInstruction(sess.cfg.PIDFile, engine.Instruction{Verb: engine.VerbRestartChild, Path: args[0]})
		},
	}
}

func createSingleCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "single",
		Short: "Run exactly one supervision cycle at the root and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(flags)
			if err != nil {
				return err
			}
			defer sess.Close()
			eng, err := sess.engine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()
			eng.Cycle()
			return nil
		},
	}
}

func createWakeUpCommand(flags *GlobalFlags) *cobra.Command {
	return createInstructionCommand(flags, "wake_up",
		"Interrupt the daemon's sleep and trigger a cycle now", engine.VerbWakeUp)
}

func createStopSupervisorCommand(flags *GlobalFlags) *cobra.Command {
	return createInstructionCommand(flags, "stop_supervisor",
		"Stop the daemon process only; children keep running", engine.VerbStopSupervisor)
}

func createStopChildrenCommand(flags *GlobalFlags) *cobra.Command {
	return createInstructionCommand(flags, "stop_children",
		"Stop all children but leave the daemon supervising", engine.VerbStopChildren)
}

func createInstructionCommand(flags *GlobalFlags, use, short, verb string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(flags)
			if err != nil {
				return err
			}
			defer sess.Close()
			if err := sess.requirePIDFile(); err != nil {
				return err
			}
			return engine.SendInstruction(sess.cfg.PIDFile, engine.Instruction{Verb: verb})
		},
	}
}

func createCheckConfigurationCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check_configuration",
		Short: "Parse and validate the config without touching any service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(flags)
			if err != nil {
				return err
			}
			defer sess.Close()
			if _, err := sess.cfg.BuildTree(sess.log); err != nil {
				return err
			}
			cmd.Println("configuration OK")
			return nil
		},
	}
}
