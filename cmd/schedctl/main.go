// Command schedctl drives a schedcore scheduler from the command
// line: run it for a number of ticks, check its structural invariants,
// or dump its internal state. It plays the role the teacher's
// examples/*/main.go programs played for workerpool, adapted for a
// tick-driven scheduler instead of a run-to-completion job pool.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/go-foundations/schedcore/config"
	"github.com/go-foundations/schedcore/core"
	"github.com/go-foundations/schedcore/kernel"

	_ "github.com/go-foundations/schedcore/policies/cfs"
	_ "github.com/go-foundations/schedcore/policies/lottery"
	_ "github.com/go-foundations/schedcore/policies/mlfq"
	_ "github.com/go-foundations/schedcore/policies/priority"
	_ "github.com/go-foundations/schedcore/policies/realtime"
	_ "github.com/go-foundations/schedcore/policies/roundrobin"
)

var (
	configPath string
	policyName string
	procCount  int
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:   "schedctl",
		Short: "Drive a schedcore scheduler from the command line",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config overlay")
	root.PersistentFlags().StringVar(&policyName, "policy", "priority", "round-robin|priority|mlfq|lottery|cfs|realtime")
	root.PersistentFlags().IntVar(&procCount, "procs", 4, "number of synthetic processes to seed")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "log at debug level instead of info")

	root.AddCommand(newRunCmd(), newValidateCmd(), newDumpCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).With().Timestamp().Logger()
}

// buildScheduler loads config, installs the requested policy, and
// seeds it with procCount synthetic processes (pids 0..procCount-1).
func buildScheduler() (*core.Scheduler, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	typ, ok := core.ParsePolicyType(policyName)
	if !ok {
		return nil, fmt.Errorf("schedctl: unknown policy %q", policyName)
	}

	table := kernel.NewMemTable(cfg.NProc)
	swap := &kernel.CountingSwitcher{}
	sched := core.NewScheduler(cfg, table, swap.Switch, newLogger())
	if err := sched.Init(typ); err != nil {
		return nil, err
	}

	n := procCount
	if n > cfg.NProc {
		n = cfg.NProc
	}
	for pid := 0; pid < n; pid++ {
		if err := sched.NewProcess(pid); err != nil {
			return nil, err
		}
	}
	return sched, nil
}
