package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/go-foundations/schedcore/core"
)

func newRunCmd() *cobra.Command {
	var ticks int
	var rtAlgorithm string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive the scheduler for a number of ticks and print summary stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := buildScheduler()
			if err != nil {
				return err
			}

			if rtAlgorithm != "" {
				alg, ok := core.ParseRTAlgorithm(rtAlgorithm)
				if !ok {
					return fmt.Errorf("schedctl: unknown rt algorithm %q", rtAlgorithm)
				}
				if err := sched.SetAlgorithm(alg); err != nil {
					return err
				}
			}

			for i := 0; i < ticks; i++ {
				if err := sched.Tick(); err != nil {
					return err
				}
			}

			fmt.Printf("ran %d ticks under %s (run=%s)\n", ticks, sched.ActivePolicy(), sched.RunID())
			sched.PrintStats(os.Stdout)
			return nil
		},
	}
	cmd.Flags().IntVar(&ticks, "ticks", 100, "number of ticks to run")
	cmd.Flags().StringVar(&rtAlgorithm, "rt-algorithm", "", "edf|rms|dms|llf (realtime policy only)")
	return cmd
}
