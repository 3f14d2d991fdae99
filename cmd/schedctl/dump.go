package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newDumpCmd() *cobra.Command {
	var ticks int

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Run the scheduler for a number of ticks, then dump its internal state",
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := buildScheduler()
			if err != nil {
				return err
			}
			for i := 0; i < ticks; i++ {
				if err := sched.Tick(); err != nil {
					return err
				}
			}
			sched.Dump(os.Stdout)
			return nil
		},
	}
	cmd.Flags().IntVar(&ticks, "ticks", 0, "number of ticks to run before dumping")
	return cmd
}
