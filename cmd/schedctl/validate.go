package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var ticks int

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the scheduler for a number of ticks, then check its structural invariants",
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

			ok, verr := sched.Validate()
			if ok {
				fmt.Println("ok: no invariant violations")
				return nil
			}
			fmt.Fprintf(os.Stderr, "invariant violations:\n%v\n", verr)
			os.Exit(1)
			return nil
		},
	}
	cmd.Flags().IntVar(&ticks, "ticks", 100, "number of ticks to run before validating")
	return cmd
}
