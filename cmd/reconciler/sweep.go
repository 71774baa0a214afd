package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func sweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Escalate every break past its SLA deadline once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.workflow.SweepSLA(cmd.Context(), time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Printf("%d overdue, %s escalated, %s now manual only, %d conflicts\n",
				res.Due,
				color.New(color.FgYellow).Sprint(res.Escalated),
				color.New(color.FgRed).Sprint(res.ManualOnly),
				res.Conflicts)
			return nil
		},
	}
}
