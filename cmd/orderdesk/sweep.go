package main

import (
	"context"

	"github.com/smallbiznis/orderdesk/internal/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run every enabled scheduler job once and exit",
	Long: "Runs the SLA sweep, realtime pushes, escalation delivery and metrics export once. " +
		"SCHEDULER_ENABLED_JOBS narrows the set, e.g. SCHEDULER_ENABLED_JOBS=sla_sweep.",
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	var sched *scheduler.Scheduler
	return runTask(
		fx.Options(domainModules(), scheduler.Providers, fx.Populate(&sched)),
		func(ctx context.Context) error {
			return sched.RunOnce(ctx)
		},
	)
}
