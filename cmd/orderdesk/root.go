package main

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/clock"
	"github.com/smallbiznis/orderdesk/internal/config"
	"github.com/smallbiznis/orderdesk/internal/dashboard"
	"github.com/smallbiznis/orderdesk/internal/escalation"
	"github.com/smallbiznis/orderdesk/internal/metricsexport"
	"github.com/smallbiznis/orderdesk/internal/observability"
	"github.com/smallbiznis/orderdesk/internal/order"
	"github.com/smallbiznis/orderdesk/internal/providers"
	"github.com/smallbiznis/orderdesk/internal/ratelimit"
	"github.com/smallbiznis/orderdesk/internal/realtime"
	"github.com/smallbiznis/orderdesk/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const (
	startTimeout = 30 * time.Second
	stopTimeout  = 30 * time.Second
)

var rootCmd = &cobra.Command{
	Use:          "orderdesk",
	Short:        "Retail order SLA engine: order API, SLA sweeps, escalations and live dashboards",
	SilenceUsage: true,
	RunE:         runServe,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(seedCmd)
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

// infraModules is everything below the domain: config, logging, storage.
func infraModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
	)
}

// domainModules wires the order, dashboard, escalation and realtime services.
func domainModules() fx.Option {
	return fx.Options(
		infraModules(),
		ratelimit.Module,
		providers.Module,
		order.Module,
		dashboard.Module,
		escalation.Module,
		realtime.Module,
		metricsexport.Module,
	)
}

// runTask starts a short-lived app, runs task, then stops the app so pools
// and background delivery drain.
func runTask(opts fx.Option, task func(ctx context.Context) error) error {
	app := fx.New(opts)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	taskErr := task(context.Background())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil && taskErr == nil {
		return err
	}
	return taskErr
}
