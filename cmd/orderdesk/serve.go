package main

import (
	"github.com/smallbiznis/orderdesk/internal/migration"
	"github.com/smallbiznis/orderdesk/internal/scheduler"
	"github.com/smallbiznis/orderdesk/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var noScheduler bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket API, with the job scheduler unless disabled",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve requests only; run jobs in a separate scheduler process")
}

func runServe(cmd *cobra.Command, args []string) error {
	opts := []fx.Option{
		domainModules(),
		migration.Module,
		server.Module,
	}
	if !noScheduler {
		opts = append(opts, scheduler.Module)
	}

	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}
