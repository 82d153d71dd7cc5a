package main

import (
	"context"
	"fmt"

	"github.com/smallbiznis/orderdesk/internal/migration"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	var (
		conn *gorm.DB
		log  *zap.Logger
	)
	return runTask(
		fx.Options(infraModules(), fx.Populate(&conn, &log)),
		func(ctx context.Context) error {
			log.Info("applying database migrations", zap.String("dialect", conn.Dialector.Name()))
			if err := migration.Run(conn.WithContext(ctx)); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info("database migrations applied")
			return nil
		},
	)
}
