package main

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/clock"
	"github.com/smallbiznis/orderdesk/internal/migration"
	"github.com/smallbiznis/orderdesk/internal/seed"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Migrate and load demo orders for local development",
	RunE:  runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	var (
		conn *gorm.DB
		log  *zap.Logger
		node *snowflake.Node
		clk  clock.Clock
	)
	return runTask(
		fx.Options(infraModules(), fx.Populate(&conn, &log, &node, &clk)),
		func(ctx context.Context) error {
			if err := migration.Run(conn.WithContext(ctx)); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			created, err := seed.EnsureDemoOrders(ctx, conn, node, clk.Now())
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			log.Info("demo orders seeded", zap.Int("created", created))
			return nil
		},
	)
}
