package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-webinar/funnel/config"
	"github.com/aura-webinar/funnel/pkg/database"
)

var rootCmd = &cobra.Command{
	Use:          "funnelctl",
	Short:        "Operate the webinar funnel",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Log at debug level")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(createAdminCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(simulateCmd)
}

func newLogger(cmd *cobra.Command) *zap.Logger {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug, _ := cmd.Flags().GetBool("debug"); !debug {
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, _ := config.Build()
	return logger
}

// openDB loads config and connects to Postgres.
func openDB(ctx context.Context, logger *zap.Logger) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}
