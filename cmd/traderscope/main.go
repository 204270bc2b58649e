package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "traderscope",
		Short:        "On-chain trader performance analytics",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().StringSlice("rpc", nil, "RPC URLs (comma-separated, tried in order)")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the database schema",
			RunE:  runMigrate,
		},
		&cobra.Command{
			Use:   "sync-pools",
			Short: "Discover pools from factory events and load their tokens",
			RunE:  runSyncPools,
		},
		&cobra.Command{
			Use:   "sync-liquidity",
			Short: "Refresh USD liquidity of quoted pools",
			RunE:  runSyncLiquidity,
		},
		&cobra.Command{
			Use:   "sync-canonical",
			Short: "Choose the canonical pricing pool of every token",
			RunE:  runSyncCanonical,
		},
		&cobra.Command{
			Use:   "sync-prices",
			Short: "Backfill USD price series",
			RunE:  runSyncPrices,
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Run pools, liquidity, canonical and price sync in order",
			RunE:  runSync,
		},
		&cobra.Command{
			Use:   "debug",
			Short: "Probe endpoints, head block and the anchor price",
			RunE:  runDebug,
		},
	)

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Sync an account and print its fund report",
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().String("address", "", "account address")
	analyzeCmd.Flags().String("out", "", "optional JSONL file the summary is appended to")
	root.AddCommand(analyzeCmd)

	topCmd := &cobra.Command{
		Use:   "top",
		Short: "List accounts by unrealized PnL",
		RunE:  runTop,
	}
	topCmd.Flags().Int("count", 10, "number of accounts")
	root.AddCommand(topCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
