package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"traderScope/internal/model"
	"traderScope/internal/storage"
)

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx, a, cleanup, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()

	applied, err := a.store.Migrate(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("migrations applied", zap.Strings("files", applied))
	return nil
}

func runSyncPools(cmd *cobra.Command, _ []string) error {
	ctx, a, cleanup, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()

	runner, err := a.indexer()
	if err != nil {
		return err
	}
	if err := runner.SyncPools(ctx); err != nil {
		return err
	}
	return runner.SyncTokens(ctx)
}

func runSyncLiquidity(cmd *cobra.Command, _ []string) error {
	ctx, a, cleanup, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()

	runner, err := a.indexer()
	if err != nil {
		return err
	}
	return runner.SyncLiquidity(ctx)
}

func runSyncCanonical(cmd *cobra.Command, _ []string) error {
	ctx, a, cleanup, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()

	runner, err := a.indexer()
	if err != nil {
		return err
	}
	return runner.SyncCanonical(ctx)
}

func runSyncPrices(cmd *cobra.Command, _ []string) error {
	ctx, a, cleanup, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()

	_, err = a.scheduler().Run(ctx)
	return err
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx, a, cleanup, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()

	runner, err := a.indexer()
	if err != nil {
		return err
	}
	if err := runner.Run(ctx); err != nil {
		return err
	}
	result, err := a.scheduler().Run(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("sync complete",
		zap.Uint64("block", result.Head),
		zap.Int("anchor_prices", result.AnchorPrices),
		zap.Int("prices", result.Prices),
		zap.Int("dropped", result.Dropped),
	)
	return nil
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	address, _ := cmd.Flags().GetString("address")
	if address == "" {
		return fmt.Errorf("--address is required")
	}
	out, _ := cmd.Flags().GetString("out")

	ctx, a, cleanup, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := a.traders().Analyze(ctx, address)
	if err != nil {
		return err
	}
	if out != "" {
		if err := storage.NewJsonlStorage(out).PutSummaries([]model.TraderSummary{summary}); err != nil {
			return err
		}
	}
	return printJSON(summary)
}

func runTop(cmd *cobra.Command, _ []string) error {
	count, _ := cmd.Flags().GetInt("count")

	ctx, a, cleanup, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()

	top, err := a.traders().Top(ctx, count)
	if err != nil {
		return err
	}
	return printJSON(top)
}

type debugReport struct {
	ChainID     uint64       `json:"chain_id"`
	Endpoint    string       `json:"endpoint"`
	Head        uint64       `json:"head"`
	AnchorPool  *model.Pool  `json:"anchor_pool,omitempty"`
	AnchorPrice *model.Price `json:"anchor_price,omitempty"`
}

func runDebug(cmd *cobra.Command, _ []string) error {
	ctx, a, cleanup, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := a.chain.ValidateChainID(ctx, a.cfg.ChainID); err != nil {
		return err
	}
	head, err := a.chain.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}
	report := debugReport{ChainID: a.cfg.ChainID, Endpoint: a.chain.Endpoint(), Head: head}

	anchor, err := a.scheduler().AnchorTokenPool(ctx)
	if err != nil {
		a.logger.Warn("anchor pool unavailable", zap.Error(err))
	} else {
		pool, err := a.store.Pool(ctx, anchor.PoolID)
		if err != nil {
			return err
		}
		report.AnchorPool = &pool
		latest, err := a.store.LatestPrices(ctx, []string{anchor.Token})
		if err != nil {
			return err
		}
		if p, ok := latest[anchor.Token]; ok {
			report.AnchorPrice = &p
		}
	}
	return printJSON(report)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
