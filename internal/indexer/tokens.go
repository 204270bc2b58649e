package indexer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"traderScope/internal/batch"
	"traderScope/internal/dex"
)

// SyncTokens loads metadata of tokens referenced by pools but not stored yet.
// Tokens whose metadata cannot be read even alone take their pools with them.
func (r *Runner) SyncTokens(ctx context.Context) error {
	missing, err := r.store.MissingTokens(ctx)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}

	var failed []string
	runner := batch.Runner[string, string]{
		Size:        r.opts.MulticallLimit,
		Concurrency: r.opts.Concurrency,
		Logger:      r.logger,
		Do: func(ctx context.Context, _ string, addresses []string) error {
			tokens, err := dex.FetchTokens(ctx, r.chain, addresses)
			if err != nil {
				return err
			}
			return r.store.InsertTokens(ctx, tokens)
		},
		Drop: func(_ string, address string, _ error) {
			failed = append(failed, address)
		},
	}
	stats, err := runner.Run(ctx, []batch.Group[string, string]{{Key: "tokens", Items: missing}})
	if err != nil {
		return fmt.Errorf("sync tokens: %w", err)
	}

	var deleted int64
	if len(failed) > 0 {
		deleted, err = r.store.DeletePoolsWithTokens(ctx, failed)
		if err != nil {
			return err
		}
	}
	r.logger.Info("tokens synced",
		zap.Int("stored", stats.Succeeded),
		zap.Int("failed", len(failed)),
		zap.Int64("pools_deleted", deleted),
	)
	return nil
}
